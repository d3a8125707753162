// Package logging bridges user supplied loggers into log/slog.
package logging

import (
	"context"
	"log/slog"

	"github.com/LavishGent/keyv/internal/types"
)

// NewSlog returns a slog.Logger writing through l. A nil l yields slog.Default().
func NewSlog(l types.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	if h, ok := l.(interface{ Handler() slog.Handler }); ok {
		return slog.New(h.Handler())
	}
	return slog.New(Handler{logger: l})
}

// Handler is a slog.Handler over a types.Logger.
//
//nolint:govet // Simple adapter struct - alignment optimization minimal
type Handler struct {
	attrs  []slog.Attr
	logger types.Logger
	group  string // current group prefix from WithGroup calls
	level  slog.Leveler
}

// NewHandler creates a handler that drops records below level.
func NewHandler(l types.Logger, level slog.Leveler) Handler {
	return Handler{logger: l, level: level}
}

// Enabled implements slog.Handler.
func (a Handler) Enabled(_ context.Context, level slog.Level) bool {
	if a.level == nil {
		return true
	}
	return level >= a.level.Level()
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Handler interface requires passing Record by value
func (a Handler) Handle(_ context.Context, r slog.Record) error {
	args := make([]any, 0, (len(a.attrs)+r.NumAttrs())*2)

	for _, attr := range a.attrs {
		args = append(args, attr.Key, attr.Value.Resolve().Any())
	}

	r.Attrs(func(attr slog.Attr) bool {
		key := attr.Key
		if a.group != "" {
			key = a.group + "." + key
		}
		args = append(args, key, attr.Value.Resolve().Any())
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		a.logger.Error(r.Message, args...)
	case r.Level >= slog.LevelWarn:
		a.logger.Warn(r.Message, args...)
	case r.Level >= slog.LevelInfo:
		a.logger.Info(r.Message, args...)
	default:
		a.logger.Debug(r.Message, args...)
	}
	return nil
}

// WithAttrs implements slog.Handler. Attribute keys are qualified by the
// current group at the time they are added.
func (a Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(a.attrs), len(a.attrs)+len(attrs))
	copy(newAttrs, a.attrs)
	for _, attr := range attrs {
		if a.group != "" {
			attr.Key = a.group + "." + attr.Key
		}
		newAttrs = append(newAttrs, attr)
	}
	a.attrs = newAttrs
	return a
}

// WithGroup implements slog.Handler.
func (a Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return a
	}
	if a.group != "" {
		name = a.group + "." + name
	}
	a.group = name
	return a
}
