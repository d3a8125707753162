package logging

import (
	"go.uber.org/zap"

	"github.com/LavishGent/keyv/internal/types"
)

// ZapLogger adapts a zap logger to types.Logger. Args are key/value pairs.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// Zap wraps l. A nil l uses zap.NewNop().
func Zap(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// Sync flushes buffered zap output.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

var _ types.Logger = (*ZapLogger)(nil)
