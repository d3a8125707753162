package keyv

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/LavishGent/keyv/internal/keyv"
	"github.com/LavishGent/keyv/internal/logging"
	"github.com/LavishGent/keyv/internal/types"
)

type (
	// Option configures a Keyv at construction.
	Option = keyv.Option
	// Options is the resolved option set.
	Options = keyv.Options
	// OpOption tunes a single call.
	OpOption = types.Option
)

// WithTTL overrides the default ttl for one call. Zero never expires.
func WithTTL(ttl time.Duration) OpOption {
	return types.WithTTL(ttl)
}

// WithoutExpiry stores a value that never expires, whatever the default ttl.
func WithoutExpiry() OpOption {
	return types.WithoutExpiry()
}

func WithStore(store Store) Option {
	return keyv.WithStore(store)
}

func WithNamespace(namespace string) Option {
	return keyv.WithNamespace(namespace)
}

// WithNamespaceFunc evaluates the namespace on every call.
func WithNamespaceFunc(fn func() string) Option {
	return keyv.WithNamespaceFunc(fn)
}

// WithDefaultTTL sets the ttl used when a call does not pass one.
func WithDefaultTTL(ttl time.Duration) Option {
	return keyv.WithTTL(ttl)
}

func WithSeparator(sep string) Option {
	return keyv.WithSeparator(sep)
}

func WithSerializer(s Serializer) Option {
	return keyv.WithSerializer(s)
}

func WithCompression(c CompressionAdapter) Option {
	return keyv.WithCompression(c)
}

func WithStats(enabled bool) Option {
	return keyv.WithStats(enabled)
}

func WithEmitErrors(enabled bool) Option {
	return keyv.WithEmitErrors(enabled)
}

func WithThrowOnErrors(enabled bool) Option {
	return keyv.WithThrowOnErrors(enabled)
}

func WithUseKeyPrefix(enabled bool) Option {
	return keyv.WithUseKeyPrefix(enabled)
}

func WithClock(clock clockwork.Clock) Option {
	return keyv.WithClock(clock)
}

func WithLogger(logger *slog.Logger) Option {
	return keyv.WithLogger(logger)
}

// WithLoggerAdapter routes logs through any Logger implementation.
func WithLoggerAdapter(l Logger) Option {
	return keyv.WithLogger(logging.NewSlog(l))
}

// WithZap routes logs through a zap logger.
func WithZap(l *zap.Logger) Option {
	return WithLoggerAdapter(logging.Zap(l))
}

// WithLogrus routes logs through a logrus logger.
func WithLogrus(l logrus.FieldLogger) Option {
	return WithLoggerAdapter(logging.Logrus(l))
}

// WithPublisher sends operation timings to p and, when interval is
// positive, a stats snapshot every interval.
func WithPublisher(p Publisher, interval time.Duration) Option {
	return keyv.WithPublisher(p, interval)
}

// WithConcurrency bounds the fan-out used for stores without batch support.
func WithConcurrency(n int) Option {
	return keyv.WithConcurrency(n)
}
