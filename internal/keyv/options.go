package keyv

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/codec"
	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/metrics"
	"github.com/LavishGent/keyv/internal/types"
)

// DefaultSeparator joins the namespace and key when the orchestrator
// prefixes keys itself.
const DefaultSeparator = ":"

// defaultConcurrency bounds per-key fan-out for stores without batch support.
const defaultConcurrency = 16

// Options configures a Keyv instance.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Options struct {
	Store         types.Store
	Namespace     string
	NamespaceFunc func() string
	TTL           time.Duration
	Separator     string
	Serializer    types.Serializer
	Compression   types.CompressionAdapter
	Stats         bool
	EmitErrors    bool
	ThrowOnErrors bool
	UseKeyPrefix  bool
	KeyValidator  *types.KeyValidator
	Clock         clockwork.Clock
	Logger        *slog.Logger
	Publisher     metrics.Publisher
	// PublishInterval > 0 publishes stats snapshots through Publisher.
	PublishInterval time.Duration
	Concurrency     int
}

type Option func(*Options)

// DefaultOptions returns the defaults: JSON envelopes, prefixing on, errors
// emitted but not returned.
func DefaultOptions() Options {
	return Options{
		Separator:    DefaultSeparator,
		EmitErrors:   true,
		UseKeyPrefix: true,
		Concurrency:  defaultConcurrency,
	}
}

func WithStore(store types.Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

func WithNamespace(namespace string) Option {
	return func(o *Options) {
		o.Namespace = namespace
	}
}

// WithNamespaceFunc evaluates the namespace on every operation. Keys are
// always prefixed by the orchestrator in this mode.
func WithNamespaceFunc(fn func() string) Option {
	return func(o *Options) {
		o.NamespaceFunc = fn
	}
}

// WithTTL sets the default ttl. Zero never expires.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.TTL = ttl
	}
}

func WithSeparator(sep string) Option {
	return func(o *Options) {
		if sep != "" {
			o.Separator = sep
		}
	}
}

func WithSerializer(s types.Serializer) Option {
	return func(o *Options) {
		o.Serializer = s
	}
}

func WithCompression(c types.CompressionAdapter) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

func WithStats(enabled bool) Option {
	return func(o *Options) {
		o.Stats = enabled
	}
}

func WithEmitErrors(enabled bool) Option {
	return func(o *Options) {
		o.EmitErrors = enabled
	}
}

func WithThrowOnErrors(enabled bool) Option {
	return func(o *Options) {
		o.ThrowOnErrors = enabled
	}
}

func WithUseKeyPrefix(enabled bool) Option {
	return func(o *Options) {
		o.UseKeyPrefix = enabled
	}
}

func WithKeyValidator(v *types.KeyValidator) Option {
	return func(o *Options) {
		o.KeyValidator = v
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithPublisher sends per-operation timings to p. A positive interval also
// publishes stats snapshots in the background until Disconnect.
func WithPublisher(p metrics.Publisher, interval time.Duration) Option {
	return func(o *Options) {
		o.Publisher = p
		o.PublishInterval = interval
	}
}

func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// OptionsFromConfig translates the keyv config section into options,
// resolving serializer and compression names.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	kc := cfg.Keyv
	serializer, err := codec.SerializerByName(kc.Serializer)
	if err != nil {
		return nil, err
	}
	compression, err := codec.AdapterByName(kc.Compression, serializer)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithNamespace(kc.Namespace),
		WithTTL(kc.TTL),
		WithSeparator(kc.Separator),
		WithSerializer(serializer),
		WithStats(kc.Stats),
		WithEmitErrors(kc.EmitErrors),
		WithThrowOnErrors(kc.ThrowOnErrors),
		WithUseKeyPrefix(kc.UseKeyPrefix),
	}
	if compression != nil {
		opts = append(opts, WithCompression(compression))
	}
	if cfg.KeyValidation.Enabled {
		opts = append(opts, WithKeyValidator(types.NewKeyValidator(cfg.KeyValidation.ToTypesConfig())))
	}
	return opts, nil
}
