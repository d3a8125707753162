package keyv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/LavishGent/keyv/internal/cache"
	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/keyv"
	"github.com/LavishGent/keyv/internal/metrics"
	"github.com/LavishGent/keyv/internal/metrics/datadog"
	otelmetrics "github.com/LavishGent/keyv/internal/metrics/otel"
	"github.com/LavishGent/keyv/internal/tiered"
	"github.com/LavishGent/keyv/internal/types"
)

// New creates a cache. Without WithStore it keeps values in process memory.
func New[V any](opts ...Option) (*Keyv[V], error) {
	return keyv.New[V](opts...)
}

// NewFromConfig opens the backend named by cfg.Store.Backend and applies the
// keyv and metrics sections. Options passed here override the config.
func NewFromConfig[V any](ctx context.Context, cfg *Configuration, opts ...Option) (*Keyv[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps := resolveDeps(opts)
	store, err := cache.DefaultRegistry().Open(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	return build[V](ctx, cfg, store, deps.Logger, opts)
}

// Open loads a JSON or YAML config file, applies KEYV_* environment
// overrides and builds a cache from it.
func Open[V any](ctx context.Context, path string, opts ...Option) (*Keyv[V], error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig[V](ctx, cfg, opts...)
}

// NewTiered composes two caches. Close on the result disconnects both.
func NewTiered[V any](local, remote *Keyv[V], opts *TieredOptions[V]) (*Tiered[V], error) {
	return tiered.New(local, remote, opts)
}

// NewTieredFromConfig builds both tiers from cfg.Tiered.Local and
// cfg.Tiered.Remote, sharing the keyv section between them.
func NewTieredFromConfig[V any](ctx context.Context, cfg *Configuration, validator Validator[V], opts ...Option) (*Tiered[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps := resolveDeps(opts)
	registry := cache.DefaultRegistry()

	localStore, err := registry.OpenBackend(ctx, cfg.Tiered.Local, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("local tier: %w", err)
	}
	local, err := build[V](ctx, cfg, localStore, deps.Logger, opts)
	if err != nil {
		return nil, fmt.Errorf("local tier: %w", err)
	}

	remoteStore, err := registry.OpenBackend(ctx, cfg.Tiered.Remote, cfg, deps)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("remote tier: %w", err), local.Disconnect(ctx))
	}
	remote, err := build[V](ctx, cfg, remoteStore, deps.Logger, opts)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("remote tier: %w", err), local.Disconnect(ctx))
	}

	topts := tiered.OptionsFromConfig[V](cfg.Tiered)
	topts.Validator = validator
	topts.Logger = deps.Logger
	topts.Clock = deps.Clock
	return tiered.New(local, remote, topts)
}

// NewPublisher builds the metrics publisher selected by cfg.Publisher.
// Disabled metrics always yield a no-op publisher.
func NewPublisher(cfg *config.MetricsConfig, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}
	switch cfg.Publisher {
	case config.PublisherNoop:
		return metrics.NewNoOpPublisher(), nil
	case config.PublisherLogging, "":
		return metrics.NewLoggingPublisher(logger), nil
	case config.PublisherDataDog:
		return datadog.NewPublisher(cfg, logger)
	case config.PublisherOTel:
		return otelmetrics.NewPublisher(otel.GetMeterProvider(), logger), nil
	default:
		return nil, fmt.Errorf("unknown metrics publisher %q", cfg.Publisher)
	}
}

// Config returns a default configuration that can be modified before creating a cache.
func Config() *Configuration {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests.
func TestConfig() *Configuration {
	return config.ForTesting()
}

// LoadConfig reads a config file without building anything.
func LoadConfig(path string) (*Configuration, error) {
	return config.LoadWithEnv(path)
}

// Backends lists the registered backend names.
func Backends() []string {
	return cache.DefaultRegistry().Backends()
}

// RegisterBackend makes a custom store available to config-driven
// constructors under name.
func RegisterBackend(name string, open func(ctx context.Context, cfg *Configuration, logger *slog.Logger) (Store, error)) {
	cache.DefaultRegistry().Register(name, func(ctx context.Context, cfg *config.Config, deps cache.Deps) (types.Store, error) {
		return open(ctx, cfg, deps.Logger)
	})
}

// resolveDeps previews the logger and clock so stores opened from config
// share them with the orchestrator.
func resolveDeps(opts []Option) cache.Deps {
	o := keyv.DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return cache.Deps{Logger: o.Logger, Clock: o.Clock}
}

func build[V any](ctx context.Context, cfg *Configuration, store Store, logger *slog.Logger, opts []Option) (*Keyv[V], error) {
	fail := func(err error) (*Keyv[V], error) {
		if d, ok := store.(types.Disconnecter); ok {
			err = errors.Join(err, d.Disconnect(ctx))
		}
		return nil, err
	}

	all, err := keyv.OptionsFromConfig(cfg)
	if err != nil {
		return fail(err)
	}
	all = append(all, keyv.WithStore(store))
	if cfg.Metrics.Enabled {
		pub, err := NewPublisher(&cfg.Metrics, logger)
		if err != nil {
			return fail(err)
		}
		all = append(all, keyv.WithPublisher(pub, cfg.Metrics.PublishInterval))
	}
	all = append(all, opts...)

	k, err := keyv.New[V](all...)
	if err != nil {
		return fail(err)
	}
	return k, nil
}
