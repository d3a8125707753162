package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/resilience"
	"github.com/LavishGent/keyv/internal/types"
)

// Deps are the shared collaborators handed to every factory.
type Deps struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Factory builds a store for one backend tag.
type Factory func(ctx context.Context, cfg *config.Config, deps Deps) (types.Store, error)

// Registry maps backend tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for tag.
func (r *Registry) Register(tag string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = f
}

// Backends returns the registered tags in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Open builds the store for cfg.Store.Backend.
func (r *Registry) Open(ctx context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	return r.OpenBackend(ctx, cfg.Store.Backend, cfg, deps)
}

// OpenBackend builds the store registered under tag.
func (r *Registry) OpenBackend(ctx context.Context, tag string, cfg *config.Config, deps Deps) (types.Store, error) {
	r.mu.RLock()
	f, ok := r.factories[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownBackend, tag)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return f(ctx, cfg, deps)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry holding every built-in backend.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		r.Register("none", openNone)
		r.Register("memory", openMemory)
		r.Register("lru", openLRU)
		r.Register("bigcache", openBigcache)
		r.Register("ristretto", openRistretto)
		r.Register("redis", openRedis)
		r.Register("etcd", openEtcd)
		r.Register("mongo", openMongo)
		r.Register("postgres", openPostgres)
		defaultRegistry = r
	})
	return defaultRegistry
}

func genericOpts(cfg *config.Config, deps Deps) []GenericOption {
	return []GenericOption{
		WithSeparator(cfg.Store.Separator),
		WithClock(deps.Clock),
		WithLogger(deps.Logger),
	}
}

func openNone(context.Context, *config.Config, Deps) (types.Store, error) {
	return NewNullStore(), nil
}

func openMemory(_ context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	return NewGenericStore(NewMapStore(), genericOpts(cfg, deps)...), nil
}

func openLRU(_ context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	m, err := NewLRUMap(cfg.LRU.Size)
	if err != nil {
		return nil, err
	}
	return NewGenericStore(m, genericOpts(cfg, deps)...), nil
}

func openBigcache(_ context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	return NewBigcacheStore(cfg.Bigcache, deps.Logger, deps.Clock)
}

func openRistretto(_ context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	return NewRistrettoStore(cfg.Ristretto, deps.Logger)
}

func openRedis(ctx context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	policy := resilience.NewPolicy("redis", cfg.Resilience, deps.Logger)
	return OpenRedisStore(ctx, cfg.Redis, policy, deps.Logger)
}

func openEtcd(ctx context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	policy := resilience.NewPolicy("etcd", cfg.Resilience, deps.Logger)
	return OpenEtcdStore(ctx, cfg.Etcd, policy, deps.Logger)
}

func openMongo(ctx context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	policy := resilience.NewPolicy("mongo", cfg.Resilience, deps.Logger)
	return OpenMongoStore(ctx, cfg.Mongo, policy, deps.Logger)
}

func openPostgres(ctx context.Context, cfg *config.Config, deps Deps) (types.Store, error) {
	policy := resilience.NewPolicy("postgres", cfg.Resilience, deps.Logger)
	return OpenPostgresStore(ctx, cfg.Postgres, policy, deps.Logger)
}
