package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/resilience"
	"github.com/LavishGent/keyv/internal/types"
)

const defaultClearBatchSize = 1000

// RedisOptions configures a RedisStore.
//
//nolint:govet // Options struct - logical grouping prioritized over alignment
type RedisOptions struct {
	Namespace string
	// Separator joins the namespace and key. Defaults to "::".
	Separator      string
	ClearBatchSize int
	// UseUnlink deletes with UNLINK instead of the blocking DEL.
	UseUnlink bool
	// NoNamespaceAffectsAll makes Clear without a namespace flush the
	// database instead of removing only unprefixed keys.
	NoNamespaceAffectsAll bool
	ThrowOnConnectError   bool
	ThrowOnErrors         bool
	// CloseClient closes the client on Disconnect.
	CloseClient bool
	Policy      *resilience.Policy
	Logger      *slog.Logger
}

// DefaultRedisOptions returns UNLINK deletes, connection errors returned and
// command errors emitted.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Separator:           DefaultSeparator,
		ClearBatchSize:      defaultClearBatchSize,
		UseUnlink:           true,
		ThrowOnConnectError: true,
		CloseClient:         true,
	}
}

// RedisOptionsFromConfig maps the redis config section onto RedisOptions.
func RedisOptionsFromConfig(cfg config.RedisConfig) RedisOptions {
	opts := DefaultRedisOptions()
	if cfg.ClearBatchSize > 0 {
		opts.ClearBatchSize = cfg.ClearBatchSize
	}
	opts.UseUnlink = cfg.UseUnlink
	opts.NoNamespaceAffectsAll = cfg.NoNamespaceAffectsAll
	opts.ThrowOnConnectError = cfg.ThrowOnConnectError
	opts.ThrowOnErrors = cfg.ThrowOnErrors
	return opts
}

// RedisStore is a store over a single node, cluster or sentinel client.
// Batch operations are split by hash slot when the client is a cluster.
type RedisStore struct {
	*events.Manager

	client  redis.UniversalClient
	cluster bool
	opts    RedisOptions
	logger  *slog.Logger

	mu        sync.RWMutex
	namespace string

	connected atomic.Bool
	closed    atomic.Bool
}

// NewRedisStore wraps an existing client. Cluster mode is detected from the
// client type.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) (*RedisStore, error) {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if opts.ClearBatchSize <= 0 {
		opts.ClearBatchSize = defaultClearBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := types.ValidateNamespace(opts.Namespace, opts.Separator); err != nil {
		return nil, err
	}

	_, cluster := client.(*redis.ClusterClient)
	s := &RedisStore{
		client:    client,
		cluster:   cluster,
		opts:      opts,
		logger:    logger.With("component", "redis-store"),
		namespace: opts.Namespace,
	}
	s.Manager = events.NewManager(s.logger)
	return s, nil
}

// NewRedisClient builds the client for the configured deployment mode.
func NewRedisClient(cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var tlsConfig *tls.Config
	if cfg.EnableTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for test clusters
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	switch cfg.Mode {
	case "", config.RedisModeSingle:
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Username:     cfg.Username,
			Password:     cfg.Password.Value(),
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolTimeout:  cfg.PoolTimeout,
			TLSConfig:    tlsConfig,
		}), nil
	case config.RedisModeCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Username:     cfg.Username,
			Password:     cfg.Password.Value(),
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolTimeout:  cfg.PoolTimeout,
			TLSConfig:    tlsConfig,
		}), nil
	case config.RedisModeSentinel:
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addresses,
			Username:      cfg.Username,
			Password:      cfg.Password.Value(),
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolTimeout:   cfg.PoolTimeout,
			TLSConfig:     tlsConfig,
		}), nil
	default:
		return nil, errors.New("unknown redis mode " + cfg.Mode)
	}
}

// OpenRedisStore builds a client from cfg and runs the initial Connect.
func OpenRedisStore(ctx context.Context, cfg config.RedisConfig, policy *resilience.Policy, logger *slog.Logger) (*RedisStore, error) {
	client, err := NewRedisClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := RedisOptionsFromConfig(cfg)
	opts.Policy = policy
	opts.Logger = logger

	s, err := NewRedisStore(client, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := s.Connect(dialCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// Client returns the underlying go-redis client.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// IsCluster reports whether batch operations are split by slot.
func (s *RedisStore) IsCluster() bool {
	return s.cluster
}

// IsConnected reports the result of the last Connect or Ping.
func (s *RedisStore) IsConnected() bool {
	return s.connected.Load()
}

// Namespace returns the active namespace.
func (s *RedisStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

// SetNamespace switches the key prefix. Namespaces containing the separator
// are rejected.
func (s *RedisStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, s.opts.Separator); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) createKeyPrefix(key string) string {
	return KeyPrefix(key, s.Namespace(), s.opts.Separator)
}

func (s *RedisStore) getKeyWithoutPrefix(key, namespace string) string {
	if namespace == "" {
		return key
	}
	return SplitKeyPrefix(key, s.opts.Separator).Key
}

// Connect pings the server. A failure is returned when ThrowOnConnectError is
// set and emitted otherwise.
func (s *RedisStore) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.connected.Store(false)
		s.logger.Warn("Redis initial connection failed", "error", err)
		storeErr := types.NewStoreError("connect", "", "redis", errors.Join(types.ErrConnection, err))
		if s.opts.ThrowOnConnectError {
			return storeErr
		}
		s.EmitError(storeErr)
		return nil
	}
	s.connected.Store(true)
	s.logger.Info("Redis connected", "cluster", s.cluster)
	return nil
}

func isConnectionError(err error) bool {
	return types.IsConnectionError(err) || errors.Is(err, redis.ErrClosed)
}

// handle applies the error policy: connection and command failures are either
// returned or emitted, and an emitted failure reads as the safe default.
func (s *RedisStore) handle(op, key string, err error) error {
	if err == nil {
		s.connected.Store(true)
		return nil
	}
	storeErr := types.NewStoreError(op, key, "redis", err)
	if errors.Is(err, types.ErrClosed) {
		return storeErr
	}

	throw := s.opts.ThrowOnErrors
	if isConnectionError(err) {
		throw = s.opts.ThrowOnConnectError
		if s.connected.CompareAndSwap(true, false) {
			s.logger.Warn("Redis connection lost", "op", op, "error", err)
		}
	}
	if throw {
		return storeErr
	}
	s.EmitError(storeErr)
	return nil
}

// do runs fn through the resilience policy, if any.
func (s *RedisStore) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	return s.opts.Policy.Execute(ctx, fn)
}

// Get returns the raw value under key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pk := s.createKeyPrefix(key)

	var data []byte
	found := false
	err := s.do(ctx, func(ctx context.Context) error {
		v, err := s.client.Get(ctx, pk).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil {
		return nil, false, s.handle("get", key, err)
	}
	return data, found, nil
}

// Set stores value with ttl as the key expiry. A zero ttl keeps the key forever.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pk := s.createKeyPrefix(key)
	if ttl < 0 {
		ttl = 0
	}
	err := s.do(ctx, func(ctx context.Context) error {
		return s.client.Set(ctx, pk, value, ttl).Err()
	})
	return s.handle("set", key, err)
}

// Delete removes key and reports whether it existed.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	pk := s.createKeyPrefix(key)

	var n int64
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.unlink(ctx, s.client, pk).Result()
		return err
	})
	if err != nil {
		return false, s.handle("delete", key, err)
	}
	return n > 0, nil
}

// Has checks existence with EXISTS.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	pk := s.createKeyPrefix(key)

	var n int64
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, pk).Result()
		return err
	})
	if err != nil {
		return false, s.handle("has", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) unlink(ctx context.Context, c redis.Cmdable, keys ...string) *redis.IntCmd {
	if s.opts.UseUnlink {
		return c.Unlink(ctx, keys...)
	}
	return c.Del(ctx, keys...)
}

// Ping checks the server and updates IsConnected.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.connected.Store(false)
		return types.NewStoreError("ping", "", "redis", err)
	}
	s.connected.Store(true)
	return nil
}

// Disconnect closes the client unless CloseClient is false.
func (s *RedisStore) Disconnect(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.connected.Store(false)
	s.Emit(events.EventDisconnect)
	if !s.opts.CloseClient {
		return nil
	}
	return s.client.Close()
}

var (
	_ types.BatchStore    = (*RedisStore)(nil)
	_ types.IterableStore = (*RedisStore)(nil)
	_ types.Haser         = (*RedisStore)(nil)
	_ types.Namespacer    = (*RedisStore)(nil)
	_ types.Pinger        = (*RedisStore)(nil)
	_ types.Disconnecter  = (*RedisStore)(nil)
	_ types.ErrorSource   = (*RedisStore)(nil)
)
