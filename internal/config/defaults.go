package config

import "time"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Keyv: KeyvConfig{
			Serializer:   "json",
			Compression:  "none",
			Separator:    ":",
			EmitErrors:   true,
			UseKeyPrefix: true,
		},
		Store: StoreConfig{
			Backend:   "memory",
			Separator: "::",
		},
		Bigcache: BigcacheConfig{
			LifeWindow:      10 * time.Minute,
			CleanupInterval: 10 * time.Second,
			MaxSizeMB:       256,
			Shards:          1024,
			MaxEntrySize:    10 * 1024 * 1024, // 10MB
		},
		LRU: LRUConfig{
			Size: 10000,
		},
		Ristretto: RistrettoConfig{
			NumCounters: 1e6,
			MaxCost:     64 << 20,
			BufferItems: 64,
		},
		Redis: RedisConfig{
			Mode:                RedisModeSingle,
			Address:             "localhost:6379",
			Password:            SecretString{},
			PoolSize:            100,
			MinIdleConns:        10,
			DialTimeout:         5 * time.Second,
			ReadTimeout:         3 * time.Second,
			WriteTimeout:        3 * time.Second,
			PoolTimeout:         4 * time.Second,
			ClearBatchSize:      1000,
			UseUnlink:           true,
			ThrowOnConnectError: true,
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Mongo: MongoConfig{
			URI:        NewSecretString("mongodb://localhost:27017"),
			Database:   "keyv",
			Collection: "keyv",
			Timeout:    5 * time.Second,
		},
		Postgres: PostgresConfig{
			URL:      NewSecretString("postgres://localhost:5432/keyv"),
			Table:    "keyv",
			MaxConns: 10,
		},
		Tiered: TieredConfig{
			Enabled:         false,
			Local:           "memory",
			Remote:          "redis",
			ShutdownTimeout: 5 * time.Second,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:             true,
				FailureThreshold:    5,
				OpenDuration:        30 * time.Second,
				Interval:            60 * time.Second,
				HalfOpenMaxRequests: 3,
			},
			Retry: RetryConfig{
				Enabled:        true,
				MaxAttempts:    3,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
				Jitter:         true,
			},
			Bulkhead: BulkheadConfig{
				Enabled:        true,
				MaxConcurrent:  100,
				AcquireTimeout: 100 * time.Millisecond,
			},
		},
		Metrics: MetricsConfig{
			Enabled:         false,
			Publisher:       PublisherLogging,
			PublishInterval: 10 * time.Second,
			DataDog: DataDogConfig{
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "keyv",
				Tags:      []string{},
			},
		},
		KeyValidation: KeyValidationConfig{
			Enabled:           true,
			MaxKeyLength:      1024,
			AllowEmpty:        false,
			AllowControlChars: false,
			AllowWhitespace:   true,
		},
	}
}

// ForTesting returns a minimal configuration suitable for unit tests.
func ForTesting() *Config {
	cfg := DefaultConfig()
	cfg.Bigcache = BigcacheConfig{
		LifeWindow:      1 * time.Minute,
		CleanupInterval: 1 * time.Second,
		MaxSizeMB:       16,
		Shards:          64,
		MaxEntrySize:    1024 * 1024, // 1MB
	}
	cfg.LRU.Size = 128
	cfg.Ristretto = RistrettoConfig{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64}
	cfg.Redis.PoolSize = 10
	cfg.Redis.MinIdleConns = 1
	cfg.Redis.DialTimeout = 1 * time.Second
	cfg.Redis.ReadTimeout = 1 * time.Second
	cfg.Redis.WriteTimeout = 1 * time.Second
	cfg.Redis.PoolTimeout = 1 * time.Second
	cfg.Tiered.ShutdownTimeout = 1 * time.Second
	cfg.Resilience = ResilienceConfig{
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             false,
			FailureThreshold:    3,
			OpenDuration:        1 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		Retry: RetryConfig{
			Enabled:        false,
			MaxAttempts:    1,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     100 * time.Millisecond,
		},
		Bulkhead: BulkheadConfig{
			Enabled:        false,
			MaxConcurrent:  10,
			AcquireTimeout: 50 * time.Millisecond,
		},
	}
	cfg.Metrics.Enabled = false
	cfg.Metrics.PublishInterval = 1 * time.Second
	return cfg
}

// ForTestingWithRedis returns a test config backed by the Redis at addr.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Store.Backend = "redis"
	cfg.Redis.Address = addr
	return cfg
}
