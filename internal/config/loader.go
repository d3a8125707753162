package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from a JSON or YAML file, chosen by extension.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := decode(cfg, data, parserFor(path)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes JSON or YAML bytes over the defaults.
func Parse(data []byte, format string) (*Config, error) {
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(format) {
	case "json":
		parser = json.Parser()
	case "yaml", "yml":
		parser = yaml.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := decode(cfg, data, parser); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies KEYV_* environment
// overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return json.Parser()
	}
}

func decode(cfg *Config, data []byte, parser koanf.Parser) error {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KEYV_NAMESPACE"); v != "" {
		cfg.Keyv.Namespace = v
	}
	if v := os.Getenv("KEYV_TTL"); v != "" {
		cfg.Keyv.TTL = parseDuration(v, cfg.Keyv.TTL)
	}
	if v := os.Getenv("KEYV_SERIALIZER"); v != "" {
		cfg.Keyv.Serializer = v
	}
	if v := os.Getenv("KEYV_COMPRESSION"); v != "" {
		cfg.Keyv.Compression = v
	}
	if v := os.Getenv("KEYV_STATS"); v != "" {
		cfg.Keyv.Stats = parseBool(v)
	}
	if v := os.Getenv("KEYV_EMIT_ERRORS"); v != "" {
		cfg.Keyv.EmitErrors = parseBool(v)
	}
	if v := os.Getenv("KEYV_THROW_ON_ERRORS"); v != "" {
		cfg.Keyv.ThrowOnErrors = parseBool(v)
	}

	if v := os.Getenv("KEYV_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}

	if v := os.Getenv("KEYV_BIGCACHE_MAX_SIZE_MB"); v != "" {
		cfg.Bigcache.MaxSizeMB = parseInt(v, cfg.Bigcache.MaxSizeMB)
	}
	if v := os.Getenv("KEYV_LRU_SIZE"); v != "" {
		cfg.LRU.Size = parseInt(v, cfg.LRU.Size)
	}

	if v := os.Getenv("KEYV_REDIS_MODE"); v != "" {
		cfg.Redis.Mode = v
	}
	if v := os.Getenv("KEYV_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("KEYV_REDIS_ADDRESSES"); v != "" {
		cfg.Redis.Addresses = splitList(v)
	}
	if v := os.Getenv("KEYV_REDIS_MASTER_NAME"); v != "" {
		cfg.Redis.MasterName = v
	}
	if v := os.Getenv("KEYV_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = NewSecretString(v)
	}
	if v := os.Getenv("KEYV_REDIS_DB"); v != "" {
		cfg.Redis.DB = parseInt(v, cfg.Redis.DB)
	}
	if v := os.Getenv("KEYV_REDIS_POOL_SIZE"); v != "" {
		cfg.Redis.PoolSize = parseInt(v, cfg.Redis.PoolSize)
	}
	if v := os.Getenv("KEYV_REDIS_CLEAR_BATCH_SIZE"); v != "" {
		cfg.Redis.ClearBatchSize = parseInt(v, cfg.Redis.ClearBatchSize)
	}
	if v := os.Getenv("KEYV_REDIS_USE_UNLINK"); v != "" {
		cfg.Redis.UseUnlink = parseBool(v)
	}
	if v := os.Getenv("KEYV_REDIS_NO_NAMESPACE_AFFECTS_ALL"); v != "" {
		cfg.Redis.NoNamespaceAffectsAll = parseBool(v)
	}
	if v := os.Getenv("KEYV_REDIS_THROW_ON_CONNECT_ERROR"); v != "" {
		cfg.Redis.ThrowOnConnectError = parseBool(v)
	}
	if v := os.Getenv("KEYV_REDIS_THROW_ON_ERRORS"); v != "" {
		cfg.Redis.ThrowOnErrors = parseBool(v)
	}
	if v := os.Getenv("KEYV_REDIS_ENABLE_TLS"); v != "" {
		cfg.Redis.EnableTLS = parseBool(v)
	}
	if v := os.Getenv("KEYV_REDIS_TLS_SKIP_VERIFY"); v != "" {
		cfg.Redis.TLSSkipVerify = parseBool(v)
	}

	if v := os.Getenv("KEYV_ETCD_ENDPOINTS"); v != "" {
		cfg.Etcd.Endpoints = splitList(v)
	}
	if v := os.Getenv("KEYV_MONGO_URI"); v != "" {
		cfg.Mongo.URI = NewSecretString(v)
	}
	if v := os.Getenv("KEYV_POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = NewSecretString(v)
	}

	if v := os.Getenv("KEYV_TIERED_ENABLED"); v != "" {
		cfg.Tiered.Enabled = parseBool(v)
	}
	if v := os.Getenv("KEYV_TIERED_LOCAL_ONLY"); v != "" {
		cfg.Tiered.LocalOnly = parseBool(v)
	}

	if v := os.Getenv("KEYV_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("KEYV_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); v != "" {
		cfg.Resilience.CircuitBreaker.FailureThreshold = parseInt(v, cfg.Resilience.CircuitBreaker.FailureThreshold)
	}
	if v := os.Getenv("KEYV_CIRCUIT_BREAKER_OPEN_DURATION"); v != "" {
		cfg.Resilience.CircuitBreaker.OpenDuration = parseDuration(v, cfg.Resilience.CircuitBreaker.OpenDuration)
	}
	if v := os.Getenv("KEYV_RETRY_ENABLED"); v != "" {
		cfg.Resilience.Retry.Enabled = parseBool(v)
	}
	if v := os.Getenv("KEYV_RETRY_MAX_ATTEMPTS"); v != "" {
		cfg.Resilience.Retry.MaxAttempts = parseInt(v, cfg.Resilience.Retry.MaxAttempts)
	}
	if v := os.Getenv("KEYV_BULKHEAD_ENABLED"); v != "" {
		cfg.Resilience.Bulkhead.Enabled = parseBool(v)
	}
	if v := os.Getenv("KEYV_BULKHEAD_MAX_CONCURRENT"); v != "" {
		cfg.Resilience.Bulkhead.MaxConcurrent = parseInt(v, cfg.Resilience.Bulkhead.MaxConcurrent)
	}

	if v := os.Getenv("KEYV_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("KEYV_METRICS_PUBLISHER"); v != "" {
		cfg.Metrics.Publisher = v
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.Publisher = PublisherDataDog
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+v)
	}
}

// Validate checks if the configuration is valid.
//
//nolint:gocyclo // One branch per section
func (c *Config) Validate() error {
	if c.Keyv.TTL < 0 {
		return fmt.Errorf("keyv.ttl must not be negative")
	}
	if c.Store.Backend == "" {
		return fmt.Errorf("store.backend is required")
	}
	if c.Store.Separator == "" {
		return fmt.Errorf("store.separator is required")
	}
	if c.Keyv.Namespace != "" && strings.Contains(c.Keyv.Namespace, c.Store.Separator) {
		return fmt.Errorf("keyv.namespace must not contain %q", c.Store.Separator)
	}

	if c.uses("bigcache") {
		if c.Bigcache.MaxSizeMB <= 0 {
			return fmt.Errorf("bigcache.maxSizeMB must be positive")
		}
		if c.Bigcache.Shards <= 0 || (c.Bigcache.Shards&(c.Bigcache.Shards-1)) != 0 {
			return fmt.Errorf("bigcache.shards must be a positive power of 2")
		}
	}

	if c.uses("lru") && c.LRU.Size <= 0 {
		return fmt.Errorf("lru.size must be positive")
	}

	if c.uses("ristretto") {
		if c.Ristretto.NumCounters <= 0 || c.Ristretto.MaxCost <= 0 {
			return fmt.Errorf("ristretto.numCounters and ristretto.maxCost must be positive")
		}
	}

	if c.uses("redis") {
		switch c.Redis.Mode {
		case "", RedisModeSingle:
			if c.Redis.Address == "" {
				return fmt.Errorf("redis.address is required in single mode")
			}
		case RedisModeCluster:
			if len(c.Redis.Addresses) == 0 {
				return fmt.Errorf("redis.addresses is required in cluster mode")
			}
		case RedisModeSentinel:
			if len(c.Redis.Addresses) == 0 || c.Redis.MasterName == "" {
				return fmt.Errorf("redis.addresses and redis.masterName are required in sentinel mode")
			}
		default:
			return fmt.Errorf("redis.mode %q is not one of single, cluster, sentinel", c.Redis.Mode)
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.poolSize must be positive")
		}
		if c.Redis.ClearBatchSize <= 0 {
			return fmt.Errorf("redis.clearBatchSize must be positive")
		}
	}

	if c.uses("etcd") && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}
	if c.uses("mongo") && (c.Mongo.URI.IsEmpty() || c.Mongo.Database == "" || c.Mongo.Collection == "") {
		return fmt.Errorf("mongo.uri, mongo.database and mongo.collection are required")
	}
	if c.uses("postgres") && (c.Postgres.URL.IsEmpty() || c.Postgres.Table == "") {
		return fmt.Errorf("postgres.url and postgres.table are required")
	}

	if c.Tiered.Enabled && (c.Tiered.Local == "" || c.Tiered.Remote == "") {
		return fmt.Errorf("tiered.local and tiered.remote are required when tiered is enabled")
	}

	r := c.Resilience
	if r.CircuitBreaker.Enabled {
		if r.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if r.CircuitBreaker.OpenDuration <= 0 {
			return fmt.Errorf("circuitBreaker.openDuration must be positive")
		}
	}
	if r.Retry.Enabled && r.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.maxAttempts must be positive")
	}
	if r.Bulkhead.Enabled && r.Bulkhead.MaxConcurrent <= 0 {
		return fmt.Errorf("bulkhead.maxConcurrent must be positive")
	}

	if c.Metrics.Enabled {
		switch c.Metrics.Publisher {
		case PublisherNoop, PublisherLogging, PublisherDataDog, PublisherOTel:
		default:
			return fmt.Errorf("metrics.publisher %q is not supported", c.Metrics.Publisher)
		}
	}

	return nil
}

// uses reports whether backend is selected directly or as a tier.
func (c *Config) uses(backend string) bool {
	if c.Store.Backend == backend {
		return true
	}
	return c.Tiered.Enabled && (c.Tiered.Local == backend || c.Tiered.Remote == backend)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
