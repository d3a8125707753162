// Package config provides configuration management for keyv.
package config

import (
	"time"

	"github.com/LavishGent/keyv/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for a keyv instance and its store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Keyv          KeyvConfig          `json:"keyv"`
	Store         StoreConfig         `json:"store"`
	Bigcache      BigcacheConfig      `json:"bigcache"`
	LRU           LRUConfig           `json:"lru"`
	Ristretto     RistrettoConfig     `json:"ristretto"`
	Redis         RedisConfig         `json:"redis"`
	Etcd          EtcdConfig          `json:"etcd"`
	Mongo         MongoConfig         `json:"mongo"`
	Postgres      PostgresConfig      `json:"postgres"`
	Tiered        TieredConfig        `json:"tiered"`
	Resilience    ResilienceConfig    `json:"resilience"`
	Metrics       MetricsConfig       `json:"metrics"`
	KeyValidation KeyValidationConfig `json:"keyValidation"`
}

// KeyvConfig mirrors the orchestrator options.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type KeyvConfig struct {
	Namespace     string        `json:"namespace"`
	TTL           time.Duration `json:"ttl"`
	Serializer    string        `json:"serializer"`
	Compression   string        `json:"compression"`
	Separator     string        `json:"separator"`
	Stats         bool          `json:"stats"`
	EmitErrors    bool          `json:"emitErrors"`
	ThrowOnErrors bool          `json:"throwOnErrors"`
	UseKeyPrefix  bool          `json:"useKeyPrefix"`
}

// StoreConfig selects the backend registered under Backend.
type StoreConfig struct {
	Backend   string `json:"backend"`
	Separator string `json:"separator"`
}

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string `json:"reservedPatterns"`
	MaxKeyLength      int      `json:"maxKeyLength"`
	Enabled           bool     `json:"enabled"`
	AllowEmpty        bool     `json:"allowEmpty"`
	AllowControlChars bool     `json:"allowControlChars"`
	AllowWhitespace   bool     `json:"allowWhitespace"`
}

// ToTypesConfig converts this config to a types.KeyValidationConfig.
func (c KeyValidationConfig) ToTypesConfig() types.KeyValidationConfig {
	return types.KeyValidationConfig{
		MaxKeyLength:      c.MaxKeyLength,
		AllowEmpty:        c.AllowEmpty,
		AllowControlChars: c.AllowControlChars,
		AllowWhitespace:   c.AllowWhitespace,
		ReservedPatterns:  c.ReservedPatterns,
	}
}

// BigcacheConfig contains configuration for the bigcache backend.
type BigcacheConfig struct {
	LifeWindow      time.Duration `json:"lifeWindow"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
	MaxSizeMB       int           `json:"maxSizeMB"`
	Shards          int           `json:"shards"`
	MaxEntrySize    int           `json:"maxEntrySize"`
}

// LRUConfig bounds the lru backend.
type LRUConfig struct {
	Size int `json:"size"`
}

// RistrettoConfig contains configuration for the ristretto backend.
type RistrettoConfig struct {
	NumCounters int64 `json:"numCounters"`
	MaxCost     int64 `json:"maxCost"`
	BufferItems int64 `json:"bufferItems"`
}

// RedisConfig contains configuration for the Redis backend.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	Mode                  string        `json:"mode"`
	Address               string        `json:"address"`
	Addresses             []string      `json:"addresses"`
	MasterName            string        `json:"masterName"`
	Username              string        `json:"username"`
	Password              SecretString  `json:"password"`
	DB                    int           `json:"db"`
	PoolSize              int           `json:"poolSize"`
	MinIdleConns          int           `json:"minIdleConns"`
	DialTimeout           time.Duration `json:"dialTimeout"`
	ReadTimeout           time.Duration `json:"readTimeout"`
	WriteTimeout          time.Duration `json:"writeTimeout"`
	PoolTimeout           time.Duration `json:"poolTimeout"`
	ClearBatchSize        int           `json:"clearBatchSize"`
	UseUnlink             bool          `json:"useUnlink"`
	NoNamespaceAffectsAll bool          `json:"noNamespaceAffectsAll"`
	ThrowOnConnectError   bool          `json:"throwOnConnectError"`
	ThrowOnErrors         bool          `json:"throwOnErrors"`
	EnableTLS             bool          `json:"enableTLS"`
	TLSSkipVerify         bool          `json:"tlsSkipVerify"`
}

// Redis deployment modes.
const (
	RedisModeSingle   = "single"
	RedisModeCluster  = "cluster"
	RedisModeSentinel = "sentinel"
)

// EtcdConfig contains configuration for the etcd backend.
type EtcdConfig struct {
	Endpoints   []string      `json:"endpoints"`
	Username    string        `json:"username"`
	Password    SecretString  `json:"password"`
	DialTimeout time.Duration `json:"dialTimeout"`
}

// MongoConfig contains configuration for the MongoDB backend.
type MongoConfig struct {
	URI        SecretString  `json:"uri"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// PostgresConfig contains configuration for the PostgreSQL backend.
type PostgresConfig struct {
	URL      SecretString `json:"url"`
	Table    string       `json:"table"`
	MaxConns int32        `json:"maxConns"`
}

// TieredConfig composes two registered backends.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type TieredConfig struct {
	Enabled         bool          `json:"enabled"`
	Local           string        `json:"local"`
	Remote          string        `json:"remote"`
	LocalOnly       bool          `json:"localOnly"`
	AsyncBackfill   bool          `json:"asyncBackfill"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// ResilienceConfig groups the policies wrapped around remote round trips.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
	Retry          RetryConfig          `json:"retry"`
	Bulkhead       BulkheadConfig       `json:"bulkhead"`
}

// CircuitBreakerConfig contains configuration for the circuit breaker pattern.
type CircuitBreakerConfig struct {
	Enabled             bool          `json:"enabled"`
	FailureThreshold    int           `json:"failureThreshold"`
	OpenDuration        time.Duration `json:"openDuration"`
	Interval            time.Duration `json:"interval"`
	HalfOpenMaxRequests int           `json:"halfOpenMaxRequests"`
}

// RetryConfig contains configuration for the retry pattern.
type RetryConfig struct {
	InitialBackoff time.Duration `json:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff"`
	MaxAttempts    int           `json:"maxAttempts"`
	Enabled        bool          `json:"enabled"`
	Jitter         bool          `json:"jitter"`
}

// BulkheadConfig contains configuration for the bulkhead pattern.
type BulkheadConfig struct {
	Enabled        bool          `json:"enabled"`
	MaxConcurrent  int           `json:"maxConcurrent"`
	AcquireTimeout time.Duration `json:"acquireTimeout"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval time.Duration `json:"publishInterval"`
	Publisher       string        `json:"publisher"`
	DataDog         DataDogConfig `json:"datadog"`
	Enabled         bool          `json:"enabled"`
}

// Metrics publisher names.
const (
	PublisherNoop    = "noop"
	PublisherLogging = "logging"
	PublisherDataDog = "datadog"
	PublisherOTel    = "otel"
)

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
}
