package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("keyv defaults", func(t *testing.T) {
		if !cfg.Keyv.EmitErrors {
			t.Error("Keyv.EmitErrors = false, want true")
		}
		if cfg.Keyv.ThrowOnErrors {
			t.Error("Keyv.ThrowOnErrors = true, want false")
		}
		if !cfg.Keyv.UseKeyPrefix {
			t.Error("Keyv.UseKeyPrefix = false, want true")
		}
		if cfg.Keyv.Separator != ":" {
			t.Errorf("Keyv.Separator = %q, want :", cfg.Keyv.Separator)
		}
		if cfg.Keyv.TTL != 0 {
			t.Errorf("Keyv.TTL = %v, want 0", cfg.Keyv.TTL)
		}
	})

	t.Run("store defaults", func(t *testing.T) {
		if cfg.Store.Backend != "memory" {
			t.Errorf("Store.Backend = %s, want memory", cfg.Store.Backend)
		}
		if cfg.Store.Separator != "::" {
			t.Errorf("Store.Separator = %s, want ::", cfg.Store.Separator)
		}
	})

	t.Run("redis defaults", func(t *testing.T) {
		if cfg.Redis.Mode != RedisModeSingle {
			t.Errorf("Redis.Mode = %s, want single", cfg.Redis.Mode)
		}
		if cfg.Redis.Address != "localhost:6379" {
			t.Errorf("Redis.Address = %s, want localhost:6379", cfg.Redis.Address)
		}
		if cfg.Redis.ClearBatchSize != 1000 {
			t.Errorf("Redis.ClearBatchSize = %d, want 1000", cfg.Redis.ClearBatchSize)
		}
		if !cfg.Redis.UseUnlink {
			t.Error("Redis.UseUnlink = false, want true")
		}
		if !cfg.Redis.ThrowOnConnectError {
			t.Error("Redis.ThrowOnConnectError = false, want true")
		}
		if cfg.Redis.ThrowOnErrors {
			t.Error("Redis.ThrowOnErrors = true, want false")
		}
		if cfg.Redis.NoNamespaceAffectsAll {
			t.Error("Redis.NoNamespaceAffectsAll = true, want false")
		}
	})

	t.Run("resilience defaults", func(t *testing.T) {
		r := cfg.Resilience
		if !r.CircuitBreaker.Enabled || r.CircuitBreaker.FailureThreshold != 5 {
			t.Errorf("CircuitBreaker = %+v", r.CircuitBreaker)
		}
		if !r.Retry.Enabled || r.Retry.MaxAttempts != 3 {
			t.Errorf("Retry = %+v", r.Retry)
		}
		if !r.Bulkhead.Enabled || r.Bulkhead.MaxConcurrent != 100 {
			t.Errorf("Bulkhead = %+v", r.Bulkhead)
		}
	})

	t.Run("validates", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("DefaultConfig().Validate() = %v", err)
		}
	})
}

func TestForTesting(t *testing.T) {
	cfg := ForTesting()

	if cfg.Bigcache.MaxSizeMB != 16 {
		t.Errorf("Bigcache.MaxSizeMB = %d, want 16", cfg.Bigcache.MaxSizeMB)
	}
	if cfg.Resilience.CircuitBreaker.Enabled || cfg.Resilience.Retry.Enabled || cfg.Resilience.Bulkhead.Enabled {
		t.Error("ForTesting() should disable resilience policies")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("ForTesting().Validate() = %v", err)
	}
}

func TestForTestingWithRedis(t *testing.T) {
	cfg := ForTestingWithRedis("127.0.0.1:6380")

	if cfg.Store.Backend != "redis" {
		t.Errorf("Store.Backend = %s, want redis", cfg.Store.Backend)
	}
	if cfg.Redis.Address != "127.0.0.1:6380" {
		t.Errorf("Redis.Address = %s", cfg.Redis.Address)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load(\"\") error = %v", err)
		}
		if cfg.Store.Backend != "memory" {
			t.Errorf("Store.Backend = %s, want memory", cfg.Store.Backend)
		}
	})

	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Redis.ClearBatchSize != 1000 {
			t.Error("missing file should yield defaults")
		}
	})

	t.Run("json overrides defaults", func(t *testing.T) {
		path := writeFile(t, "keyv.json", `{
			"keyv": {"namespace": "users", "ttl": "90s", "compression": "gzip"},
			"store": {"backend": "redis"},
			"redis": {"address": "cache:6379", "useUnlink": false, "password": "hunter2"}
		}`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Keyv.Namespace != "users" {
			t.Errorf("Keyv.Namespace = %s, want users", cfg.Keyv.Namespace)
		}
		if cfg.Keyv.TTL != 90*time.Second {
			t.Errorf("Keyv.TTL = %v, want 90s", cfg.Keyv.TTL)
		}
		if cfg.Keyv.Compression != "gzip" {
			t.Errorf("Keyv.Compression = %s, want gzip", cfg.Keyv.Compression)
		}
		if cfg.Redis.Address != "cache:6379" || cfg.Redis.UseUnlink {
			t.Errorf("Redis = %+v", cfg.Redis)
		}
		if cfg.Redis.Password.Value() != "hunter2" {
			t.Error("Redis.Password was not decoded")
		}
		if cfg.Redis.PoolSize != 100 {
			t.Errorf("Redis.PoolSize = %d, want untouched default 100", cfg.Redis.PoolSize)
		}
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := writeFile(t, "keyv.yaml", `
keyv:
  namespace: sessions
store:
  backend: lru
lru:
  size: 42
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Keyv.Namespace != "sessions" || cfg.Store.Backend != "lru" || cfg.LRU.Size != 42 {
			t.Errorf("cfg = %+v %+v %+v", cfg.Keyv, cfg.Store, cfg.LRU)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeFile(t, "bad.json", `{"keyv": `)
		if _, err := Load(path); err == nil {
			t.Error("Load() should fail on malformed JSON")
		}
	})

	t.Run("invalid result", func(t *testing.T) {
		path := writeFile(t, "invalid.json", `{"store": {"backend": "redis"}, "redis": {"mode": "mesh"}}`)
		if _, err := Load(path); err == nil {
			t.Error("Load() should fail validation")
		}
	})
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`{"tiered": {"enabled": true, "localOnly": true}}`), "json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.Tiered.Enabled || !cfg.Tiered.LocalOnly {
		t.Errorf("Tiered = %+v", cfg.Tiered)
	}

	if _, err := Parse([]byte(`x = 1`), "toml"); err == nil {
		t.Error("Parse(toml) should fail")
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("KEYV_NAMESPACE", "env-ns")
	t.Setenv("KEYV_TTL", "30")
	t.Setenv("KEYV_STORE_BACKEND", "redis")
	t.Setenv("KEYV_REDIS_MODE", "cluster")
	t.Setenv("KEYV_REDIS_ADDRESSES", "a:7000, b:7001,,c:7002")
	t.Setenv("KEYV_REDIS_THROW_ON_ERRORS", "yes")
	t.Setenv("KEYV_REDIS_PASSWORD", "secret")
	t.Setenv("DD_AGENT_HOST", "dd-agent")
	t.Setenv("DD_ENV", "staging")

	cfg, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Keyv.Namespace != "env-ns" {
		t.Errorf("Keyv.Namespace = %s", cfg.Keyv.Namespace)
	}
	if cfg.Keyv.TTL != 30*time.Second {
		t.Errorf("Keyv.TTL = %v, want 30s", cfg.Keyv.TTL)
	}
	if cfg.Redis.Mode != RedisModeCluster {
		t.Errorf("Redis.Mode = %s", cfg.Redis.Mode)
	}
	if got := strings.Join(cfg.Redis.Addresses, ","); got != "a:7000,b:7001,c:7002" {
		t.Errorf("Redis.Addresses = %s", got)
	}
	if !cfg.Redis.ThrowOnErrors {
		t.Error("Redis.ThrowOnErrors = false, want true")
	}
	if cfg.Redis.Password.Value() != "secret" {
		t.Error("Redis.Password not applied")
	}
	if cfg.Metrics.Publisher != PublisherDataDog || cfg.Metrics.DataDog.AgentHost != "dd-agent" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if len(cfg.Metrics.DataDog.Tags) != 1 || cfg.Metrics.DataDog.Tags[0] != "env:staging" {
		t.Errorf("DataDog.Tags = %v", cfg.Metrics.DataDog.Tags)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid defaults", modify: func(*Config) {}},
		{
			name:    "negative ttl",
			modify:  func(c *Config) { c.Keyv.TTL = -time.Second },
			wantErr: "keyv.ttl",
		},
		{
			name:    "missing backend",
			modify:  func(c *Config) { c.Store.Backend = "" },
			wantErr: "store.backend",
		},
		{
			name:    "namespace containing separator",
			modify:  func(c *Config) { c.Keyv.Namespace = "a::b" },
			wantErr: "keyv.namespace",
		},
		{
			name: "bigcache shards not power of two",
			modify: func(c *Config) {
				c.Store.Backend = "bigcache"
				c.Bigcache.Shards = 100
			},
			wantErr: "bigcache.shards",
		},
		{
			name: "lru size zero",
			modify: func(c *Config) {
				c.Store.Backend = "lru"
				c.LRU.Size = 0
			},
			wantErr: "lru.size",
		},
		{
			name: "redis cluster without addresses",
			modify: func(c *Config) {
				c.Store.Backend = "redis"
				c.Redis.Mode = RedisModeCluster
			},
			wantErr: "redis.addresses",
		},
		{
			name: "redis sentinel without master",
			modify: func(c *Config) {
				c.Store.Backend = "redis"
				c.Redis.Mode = RedisModeSentinel
				c.Redis.Addresses = []string{"s:26379"}
			},
			wantErr: "redis.masterName",
		},
		{
			name: "redis clear batch size",
			modify: func(c *Config) {
				c.Store.Backend = "redis"
				c.Redis.ClearBatchSize = 0
			},
			wantErr: "redis.clearBatchSize",
		},
		{
			name: "tiered remote checked",
			modify: func(c *Config) {
				c.Tiered.Enabled = true
				c.Tiered.Remote = "redis"
				c.Redis.Address = ""
			},
			wantErr: "redis.address",
		},
		{
			name:    "circuit breaker threshold",
			modify:  func(c *Config) { c.Resilience.CircuitBreaker.FailureThreshold = 0 },
			wantErr: "circuitBreaker.failureThreshold",
		},
		{
			name:    "retry attempts",
			modify:  func(c *Config) { c.Resilience.Retry.MaxAttempts = 0 },
			wantErr: "retry.maxAttempts",
		},
		{
			name:    "bulkhead concurrency",
			modify:  func(c *Config) { c.Resilience.Bulkhead.MaxConcurrent = 0 },
			wantErr: "bulkhead.maxConcurrent",
		},
		{
			name: "unknown publisher",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Publisher = "graphite"
			},
			wantErr: "metrics.publisher",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" on ", true},
		{"false", false},
		{"0", false},
		{"nope", false},
	}
	for _, tt := range tests {
		if got := parseBool(tt.in); got != tt.want {
			t.Errorf("parseBool(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseInt(t *testing.T) {
	if got := parseInt(" 42 ", 7); got != 42 {
		t.Errorf("parseInt(42) = %d", got)
	}
	if got := parseInt("forty", 7); got != 7 {
		t.Errorf("parseInt(forty) = %d, want default 7", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1m30s", 90 * time.Second},
		{"15", 15 * time.Second},
		{"soon", time.Hour},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Hour); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSecretStringRedactedInJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Password = NewSecretString("hunter2")

	data, err := json.Marshal(cfg.Redis)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Errorf("marshaled config leaks the password: %s", data)
	}
}
