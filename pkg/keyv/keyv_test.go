package keyv_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LavishGent/keyv/internal/metrics"
	"github.com/LavishGent/keyv/pkg/keyv"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type brokenStore struct{}

var errBroken = errors.New("broken")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBroken }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errBroken
}
func (brokenStore) Delete(context.Context, string) (bool, error) { return false, errBroken }
func (brokenStore) Clear(context.Context) error                  { return errBroken }

func TestNew(t *testing.T) {
	ctx := context.Background()
	cache, err := keyv.New[user](keyv.WithNamespace("users"), keyv.WithDefaultTTL(time.Minute))
	require.NoError(t, err)
	defer cache.Disconnect(ctx)

	_, err = cache.Set(ctx, "1", user{ID: 1, Name: "ada"})
	require.NoError(t, err)

	u, found, err := cache.Get(ctx, "1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", u.Name)

	env, ok, err := cache.GetRaw(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, env.Expires)

	_, err = cache.Set(ctx, "2", user{ID: 2}, keyv.WithoutExpiry())
	require.NoError(t, err)
	env, _, _ = cache.GetRaw(ctx, "2")
	assert.Nil(t, env.Expires)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{"memory", "lru", "bigcache", "ristretto"} {
		t.Run(backend, func(t *testing.T) {
			cfg := keyv.TestConfig()
			cfg.Store.Backend = backend
			cfg.Keyv.Namespace = "app"

			cache, err := keyv.NewFromConfig[string](ctx, cfg)
			require.NoError(t, err)
			defer cache.Disconnect(ctx)

			ok, err := cache.Set(ctx, "k", "v")
			require.NoError(t, err)
			require.True(t, ok)

			assert.Eventually(t, func() bool {
				v, found, _ := cache.Get(ctx, "k")
				return found && v == "v"
			}, time.Second, 10*time.Millisecond)
		})
	}

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := keyv.TestConfig()
		cfg.Store.Backend = "redis"
		cfg.Redis.Address = mr.Addr()
		cfg.Keyv.Namespace = "app"
		cfg.Keyv.Compression = "gzip"

		cache, err := keyv.NewFromConfig[user](ctx, cfg)
		require.NoError(t, err)
		defer cache.Disconnect(ctx)

		_, err = cache.Set(ctx, "1", user{ID: 1, Name: "ada"}, keyv.WithTTL(time.Minute))
		require.NoError(t, err)
		assert.True(t, mr.Exists("app::1"))
		assert.Greater(t, mr.TTL("app::1"), time.Duration(0))

		u, found, err := cache.Get(ctx, "1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, user{ID: 1, Name: "ada"}, u)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := keyv.TestConfig()
		cfg.Store.Backend = "floppy"
		_, err := keyv.NewFromConfig[string](ctx, cfg)
		assert.ErrorIs(t, err, keyv.ErrUnknownBackend)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := keyv.TestConfig()
		cfg.Keyv.TTL = -time.Second
		_, err := keyv.NewFromConfig[string](ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("custom backend", func(t *testing.T) {
		keyv.RegisterBackend("broken", func(context.Context, *keyv.Configuration, *slog.Logger) (keyv.Store, error) {
			return brokenStore{}, nil
		})
		assert.Contains(t, keyv.Backends(), "broken")

		cfg := keyv.TestConfig()
		cfg.Store.Backend = "broken"
		cfg.Keyv.ThrowOnErrors = true
		cache, err := keyv.NewFromConfig[string](ctx, cfg)
		require.NoError(t, err)
		defer cache.Disconnect(ctx)

		_, err = cache.Set(ctx, "k", "v")
		assert.ErrorIs(t, err, errBroken)
		var se *keyv.StoreError
		assert.ErrorAs(t, err, &se)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keyv.yaml")
	data := []byte(`
keyv:
  namespace: files
  serializer: msgpack
  stats: true
store:
  backend: memory
  separator: "::"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cache, err := keyv.Open[int](ctx, path)
	require.NoError(t, err)
	defer cache.Disconnect(ctx)

	assert.Equal(t, "files", cache.Namespace())
	_, err = cache.Set(ctx, "n", 7)
	require.NoError(t, err)
	n, _, err := cache.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, int64(1), cache.Stats().Snapshot().Hits)
}

func TestNewPublisher(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		publisher string
		wantType  any
		wantErr   bool
	}{
		{"disabled", false, "datadog", &metrics.NoOpPublisher{}, false},
		{"noop", true, "noop", &metrics.NoOpPublisher{}, false},
		{"logging", true, "logging", &metrics.LoggingPublisher{}, false},
		{"unknown", true, "carrier-pigeon", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := keyv.TestConfig().Metrics
			cfg.Enabled = tt.enabled
			cfg.Publisher = tt.publisher

			p, err := keyv.NewPublisher(&cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, p)
			assert.NoError(t, p.Close())
		})
	}

	t.Run("otel and datadog build", func(t *testing.T) {
		for _, name := range []string{"otel", "datadog"} {
			cfg := keyv.TestConfig().Metrics
			cfg.Enabled = true
			cfg.Publisher = name
			p, err := keyv.NewPublisher(&cfg, nil)
			require.NoError(t, err, name)
			p.Incr("cache.test")
			assert.NoError(t, p.Close())
		}
	})
}

func TestNewTieredFromConfig(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := keyv.TestConfig()
	cfg.Redis.Address = mr.Addr()
	cfg.Tiered.Enabled = true
	cfg.Tiered.Local = "lru"
	cfg.Tiered.Remote = "redis"

	tc, err := keyv.NewTieredFromConfig[string](ctx, cfg, nil)
	require.NoError(t, err)
	defer tc.Close(ctx)

	_, err = tc.Remote().Set(ctx, "k", "remote")
	require.NoError(t, err)

	v, found, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "remote", v)

	v, found, _ = tc.Local().Get(ctx, "k")
	assert.True(t, found)
	assert.Equal(t, "remote", v)

	report := tc.Health(ctx)
	assert.Equal(t, keyv.HealthStatusHealthy, report.Status)
}

func TestLoggerAdapters(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)

	cache, err := keyv.New[string](
		keyv.WithStore(brokenStore{}),
		keyv.WithEmitErrors(false),
		keyv.WithZap(zap.New(core)),
	)
	require.NoError(t, err)
	defer cache.Disconnect(ctx)

	ok, err := cache.Set(ctx, "k", "v")
	require.NoError(t, err)
	assert.False(t, ok)

	entries := logs.FilterMessage("Store operation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "keyv", entries[0].ContextMap()["component"])
}
