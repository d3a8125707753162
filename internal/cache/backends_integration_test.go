package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/LavishGent/keyv/internal/cache/cachetest"
	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/types"
)

func requireEnv(t *testing.T, name string) string {
	t.Helper()
	v := os.Getenv(name)
	if v == "" {
		t.Skipf("%s not set", name)
	}
	return v
}

func TestEtcdStoreIntegration(t *testing.T) {
	endpoints := strings.Split(requireEnv(t, "KEYV_TEST_ETCD"), ",")
	ctx := context.Background()

	cachetest.Run(t, cachetest.Harness{
		New: func(t *testing.T) types.Store {
			s, err := OpenEtcdStore(ctx, config.EtcdConfig{Endpoints: endpoints, DialTimeout: 5 * time.Second}, nil, nil)
			require.NoError(t, err)
			_, err = s.Client().Delete(ctx, "\x00", clientv3.WithFromKey())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Disconnect(ctx) })
			return s
		},
	})
}

func TestMongoStoreIntegration(t *testing.T) {
	uri := requireEnv(t, "KEYV_TEST_MONGO")
	ctx := context.Background()

	cachetest.Run(t, cachetest.Harness{
		New: func(t *testing.T) types.Store {
			s, err := OpenMongoStore(ctx, config.MongoConfig{
				URI:        config.NewSecretString(uri),
				Database:   "keyv_test",
				Collection: "conformance",
			}, nil, nil)
			require.NoError(t, err)
			_, err = s.Collection().DeleteMany(ctx, map[string]any{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Disconnect(ctx) })
			return s
		},
	})
}

func TestPostgresStoreIntegration(t *testing.T) {
	url := requireEnv(t, "KEYV_TEST_POSTGRES")
	ctx := context.Background()

	cachetest.Run(t, cachetest.Harness{
		New: func(t *testing.T) types.Store {
			s, err := OpenPostgresStore(ctx, config.PostgresConfig{
				URL:   config.NewSecretString(url),
				Table: "keyv_conformance",
			}, nil, nil)
			require.NoError(t, err)
			_, err = s.pool.Exec(ctx, "TRUNCATE keyv_conformance")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Disconnect(ctx) })
			return s
		},
	})
}
