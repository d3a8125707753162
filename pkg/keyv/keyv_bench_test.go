package keyv_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/LavishGent/keyv/pkg/keyv"
)

type BenchUser struct {
	ID    string
	Name  string
	Email string
	Age   int
}

func newBenchCache(b *testing.B, opts ...keyv.Option) *keyv.Keyv[BenchUser] {
	b.Helper()
	cache, err := keyv.New[BenchUser](opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = cache.Disconnect(context.Background()) })
	return cache
}

func BenchmarkMemory_Set(b *testing.B) {
	cache := newBenchCache(b)
	ctx := context.Background()
	user := BenchUser{ID: "123", Name: "Alice", Email: "alice@example.com", Age: 30}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("user:%d", i)
		_, _ = cache.Set(ctx, key, user)
	}
}

func BenchmarkMemory_Get(b *testing.B) {
	cache := newBenchCache(b)
	ctx := context.Background()
	user := BenchUser{ID: "123", Name: "Alice", Email: "alice@example.com", Age: 30}

	for i := 0; i < 1000; i++ {
		_, _ = cache.Set(ctx, fmt.Sprintf("user:%d", i), user)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, fmt.Sprintf("user:%d", i%1000))
	}
}

func BenchmarkMemory_GetOrCreate(b *testing.B) {
	cache := newBenchCache(b)
	ctx := context.Background()
	factory := func(context.Context) (BenchUser, error) {
		return BenchUser{ID: "456", Name: "Bob", Email: "bob@example.com", Age: 25}, nil
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cache.GetOrCreate(ctx, fmt.Sprintf("user:%d", i%100), factory)
	}
}

func BenchmarkMemory_GetMany(b *testing.B) {
	cache := newBenchCache(b)
	ctx := context.Background()
	keys := make([]string, 64)
	for i := range keys {
		keys[i] = fmt.Sprintf("user:%d", i)
		_, _ = cache.Set(ctx, keys[i], BenchUser{ID: keys[i]})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.GetMany(ctx, keys)
	}
}

func BenchmarkMemory_GetParallel(b *testing.B) {
	cache := newBenchCache(b)
	ctx := context.Background()
	user := BenchUser{ID: "123", Name: "Alice", Email: "alice@example.com", Age: 30}

	for i := 0; i < 1000; i++ {
		_, _ = cache.Set(ctx, fmt.Sprintf("user:%d", i), user)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = cache.Get(ctx, fmt.Sprintf("user:%d", i%1000))
			i++
		}
	})
}

// Benchmark with different compression codecs
func BenchmarkCompression_Set(b *testing.B) {
	for _, name := range []string{"none", "gzip", "zstd", "brotli", "lz4"} {
		b.Run(name, func(b *testing.B) {
			cfg := keyv.TestConfig()
			cfg.Keyv.Compression = name
			cache, err := keyv.NewFromConfig[[]byte](context.Background(), cfg)
			if err != nil {
				b.Fatal(err)
			}
			defer cache.Disconnect(context.Background())

			ctx := context.Background()
			data := make([]byte, 10240)
			for i := range data {
				data[i] = byte(i % 256)
			}

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = cache.Set(ctx, fmt.Sprintf("data:%d", i), data)
			}
		})
	}
}
