package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/keyv/internal/cache/cachetest"
	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/types"
)

func testBigcacheConfig() config.BigcacheConfig {
	return config.BigcacheConfig{
		LifeWindow:      10 * time.Minute,
		CleanupInterval: 0,
		MaxSizeMB:       16,
		Shards:          16,
		MaxEntrySize:    1024,
	}
}

func newTestBigcache(t *testing.T, clock clockwork.Clock) *BigcacheStore {
	t.Helper()
	s, err := NewBigcacheStore(testBigcacheConfig(), nil, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestBigcacheStoreConformance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cachetest.Run(t, cachetest.Harness{
		New: func(t *testing.T) types.Store {
			return newTestBigcache(t, clock)
		},
		Advance: clock.Advance,
	})
}

func TestBigcacheStoreClosed(t *testing.T) {
	ctx := context.Background()
	s, err := NewBigcacheStore(testBigcacheConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Disconnect(ctx))

	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", []byte("v"), 0), types.ErrClosed)
	_, err = s.Delete(ctx, "k")
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, s.Clear(ctx), types.ErrClosed)
}

func TestBigcacheStoreLen(t *testing.T) {
	ctx := context.Background()
	s := newTestBigcache(t, nil)
	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(0), s.Evictions())
}

func TestBigcacheStoreExpiryHeader(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestBigcache(t, clock)

	data := s.encode([]byte("v"), time.Second)
	assert.Len(t, data, expiryHeader+1)

	value, live := s.decode(data)
	assert.True(t, live)
	assert.Equal(t, []byte("v"), value)

	clock.Advance(2 * time.Second)
	_, live = s.decode(data)
	assert.False(t, live)

	_, live = s.decode([]byte{1, 2})
	assert.False(t, live, "short payloads are rejected")
}

func testRistrettoConfig() config.RistrettoConfig {
	return config.RistrettoConfig{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64}
}

func TestRistrettoStoreConformance(t *testing.T) {
	cachetest.Run(t, cachetest.Harness{
		New: func(t *testing.T) types.Store {
			s, err := NewRistrettoStore(testRistrettoConfig(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
			return s
		},
	})
}

func TestRistrettoStoreTTL(t *testing.T) {
	ctx := context.Background()
	s, err := NewRistrettoStore(testRistrettoConfig(), nil)
	require.NoError(t, err)
	defer s.Disconnect(ctx)

	require.NoError(t, s.Set(ctx, "short", []byte("v"), 50*time.Millisecond))
	_, found, _ := s.Get(ctx, "short")
	require.True(t, found)

	assert.Eventually(t, func() bool {
		_, found, _ := s.Get(ctx, "short")
		return !found
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRistrettoStoreRejectsOversized(t *testing.T) {
	ctx := context.Background()
	s, err := NewRistrettoStore(config.RistrettoConfig{NumCounters: 100, MaxCost: 10, BufferItems: 64}, nil)
	require.NoError(t, err)
	defer s.Disconnect(ctx)

	err = s.Set(ctx, "big", make([]byte, 1024), 0)
	if err != nil {
		assert.ErrorIs(t, err, errSetRejected)
	}
	_, found, _ := s.Get(ctx, "big")
	assert.False(t, found)
}
