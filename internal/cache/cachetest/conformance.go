// Package cachetest holds the behavior every store adapter must share.
package cachetest

import (
	"context"
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/keyv/internal/types"
)

// Harness describes the store under test.
type Harness struct {
	// New returns an empty store. It is called once per subtest.
	New func(t *testing.T) types.Store
	// Advance moves the store's clock forward. TTL cases are skipped when nil.
	Advance func(d time.Duration)
	// TTL is the shortest expiry the store honors. Defaults to one second.
	TTL time.Duration
}

// Run executes the shared contract against h.
func Run(t *testing.T, h Harness) {
	t.Helper()
	if h.TTL <= 0 {
		h.TTL = time.Second
	}
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := h.New(t)
		v, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		s := h.New(t)
		require.NoError(t, s.Set(ctx, "foo", []byte("bar"), 0))
		v, ok, err := s.Get(ctx, "foo")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("bar"), v)
	})

	t.Run("overwrite", func(t *testing.T) {
		s := h.New(t)
		require.NoError(t, s.Set(ctx, "foo", []byte("one"), 0))
		require.NoError(t, s.Set(ctx, "foo", []byte("two"), 0))
		v, _, err := s.Get(ctx, "foo")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), v)
	})

	t.Run("delete", func(t *testing.T) {
		s := h.New(t)
		require.NoError(t, s.Set(ctx, "foo", []byte("bar"), 0))

		ok, err := s.Delete(ctx, "foo")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Delete(ctx, "foo")
		require.NoError(t, err)
		assert.False(t, ok)

		_, found, err := s.Get(ctx, "foo")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("has", func(t *testing.T) {
		s := h.New(t)
		haser, ok := s.(types.Haser)
		if !ok {
			t.Skip("store has no Has")
		}
		require.NoError(t, s.Set(ctx, "foo", []byte("bar"), 0))
		found, err := haser.Has(ctx, "foo")
		require.NoError(t, err)
		assert.True(t, found)
		found, err = haser.Has(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear", func(t *testing.T) {
		s := h.New(t)
		require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
		require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
		require.NoError(t, s.Clear(ctx))
		for _, k := range []string{"a", "b"} {
			_, found, err := s.Get(ctx, k)
			require.NoError(t, err)
			assert.False(t, found, k)
		}
	})

	t.Run("ttl expires", func(t *testing.T) {
		if h.Advance == nil {
			t.Skip("store clock cannot be advanced")
		}
		s := h.New(t)
		require.NoError(t, s.Set(ctx, "short", []byte("v"), h.TTL))
		require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

		_, found, err := s.Get(ctx, "short")
		require.NoError(t, err)
		require.True(t, found)

		h.Advance(2 * h.TTL)

		_, found, err = s.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, found)
		_, found, err = s.Get(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("batch", func(t *testing.T) {
		s := h.New(t)
		batch, ok := s.(types.BatchStore)
		if !ok {
			t.Skip("store has no batch operations")
		}

		results, err := batch.SetMany(ctx, []types.RawEntry{
			{Key: "k1", Value: []byte("v1")},
			{Key: "k2", Value: []byte("v2")},
			{Key: "k3", Value: []byte("v3")},
		})
		require.NoError(t, err)
		assert.Equal(t, []bool{true, true, true}, results)

		values, err := batch.GetMany(ctx, []string{"k3", "missing", "k1", "k2"})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("v3"), nil, []byte("v1"), []byte("v2")}, values)

		has, err := batch.HasMany(ctx, []string{"k1", "missing", "k2"})
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, true}, has)

		deleted, err := batch.DeleteMany(ctx, []string{"k1", "k2"})
		require.NoError(t, err)
		assert.True(t, deleted)

		values, err = batch.GetMany(ctx, []string{"k1", "k2", "k3"})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{nil, nil, []byte("v3")}, values)
	})

	t.Run("empty batch", func(t *testing.T) {
		s := h.New(t)
		batch, ok := s.(types.BatchStore)
		if !ok {
			t.Skip("store has no batch operations")
		}
		values, err := batch.GetMany(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("namespace isolation", func(t *testing.T) {
		s := h.New(t)
		ns, ok := s.(types.Namespacer)
		if !ok {
			t.Skip("store does not own namespaces")
		}

		require.NoError(t, ns.SetNamespace("a"))
		require.NoError(t, s.Set(ctx, "key", []byte("from-a"), 0))
		require.NoError(t, ns.SetNamespace("b"))
		require.NoError(t, s.Set(ctx, "key", []byte("from-b"), 0))

		require.NoError(t, s.Clear(ctx))
		_, found, err := s.Get(ctx, "key")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, ns.SetNamespace("a"))
		v, found, err := s.Get(ctx, "key")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("from-a"), v)
	})

	t.Run("clear without namespace keeps namespaced keys", func(t *testing.T) {
		s := h.New(t)
		ns, ok := s.(types.Namespacer)
		if !ok {
			t.Skip("store does not own namespaces")
		}

		require.NoError(t, ns.SetNamespace("users"))
		require.NoError(t, s.Set(ctx, "1", []byte("ada"), 0))
		require.NoError(t, ns.SetNamespace(""))
		require.NoError(t, s.Set(ctx, "bare", []byte("0"), 0))

		require.NoError(t, s.Clear(ctx))
		_, found, err := s.Get(ctx, "bare")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, ns.SetNamespace("users"))
		v, found, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("ada"), v)
	})

	t.Run("iterator", func(t *testing.T) {
		s := h.New(t)
		it, ok := s.(types.IterableStore)
		if !ok {
			t.Skip("store is not iterable")
		}
		namespace := ""
		if ns, ok := s.(types.Namespacer); ok {
			namespace = "it"
			require.NoError(t, ns.SetNamespace(namespace))
		}
		require.NoError(t, s.Set(ctx, "x", []byte("1"), 0))
		require.NoError(t, s.Set(ctx, "y", []byte("2"), 0))

		seq, err := it.Iterator(ctx, namespace)
		if errors.Is(err, types.ErrIteratorUnsupported) || errors.Is(err, types.ErrClusterIterator) {
			t.Skip(err.Error())
		}
		require.NoError(t, err)

		got := make(map[string][]byte)
		maps.Insert(got, seq)
		assert.Equal(t, map[string][]byte{"x": []byte("1"), "y": []byte("2")}, got)
	})
}
