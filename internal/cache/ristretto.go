package cache

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/types"
)

var errSetRejected = errors.New("ristretto rejected the write")

// ristrettoEntry keeps the physical key next to the value so eviction
// callbacks can maintain the key index.
type ristrettoEntry struct {
	key   string
	value []byte
}

// RistrettoStore is a cost-bounded in-process store with native TTL. Writes
// are followed by Wait so a Set is visible to the next Get.
type RistrettoStore struct {
	*events.Manager

	cache  *ristretto.Cache[string, ristrettoEntry]
	logger *slog.Logger

	mu        sync.RWMutex
	namespace string

	indexMu sync.Mutex
	index   map[string]struct{}
}

func NewRistrettoStore(cfg config.RistrettoConfig, logger *slog.Logger) (*RistrettoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RistrettoStore{
		logger: logger.With("component", "ristretto-store"),
		index:  make(map[string]struct{}),
	}
	s.Manager = events.NewManager(s.logger)

	c, err := ristretto.NewCache(&ristretto.Config[string, ristrettoEntry]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		OnEvict: func(item *ristretto.Item[ristrettoEntry]) {
			s.unindex(item.Value.key)
		},
		OnReject: func(item *ristretto.Item[ristrettoEntry]) {
			s.unindex(item.Value.key)
		},
	})
	if err != nil {
		return nil, err
	}
	s.cache = c
	return s, nil
}

func (s *RistrettoStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *RistrettoStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, DefaultSeparator); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

func (s *RistrettoStore) key(key string) string {
	return KeyPrefix(key, s.Namespace(), DefaultSeparator)
}

func (s *RistrettoStore) unindex(key string) {
	s.indexMu.Lock()
	delete(s.index, key)
	s.indexMu.Unlock()
}

func (s *RistrettoStore) indexed(namespace string) []string {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		if inNamespace(k, namespace, DefaultSeparator) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *RistrettoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.cache.Get(s.key(key))
	if !ok {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *RistrettoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	physical := s.key(key)
	entry := ristrettoEntry{key: physical, value: value}
	cost := int64(len(value) + len(physical))

	var ok bool
	if ttl > 0 {
		ok = s.cache.SetWithTTL(physical, entry, cost, ttl)
	} else {
		ok = s.cache.Set(physical, entry, cost)
	}
	if !ok {
		return types.NewStoreError("set", key, "ristretto", errSetRejected)
	}

	s.indexMu.Lock()
	s.index[physical] = struct{}{}
	s.indexMu.Unlock()

	s.cache.Wait()
	return nil
}

func (s *RistrettoStore) Delete(ctx context.Context, key string) (bool, error) {
	physical := s.key(key)
	_, existed := s.cache.Get(physical)
	s.cache.Del(physical)
	s.unindex(physical)
	return existed, nil
}

func (s *RistrettoStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(s.key(key))
	return ok, nil
}

func (s *RistrettoStore) Clear(ctx context.Context) error {
	ns := s.Namespace()
	keys := s.indexed(ns)
	for _, k := range keys {
		s.cache.Del(k)
		s.unindex(k)
	}
	s.logger.Debug("Cleared namespace", "namespace", ns, "deleted", len(keys))
	return nil
}

func (s *RistrettoStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	return func(yield func(string, []byte) bool) {
		for _, physical := range s.indexed(namespace) {
			if ctx.Err() != nil {
				return
			}
			entry, ok := s.cache.Get(physical)
			if !ok {
				s.unindex(physical)
				continue
			}
			key := physical
			if namespace != "" {
				key = SplitKeyPrefix(physical, DefaultSeparator).Key
			}
			if !yield(key, entry.value) {
				return
			}
		}
	}, nil
}

func (s *RistrettoStore) Disconnect(ctx context.Context) error {
	s.cache.Close()
	return nil
}

var (
	_ types.IterableStore = (*RistrettoStore)(nil)
	_ types.Haser         = (*RistrettoStore)(nil)
	_ types.Namespacer    = (*RistrettoStore)(nil)
	_ types.Disconnecter  = (*RistrettoStore)(nil)
)
