package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/types"
)

// expiryHeader is the big-endian epoch-ms deadline stored before each value.
const expiryHeader = 8

// BigcacheStore implements an in-process store using BigCache. BigCache only
// knows a global life window, so each entry carries its own deadline.
type BigcacheStore struct {
	*events.Manager

	cache  *bigcache.BigCache
	config config.BigcacheConfig
	logger *slog.Logger
	clock  clockwork.Clock

	mu        sync.RWMutex
	namespace string

	evictions atomic.Int64
	closed    atomic.Bool
}

// NewBigcacheStore creates a new bigcache store with the given configuration.
func NewBigcacheStore(cfg config.BigcacheConfig, logger *slog.Logger, clock clockwork.Clock) (*BigcacheStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &BigcacheStore{
		config: cfg,
		logger: logger.With("component", "bigcache-store"),
		clock:  clock,
	}
	s.Manager = events.NewManager(s.logger)

	bcConfig := bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.LifeWindow,
		CleanWindow:        cfg.CleanupInterval,
		MaxEntriesInWindow: 1000 * 10 * 60, // Estimated entries in LifeWindow
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Verbose:            false,
		Logger:             &bigcacheLogger{logger: s.logger},
		OnRemoveWithReason: func(key string, entry []byte, reason bigcache.RemoveReason) {
			if reason == bigcache.NoSpace || reason == bigcache.Expired {
				s.evictions.Add(1)
			}
		},
	}

	bc, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, err
	}

	s.cache = bc
	return s, nil
}

func (s *BigcacheStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *BigcacheStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, DefaultSeparator); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

func (s *BigcacheStore) key(key string) string {
	return KeyPrefix(key, s.Namespace(), DefaultSeparator)
}

func (s *BigcacheStore) encode(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, expiryHeader+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(s.clock.Now().Add(ttl).UnixMilli()))
	}
	copy(buf[expiryHeader:], value)
	return buf
}

// decode returns the value and whether it is still live.
func (s *BigcacheStore) decode(data []byte) ([]byte, bool) {
	if len(data) < expiryHeader {
		return nil, false
	}
	expires := int64(binary.BigEndian.Uint64(data))
	if expires > 0 && s.clock.Now().UnixMilli() > expires {
		return nil, false
	}
	return data[expiryHeader:], true
}

// Get retrieves a value from the store.
func (s *BigcacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, types.ErrClosed
	}

	physical := s.key(key)
	data, err := s.cache.Get(physical)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, types.NewStoreError("get", key, "bigcache", err)
	}

	value, live := s.decode(data)
	if !live {
		_ = s.cache.Delete(physical)
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores a value in the store.
func (s *BigcacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	if err := s.cache.Set(s.key(key), s.encode(value, ttl)); err != nil {
		return types.NewStoreError("set", key, "bigcache", err)
	}
	return nil
}

// Delete removes a value from the store.
func (s *BigcacheStore) Delete(ctx context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, types.ErrClosed
	}

	if err := s.cache.Delete(s.key(key)); err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return false, nil
		}
		return false, types.NewStoreError("delete", key, "bigcache", err)
	}
	return true, nil
}

// Has checks if a live key exists in the store.
func (s *BigcacheStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Clear removes the keys of the active namespace. Without a namespace only
// unprefixed keys are removed.
func (s *BigcacheStore) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	ns := s.Namespace()

	var keysToDelete []string
	it := s.cache.Iterator()
	for it.SetNext() {
		entry, err := it.Value()
		if err != nil {
			continue
		}
		if inNamespace(entry.Key(), ns, DefaultSeparator) {
			keysToDelete = append(keysToDelete, entry.Key())
		}
	}

	for _, key := range keysToDelete {
		_ = s.cache.Delete(key)
	}

	s.logger.Debug("Cleared namespace",
		"namespace", ns,
		"deleted", len(keysToDelete),
	)
	return nil
}

// Iterator yields live entries of namespace without their prefix.
func (s *BigcacheStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	return func(yield func(string, []byte) bool) {
		it := s.cache.Iterator()
		for it.SetNext() {
			if ctx.Err() != nil {
				return
			}
			entry, err := it.Value()
			if err != nil {
				continue
			}
			physical := entry.Key()
			if !inNamespace(physical, namespace, DefaultSeparator) {
				continue
			}
			value, live := s.decode(entry.Value())
			if !live {
				_ = s.cache.Delete(physical)
				continue
			}
			key := physical
			if namespace != "" {
				key = SplitKeyPrefix(physical, DefaultSeparator).Key
			}
			if !yield(key, value) {
				return
			}
		}
	}, nil
}

// Disconnect closes the store and releases resources.
func (s *BigcacheStore) Disconnect(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.cache.Close()
}

// Len returns the number of entries, expired ones included.
func (s *BigcacheStore) Len() int {
	return s.cache.Len()
}

// Evictions counts entries bigcache dropped for space or its life window.
func (s *BigcacheStore) Evictions() int64 {
	return s.evictions.Load()
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf("bigcache: "+format, args...))
}

var (
	_ types.IterableStore = (*BigcacheStore)(nil)
	_ types.Haser         = (*BigcacheStore)(nil)
	_ types.Namespacer    = (*BigcacheStore)(nil)
	_ types.Disconnecter  = (*BigcacheStore)(nil)
)
