package cache

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/types"
)

// genericEntry is the value GenericStore keeps in its MapLike. Expires is
// epoch milliseconds, zero for no expiry.
type genericEntry struct {
	Value   []byte
	Expires int64
}

// GenericStore adapts any MapLike into the full store contract, adding
// namespace prefixing and per-entry expiry.
type GenericStore struct {
	*events.Manager

	store  MapLike
	sep    string
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.RWMutex
	namespace string
}

type GenericOption func(*GenericStore)

// WithSeparator overrides the "::" namespace separator.
func WithSeparator(sep string) GenericOption {
	return func(s *GenericStore) {
		if sep != "" {
			s.sep = sep
		}
	}
}

// WithClock sets the clock used for expiry.
func WithClock(clock clockwork.Clock) GenericOption {
	return func(s *GenericStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GenericOption {
	return func(s *GenericStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewGenericStore wraps store. A nil store gets a fresh MapStore.
func NewGenericStore(store MapLike, opts ...GenericOption) *GenericStore {
	if store == nil {
		store = NewMapStore()
	}
	s := &GenericStore{
		store:  store,
		sep:    DefaultSeparator,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "generic-store")
	s.Manager = events.NewManager(s.logger)
	return s
}

// Namespace returns the active namespace.
func (s *GenericStore) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

// SetNamespace switches the key prefix. Namespaces containing the separator
// are rejected.
func (s *GenericStore) SetNamespace(namespace string) error {
	if err := types.ValidateNamespace(namespace, s.sep); err != nil {
		return err
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

// Separator returns the string joining namespace and key.
func (s *GenericStore) Separator() string {
	return s.sep
}

func (s *GenericStore) key(key string) string {
	return KeyPrefix(key, s.Namespace(), s.sep)
}

func (s *GenericStore) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}

// decode accepts foreign values so that a pre-populated map still reads.
func decodeGeneric(v any) (genericEntry, bool) {
	switch e := v.(type) {
	case genericEntry:
		return e, true
	case *genericEntry:
		return *e, e != nil
	case []byte:
		return genericEntry{Value: e}, true
	case string:
		return genericEntry{Value: []byte(e)}, true
	default:
		return genericEntry{}, false
	}
}

// Get returns the live value under key, deleting it if it has expired.
func (s *GenericStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	physical := s.key(key)
	raw, ok, err := s.store.Get(physical)
	if err != nil {
		return nil, false, types.NewStoreError("get", key, "generic", err)
	}
	if !ok {
		return nil, false, nil
	}

	entry, ok := decodeGeneric(raw)
	if !ok {
		return nil, false, nil
	}
	if entry.Expires > 0 && s.nowMs() > entry.Expires {
		if _, err := s.store.Delete(physical); err != nil {
			s.EmitError(types.NewStoreError("delete", key, "generic", err))
		}
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set stores value with an absolute deadline. A zero ttl never expires.
func (s *GenericStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := genericEntry{Value: value}
	if ttl > 0 {
		entry.Expires = s.clock.Now().Add(ttl).UnixMilli()
	}
	if err := s.store.Set(s.key(key), entry); err != nil {
		return types.NewStoreError("set", key, "generic", err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (s *GenericStore) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := s.store.Delete(s.key(key))
	if err != nil {
		return false, types.NewStoreError("delete", key, "generic", err)
	}
	return ok, nil
}

// Has applies the same expiry check as Get.
func (s *GenericStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Clear removes the keys of the active namespace. Without a namespace only
// unprefixed keys go. A map that cannot enumerate is cleared whole.
func (s *GenericStore) Clear(ctx context.Context) error {
	ns := s.Namespace()
	ranger, ok := s.store.(Ranger)
	if !ok {
		if err := s.store.Clear(); err != nil {
			return types.NewStoreError("clear", "", "generic", err)
		}
		return nil
	}

	var doomed []string
	ranger.Range(func(k string, _ any) bool {
		if inNamespace(k, ns, s.sep) {
			doomed = append(doomed, k)
		}
		return true
	})
	for _, k := range doomed {
		if _, err := s.store.Delete(k); err != nil {
			return types.NewStoreError("clear", k, "generic", err)
		}
	}
	s.logger.Debug("Cleared namespace", "namespace", ns, "deleted", len(doomed))
	return nil
}

// GetMany reads keys one by one. Misses are nil.
func (s *GenericStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

// SetMany writes entries one by one. A failed entry is reported and marked
// false.
func (s *GenericStore) SetMany(ctx context.Context, entries []types.RawEntry) ([]bool, error) {
	out := make([]bool, len(entries))
	for i, e := range entries {
		if err := s.Set(ctx, e.Key, e.Value, e.TTL); err != nil {
			s.EmitError(err)
			continue
		}
		out[i] = true
	}
	return out, nil
}

// DeleteMany stops at the first failing delete, reports it once and returns
// false without an error.
func (s *GenericStore) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	all := true
	for _, k := range keys {
		ok, err := s.Delete(ctx, k)
		if err != nil {
			s.EmitError(err)
			return false, nil
		}
		all = all && ok
	}
	return all, nil
}

// HasMany checks keys one by one.
func (s *GenericStore) HasMany(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		ok, err := s.Has(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

// Iterator yields the live entries of namespace with the prefix removed.
func (s *GenericStore) Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error) {
	ranger, ok := s.store.(Ranger)
	if !ok {
		return nil, types.ErrIteratorUnsupported
	}

	return func(yield func(string, []byte) bool) {
		now := s.nowMs()
		ranger.Range(func(k string, v any) bool {
			if ctx.Err() != nil {
				return false
			}
			if !inNamespace(k, namespace, s.sep) {
				return true
			}
			entry, ok := decodeGeneric(v)
			if !ok {
				return true
			}
			if entry.Expires > 0 && now > entry.Expires {
				if _, err := s.store.Delete(k); err != nil {
					s.EmitError(types.NewStoreError("delete", k, "generic", err))
				}
				return true
			}
			return yield(SplitKeyPrefix(k, s.sep).stripped(namespace, k), entry.Value)
		})
	}, nil
}

// stripped returns the logical key of physical within namespace.
func (d KeyPrefixData) stripped(namespace, physical string) string {
	if namespace == "" {
		return physical
	}
	return d.Key
}

// Disconnect emits disconnect. The wrapped map is left as is.
func (s *GenericStore) Disconnect(ctx context.Context) error {
	s.Emit(events.EventDisconnect)
	return nil
}

var (
	_ types.BatchStore    = (*GenericStore)(nil)
	_ types.IterableStore = (*GenericStore)(nil)
	_ types.Haser         = (*GenericStore)(nil)
	_ types.Namespacer    = (*GenericStore)(nil)
	_ types.ErrorSource   = (*GenericStore)(nil)
	_ types.Disconnecter  = (*GenericStore)(nil)
)
