package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MapLike is the minimal map contract GenericStore adapts. Every method may
// fail so that remote or instrumented maps can be wrapped.
type MapLike interface {
	Get(key string) (any, bool, error)
	Set(key string, value any) error
	Delete(key string) (bool, error)
	Has(key string) (bool, error)
	Clear() error
}

// Ranger is implemented by maps that can enumerate their entries. It enables
// namespace-scoped Clear and Iterator on GenericStore.
type Ranger interface {
	Range(fn func(key string, value any) bool)
}

// MapStore is a mutex-guarded Go map.
type MapStore struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewMapStore() *MapStore {
	return &MapStore{data: make(map[string]any)}
}

func (m *MapStore) Get(key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MapStore) Set(key string, value any) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MapStore) Delete(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *MapStore) Has(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MapStore) Clear() error {
	m.mu.Lock()
	m.data = make(map[string]any)
	m.mu.Unlock()
	return nil
}

func (m *MapStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Range iterates over a snapshot so fn may mutate the map.
func (m *MapStore) Range(fn func(key string, value any) bool) {
	m.mu.RLock()
	snapshot := make(map[string]any, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// LRUMap bounds the number of entries, evicting the least recently used.
type LRUMap struct {
	cache *lru.Cache[string, any]
}

func NewLRUMap(size int) (*LRUMap, error) {
	c, err := lru.New[string, any](size)
	if err != nil {
		return nil, err
	}
	return &LRUMap{cache: c}, nil
}

func (m *LRUMap) Get(key string) (any, bool, error) {
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

func (m *LRUMap) Set(key string, value any) error {
	m.cache.Add(key, value)
	return nil
}

func (m *LRUMap) Delete(key string) (bool, error) {
	return m.cache.Remove(key), nil
}

// Has does not update recency.
func (m *LRUMap) Has(key string) (bool, error) {
	return m.cache.Contains(key), nil
}

func (m *LRUMap) Clear() error {
	m.cache.Purge()
	return nil
}

func (m *LRUMap) Len() int {
	return m.cache.Len()
}

func (m *LRUMap) Range(fn func(key string, value any) bool) {
	for _, k := range m.cache.Keys() {
		v, ok := m.cache.Peek(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

var (
	_ MapLike = (*MapStore)(nil)
	_ Ranger  = (*MapStore)(nil)
	_ MapLike = (*LRUMap)(nil)
	_ Ranger  = (*LRUMap)(nil)
)
