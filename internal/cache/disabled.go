package cache

import (
	"context"
	"time"

	"github.com/LavishGent/keyv/internal/types"
)

// NullStore keeps nothing. Every read misses and every write is accepted and
// dropped, which turns caching off without changing the calling code.
type NullStore struct{}

func NewNullStore() *NullStore {
	return &NullStore{}
}

// Name returns the backend name.
func (s *NullStore) Name() string { return "none" }

func (s *NullStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NullStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (s *NullStore) Delete(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (s *NullStore) Has(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (s *NullStore) Clear(ctx context.Context) error { return nil }

func (s *NullStore) Ping(ctx context.Context) error { return nil }

var (
	_ types.Haser  = (*NullStore)(nil)
	_ types.Pinger = (*NullStore)(nil)
)
