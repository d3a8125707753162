package types

import (
	"context"
	"iter"
	"time"
)

// Store is the contract every backend satisfies. Values are opaque serialized
// envelopes; ttl 0 means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
}

type Haser interface {
	Has(ctx context.Context, key string) (bool, error)
}

// BatchGetter returns one slot per key in input order. Misses are nil.
type BatchGetter interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
}

type BatchSetter interface {
	SetMany(ctx context.Context, entries []RawEntry) ([]bool, error)
}

// BatchDeleter removes keys in bulk. Server-side stores (Redis, etcd, Mongo,
// Postgres) report true when at least one key was removed, as UNLINK does.
// GenericStore deletes key by key and reports true only if every key was
// removed.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, keys []string) (bool, error)
}

type BatchHaser interface {
	HasMany(ctx context.Context, keys []string) ([]bool, error)
}

type BatchStore interface {
	Store
	BatchGetter
	BatchSetter
	BatchDeleter
	BatchHaser
}

// IterableStore yields unprefixed keys of one namespace with their raw values.
type IterableStore interface {
	Store
	Iterator(ctx context.Context, namespace string) (iter.Seq2[string, []byte], error)
}

type Disconnecter interface {
	Disconnect(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Namespacer is implemented by stores that prefix keys themselves.
type Namespacer interface {
	Namespace() string
	SetNamespace(namespace string) error
}

// ErrorSource reports errors the caller did not directly observe.
type ErrorSource interface {
	OnError(fn func(error)) (unsubscribe func())
}

type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressionAdapter compresses envelope values and owns the outer envelope
// encoding.
type CompressionAdapter interface {
	Compressor
	Serialize(env RawEnvelope) ([]byte, error)
	Deserialize(data []byte) (RawEnvelope, error)
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
