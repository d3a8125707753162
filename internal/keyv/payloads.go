package keyv

import (
	"time"

	"github.com/LavishGent/keyv/internal/types"
)

// Hook payloads. Handlers receive a pointer and may rewrite fields in place.

// SetPayload is passed to preSet and postSet. TTL zero never expires.
type SetPayload[V any] struct {
	Key   string
	Value V
	TTL   time.Duration
	// OK reports the store result in postSet.
	OK bool
}

// GetPayload is passed to preGet and postGet. Entry is nil for a miss.
type GetPayload[V any] struct {
	Key   string
	Entry *types.Envelope[V]
}

// GetManyPayload is passed to preGetMany and postGetMany. Entries has one
// slot per key after the read.
type GetManyPayload[V any] struct {
	Keys    []string
	Entries []*types.Envelope[V]
}

// DeletePayload is passed to preDelete and postDelete.
type DeletePayload struct {
	Keys    []string
	Deleted bool
}
