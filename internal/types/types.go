// Package types provides the shared contracts of the keyv library.
// This package breaks import cycles between pkg/keyv and the internal packages.
package types

import "time"

// Envelope is the record persisted in every backend. A nil Expires never
// expires; otherwise it is an absolute deadline in epoch milliseconds.
type Envelope[V any] struct {
	Value   V      `json:"value" msgpack:"value" cbor:"value"`
	Expires *int64 `json:"expires" msgpack:"expires" cbor:"expires"`
}

// RawEnvelope carries an already encoded value.
type RawEnvelope = Envelope[[]byte]

func (e *Envelope[V]) Expired(now time.Time) bool {
	return e.Expires != nil && now.UnixMilli() > *e.Expires
}

// Remaining returns the time left before expiry and false for entries that
// never expire.
func (e *Envelope[V]) Remaining(now time.Time) (time.Duration, bool) {
	if e.Expires == nil {
		return 0, false
	}
	return time.Duration(*e.Expires-now.UnixMilli()) * time.Millisecond, true
}

// ExpiresAt converts a ttl into an envelope deadline. A zero ttl never expires.
func ExpiresAt(now time.Time, ttl time.Duration) *int64 {
	if ttl <= 0 {
		return nil
	}
	ms := now.Add(ttl).UnixMilli()
	return &ms
}

// Entry is one item of a batch set. A nil TTL uses the configured default.
type Entry[V any] struct {
	Key   string
	Value V
	TTL   *time.Duration
}

// TTL returns a pointer suitable for Entry.TTL.
func TTL(d time.Duration) *time.Duration {
	return &d
}

type RawEntry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Capabilities records which optional operations a store implements.
type Capabilities struct {
	Has        bool
	GetMany    bool
	SetMany    bool
	DeleteMany bool
	HasMany    bool
	Iterator   bool
	Disconnect bool
	Ping       bool
	Namespace  bool
}

func DetectCapabilities(s Store) Capabilities {
	var caps Capabilities
	if s == nil {
		return caps
	}
	_, caps.Has = s.(Haser)
	_, caps.GetMany = s.(BatchGetter)
	_, caps.SetMany = s.(BatchSetter)
	_, caps.DeleteMany = s.(BatchDeleter)
	_, caps.HasMany = s.(BatchHaser)
	_, caps.Iterator = s.(IterableStore)
	_, caps.Disconnect = s.(Disconnecter)
	_, caps.Ping = s.(Pinger)
	_, caps.Namespace = s.(Namespacer)
	return caps
}
