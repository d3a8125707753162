// Package hooks lets callers observe or rewrite orchestrator payloads at
// fixed extension points.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/LavishGent/keyv/internal/types"
)

type Event string

const (
	PreSet      Event = "preSet"
	PostSet     Event = "postSet"
	PreGet      Event = "preGet"
	PostGet     Event = "postGet"
	PreGetMany  Event = "preGetMany"
	PostGetMany Event = "postGetMany"
	PreDelete   Event = "preDelete"
	PostDelete  Event = "postDelete"
)

// Events lists every extension point in firing order of a full cycle.
var Events = []Event{PreSet, PostSet, PreGet, PostGet, PreGetMany, PostGetMany, PreDelete, PostDelete}

func (e Event) String() string {
	return string(e)
}

// Handler receives a pointer payload it may mutate in place.
type Handler func(ctx context.Context, payload any) error

type HandlerID uint64

type entry struct {
	id HandlerID
	fn Handler
}

// Manager holds handlers per event. Failures never reach the caller of
// Trigger; they are wrapped in a HookError and passed to the reporter.
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]entry
	nextID   atomic.Uint64
	report   func(error)
}

func NewManager(report func(error)) *Manager {
	if report == nil {
		report = func(error) {}
	}
	return &Manager{
		handlers: make(map[Event][]entry),
		report:   report,
	}
}

func (m *Manager) Add(event Event, fn Handler) HandlerID {
	id := HandlerID(m.nextID.Add(1))
	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], entry{id: id, fn: fn})
	m.mu.Unlock()
	return id
}

func (m *Manager) Remove(event Event, id HandlerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.handlers[event]
	for i, e := range list {
		if e.id == id {
			m.handlers[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (m *Manager) Count(event Event) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

func (m *Manager) Clear() {
	m.mu.Lock()
	m.handlers = make(map[Event][]entry)
	m.mu.Unlock()
}

// Trigger runs the handlers of event in registration order.
func (m *Manager) Trigger(ctx context.Context, event Event, payload any) {
	m.mu.RLock()
	list := m.handlers[event]
	m.mu.RUnlock()

	for _, e := range list {
		if err := m.run(ctx, event, e.fn, payload); err != nil {
			m.report(&types.HookError{Event: string(event), Err: err})
		}
	}
}

func (m *Manager) run(ctx context.Context, event Event, fn Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", event, r)
		}
	}()
	return fn(ctx, payload)
}
