// Package events provides the listener registry used by every keyv component
// that reports errors outside the caller's return path.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	EventError      = "error"
	EventClear      = "clear"
	EventDisconnect = "disconnect"
)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type Listener func(args ...any)

type registration struct {
	id   ListenerID
	fn   Listener
	once bool
}

// Manager is a concurrency-safe on/off/emit registry. The zero value is not
// usable; construct with NewManager.
type Manager struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	nextID    atomic.Uint64
	logger    *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		listeners: make(map[string][]registration),
		logger:    logger,
	}
}

func (m *Manager) On(event string, fn Listener) ListenerID {
	return m.add(event, fn, false)
}

// Once registers fn for the next emission of event only.
func (m *Manager) Once(event string, fn Listener) ListenerID {
	return m.add(event, fn, true)
}

func (m *Manager) add(event string, fn Listener, once bool) ListenerID {
	id := ListenerID(m.nextID.Add(1))
	m.mu.Lock()
	m.listeners[event] = append(m.listeners[event], registration{id: id, fn: fn, once: once})
	m.mu.Unlock()
	return id
}

func (m *Manager) Off(event string, id ListenerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	regs := m.listeners[event]
	for i, r := range regs {
		if r.id == id {
			m.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(m.listeners[event]) == 0 {
		delete(m.listeners, event)
	}
}

// RemoveAllListeners drops every listener of the given events, or of all
// events when none are named.
func (m *Manager) RemoveAllListeners(events ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(events) == 0 {
		m.listeners = make(map[string][]registration)
		return
	}
	for _, event := range events {
		delete(m.listeners, event)
	}
}

func (m *Manager) ListenerCount(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners[event])
}

// Emit calls the listeners of event synchronously in registration order.
// An error event nobody listens to is logged instead of dropped.
func (m *Manager) Emit(event string, args ...any) {
	m.mu.Lock()
	regs := m.listeners[event]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)

	kept := regs[:0:0]
	for _, r := range regs {
		if !r.once {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(m.listeners, event)
	} else if len(kept) != len(regs) {
		m.listeners[event] = kept
	}
	m.mu.Unlock()

	if len(snapshot) == 0 {
		if event == EventError {
			m.logger.Warn("Unhandled error event", "error", firstArg(args))
		}
		return
	}

	for _, r := range snapshot {
		m.call(event, r.fn, args)
	}
}

func (m *Manager) call(event string, fn Listener, args []any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recovered from panic in event listener", "event", event, "panic", r)
		}
	}()
	fn(args...)
}

func (m *Manager) EmitError(err error) {
	if err == nil {
		return
	}
	m.Emit(EventError, err)
}

// OnError subscribes to error events and returns the matching unsubscribe.
func (m *Manager) OnError(fn func(error)) func() {
	id := m.On(EventError, func(args ...any) {
		switch v := firstArg(args).(type) {
		case error:
			fn(v)
		case nil:
		default:
			fn(fmt.Errorf("%v", v))
		}
	})
	return func() { m.Off(EventError, id) }
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
