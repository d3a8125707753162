package metrics

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a helper for measuring operation latency.
type Timer struct {
	publisher Publisher
	clock     clockwork.Clock
	name      string
	tags      []string
	start     time.Time
}

// NewTimer creates a new timer that will record to the publisher when stopped.
func NewTimer(publisher Publisher, name string, tags ...string) *Timer {
	return NewTimerWithClock(clockwork.NewRealClock(), publisher, name, tags...)
}

// NewTimerWithClock is NewTimer reading time from clock.
func NewTimerWithClock(clock clockwork.Clock, publisher Publisher, name string, tags ...string) *Timer {
	return &Timer{
		publisher: publisher,
		clock:     clock,
		name:      name,
		tags:      tags,
		start:     clock.Now(),
	}
}

// Stop records the elapsed time as a timing metric and returns the duration.
// Extra tags are appended to the ones given at construction.
func (t *Timer) Stop(tags ...string) time.Duration {
	duration := t.clock.Since(t.start)
	t.publisher.Timing(t.name, duration, MergeTags(t.tags, tags)...)
	return duration
}

// Elapsed returns the time since the timer was started without recording.
func (t *Timer) Elapsed() time.Duration {
	return t.clock.Since(t.start)
}
