package core

import (
	"sync"
	"time"
)

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventRejectedTransition
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventRejectedTransition:
		return "rejected_transition"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// JobEvent records one transition attempt. Reason is only set on rejections.
type JobEvent struct {
	Kind      EventKind `json:"kind"`
	JobName   string    `json:"job_name"`
	From      JobState  `json:"from"`
	To        JobState  `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// EventBus is an append-only, goroutine-safe log of job events. Insertion
// order is the only ordering it guarantees; timestamps from different
// goroutines are not necessarily monotonic.
type EventBus struct {
	mu     sync.Mutex
	events []JobEvent
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Publish(ev JobEvent) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// Snapshot returns a copy of the log as it is now.
func (b *EventBus) Snapshot() []JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]JobEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *EventBus) Clear() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Drain returns every event and empties the log in one step.
func (b *EventBus) Drain() []JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.events
	b.events = nil
	return out
}

func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Requeue puts previously drained events back in front of anything
// published since, keeping the original order.
func (b *EventBus) Requeue(events []JobEvent) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]JobEvent, 0, len(events)+len(b.events))
	merged = append(merged, events...)
	merged = append(merged, b.events...)
	b.events = merged
}
