package client

import (
	"sync"
	"time"
)

// ForwardedEvent is one server-pushed event buffered for UI inspection
// and replay.
type ForwardedEvent struct {
	EventName  string
	Payload    map[string]any
	ReceivedAt time.Time
}

// EventRing is a fixed-capacity ring of forwarded events. When full, the
// oldest event is evicted first.
type EventRing struct {
	mu       sync.RWMutex
	buf      []ForwardedEvent
	capacity int
	head     int // next write position
	count    int
}

// NewEventRing creates a ring holding at most capacity events.
func NewEventRing(capacity int) *EventRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &EventRing{
		buf:      make([]ForwardedEvent, capacity),
		capacity: capacity,
	}
}

// Append adds an event, evicting the oldest when the ring is full.
func (r *EventRing) Append(ev ForwardedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = ev
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// Events returns the buffered events, oldest first.
func (r *EventRing) Events() []ForwardedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ForwardedEvent, 0, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%r.capacity])
	}
	return out
}

// Len returns the number of buffered events.
func (r *EventRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Capacity returns the maximum number of buffered events.
func (r *EventRing) Capacity() int {
	return r.capacity
}

// Clear drops all buffered events.
func (r *EventRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
