package client

import "testing"

func TestEventRingAppendBelowCapacity(t *testing.T) {
	ring := NewEventRing(3)
	ring.Append(ForwardedEvent{EventName: "a"})
	ring.Append(ForwardedEvent{EventName: "b"})

	events := ring.Events()
	if len(events) != 2 || events[0].EventName != "a" || events[1].EventName != "b" {
		t.Errorf("Expected [a b] oldest first, got %+v", events)
	}
}

func TestEventRingEvictsOldestWhenFull(t *testing.T) {
	ring := NewEventRing(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ring.Append(ForwardedEvent{EventName: name})
	}

	if got := ring.Len(); got != 3 {
		t.Fatalf("Expected length pinned at capacity, got %d", got)
	}
	events := ring.Events()
	want := []string{"c", "d", "e"}
	for i, name := range want {
		if events[i].EventName != name {
			t.Errorf("Expected %v after eviction, got %+v", want, events)
			break
		}
	}
}

func TestEventRingClear(t *testing.T) {
	ring := NewEventRing(3)
	ring.Append(ForwardedEvent{EventName: "a"})
	ring.Clear()

	if got := ring.Len(); got != 0 {
		t.Errorf("Expected empty ring after clear, got %d", got)
	}
	ring.Append(ForwardedEvent{EventName: "b"})
	events := ring.Events()
	if len(events) != 1 || events[0].EventName != "b" {
		t.Errorf("Expected ring usable after clear, got %+v", events)
	}
}

func TestEventRingDefaultCapacity(t *testing.T) {
	ring := NewEventRing(0)
	if got := ring.Capacity(); got != 100 {
		t.Errorf("Expected fallback capacity 100, got %d", got)
	}
}
