package streaming

import "fmt"

// EventBuffer is a fixed-capacity, FIFO-eviction store of stream events.
// Insertion order is receipt order; timestamps may coincide but need not
// agree with it, and eviction always removes the oldest insertion.
// EventBuffer is not safe for concurrent use; callers dispatch into it
// from a single connection callback context.
type EventBuffer struct {
	events   []*StreamEvent
	capacity int
	start    int
	size     int
}

// NewEventBuffer creates a buffer holding at most capacity events
func NewEventBuffer(capacity int) (*EventBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	return &EventBuffer{
		events:   make([]*StreamEvent, capacity),
		capacity: capacity,
	}, nil
}

// Add appends an event, evicting the oldest entry when full
func (b *EventBuffer) Add(event *StreamEvent) {
	if event == nil {
		return
	}
	if b.size < b.capacity {
		b.events[(b.start+b.size)%b.capacity] = event
		b.size++
		return
	}
	// Full: overwrite the oldest slot and advance the window.
	b.events[b.start] = event
	b.start = (b.start + 1) % b.capacity
}

// GetAll returns the current window of events in receipt order
func (b *EventBuffer) GetAll() []*StreamEvent {
	out := make([]*StreamEvent, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.events[(b.start+i)%b.capacity])
	}
	return out
}

// GetSince returns buffered events with Timestamp strictly after ts,
// preserving receipt order
func (b *EventBuffer) GetSince(ts int64) []*StreamEvent {
	var out []*StreamEvent
	for i := 0; i < b.size; i++ {
		e := b.events[(b.start+i)%b.capacity]
		if e.Timestamp > ts {
			out = append(out, e)
		}
	}
	return out
}

// GetByType returns buffered events of the given type in receipt order
func (b *EventBuffer) GetByType(eventType EventType) []*StreamEvent {
	var out []*StreamEvent
	for i := 0; i < b.size; i++ {
		e := b.events[(b.start+i)%b.capacity]
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// GetLatest returns the last k events (or fewer if the buffer holds
// fewer) in receipt order
func (b *EventBuffer) GetLatest(k int) []*StreamEvent {
	if k <= 0 {
		return nil
	}
	if k > b.size {
		k = b.size
	}
	out := make([]*StreamEvent, 0, k)
	for i := b.size - k; i < b.size; i++ {
		out = append(out, b.events[(b.start+i)%b.capacity])
	}
	return out
}

// Size returns the number of buffered events
func (b *EventBuffer) Size() int {
	return b.size
}

// Capacity returns the maximum number of events the buffer retains
func (b *EventBuffer) Capacity() int {
	return b.capacity
}

// Clear empties the buffer
func (b *EventBuffer) Clear() {
	for i := range b.events {
		b.events[i] = nil
	}
	b.start = 0
	b.size = 0
}
