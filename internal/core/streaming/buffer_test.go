package streaming

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func makeEvent(id string, eventType EventType, ts int64) *StreamEvent {
	return &StreamEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: ts,
		Data:      []byte("{}"),
	}
}

// TestNewEventBuffer_RejectsNonPositiveCapacity tests capacity validation
func TestNewEventBuffer_RejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		_, err := NewEventBuffer(capacity)
		assert.Error(t, err, "Capacity %d should be rejected", capacity)
	}
}

// TestEventBuffer_AddAndGetAll tests insertion below capacity
func TestEventBuffer_AddAndGetAll(t *testing.T) {
	buffer, err := NewEventBuffer(5)
	require.NoError(t, err)

	buffer.Add(makeEvent("a", EventTypeStart, 1))
	buffer.Add(makeEvent("b", EventTypeChunk, 2))
	buffer.Add(makeEvent("c", EventTypeEnd, 3))

	all := buffer.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
	assert.Equal(t, 3, buffer.Size())
	assert.Equal(t, 5, buffer.Capacity())
}

// TestEventBuffer_EvictsOldestWhenFull tests FIFO eviction
func TestEventBuffer_EvictsOldestWhenFull(t *testing.T) {
	buffer, err := NewEventBuffer(3)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		buffer.Add(makeEvent(fmt.Sprintf("e%d", i), EventTypeChunk, int64(i)))
	}

	all := buffer.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].ID, "Oldest insertions are evicted first")
	assert.Equal(t, "e4", all[1].ID)
	assert.Equal(t, "e5", all[2].ID)
	assert.Equal(t, 3, buffer.Size())
}

// TestEventBuffer_IgnoresNil tests that nil events are not stored
func TestEventBuffer_IgnoresNil(t *testing.T) {
	buffer, err := NewEventBuffer(2)
	require.NoError(t, err)

	buffer.Add(nil)

	assert.Equal(t, 0, buffer.Size())
}

// TestEventBuffer_GetSince tests the strictly-after timestamp filter
func TestEventBuffer_GetSince(t *testing.T) {
	buffer, err := NewEventBuffer(10)
	require.NoError(t, err)

	buffer.Add(makeEvent("a", EventTypeChunk, 100))
	buffer.Add(makeEvent("b", EventTypeChunk, 200))
	buffer.Add(makeEvent("c", EventTypeChunk, 200))
	buffer.Add(makeEvent("d", EventTypeChunk, 300))

	since := buffer.GetSince(200)
	require.Len(t, since, 1, "GetSince is strictly after the given timestamp")
	assert.Equal(t, "d", since[0].ID)

	assert.Len(t, buffer.GetSince(0), 4)
	assert.Empty(t, buffer.GetSince(300))
}

// TestEventBuffer_GetByType tests filtering by event type
func TestEventBuffer_GetByType(t *testing.T) {
	buffer, err := NewEventBuffer(10)
	require.NoError(t, err)

	buffer.Add(makeEvent("a", EventTypeStart, 1))
	buffer.Add(makeEvent("b", EventTypeChunk, 2))
	buffer.Add(makeEvent("c", EventTypeChunk, 3))
	buffer.Add(makeEvent("d", EventTypeEnd, 4))

	chunks := buffer.GetByType(EventTypeChunk)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[0].ID)
	assert.Equal(t, "c", chunks[1].ID)
	assert.Empty(t, buffer.GetByType(EventTypeError))
}

// TestEventBuffer_GetLatest tests the trailing-window accessor
func TestEventBuffer_GetLatest(t *testing.T) {
	buffer, err := NewEventBuffer(10)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		buffer.Add(makeEvent(fmt.Sprintf("e%d", i), EventTypeChunk, int64(i)))
	}

	latest := buffer.GetLatest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "e3", latest[0].ID)
	assert.Equal(t, "e4", latest[1].ID)

	assert.Len(t, buffer.GetLatest(100), 4, "Asking for more than buffered returns everything")
	assert.Empty(t, buffer.GetLatest(0))
	assert.Empty(t, buffer.GetLatest(-1))
}

// TestEventBuffer_Clear tests resetting the buffer
func TestEventBuffer_Clear(t *testing.T) {
	buffer, err := NewEventBuffer(3)
	require.NoError(t, err)

	buffer.Add(makeEvent("a", EventTypeChunk, 1))
	buffer.Clear()

	assert.Equal(t, 0, buffer.Size())
	assert.Empty(t, buffer.GetAll())

	buffer.Add(makeEvent("b", EventTypeChunk, 2))
	all := buffer.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

// TestEventBuffer_WindowProperty tests that after N+k insertions into a
// buffer of capacity N, exactly the last N survive in insertion order
func TestEventBuffer_WindowProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 32).Draw(t, "capacity")
		total := rapid.IntRange(0, 100).Draw(t, "total")

		buffer, err := NewEventBuffer(capacity)
		require.NoError(t, err)

		for i := 0; i < total; i++ {
			buffer.Add(makeEvent(fmt.Sprintf("e%d", i), EventTypeChunk, int64(i)))
		}

		all := buffer.GetAll()
		want := total
		if want > capacity {
			want = capacity
		}
		require.Len(t, all, want)

		for i, event := range all {
			expected := fmt.Sprintf("e%d", total-want+i)
			assert.Equal(t, expected, event.ID, "Window holds the most recent insertions in order")
		}
	})
}
