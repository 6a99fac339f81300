package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of event carried on a workflow stage stream.
type EventType string

const (
	EventTypeChunk         EventType = "chunk"
	EventTypeStart         EventType = "start"
	EventTypeEnd           EventType = "end"
	EventTypeError         EventType = "error"
	EventTypeMetadata      EventType = "metadata"
	EventTypeStageComplete EventType = "stage_complete"
	EventTypeHeartbeat     EventType = "heartbeat"
	EventTypeProgress      EventType = "progress"
)

// validEventTypes is the fixed set of event types the wire protocol recognizes.
var validEventTypes = map[EventType]bool{
	EventTypeChunk:         true,
	EventTypeStart:         true,
	EventTypeEnd:           true,
	EventTypeError:         true,
	EventTypeMetadata:      true,
	EventTypeStageComplete: true,
	EventTypeHeartbeat:     true,
	EventTypeProgress:      true,
}

// NewEventType creates an EventType with validation
func NewEventType(value string) (EventType, error) {
	t := EventType(value)
	if !validEventTypes[t] {
		return "", fmt.Errorf("invalid event type: %s", value)
	}
	return t, nil
}

// IsValid reports whether the event type is drawn from the wire enumeration
func (t EventType) IsValid() bool {
	return validEventTypes[t]
}

// String returns the string representation of the EventType
func (t EventType) String() string {
	return string(t)
}

// StreamEvent represents one decoded event from a workflow stage stream.
// Events are never mutated after creation; Timestamp is receipt-order,
// not wall-clock-authoritative.
type StreamEvent struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // milliseconds
	Data      json.RawMessage `json:"data"`
	RetryHint int             `json:"retry_hint,omitempty"` // milliseconds, 0 = none
}

// NewStreamEvent creates a StreamEvent with validation, stamping the
// receipt time when no timestamp is supplied.
func NewStreamEvent(id string, eventType EventType, data json.RawMessage) (*StreamEvent, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("invalid event type: %s", eventType)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("event data cannot be empty")
	}

	return &StreamEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}, nil
}

// Time returns the event timestamp as a time.Time
func (e *StreamEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// IsChunk returns true if the event carries stage content
func (e *StreamEvent) IsChunk() bool {
	return e.Type == EventTypeChunk
}

// IsTerminal returns true if the event ends its stage stream
func (e *StreamEvent) IsTerminal() bool {
	return e.Type == EventTypeEnd || e.Type == EventTypeStageComplete
}

// String returns a string representation of the event
func (e *StreamEvent) String() string {
	return fmt.Sprintf("StreamEvent{ID: %s, Type: %s, Timestamp: %d, Size: %d}",
		e.ID, e.Type, e.Timestamp, len(e.Data))
}

// ChunkPayload is the data shape carried by chunk events.
type ChunkPayload struct {
	Content        string `json:"content"`
	Position       int    `json:"position"`
	Length         int    `json:"length"`
	IsWordBoundary bool   `json:"is_word_boundary"`
	StageID        string `json:"stage_id,omitempty"`
}

// StagePayload is the data shape carried by start, end and
// stage_complete events.
type StagePayload struct {
	StageID     string `json:"stage_id"`
	StageName   string `json:"stage_name,omitempty"`
	TargetPanel string `json:"target_panel,omitempty"`
}

// ProgressPayload is the data shape carried by progress events.
type ProgressPayload struct {
	StageID         string  `json:"stage_id"`
	CurrentChunk    int     `json:"current_chunk"`
	TotalChunks     int     `json:"total_chunks"`
	ProgressPercent float64 `json:"progress_percent"`
}

// ErrorPayload is the data shape carried by error events.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// DecodeChunkPayload decodes a chunk event's data
func DecodeChunkPayload(e *StreamEvent) (*ChunkPayload, error) {
	if e.Type != EventTypeChunk {
		return nil, fmt.Errorf("expected chunk event, got %s", e.Type)
	}
	var p ChunkPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode chunk payload: %w", err)
	}
	return &p, nil
}

// DecodeStagePayload decodes a stage lifecycle event's data
func DecodeStagePayload(e *StreamEvent) (*StagePayload, error) {
	switch e.Type {
	case EventTypeStart, EventTypeEnd, EventTypeStageComplete:
	default:
		return nil, fmt.Errorf("expected stage event, got %s", e.Type)
	}
	var p StagePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode stage payload: %w", err)
	}
	return &p, nil
}

// DecodeProgressPayload decodes a progress event's data
func DecodeProgressPayload(e *StreamEvent) (*ProgressPayload, error) {
	if e.Type != EventTypeProgress {
		return nil, fmt.Errorf("expected progress event, got %s", e.Type)
	}
	var p ProgressPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress payload: %w", err)
	}
	return &p, nil
}

// DecodeErrorPayload decodes an error event's data
func DecodeErrorPayload(e *StreamEvent) (*ErrorPayload, error) {
	if e.Type != EventTypeError {
		return nil, fmt.Errorf("expected error event, got %s", e.Type)
	}
	var p ErrorPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode error payload: %w", err)
	}
	return &p, nil
}
