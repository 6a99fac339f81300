package streaming

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Recognized frame field names per the text/event-stream grammar.
const (
	fieldEvent = "event"
	fieldID    = "id"
	fieldData  = "data"
	fieldRetry = "retry"
)

// ParseFrame decodes one wire frame (a block of "field: value" lines) into
// a StreamEvent. Malformed frames yield nil: a missing or unrecognized
// event type, or missing or invalid JSON data, is a per-frame condition,
// never a connection failure.
func ParseFrame(rawFrame string) *StreamEvent {
	var (
		eventType string
		eventID   string
		dataLines []string
		retryHint int
	)

	for _, line := range strings.Split(rawFrame, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		field, value, ok := splitField(line)
		if !ok {
			// Lines without a recognizable field are ignored, not fatal.
			continue
		}

		switch field {
		case fieldEvent:
			eventType = value
		case fieldID:
			eventID = value
		case fieldData:
			// Multi-line data fields are joined per the SSE grammar.
			dataLines = append(dataLines, value)
		case fieldRetry:
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				retryHint = ms
			}
		}
	}

	if eventType == "" {
		return nil
	}
	parsedType, err := NewEventType(eventType)
	if err != nil {
		return nil
	}

	if len(dataLines) == 0 {
		return nil
	}
	data := strings.Join(dataLines, "\n")
	if !json.Valid([]byte(data)) {
		return nil
	}

	return &StreamEvent{
		ID:        eventID,
		Type:      parsedType,
		Timestamp: time.Now().UnixMilli(),
		Data:      json.RawMessage(data),
		RetryHint: retryHint,
	}
}

// splitField splits a "field: value" line, tolerating a missing space
// after the colon.
func splitField(line string) (field, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	field = line[:idx]
	value = strings.TrimPrefix(line[idx+1:], " ")
	return field, value, true
}

// FormatFrame encodes an event back into its wire form. Used by test
// doubles and the mock stream server; the inverse of ParseFrame for all
// valid events.
func FormatFrame(e *StreamEvent) string {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(string(e.Type))
	b.WriteString("\n")
	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(e.ID)
		b.WriteString("\n")
	}
	if e.RetryHint > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(e.RetryHint))
		b.WriteString("\n")
	}
	b.WriteString("data: ")
	b.Write(e.Data)
	b.WriteString("\n\n")
	return b.String()
}
