package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"casestream.ai/cli/internal/application/ports"
	transport "casestream.ai/cli/internal/core/ports/streaming"
	"casestream.ai/cli/internal/core/streaming"
)

// StreamOptions tunes one streaming session. Zero values fall back to
// the defaults below.
type StreamOptions struct {
	// Timeout is the connection inactivity timeout.
	Timeout time.Duration

	// MaxRetries bounds consecutive reconnection attempts before the
	// session is declared failed.
	MaxRetries int

	// InitialRetryDelay, BackoffMultiplier and MaxRetryDelay shape the
	// geometric backoff schedule.
	InitialRetryDelay time.Duration
	BackoffMultiplier float64
	MaxRetryDelay     time.Duration

	// BufferSize is the event window retained for late queries. Zero
	// disables buffering; events are then delivered to listeners only.
	BufferSize int

	// EmitHeartbeats surfaces heartbeat keep-alives to event listeners.
	// They always reset the inactivity timer regardless.
	EmitHeartbeats bool
}

// DefaultStreamOptions returns the default session settings
func DefaultStreamOptions() StreamOptions {
	reconnect := streaming.DefaultReconnectionConfig()
	return StreamOptions{
		Timeout:           30 * time.Second,
		MaxRetries:        reconnect.MaxAttempts,
		InitialRetryDelay: reconnect.InitialDelay,
		BackoffMultiplier: reconnect.BackoffMultiplier,
		MaxRetryDelay:     reconnect.MaxDelay,
		BufferSize:        256,
	}
}

// normalized fills zero values from the defaults
func (o StreamOptions) normalized() StreamOptions {
	def := DefaultStreamOptions()
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.InitialRetryDelay <= 0 {
		o.InitialRetryDelay = def.InitialRetryDelay
	}
	if o.BackoffMultiplier < 1.0 {
		o.BackoffMultiplier = def.BackoffMultiplier
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = def.MaxRetryDelay
	}
	return o
}

// StreamingService is the facade the interface layer talks to: it
// composes the connection manager, frame parsing, error classification
// and the listener registries. One service owns at most one connection
// manager at a time.
type StreamingService struct {
	mu        sync.Mutex
	transport transport.Transport
	logger    ports.LoggingGateway
	baseURL   string

	manager *ConnectionManager
	buffer  *streaming.EventBuffer
	options StreamOptions
	seenIDs map[string]bool

	eventListeners         listenerRegistry[*streaming.StreamEvent]
	errorListeners         listenerRegistry[*streaming.StreamError]
	statusListeners        listenerRegistry[streaming.ConnectionState]
	stageCompleteListeners listenerRegistry[*streaming.StagePayload]
}

// NewStreamingService creates a streaming service over the given transport
func NewStreamingService(baseURL string, t transport.Transport, logger ports.LoggingGateway) *StreamingService {
	return &StreamingService{
		transport: t,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Connect opens the stage stream for a case. It rejects synchronously,
// with no transport attempt, when caseID, stageKey or token is empty.
func (s *StreamingService) Connect(ctx context.Context, caseID, stageKey, token string, opts StreamOptions) error {
	if strings.TrimSpace(caseID) == "" {
		return fmt.Errorf("case ID cannot be empty")
	}
	if strings.TrimSpace(stageKey) == "" {
		return fmt.Errorf("stage key cannot be empty")
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}

	opts = opts.normalized()

	// Tear the previous session down with the lock released: its Closed
	// notification reaches status listeners, which may call back into
	// the service.
	s.mu.Lock()
	previous := s.manager
	s.manager = nil
	s.mu.Unlock()
	if previous != nil {
		previous.Disconnect()
	}

	s.mu.Lock()
	s.options = opts
	s.seenIDs = make(map[string]bool)
	s.buffer = nil
	if opts.BufferSize > 0 {
		buf, err := streaming.NewEventBuffer(opts.BufferSize)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.buffer = buf
	}

	manager := NewConnectionManager(s.transport, s.logger, ConnectionManagerConfig{
		Timeout: opts.Timeout,
		Reconnection: streaming.ReconnectionConfig{
			MaxAttempts:       opts.MaxRetries,
			InitialDelay:      opts.InitialRetryDelay,
			BackoffMultiplier: opts.BackoffMultiplier,
			MaxDelay:          opts.MaxRetryDelay,
		},
	})
	manager.OnFrame(s.handleFrame)
	manager.OnError(s.handleError)
	manager.OnStateChange(s.handleStateChange)
	s.manager = manager
	s.mu.Unlock()

	manager.Connect(ctx, s.StreamURL(caseID, stageKey, token))
	return nil
}

// Disconnect tears down the connection manager and returns the service
// to idle
func (s *StreamingService) Disconnect() {
	s.mu.Lock()
	manager := s.manager
	s.manager = nil
	s.mu.Unlock()

	if manager != nil {
		manager.Disconnect()
	}
	s.statusListeners.dispatch(streaming.StateIdle)
}

// StreamURL builds the transport URL for a stage stream. The bearer
// token rides as a URL-encoded query parameter because the underlying
// streaming primitive cannot carry custom headers.
func (s *StreamingService) StreamURL(caseID, stageKey, token string) string {
	endpoint := fmt.Sprintf("%s/cases/%s/workflow/%s/stream",
		s.baseURL, url.PathEscape(caseID), url.PathEscape(stageKey))
	query := url.Values{}
	query.Set("Authorization", "Bearer "+token)
	return endpoint + "?" + query.Encode()
}

// GetStatus returns the current connection state, or idle when no
// session is active
func (s *StreamingService) GetStatus() streaming.ConnectionState {
	s.mu.Lock()
	manager := s.manager
	s.mu.Unlock()
	if manager == nil {
		return streaming.StateIdle
	}
	return manager.State()
}

// IsConnected reports whether the stream is currently delivering events
func (s *StreamingService) IsConnected() bool {
	return s.GetStatus() == streaming.StateStreaming
}

// Events returns the buffered event window, or nil when buffering is
// disabled. The buffer is owned by the dispatch context; callers should
// read it from listener callbacks or after disconnecting.
func (s *StreamingService) Events() *streaming.EventBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// OnEvent registers a listener for decoded stream events and returns
// its unsubscribe closure
func (s *StreamingService) OnEvent(fn func(*streaming.StreamEvent)) func() {
	return s.eventListeners.add(fn)
}

// OnError registers a listener for classified errors
func (s *StreamingService) OnError(fn func(*streaming.StreamError)) func() {
	return s.errorListeners.add(fn)
}

// OnStatusChange registers a listener for lifecycle transitions
func (s *StreamingService) OnStatusChange(fn func(streaming.ConnectionState)) func() {
	return s.statusListeners.add(fn)
}

// OnStageComplete registers a listener invoked when a stage_complete
// event carrying a stage identifier arrives
func (s *StreamingService) OnStageComplete(fn func(*streaming.StagePayload)) func() {
	return s.stageCompleteListeners.add(fn)
}

// handleFrame decodes one raw frame and dispatches the result. Malformed
// frames are skipped and reported as informational, recoverable errors;
// they never affect connection state.
func (s *StreamingService) handleFrame(raw string) {
	event := streaming.ParseFrame(raw)
	if event == nil {
		parseErr := streaming.NewStreamError(streaming.ErrCodeParsingError,
			"skipping malformed frame", nil).
			WithContext("frame_size", len(raw))
		s.logger.Log(ports.LogLevelWarn, "Dropping malformed stream frame", map[string]interface{}{
			"frame_size": len(raw),
		})
		s.errorListeners.dispatch(parseErr)
		return
	}

	s.mu.Lock()
	manager := s.manager
	buffer := s.buffer
	opts := s.options
	s.mu.Unlock()

	if event.RetryHint > 0 && manager != nil {
		manager.NoteRetryHint(time.Duration(event.RetryHint) * time.Millisecond)
	}

	if event.Type == streaming.EventTypeHeartbeat && !opts.EmitHeartbeats {
		// Keep-alives already reset the inactivity timer at the
		// connection layer.
		return
	}

	if buffer != nil {
		buffer.Add(event)
	}

	s.logger.LogEvent(event, "Stream event received")
	s.eventListeners.dispatch(event)

	if event.Type == streaming.EventTypeStageComplete {
		if payload, err := streaming.DecodeStagePayload(event); err == nil && payload.StageID != "" {
			s.stageCompleteListeners.dispatch(payload)
		}
	}

	if event.ID != "" {
		s.mu.Lock()
		s.seenIDs[event.ID] = true
		s.mu.Unlock()
	}
}

// SeenEventID reports whether an event with the given id was already
// delivered during this session. Delivery is at-least-once: a backend
// that redelivers unacknowledged events after a reconnect may produce
// duplicates, and de-duplication is the caller's choice. Within a
// dispatch callback this reflects deliveries before the current event.
func (s *StreamingService) SeenEventID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenIDs[id]
}

// handleError re-emits classified connection errors to error listeners
func (s *StreamingService) handleError(streamErr *streaming.StreamError) {
	s.errorListeners.dispatch(streamErr)
}

// handleStateChange re-emits lifecycle transitions to status listeners
func (s *StreamingService) handleStateChange(state streaming.ConnectionState) {
	s.statusListeners.dispatch(state)
}
