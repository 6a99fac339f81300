package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"casestream.ai/cli/internal/application/ports"
	transport "casestream.ai/cli/internal/core/ports/streaming"
	"casestream.ai/cli/internal/core/streaming"
)

// ConnectionManagerConfig controls connection lifecycle behavior.
type ConnectionManagerConfig struct {
	// Timeout is the connection inactivity timeout: if neither the open
	// signal nor a frame arrives within it, the connection is treated as
	// timed out and driven through the reconnection path.
	Timeout time.Duration

	// Reconnection is the backoff schedule consulted between attempts.
	Reconnection streaming.ReconnectionConfig
}

// DefaultConnectionManagerConfig returns the default lifecycle settings
func DefaultConnectionManagerConfig() ConnectionManagerConfig {
	return ConnectionManagerConfig{
		Timeout:      30 * time.Second,
		Reconnection: streaming.DefaultReconnectionConfig(),
	}
}

// ConnectionManager owns exactly one transport instance at a time and
// runs the connection lifecycle state machine. The generation counter is
// incremented on every Connect and Disconnect; every async callback
// captures it at registration and checks it before acting, so nothing
// fired by a torn-down transport can affect state after Disconnect
// returns. The dial sequence plays the same role for individual attempts
// within one generation: an attempt invalidated by the inactivity timer
// cannot be revived by its own late success.
type ConnectionManager struct {
	mu        sync.Mutex
	transport transport.Transport
	logger    ports.LoggingGateway
	config    ConnectionManagerConfig

	state        streaming.ConnectionState
	generation   uint64
	dialSeq      uint64
	attempts     int
	url          string
	connectionID string

	ctx             context.Context
	cancel          context.CancelFunc
	conn            transport.Connection
	inactivityTimer *time.Timer
	reconnectTimer  *time.Timer
	retryHint       time.Duration // server-suggested minimum delay

	onFrame       func(raw string)
	onError       func(err *streaming.StreamError)
	onStateChange func(state streaming.ConnectionState)
}

// NewConnectionManager creates a connection manager over the given transport
func NewConnectionManager(t transport.Transport, logger ports.LoggingGateway, config ConnectionManagerConfig) *ConnectionManager {
	return &ConnectionManager{
		transport: t,
		logger:    logger,
		config:    config,
		state:     streaming.StateIdle,
	}
}

// OnFrame registers the raw frame sink. Must be set before Connect.
func (m *ConnectionManager) OnFrame(fn func(raw string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// OnError registers the classified error sink. Must be set before Connect.
func (m *ConnectionManager) OnError(fn func(err *streaming.StreamError)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// OnStateChange registers the lifecycle transition sink. Must be set
// before Connect.
func (m *ConnectionManager) OnStateChange(fn func(state streaming.ConnectionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the current connection state
func (m *ConnectionManager) State() streaming.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the consecutive reconnection attempts since the last
// successful open
func (m *ConnectionManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens a stream to url, tearing down any existing transport
// first. Calling Connect again is permitted from any state, including
// Failed, and starts a fresh attempt sequence.
func (m *ConnectionManager) Connect(ctx context.Context, url string) {
	m.mu.Lock()
	m.teardownLocked()
	m.generation++
	gen := m.generation
	m.url = url
	m.attempts = 0
	m.retryHint = 0
	m.connectionID = uuid.NewString()
	connectionID := m.connectionID

	m.ctx, m.cancel = context.WithCancel(ctx)

	notify := m.setStateLocked(streaming.StateConnecting)
	seq := m.nextDialLocked()
	m.armInactivityTimerLocked(gen)
	dialCtx := m.ctx
	m.mu.Unlock()
	notify()

	m.logger.Log(ports.LogLevelInfo, "Opening stream connection", map[string]interface{}{
		"connection_id": connectionID,
		"url":           url,
	})

	go m.openTransport(dialCtx, url, gen, seq)
}

// Disconnect cancels all pending timers, closes the transport and moves
// the manager to Closed. Deterministic: no callback fired by the
// torn-down transport acts after Disconnect returns.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.generation++
	notify := m.setStateLocked(streaming.StateClosed)
	m.mu.Unlock()
	notify()
}

// NoteRetryHint records a server-suggested minimum reconnection delay,
// carried on rate-limit responses via the wire retry field.
func (m *ConnectionManager) NoteRetryHint(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.retryHint = d
	}
}

// openTransport dials one connection attempt and runs its read loop.
func (m *ConnectionManager) openTransport(ctx context.Context, url string, gen, seq uint64) {
	conn, err := m.transport.Open(ctx, url)

	m.mu.Lock()
	if !m.currentLocked(gen, seq) {
		m.mu.Unlock()
		if conn != nil {
			conn.Close() //nolint:errcheck // stale attempt
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.handleFailure(gen, seq, streaming.Classify(err))
		return
	}

	m.conn = conn
	m.attempts = 0
	m.armInactivityTimerLocked(gen)
	notify := m.setStateLocked(streaming.StateStreaming)
	m.mu.Unlock()
	notify()

	m.readLoop(ctx, conn, gen, seq)
}

// readLoop pumps frames from the connection until it ends or goes stale.
func (m *ConnectionManager) readLoop(ctx context.Context, conn transport.Connection, gen, seq uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-conn.Frames():
			if !ok {
				// Remote close without an explicit error; the caller may
				// already have disconnected after a terminal event.
				m.handleFailure(gen, seq, streaming.NewStreamError(
					streaming.ErrCodeConnectionFailed, "stream closed by server", nil))
				return
			}
			m.mu.Lock()
			if !m.currentLocked(gen, seq) {
				m.mu.Unlock()
				return
			}
			m.armInactivityTimerLocked(gen)
			frameSink := m.onFrame
			m.mu.Unlock()
			if frameSink != nil {
				frameSink(raw)
			}
		case err := <-conn.Errors():
			m.handleFailure(gen, seq, streaming.Classify(err))
			return
		}
	}
}

// handleFailure classifies a connection-level failure and either
// schedules a reconnection attempt or moves to Failed.
func (m *ConnectionManager) handleFailure(gen, seq uint64, streamErr *streaming.StreamError) {
	m.mu.Lock()
	if !m.currentLocked(gen, seq) || m.state.IsTerminal() {
		m.mu.Unlock()
		return
	}

	m.stopTimersLocked()
	m.nextDialLocked() // invalidate the in-flight attempt, if any
	if m.conn != nil {
		m.conn.Close() //nolint:errcheck // already failing
		m.conn = nil
	}

	connectionID := m.connectionID

	// A Retry-After header parsed by the transport rides on the error
	// context; treat it like a wire retry hint.
	if ms, ok := streamErr.Context["retry_after_ms"].(int); ok && ms > 0 {
		m.retryHint = time.Duration(ms) * time.Millisecond
	}

	// Non-recoverable failures move straight to Failed: no retry slot is
	// consumed and no timer is scheduled.
	if !streamErr.IsRetriedByConnectionLayer() {
		notify := m.setStateLocked(streaming.StateFailed)
		errSink := m.onError
		m.mu.Unlock()
		notify()
		m.logger.LogError(streamErr, "Stream connection failed", map[string]interface{}{
			"connection_id": connectionID,
			"code":          string(streamErr.Code),
		})
		if errSink != nil {
			errSink(streamErr)
		}
		return
	}

	if m.attempts >= m.config.Reconnection.MaxAttempts {
		exhausted := streaming.NewStreamError(streamErr.Code,
			"reconnection attempts exhausted", streamErr).
			WithContext("attempts", m.attempts)
		exhausted.Recoverable = false
		notify := m.setStateLocked(streaming.StateFailed)
		errSink := m.onError
		m.mu.Unlock()
		notify()
		m.logger.LogError(exhausted, "Giving up on stream connection", map[string]interface{}{
			"connection_id": connectionID,
			"attempts":      m.config.Reconnection.MaxAttempts,
		})
		if errSink != nil {
			errSink(exhausted)
		}
		return
	}

	delay := streaming.DelayForAttempt(m.config.Reconnection, m.attempts)
	if hint := m.effectiveRetryHintLocked(streamErr); hint > delay {
		delay = hint
	}
	m.attempts++
	attempt := m.attempts

	notify := m.setStateLocked(streaming.StateReconnecting)
	errSink := m.onError
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.retryConnect(gen)
	})
	m.mu.Unlock()
	notify()

	m.logger.Log(ports.LogLevelWarn, "Stream interrupted, scheduling reconnect", map[string]interface{}{
		"connection_id": connectionID,
		"attempt":       attempt,
		"delay":         delay.String(),
		"code":          string(streamErr.Code),
	})
	if errSink != nil {
		errSink(streamErr)
	}
}

// retryConnect fires when the pending reconnection delay elapses.
func (m *ConnectionManager) retryConnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != streaming.StateReconnecting {
		m.mu.Unlock()
		return
	}

	notify := m.setStateLocked(streaming.StateConnecting)
	seq := m.nextDialLocked()
	m.armInactivityTimerLocked(gen)
	dialCtx := m.ctx
	url := m.url
	m.mu.Unlock()
	notify()

	go m.openTransport(dialCtx, url, gen, seq)
}

// effectiveRetryHintLocked returns the server-suggested delay when the
// failure honors one. Rate-limit failures fall back to a long fixed wait
// when the server supplied none.
func (m *ConnectionManager) effectiveRetryHintLocked(streamErr *streaming.StreamError) time.Duration {
	if streamErr.Category != streaming.CategoryRateLimit {
		return m.retryHint
	}
	if m.retryHint > 0 {
		return m.retryHint
	}
	return m.config.Reconnection.MaxDelay
}

// currentLocked reports whether a callback registered at (gen, seq) is
// still allowed to act. Caller holds the mutex.
func (m *ConnectionManager) currentLocked(gen, seq uint64) bool {
	return gen == m.generation && seq == m.dialSeq
}

// nextDialLocked advances the dial sequence, invalidating callbacks from
// earlier attempts. Caller holds the mutex.
func (m *ConnectionManager) nextDialLocked() uint64 {
	m.dialSeq++
	return m.dialSeq
}

// armInactivityTimerLocked (re)starts the inactivity timeout. Caller
// holds the mutex.
func (m *ConnectionManager) armInactivityTimerLocked(gen uint64) {
	if m.config.Timeout <= 0 {
		return
	}
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
	}
	seq := m.dialSeq
	m.inactivityTimer = time.AfterFunc(m.config.Timeout, func() {
		m.handleFailure(gen, seq, streaming.NewStreamError(
			streaming.ErrCodeTimeout, "no stream activity within timeout", nil))
	})
}

// stopTimersLocked cancels both owned timers. Caller holds the mutex.
func (m *ConnectionManager) stopTimersLocked() {
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
		m.inactivityTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// teardownLocked closes the current transport and cancels timers and the
// pending dial. Caller holds the mutex.
func (m *ConnectionManager) teardownLocked() {
	m.stopTimersLocked()
	m.nextDialLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.ctx = nil
	}
	if m.conn != nil {
		m.conn.Close() //nolint:errcheck // tearing down
		m.conn = nil
	}
}

// setStateLocked records a transition and returns the deferred
// notification. Caller holds the mutex and must invoke the returned
// function after releasing it.
func (m *ConnectionManager) setStateLocked(state streaming.ConnectionState) func() {
	if m.state == state {
		return func() {}
	}
	m.state = state
	sink := m.onStateChange
	if sink == nil {
		return func() {}
	}
	return func() { sink(state) }
}
