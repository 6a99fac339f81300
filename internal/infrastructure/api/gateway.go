// Package api implements the non-streaming CaseStream API gateway used
// as the batch-fetch fallback when a stream gives up.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"casestream.ai/cli/internal/application/ports"
)

// CaseStreamAPIGateway implements the WorkflowGateway interface
type CaseStreamAPIGateway struct {
	endpoint    string
	token       string
	httpClient  *http.Client
	retryPolicy *RetryPolicy
	breaker     *CircuitBreaker
	logger      ports.LoggingGateway
	status      ports.ConnectionStatus
	mutex       sync.RWMutex
}

// RetryPolicy defines retry behavior for batch requests
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           CircuitBreakerState
	mutex           sync.RWMutex
}

// CircuitBreakerState represents the circuit breaker state
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// CanExecute returns true if the circuit breaker allows execution
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful execution
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	cb.state = StateClosed
}

// RecordFailure records a failed execution
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// NewCaseStreamAPIGateway creates a new API gateway
func NewCaseStreamAPIGateway(endpoint, token string, logger ports.LoggingGateway) *CaseStreamAPIGateway {
	return &CaseStreamAPIGateway{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryPolicy: DefaultRetryPolicy(),
		breaker:     NewCircuitBreaker(5, 60*time.Second),
		logger:      logger,
	}
}

// NewTestAPIGateway creates an API gateway with test-friendly settings
func NewTestAPIGateway(endpoint, token string, logger ports.LoggingGateway) *CaseStreamAPIGateway {
	return &CaseStreamAPIGateway{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		retryPolicy: &RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    500 * time.Millisecond,
			Multiplier:  2.0,
		},
		breaker: NewCircuitBreaker(3, 5*time.Second),
		logger:  logger,
	}
}

// FetchStageContent retrieves completed stage content via the batch
// endpoint. This is the recommended fallback once a stream reaches the
// failed state.
func (g *CaseStreamAPIGateway) FetchStageContent(ctx context.Context, caseID, stageKey string) (*ports.StageContent, error) {
	if caseID == "" {
		return nil, fmt.Errorf("case ID cannot be empty")
	}
	if stageKey == "" {
		return nil, fmt.Errorf("stage key cannot be empty")
	}

	requestURL := fmt.Sprintf("%s/cases/%s/workflow/%s",
		g.endpoint, url.PathEscape(caseID), url.PathEscape(stageKey))

	var content ports.StageContent
	err := g.executeWithRetry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		g.setRequestHeaders(req)

		start := time.Now()
		resp, err := g.httpClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			g.updateConnectionStatus(false, latency, err.Error())
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			g.updateConnectionStatus(false, latency, fmt.Sprintf("status %d", resp.StatusCode))
			return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, &content); err != nil {
			return fmt.Errorf("failed to decode stage content: %w", err)
		}

		g.updateConnectionStatus(true, latency, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Log(ports.LogLevelDebug, "Fetched stage content", map[string]interface{}{
		"case_id":   caseID,
		"stage_key": stageKey,
		"size":      len(content.Content),
	})
	return &content, nil
}

// TestConnection tests API reachability and authentication
func (g *CaseStreamAPIGateway) TestConnection(ctx context.Context) error {
	g.logger.Log(ports.LogLevelInfo, "Testing API connection", map[string]interface{}{
		"endpoint": g.endpoint,
	})

	return g.executeWithRetry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/health", nil)
		if err != nil {
			return fmt.Errorf("failed to create health request: %w", err)
		}
		g.setRequestHeaders(req)

		start := time.Now()
		resp, err := g.httpClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			g.updateConnectionStatus(false, latency, err.Error())
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			g.updateConnectionStatus(false, latency, fmt.Sprintf("status %d", resp.StatusCode))
			return fmt.Errorf("health check failed with status %d", resp.StatusCode)
		}

		g.updateConnectionStatus(true, latency, "")
		return nil
	})
}

// GetConnectionStatus returns the current connection status
func (g *CaseStreamAPIGateway) GetConnectionStatus() ports.ConnectionStatus {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.status
}

// executeWithRetry runs fn under the retry policy and circuit breaker
func (g *CaseStreamAPIGateway) executeWithRetry(fn func() error) error {
	if !g.breaker.CanExecute() {
		return fmt.Errorf("circuit breaker is open")
	}

	var lastErr error
	for attempt := 0; attempt < g.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.calculateDelay(attempt)
			g.logger.Log(ports.LogLevelDebug, "Retrying request", map[string]interface{}{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			})
			time.Sleep(delay)
		}

		err := fn()
		if err == nil {
			g.breaker.RecordSuccess()
			return nil
		}

		lastErr = err
		g.breaker.RecordFailure()
	}

	return fmt.Errorf("request failed after %d attempts: %w", g.retryPolicy.MaxAttempts, lastErr)
}

// calculateDelay returns the capped geometric delay for a retry attempt
func (g *CaseStreamAPIGateway) calculateDelay(attempt int) time.Duration {
	delay := float64(g.retryPolicy.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= g.retryPolicy.Multiplier
	}
	if time.Duration(delay) > g.retryPolicy.MaxDelay {
		return g.retryPolicy.MaxDelay
	}
	return time.Duration(delay)
}

// setRequestHeaders applies the common request headers
func (g *CaseStreamAPIGateway) setRequestHeaders(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", uuid.NewString())
}

// updateConnectionStatus records the outcome of the latest request
func (g *CaseStreamAPIGateway) updateConnectionStatus(connected bool, latency time.Duration, lastError string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.status.IsConnected = connected
	g.status.Latency = latency
	g.status.LastError = lastError
	if connected {
		g.status.LastConnected = time.Now()
		g.status.RetryCount = 0
	} else {
		g.status.RetryCount++
	}
}
