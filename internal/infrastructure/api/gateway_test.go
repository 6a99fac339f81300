package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casestream.ai/cli/internal/application/ports"
	"casestream.ai/cli/internal/core/streaming"
)

// nopLogger satisfies ports.LoggingGateway for tests
type nopLogger struct{}

func (nopLogger) Log(ports.LogLevel, string, map[string]interface{}) {}
func (nopLogger) LogError(error, string, map[string]interface{})     {}
func (nopLogger) LogEvent(*streaming.StreamEvent, string)            {}
func (nopLogger) SetLogLevel(ports.LogLevel)                         {}
func (nopLogger) GetLogLevel() ports.LogLevel                        { return ports.LogLevelError }

// TestFetchStageContent_Success tests a straightforward batch fetch
func TestFetchStageContent_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cases/case-123/workflow/diagnosis", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Correlation-Id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ports.StageContent{
			CaseID:      "case-123",
			StageKey:    "diagnosis",
			StageName:   "Diagnosis",
			Content:     "The patient presents with...",
			TargetPanel: "chat",
		})
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "test-token", nopLogger{})

	content, err := gateway.FetchStageContent(context.Background(), "case-123", "diagnosis")

	require.NoError(t, err)
	assert.Equal(t, "case-123", content.CaseID)
	assert.Equal(t, "The patient presents with...", content.Content)
	assert.Equal(t, "chat", content.TargetPanel)

	status := gateway.GetConnectionStatus()
	assert.True(t, status.IsConnected)
	assert.Empty(t, status.LastError)
}

// TestFetchStageContent_ValidatesArguments tests argument checks before
// any request goes out
func TestFetchStageContent_ValidatesArguments(t *testing.T) {
	gateway := NewTestAPIGateway("http://unused.test", "tok", nopLogger{})

	_, err := gateway.FetchStageContent(context.Background(), "", "diagnosis")
	assert.Error(t, err)

	_, err = gateway.FetchStageContent(context.Background(), "case-1", "")
	assert.Error(t, err)
}

// TestFetchStageContent_EscapesPathSegments tests URL path escaping
func TestFetchStageContent_EscapesPathSegments(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(ports.StageContent{Content: "x"})
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "tok", nopLogger{})

	_, err := gateway.FetchStageContent(context.Background(), "case/1", "stage key")

	require.NoError(t, err)
	assert.Equal(t, "/cases/case%2F1/workflow/stage%20key", gotPath)
}

// TestFetchStageContent_RetriesTransientFailures tests the retry policy
func TestFetchStageContent_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(ports.StageContent{Content: "recovered"})
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "tok", nopLogger{})

	content, err := gateway.FetchStageContent(context.Background(), "case-1", "diagnosis")

	require.NoError(t, err)
	assert.Equal(t, "recovered", content.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestFetchStageContent_GivesUpAfterMaxAttempts tests retry exhaustion
func TestFetchStageContent_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "tok", nopLogger{})

	_, err := gateway.FetchStageContent(context.Background(), "case-1", "diagnosis")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	status := gateway.GetConnectionStatus()
	assert.False(t, status.IsConnected)
	assert.NotEmpty(t, status.LastError)
}

// TestTestConnection tests the health check round trip
func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "tok", nopLogger{})

	assert.NoError(t, gateway.TestConnection(context.Background()))
	assert.True(t, gateway.GetConnectionStatus().IsConnected)
}

// TestTestConnection_Unhealthy tests a failing health check
func TestTestConnection_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "tok", nopLogger{})

	assert.Error(t, gateway.TestConnection(context.Background()))
}

// TestCircuitBreaker_OpensAfterMaxFailures tests the breaker state machine
func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	breaker := NewCircuitBreaker(3, 50*time.Millisecond)

	require.True(t, breaker.CanExecute())

	breaker.RecordFailure()
	breaker.RecordFailure()
	assert.True(t, breaker.CanExecute(), "Below the threshold the breaker stays closed")

	breaker.RecordFailure()
	assert.False(t, breaker.CanExecute(), "At the threshold the breaker opens")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, breaker.CanExecute(), "After the reset timeout the breaker half-opens")

	breaker.RecordSuccess()
	assert.True(t, breaker.CanExecute(), "Success closes the breaker again")
}

// TestCircuitBreaker_BlocksRequests tests that an open breaker rejects
// gateway calls outright
func TestCircuitBreaker_BlocksRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gateway := NewTestAPIGateway(server.URL, "tok", nopLogger{})

	// Two exhausted requests record four failures, past the breaker's
	// threshold of three.
	_, err := gateway.FetchStageContent(context.Background(), "case-1", "diagnosis")
	require.Error(t, err)
	_, err = gateway.FetchStageContent(context.Background(), "case-1", "diagnosis")
	require.Error(t, err)

	before := atomic.LoadInt32(&calls)
	_, err = gateway.FetchStageContent(context.Background(), "case-1", "diagnosis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.Equal(t, before, atomic.LoadInt32(&calls), "An open breaker must not reach the server")
}

// TestCalculateDelay tests the gateway retry delay schedule
func TestCalculateDelay(t *testing.T) {
	gateway := &CaseStreamAPIGateway{
		retryPolicy: &RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    400 * time.Millisecond,
			Multiplier:  2.0,
		},
	}

	assert.Equal(t, 100*time.Millisecond, gateway.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, gateway.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, gateway.calculateDelay(3))
	assert.Equal(t, 400*time.Millisecond, gateway.calculateDelay(4), "Delays cap at MaxDelay")
}
