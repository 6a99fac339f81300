package ports

import (
	"context"
	"time"

	"casestream.ai/cli/internal/core/streaming"
)

// WorkflowGateway defines the interface for non-streaming access to the
// CaseStream API. It backs the batch-fetch fallback recommended when a
// stream reaches the failed state.
type WorkflowGateway interface {
	// FetchStageContent retrieves the completed content of a workflow
	// stage via the batch endpoint
	FetchStageContent(ctx context.Context, caseID, stageKey string) (*StageContent, error)

	// TestConnection tests API reachability and authentication
	TestConnection(ctx context.Context) error

	// GetConnectionStatus returns the current connection status
	GetConnectionStatus() ConnectionStatus
}

// StageContent is the batch-fetched content of one workflow stage
type StageContent struct {
	CaseID      string `json:"case_id"`
	StageKey    string `json:"stage_key"`
	StageName   string `json:"stage_name,omitempty"`
	Content     string `json:"content"`
	TargetPanel string `json:"target_panel,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"` // milliseconds
}

// ConnectionStatus represents the status of the API connection
type ConnectionStatus struct {
	IsConnected   bool          `json:"is_connected"`
	LastConnected time.Time     `json:"last_connected"`
	LastError     string        `json:"last_error,omitempty"`
	Latency       time.Duration `json:"latency"`
	RetryCount    int           `json:"retry_count"`
}

// LoggingGateway defines the interface for logging operations
type LoggingGateway interface {
	// Log logs a message with the specified level
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError logs an error
	LogError(err error, message string, fields map[string]interface{})

	// LogEvent logs a decoded stream event
	LogEvent(event *streaming.StreamEvent, message string)

	// SetLogLevel sets the logging level
	SetLogLevel(level LogLevel)

	// GetLogLevel returns the current logging level
	GetLogLevel() LogLevel
}

// LogLevel defines the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel converts a configuration string into a LogLevel,
// defaulting to info for unrecognized values.
func ParseLogLevel(value string) LogLevel {
	switch LogLevel(value) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(value)
	default:
		return LogLevelInfo
	}
}
