package streaming

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorCode identifies a classified failure condition.
type ErrorCode string

const (
	ErrCodeConnectionFailed  ErrorCode = "connection_failed"
	ErrCodeNetworkError      ErrorCode = "network_error"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeParsingError      ErrorCode = "parsing_error"
	ErrCodeInvalidEvent      ErrorCode = "invalid_event"
	ErrCodeAuthentication    ErrorCode = "authentication_error"
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrCodeServerError       ErrorCode = "server_error"
	ErrCodeClientError       ErrorCode = "client_error"
	ErrCodeUnknown           ErrorCode = "unknown"
)

// ErrorCategory groups error codes for recovery policy. Each code maps
// into exactly one category.
type ErrorCategory string

const (
	CategoryNetwork        ErrorCategory = "network"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryParsing        ErrorCategory = "parsing"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryServer         ErrorCategory = "server"
	CategoryClient         ErrorCategory = "client"
	CategoryUnknown        ErrorCategory = "unknown"
)

// RecoveryStrategy is the recommended action for a classified error.
// The facade consults it; the classifier itself enforces nothing.
type RecoveryStrategy string

const (
	StrategyRetryWithBackoff RecoveryStrategy = "retry_with_backoff"
	StrategyRetry            RecoveryStrategy = "retry"
	StrategyRetryAfterDelay  RecoveryStrategy = "retry_after_delay"
	StrategyFallbackToBatch  RecoveryStrategy = "fallback_to_batch"
)

// codeTable holds the category, recoverability and strategy for every code.
var codeTable = map[ErrorCode]struct {
	category    ErrorCategory
	recoverable bool
	strategy    RecoveryStrategy
}{
	ErrCodeConnectionFailed:  {CategoryNetwork, true, StrategyRetryWithBackoff},
	ErrCodeNetworkError:      {CategoryNetwork, true, StrategyRetryWithBackoff},
	ErrCodeTimeout:           {CategoryTimeout, true, StrategyRetry},
	ErrCodeParsingError:      {CategoryParsing, true, StrategyFallbackToBatch},
	ErrCodeInvalidEvent:      {CategoryParsing, true, StrategyFallbackToBatch},
	ErrCodeAuthentication:    {CategoryAuthentication, false, StrategyFallbackToBatch},
	ErrCodeRateLimitExceeded: {CategoryRateLimit, true, StrategyRetryAfterDelay},
	ErrCodeServerError:       {CategoryServer, true, StrategyRetry},
	ErrCodeClientError:       {CategoryClient, false, StrategyFallbackToBatch},
	ErrCodeUnknown:           {CategoryUnknown, false, StrategyFallbackToBatch},
}

// StreamError is a fully classified streaming failure. Parsing errors are
// per-frame conditions handled by skip-and-continue in dispatch; they are
// reported as informational and never drive reconnection. Authentication
// errors are terminal for the connection layer.
type StreamError struct {
	Code        ErrorCode              `json:"code"`
	Category    ErrorCategory          `json:"category"`
	Recoverable bool                   `json:"recoverable"`
	Message     string                 `json:"message"`
	Timestamp   int64                  `json:"timestamp"` // milliseconds
	Context     map[string]interface{} `json:"context,omitempty"`
	cause       error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *StreamError) Unwrap() error {
	return e.cause
}

// Strategy returns the recommended recovery strategy for this error
func (e *StreamError) Strategy() RecoveryStrategy {
	if entry, ok := codeTable[e.Code]; ok {
		return entry.strategy
	}
	return StrategyFallbackToBatch
}

// IsRetriedByConnectionLayer reports whether the connection layer should
// drive reconnection for this error. Parsing errors are recoverable but
// already absorbed per-frame, so they are excluded here.
func (e *StreamError) IsRetriedByConnectionLayer() bool {
	return e.Recoverable && e.Category != CategoryParsing
}

// NewStreamError constructs a classified error from a known code
func NewStreamError(code ErrorCode, message string, cause error) *StreamError {
	entry, ok := codeTable[code]
	if !ok {
		code = ErrCodeUnknown
		entry = codeTable[ErrCodeUnknown]
	}
	return &StreamError{
		Code:        code,
		Category:    entry.category,
		Recoverable: entry.recoverable,
		Message:     message,
		Timestamp:   time.Now().UnixMilli(),
		cause:       cause,
	}
}

// WithContext attaches classification context and returns the error
func (e *StreamError) WithContext(key string, value interface{}) *StreamError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Classify maps a low-level failure to a StreamError. Already classified
// errors pass through unchanged.
func Classify(err error) *StreamError {
	if err == nil {
		return nil
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewStreamError(ErrCodeTimeout, "operation timed out", err)
	case errors.Is(err, context.Canceled):
		return NewStreamError(ErrCodeConnectionFailed, "connection canceled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewStreamError(ErrCodeTimeout, "network timeout", err)
		}
		return NewStreamError(ErrCodeNetworkError, "network failure", err)
	}

	return NewStreamError(ErrCodeUnknown, err.Error(), err)
}

// ClassifyHTTPStatus maps an HTTP response status to an error code.
// Used when the transport's initial GET is refused.
func ClassifyHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAuthentication
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimitExceeded
	case status >= 500:
		return ErrCodeServerError
	case status >= 400:
		return ErrCodeClientError
	default:
		return ErrCodeConnectionFailed
	}
}
