package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"casestream.ai/cli/internal/application/ports"
	"casestream.ai/cli/internal/core/streaming"
)

// ConsoleLogger implements the LoggingGateway interface with output to
// stderr. Stdout is reserved for streamed content so that the CLI can be
// piped without log lines mixed into the stage text.
type ConsoleLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	level  ports.LogLevel
}

// NewConsoleLogger creates a console logger writing to stderr at the
// given level.
func NewConsoleLogger(level ports.LogLevel) *ConsoleLogger {
	return NewConsoleLoggerWithWriter(os.Stderr, level)
}

// NewConsoleLoggerWithWriter creates a console logger writing to w.
func NewConsoleLoggerWithWriter(w io.Writer, level ports.LogLevel) *ConsoleLogger {
	return &ConsoleLogger{
		logger: log.New(w, "[cs] ", log.LstdFlags),
		level:  level,
	}
}

// Log logs a message with the specified level
func (l *ConsoleLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldLog(level) {
		return
	}
	l.logger.Printf("%s %s%s", strings.ToUpper(string(level)), message, formatFields(fields))
}

// LogError logs an error
func (l *ConsoleLogger) LogError(err error, message string, fields map[string]interface{}) {
	if err != nil {
		if fields == nil {
			fields = make(map[string]interface{}, 1)
		}
		fields["error"] = err.Error()
	}
	l.Log(ports.LogLevelError, message, fields)
}

// LogEvent logs a decoded stream event at debug level
func (l *ConsoleLogger) LogEvent(event *streaming.StreamEvent, message string) {
	if event == nil {
		return
	}
	fields := map[string]interface{}{
		"type":      event.Type.String(),
		"timestamp": event.Timestamp,
	}
	if event.ID != "" {
		fields["id"] = event.ID
	}
	l.Log(ports.LogLevelDebug, message, fields)
}

// SetLogLevel sets the logging level
func (l *ConsoleLogger) SetLogLevel(level ports.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLogLevel returns the current logging level
func (l *ConsoleLogger) GetLogLevel() ports.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// shouldLog reports whether a message at the given level passes the
// configured threshold. Caller holds the mutex.
func (l *ConsoleLogger) shouldLog(level ports.LogLevel) bool {
	return levelRank(level) >= levelRank(l.level)
}

func levelRank(level ports.LogLevel) int {
	switch level {
	case ports.LogLevelDebug:
		return 0
	case ports.LogLevelInfo:
		return 1
	case ports.LogLevelWarn:
		return 2
	case ports.LogLevelError:
		return 3
	default:
		return 1
	}
}

// formatFields renders fields as sorted key=value pairs so log lines are
// stable across runs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
	}
	return sb.String()
}
