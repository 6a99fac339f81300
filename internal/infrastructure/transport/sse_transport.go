// Package transport provides the HTTP text/event-stream implementation
// of the stream transport port.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	transport "casestream.ai/cli/internal/core/ports/streaming"
	"casestream.ai/cli/internal/core/streaming"
)

// SSETransport opens long-lived text/event-stream connections over HTTP.
type SSETransport struct {
	client *http.Client
}

// NewSSETransport creates an SSE transport. The HTTP client carries no
// global timeout: the stream is long-lived and inactivity is policed by
// the connection manager.
func NewSSETransport() *SSETransport {
	return &SSETransport{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 15 * time.Second,
			},
		},
	}
}

// Open issues the stream GET and returns once the response headers
// arrive. A non-200 status is classified and returned as a StreamError.
func (t *SSETransport) Open(ctx context.Context, url string) (transport.Connection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, streaming.NewStreamError(streaming.ErrCodeClientError,
			"failed to build stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, streaming.Classify(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		code := streaming.ClassifyHTTPStatus(resp.StatusCode)
		streamErr := streaming.NewStreamError(code,
			fmt.Sprintf("stream request refused with status %d", resp.StatusCode), nil).
			WithContext("status", resp.StatusCode)
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			streamErr.WithContext("retry_after_ms", int(retryAfter.Milliseconds()))
		}
		return nil, streamErr
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, streaming.NewStreamError(streaming.ErrCodeServerError,
			fmt.Sprintf("unexpected content type %q", ct), nil)
	}

	conn := &sseConnection{
		body:   resp.Body,
		frames: make(chan string, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

// sseConnection reads blank-line-terminated frame blocks from one
// response body.
type sseConnection struct {
	body      io.ReadCloser
	frames    chan string
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// Frames returns the raw frame channel
func (c *sseConnection) Frames() <-chan string {
	return c.frames
}

// Errors returns the terminal error channel
func (c *sseConnection) Errors() <-chan error {
	return c.errs
}

// Close tears the connection down and unblocks the read loop
func (c *sseConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.body.Close()
	})
	return err
}

// readLoop accumulates lines into frames and delivers them until the
// body ends or the connection is closed.
func (c *sseConnection) readLoop() {
	defer close(c.frames)

	scanner := bufio.NewScanner(c.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	flush := func() bool {
		if len(lines) == 0 {
			return true
		}
		frame := strings.Join(lines, "\n")
		lines = lines[:0]
		select {
		case c.frames <- frame:
			return true
		case <-c.done:
			return false
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if !flush() {
				return
			}
			continue
		}
		lines = append(lines, line)
	}

	if !flush() {
		return
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-c.done:
			// Deliberate close; the error is an artifact of it.
		default:
			c.errs <- streaming.Classify(err)
		}
	}
}

// parseRetryAfter converts a Retry-After header expressed in seconds
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
