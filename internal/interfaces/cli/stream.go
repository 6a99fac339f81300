package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"casestream.ai/cli/internal/application/ports"
	"casestream.ai/cli/internal/core/streaming"
)

// StreamFlags holds command-line flags for the stream command
type StreamFlags struct {
	Raw        bool
	Heartbeats bool
	NoFallback bool
	Timeout    time.Duration
	MaxRetries int
}

// NewStreamCommand creates the stream command
func NewStreamCommand(app *App) *cobra.Command {
	flags := &StreamFlags{}

	cmd := &cobra.Command{
		Use:   "stream <case-id> <stage-key>",
		Short: "Follow a workflow stage stream",
		Long: `Connect to a case's stage stream and print text chunks to stdout
as the stage produces them.

The connection reconnects automatically with exponential backoff when it
drops. If reconnection attempts are exhausted, the completed stage
content is fetched from the batch endpoint instead, unless --no-fallback
is set.

Examples:
  cs stream case-123 initial
  cs stream case-123 causal_analysis --raw
  cs stream case-123 final_plan --timeout 60s --max-retries 8`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd.Context(), app, args[0], args[1], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.Raw, "raw", false, "Print every event as a JSON line instead of chunk text")
	cmd.Flags().BoolVar(&flags.Heartbeats, "heartbeats", false, "Surface heartbeat events in raw output")
	cmd.Flags().BoolVar(&flags.NoFallback, "no-fallback", false, "Disable the batch-fetch fallback on stream failure")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "Connection inactivity timeout (default from config)")
	cmd.Flags().IntVar(&flags.MaxRetries, "max-retries", 0, "Maximum reconnection attempts (default from config)")

	return cmd
}

// runStream connects to the stage stream and follows it until it ends,
// fails or the process receives an interrupt.
func runStream(parent context.Context, app *App, caseID, stageKey string, flags *StreamFlags) error {
	container := app.Container
	svc := container.StreamingService

	opts := container.StreamOptions()
	opts.EmitHeartbeats = flags.Heartbeats
	if flags.Timeout > 0 {
		opts.Timeout = flags.Timeout
	}
	if flags.MaxRetries > 0 {
		opts.MaxRetries = flags.MaxRetries
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	var errMu sync.Mutex
	var lastErr *streaming.StreamError

	unsubEvent := svc.OnEvent(func(event *streaming.StreamEvent) {
		if flags.Raw {
			printRawEvent(event)
		} else if event.IsChunk() {
			if payload, err := streaming.DecodeChunkPayload(event); err == nil {
				fmt.Print(payload.Content)
			}
		}

		switch event.Type {
		case streaming.EventTypeEnd:
			if !flags.Raw {
				fmt.Println()
			}
			finish(nil)
		case streaming.EventTypeError:
			payload, err := streaming.DecodeErrorPayload(event)
			if err != nil {
				finish(fmt.Errorf("stage reported an error"))
				return
			}
			finish(fmt.Errorf("stage reported an error: %s", payload.Message))
		}
	})
	defer unsubEvent()

	unsubError := svc.OnError(func(streamErr *streaming.StreamError) {
		errMu.Lock()
		lastErr = streamErr
		errMu.Unlock()
	})
	defer unsubError()

	unsubStatus := svc.OnStatusChange(func(state streaming.ConnectionState) {
		switch state {
		case streaming.StateReconnecting:
			container.Logger.Log(ports.LogLevelInfo, "connection lost, reconnecting", nil)
		case streaming.StateFailed:
			errMu.Lock()
			cause := lastErr
			errMu.Unlock()
			if cause != nil {
				finish(cause)
			} else {
				finish(fmt.Errorf("stream failed"))
			}
		}
	})
	defer unsubStatus()

	token := container.Config.APIToken
	if err := svc.Connect(ctx, caseID, stageKey, token, opts); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		svc.Disconnect()
		return nil
	case err := <-done:
		svc.Disconnect()
		if err == nil {
			return nil
		}
		if flags.NoFallback {
			return err
		}
		return fallbackFetch(parent, app, caseID, stageKey, err)
	}
}

// fallbackFetch retrieves the completed stage content from the batch
// endpoint after the stream could not be recovered.
func fallbackFetch(ctx context.Context, app *App, caseID, stageKey string, streamErr error) error {
	container := app.Container
	container.Logger.Log(ports.LogLevelWarn, "stream failed, falling back to batch fetch", map[string]interface{}{
		"case_id": caseID,
		"stage":   stageKey,
		"cause":   streamErr.Error(),
	})

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	content, err := container.APIGateway.FetchStageContent(fetchCtx, caseID, stageKey)
	if err != nil {
		return fmt.Errorf("stream failed (%v) and batch fetch failed: %w", streamErr, err)
	}

	fmt.Println(content.Content)
	return nil
}

// printRawEvent writes one event as a JSON line to stdout
func printRawEvent(event *streaming.StreamEvent) {
	line, err := json.Marshal(map[string]interface{}{
		"id":        event.ID,
		"type":      event.Type.String(),
		"timestamp": event.Timestamp,
		"data":      json.RawMessage(event.Data),
	})
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stdout, string(line))
}
