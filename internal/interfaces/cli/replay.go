package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"casestream.ai/cli/internal/core/streaming"
)

// ReplayFlags holds command-line flags for the replay command
type ReplayFlags struct {
	ChunkSize int
	Duration  time.Duration
}

// NewReplayCommand creates the replay command
func NewReplayCommand(app *App) *cobra.Command {
	flags := &ReplayFlags{}

	cmd := &cobra.Command{
		Use:   "replay <case-id> <stage-key>",
		Short: "Replay completed stage content as a timed chunk stream",
		Long: `Fetch the completed content of a workflow stage and replay it in the
terminal the way the stream originally delivered it: split into
word-boundary chunks and revealed at a uniform pace.

Examples:
  cs replay case-123 diagnosis
  cs replay case-123 final_plan --duration 10s --chunk-size 16`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), app, args[0], args[1], flags)
		},
	}

	cmd.Flags().IntVar(&flags.ChunkSize, "chunk-size", 24, "Maximum characters per chunk")
	cmd.Flags().DurationVar(&flags.Duration, "duration", 5*time.Second, "Total replay duration")

	return cmd
}

func runReplay(parent context.Context, app *App, caseID, stageKey string, flags *ReplayFlags) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	content, err := app.Container.APIGateway.FetchStageContent(ctx, caseID, stageKey)
	if err != nil {
		return fmt.Errorf("failed to fetch stage content: %w", err)
	}
	if content.Content == "" {
		return fmt.Errorf("stage %s has no content to replay", stageKey)
	}

	chunks, err := streaming.ChunkText(content.Content, flags.ChunkSize, streaming.ChunkOptions{
		RespectWordBoundaries: true,
	})
	if err != nil {
		return err
	}

	stageName := content.StageName
	if stageName == "" {
		if stage, ok := streaming.FindStage(stageKey); ok {
			stageName = stage.Name
		} else {
			stageName = stageKey
		}
	}

	offsets := streaming.CalculateChunkTiming(chunks, int(flags.Duration.Milliseconds()))
	return runViewer(caseID, stageName, chunks, offsets)
}
