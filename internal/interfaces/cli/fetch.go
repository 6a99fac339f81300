package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewFetchCommand creates the fetch command
func NewFetchCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fetch <case-id> <stage-key>",
		Short: "Fetch completed stage content from the batch endpoint",
		Long: `Fetch the completed content of a workflow stage directly from the
batch endpoint, without streaming.

Useful when a stage already finished, or when streaming is unavailable.

Examples:
  cs fetch case-123 initial
  cs fetch case-123 final_plan --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), app, args[0], args[1], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full stage record as JSON")

	return cmd
}

func runFetch(parent context.Context, app *App, caseID, stageKey string, asJSON bool) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	content, err := app.Container.APIGateway.FetchStageContent(ctx, caseID, stageKey)
	if err != nil {
		return fmt.Errorf("failed to fetch stage content: %w", err)
	}

	if asJSON {
		out, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(content.Content)
	return nil
}
