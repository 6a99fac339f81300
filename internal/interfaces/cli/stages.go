package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"casestream.ai/cli/internal/core/streaming"
)

// NewStagesCommand creates the stages command
func NewStagesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the workflow stages available for streaming",
		RunE: func(cmd *cobra.Command, args []string) error {
			printStages()
			return nil
		},
	}
}

func printStages() {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))
	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212"))
	panelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-3s %-22s %-28s %s", "#", "KEY", "NAME", "PANEL")))
	for i, stage := range streaming.WorkflowStages() {
		fmt.Printf("%-3d %s %-28s %s\n",
			i+1,
			keyStyle.Render(fmt.Sprintf("%-22s", stage.Key)),
			stage.Name,
			panelStyle.Render(stage.TargetPanel),
		)
	}
}
