package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and connectivity",
		Long: `Validate the CaseStream CLI configuration and test connectivity
to the CaseStream platform.

This command will:
- Check configuration validity
- Verify an API token is configured
- Test API reachability and authentication`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), app)
		},
	}
}

// runValidate handles the validation process
func runValidate(parent context.Context, app *App) error {
	container := app.Container

	fmt.Println("CaseStream CLI validation")
	fmt.Println("")

	fmt.Print("Checking configuration... ")
	if err := container.Config.Validate(); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if container.Config.APIToken == "" {
		fmt.Println("FAILED")
		return fmt.Errorf("API token not configured. Set CASESTREAM_API_TOKEN or api_token in the config file")
	}
	fmt.Println("ok")

	fmt.Print("Testing API connectivity... ")
	ctx, cancel := context.WithTimeout(parent, 15*time.Second)
	defer cancel()

	if err := container.APIGateway.TestConnection(ctx); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("API connectivity test failed: %w\n\nPlease check:\n- Your API token is correct\n- Your internet connection\n- The API endpoint is accessible", err)
	}
	fmt.Println("ok")

	fmt.Println("")
	fmt.Println("Configuration summary:")
	fmt.Printf("  Endpoint:    %s\n", container.Config.APIEndpoint)
	fmt.Printf("  Log level:   %s\n", container.Config.LogLevel)
	fmt.Printf("  Max retries: %d\n", container.Config.MaxRetries)
	fmt.Printf("  Timeout:     %s\n", container.Config.StreamTimeout)
	return nil
}
