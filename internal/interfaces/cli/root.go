package cli

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"casestream.ai/cli/internal/interfaces/di"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// App holds the dependencies shared by CLI commands. The container is
// built in the root command's PersistentPreRunE so that flag overrides
// are visible to every subcommand.
type App struct {
	Container *di.Container
}

// NewRootCommand creates the base command
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cs",
		Short: "CaseStream CLI - stream diagnostic workflow stages",
		Long: `CaseStream CLI streams the output of diagnostic workflow stages
from the CaseStream platform over Server-Sent Events.

It connects to a case's stage stream, follows text chunks as the stage
produces them, reconnects with backoff when the connection drops, and
falls back to the batch endpoint when a stream cannot be recovered.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts := di.Options{}
			opts.ConfigPath, _ = cmd.Flags().GetString("config")
			opts.APIEndpoint, _ = cmd.Flags().GetString("api-url")
			opts.APIToken, _ = cmd.Flags().GetString("token")
			opts.Debug, _ = cmd.Flags().GetBool("debug")

			container, err := di.NewContainer(opts)
			if err != nil {
				return err
			}
			app.Container = container
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default is cs-config.json)")
	rootCmd.PersistentFlags().String("token", "", "API token for the CaseStream platform")
	rootCmd.PersistentFlags().String("api-url", "", "API endpoint URL")

	rootCmd.AddCommand(NewStreamCommand(app))
	rootCmd.AddCommand(NewFetchCommand(app))
	rootCmd.AddCommand(NewReplayCommand(app))
	rootCmd.AddCommand(NewStagesCommand(app))
	rootCmd.AddCommand(NewValidateCommand(app))

	return rootCmd
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	app := &App{}
	rootCmd := NewRootCommand(app)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
