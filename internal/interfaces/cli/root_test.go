package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casestream.ai/cli/internal/core/streaming"
)

// TestNewRootCommand_RegistersSubcommands tests command wiring
func TestNewRootCommand_RegistersSubcommands(t *testing.T) {
	rootCmd := NewRootCommand(&App{})

	assert.Equal(t, "cs", rootCmd.Use)

	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"stream", "fetch", "replay", "stages", "validate"} {
		assert.True(t, names[want], "Missing subcommand %q", want)
	}
}

// TestCommandHelp_ExamplesUseRealStageKeys tests that every stage key in
// the help-text examples resolves through the workflow registry
func TestCommandHelp_ExamplesUseRealStageKeys(t *testing.T) {
	rootCmd := NewRootCommand(&App{})

	for _, sub := range rootCmd.Commands() {
		switch sub.Name() {
		case "stream", "fetch", "replay":
		default:
			continue
		}
		for _, line := range strings.Split(sub.Long, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "cs ") {
				continue
			}
			fields := strings.Fields(line)
			require.GreaterOrEqual(t, len(fields), 4, "example %q is missing arguments", line)
			stageKey := fields[3]
			_, ok := streaming.FindStage(stageKey)
			assert.True(t, ok, "example %q references unknown stage %q", line, stageKey)
		}
	}
}

// TestNewRootCommand_PersistentFlags tests the shared flag set
func TestNewRootCommand_PersistentFlags(t *testing.T) {
	rootCmd := NewRootCommand(&App{})

	for _, flag := range []string{"debug", "config", "token", "api-url"} {
		require.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "Missing persistent flag %q", flag)
	}
}
