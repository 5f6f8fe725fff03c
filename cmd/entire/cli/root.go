package cli

import (
	"fmt"
	"runtime"

	"github.com/blametrail/cli/cmd/entire/cli/telemetry"
	"github.com/blametrail/cli/cmd/entire/cli/versioncheck"
	"github.com/spf13/cobra"
)

const gettingStarted = `

Getting Started:
  To get started with Entire CLI, run 'entire install-hooks' to configure
  your environment. For more information, visit:
  https://entire.io/docs/cli/getting-started

`

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entire",
		Short: "Entire CLI",
		Long:  "A command-line interface for Entire" + gettingStarted + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			// Load telemetry preference from settings (ignore errors - nil defaults to disabled)
			var telemetryEnabled *bool
			if settings, err := LoadEntireSettings(); err == nil {
				telemetryEnabled = settings.Telemetry
			}

			// Initialize telemetry client and add to context
			telemetryClient := telemetry.NewClient(Version, telemetryEnabled)
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd)

			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	// Add subcommands here
	cmd.AddCommand(newCheckpointCmd())
	cmd.AddCommand(newBlameCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newStatsDeltaCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newShowPromptCmd())
	cmd.AddCommand(newSquashAuthorshipCmd())
	cmd.AddCommand(newReplayRewriteCmd())
	cmd.AddCommand(newSyncPromptsCmd())
	cmd.AddCommand(newFlushCASCmd())
	cmd.AddCommand(newInstallHooksCmd())
	cmd.AddCommand(newDisableCmd())
	cmd.AddCommand(newUpgradeCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSendAnalyticsCmd())

	// Replace default help command with custom one that supports -t flag
	cmd.SetHelpCommand(NewHelpCmd(cmd))

	return cmd
}

// newSendAnalyticsCmd is the detached-subprocess target TrackCommandDetached
// re-execs into: it carries a pre-built event payload and exits as soon as
// the event is enqueued, off the invoking command's latency path.
func newSendAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "__send_analytics [payload]",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			telemetry.SendEvent(args[0])
		},
	}
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("Entire CLI %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
