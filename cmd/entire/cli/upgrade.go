package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/cmd/entire/cli/versioncheck"
)

func newUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Show how to upgrade the Entire CLI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Current version: %s\nRun '%s' to upgrade.\n", Version, versioncheck.UpdateCommand())
			return nil
		},
	}
}
