package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/vcs"
)

func newShareCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "share <prompt_id>",
		Short: "Render a shareable bundle for a session",
		Long: `Builds the transcript + stats bundle for a session that would be
uploaded for sharing. The upload transport itself is out of scope for
this engine (spec.md treats the HTTP client that uploads bundles as an
external collaborator); this command renders the bundle to stdout so
it can be piped to whatever uploader a deployment wires in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShare(cmd, args[0], title)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title to attach to the shared bundle")
	return cmd
}

func runShare(cmd *cobra.Command, promptID, title string) error {
	repo, commit, err := openRepoAndResolve("")
	if err != nil {
		return err
	}

	log, err := loadAuthorshipLog(repo, vcs.CommitSHA(commit))
	if err != nil {
		return err
	}
	if log == nil {
		return NewSilentError(fmt.Errorf("share: no authorship log at %s", vcs.CommitSHA(commit)))
	}
	record, ok := log.Metadata.Prompts[promptID]
	if !ok {
		return NewSilentError(fmt.Errorf("share: no session %s at %s", promptID, vcs.CommitSHA(commit)))
	}

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	fmt.Fprintf(&b, "Session: %s (%s)\n", promptID, record.AgentID.Tool)
	fmt.Fprintf(&b, "Lines accepted: %d, overridden: %d\n\n", record.AcceptedLines, record.OverriddenLines)
	for _, m := range record.Messages {
		fmt.Fprintf(&b, "**%s:** %s\n\n", m.Role, m.Text)
	}

	fmt.Fprint(cmd.OutOrStdout(), b.String())
	return nil
}
