package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/vcs"
)

func newShowPromptCmd() *cobra.Command {
	var commitRev string
	var offset int

	cmd := &cobra.Command{
		Use:   "show-prompt <prompt_id>",
		Short: "Show the transcript and stats recorded for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowPrompt(cmd, args[0], commitRev, offset)
		},
	}

	cmd.Flags().StringVar(&commitRev, "commit", "", "Commit whose authorship log to read (defaults to HEAD)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many transcript messages before printing")
	return cmd
}

func runShowPrompt(cmd *cobra.Command, promptID, commitRev string, offset int) error {
	repo, commit, err := openRepoAndResolve(commitRev)
	if err != nil {
		return err
	}

	log, err := loadAuthorshipLog(repo, vcs.CommitSHA(commit))
	if err != nil {
		return err
	}
	if log == nil {
		return NewSilentError(fmt.Errorf("show-prompt: no authorship log at %s", vcs.CommitSHA(commit)))
	}

	record, ok := log.Metadata.Prompts[promptID]
	if !ok {
		return NewSilentError(fmt.Errorf("show-prompt: no session %s at %s", promptID, vcs.CommitSHA(commit)))
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "session %s (%s)\n", promptID, record.AgentID.Tool)
	fmt.Fprintf(w, "additions=%d deletions=%d accepted=%d overridden=%d\n\n",
		record.TotalAdditions, record.TotalDeletions, record.AcceptedLines, record.OverriddenLines)

	messages := record.Messages
	if offset > 0 && offset < len(messages) {
		messages = messages[offset:]
	} else if offset >= len(messages) {
		messages = nil
	}
	for _, m := range messages {
		fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Text)
	}
	return nil
}
