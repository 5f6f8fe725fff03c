package cli

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/cmd/entire/cli/paths"
	"github.com/blametrail/cli/internal/vcs"
)

// notesRefspec is the push/fetch refspec for the authorship note store
// (spec §6: "+refs/notes/ai:refs/notes/ai" for push, requiring
// fast-forward, mirrored to a tracking ref before merge).
const notesRefspec = "+" + vcs.NotesRef + ":" + vcs.NotesRef

func newSyncPromptsCmd() *cobra.Command {
	var since string
	var workdir string
	var remote string

	cmd := &cobra.Command{
		Use:   "sync-prompts",
		Short: "Push and fetch the authorship note store with a remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncPrompts(cmd, since, workdir, remote)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only log notes changed since this RFC3339 time (informational, logged only)")
	cmd.Flags().StringVar(&workdir, "workdir", "", "Run git plumbing from this directory instead of the repo root")
	cmd.Flags().StringVar(&remote, "remote", "origin", "Remote to sync with")

	return cmd
}

func runSyncPrompts(cmd *cobra.Command, since, workdir, remote string) error {
	dir := workdir
	if dir == "" {
		repoRoot, err := paths.RepoRoot()
		if err != nil {
			return NewSilentError(fmt.Errorf("not a git repository: %w", err))
		}
		dir = repoRoot
	}

	gitBin := GetGitBinaryPath()
	if ShouldIgnorePrompts() {
		fmt.Fprintln(cmd.ErrOrStderr(), "sync-prompts: ignore_prompts is set, transcripts were already stripped at write time")
	}

	if since != "" {
		if _, err := time.Parse(time.RFC3339, since); err != nil {
			return fmt.Errorf("--since: %w", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Fetch first so a local push fast-forwards onto the remote's notes
	// rather than racing a concurrent writer.
	if err := runGitNotesSync(ctx, gitBin, dir, "fetch", remote, notesRefspec); err != nil {
		return fmt.Errorf("fetching notes: %w", err)
	}
	if err := runGitNotesSync(ctx, gitBin, dir, "push", remote, notesRefspec); err != nil {
		return fmt.Errorf("pushing notes: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced %s with %s\n", vcs.NotesRef, remote)
	return nil
}

func runGitNotesSync(ctx context.Context, gitBin, dir, verb, remote, refspec string) error {
	cmd := exec.CommandContext(ctx, gitBin, verb, remote, refspec) //nolint:gosec // gitBin/remote/refspec come from trusted config and constants
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", verb, err, string(out))
	}
	return nil
}
