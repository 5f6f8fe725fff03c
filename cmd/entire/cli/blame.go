package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/vcs"
)

func newBlameCmd() *cobra.Command {
	var rev string

	cmd := &cobra.Command{
		Use:   "blame <path>",
		Short: "Show per-line authorship for a tracked file",
		Long:  "Blame view overlaid with AI sessions: each line is annotated with the human or AI session that authored it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlame(cmd, args[0], rev)
		},
	}

	cmd.Flags().StringVar(&rev, "commit", "", "Commit to blame against (defaults to HEAD)")
	return cmd
}

func runBlame(cmd *cobra.Command, path, rev string) error {
	repo, commit, err := openRepoAndResolve(rev)
	if err != nil {
		return err
	}

	path, err = resolveTrackedPath(repo.Root(), path)
	if err != nil {
		return NewSilentError(err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("reading commit tree: %w", err)
	}
	content, ok, err := vcs.FileContent(tree, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if !ok {
		return NewSilentError(fmt.Errorf("%s: not found or binary at %s", path, vcs.CommitSHA(commit)))
	}

	log, err := loadAuthorshipLog(repo, vcs.CommitSHA(commit))
	if err != nil {
		return err
	}
	attestation, hasAttestation := fileAttestation(log, path)

	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	w := cmd.OutOrStdout()
	for i, text := range lines {
		lineNum := uint32(i + 1) //nolint:gosec // file line counts fit in uint32
		author := lineAuthorLabel(log, attestation, hasAttestation, lineNum)
		fmt.Fprintf(w, "%-24s %6d  %s\n", author, lineNum, text)
	}
	return nil
}
