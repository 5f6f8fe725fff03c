package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"

	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/attribution/rewrite"
	"github.com/blametrail/cli/internal/vcs"
)

func newSquashAuthorshipCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "squash-authorship <new_sha> <old_sha>",
		Short: "Replay an upstream authorship log onto a CI-side squash or rebase merge commit",
		Long: `Used by CI runners that only see the post-squash commit: replays
old_sha's authorship log (and the commits between it and new_sha's parent)
forward onto new_sha and writes the result to the note store.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSquashAuthorship(cmd, args[0], args[1], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the replayed authorship log without writing it")
	return cmd
}

func runSquashAuthorship(cmd *cobra.Command, newSHA, oldSHA string, dryRun bool) error {
	repo, newCommit, err := openRepoAndResolve(newSHA)
	if err != nil {
		return err
	}

	oldLog, err := loadAuthorshipLog(repo, oldSHA)
	if err != nil {
		return err
	}

	var upstreamBase string
	if newCommit.NumParents() > 0 {
		parent, err := newCommit.Parent(0)
		if err != nil {
			return fmt.Errorf("reading %s's parent: %w", newSHA, err)
		}
		upstreamBase = vcs.CommitSHA(parent)
	}

	var upstreamCommits []*object.Commit
	if upstreamBase != "" {
		upstreamCommits, err = repo.CommitsBetween(oldSHA, upstreamBase)
		if err != nil {
			return fmt.Errorf("walking commits between %s and %s: %w", oldSHA, upstreamBase, err)
		}
	}

	cache := authorshiplog.NewNegativeCache(256)

	if dryRun {
		result, err := rewrite.ComputeCIMergeReplay(repo, upstreamCommits, oldSHA, oldLog, repo, newCommit, cache)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), authorshiplog.Serialize(result.Log))
		return nil
	}

	replayed, err := rewrite.CIMergeReplay(repo, upstreamCommits, oldSHA, oldLog, repo, newCommit, cache)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote authorship log for %s (%d file attestations)\n", newSHA, len(replayed.Attestations))
	return nil
}
