package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"

	"github.com/blametrail/cli/cmd/entire/cli/paths"
	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/attribution/rewrite"
	"github.com/blametrail/cli/internal/attribution/workinglog"
	"github.com/blametrail/cli/internal/vcs"
)

// newReplayRewriteCmd exposes the rewrite-log dispatcher (spec §6 "Rewrite
// log", §4.6): the hook layer appends one event per history-mutating
// operation it observes (amend, rebase, cherry-pick, squash merge, reset,
// stash apply/pop) to <repo_metadata>/ai/rewrite_log; this command drains
// that log and replays each event through its corresponding driver in
// internal/attribution/rewrite, then clears the log.
func newReplayRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "replay-rewrite",
		Short:  "Replay pending history-rewrite events against the authorship log",
		Hidden: true,
		Long: `Drains <repo_metadata>/ai/rewrite_log, replaying each recorded amend,
rebase, cherry-pick, squash-merge, reset, or stash apply/pop through its
rewrite driver, then clears the log. Invoked by the installed post-commit,
post-rewrite, and post-checkout hooks; safe to run with an empty log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repoRoot, err := paths.RepoRoot()
			if err != nil {
				return NewSilentError(fmt.Errorf("not a git repository: %w", err))
			}
			repo, err := vcs.Open(repoRoot)
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}

			rl := rewrite.Open(aiMetadataDir(repoRoot))
			events, err := rl.ReadAll()
			if err != nil {
				return fmt.Errorf("reading rewrite log: %w", err)
			}
			if len(events) == 0 {
				return nil
			}

			cache := authorshiplog.NewNegativeCache(256)
			for _, ev := range events {
				if err := replayRewriteEvent(cmd, repo, repoRoot, ev, cache); err != nil {
					return fmt.Errorf("replaying %s event (%s -> %s): %w", ev.Kind, ev.OldSHA, ev.NewSHA, err)
				}
			}

			return rl.Clear()
		},
	}
	return cmd
}

// replayRewriteEvent dispatches one rewrite-log event to its driver.
// EventCommit and EventStashCreate are pure bookkeeping markers the hook
// layer logs for its own sequencing; they carry nothing a driver consumes.
func replayRewriteEvent(cmd *cobra.Command, repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	switch ev.Kind {
	case rewrite.EventCommit, rewrite.EventStashCreate:
		return nil
	case rewrite.EventCommitAmend:
		return replayAmend(repo, repoRoot, ev, cache)
	case rewrite.EventRebaseComplete:
		return replayRebase(repo, repoRoot, ev, cache)
	case rewrite.EventCherryPickComplete:
		return replayCherryPick(repo, repoRoot, ev, cache)
	case rewrite.EventMergeSquash:
		return replaySquashMerge(repo, repoRoot, ev, cache)
	case rewrite.EventStashApply, rewrite.EventStashPop:
		return replayStashApplyOrPop(repo, repoRoot, ev, cache)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "replay-rewrite: unknown event kind %q, skipping\n", ev.Kind)
		return nil
	}
}

func replayAmend(repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	amendedCommit, err := repo.ResolveCommit(ev.NewSHA)
	if err != nil {
		return fmt.Errorf("resolving amended commit: %w", err)
	}
	originalTree, err := repo.ResolveTree(ev.OldSHA)
	if err != nil {
		return fmt.Errorf("resolving original commit tree: %w", err)
	}
	amendedTree, err := amendedCommit.Tree()
	if err != nil {
		return fmt.Errorf("reading amended commit tree: %w", err)
	}
	changedPaths, err := vcs.ChangedFiles(originalTree, amendedTree)
	if err != nil {
		return fmt.Errorf("diffing original and amended trees: %w", err)
	}

	originalLog, err := loadAuthorshipLog(repo, ev.OldSHA)
	if err != nil {
		return err
	}

	wl := workinglog.Open(aiMetadataDir(repoRoot), ev.OldSHA)
	log, newInitial, err := rewrite.Amend(repo, wl, ev.OldSHA, originalLog, repo, amendedCommit, changedPaths, cache)
	if err != nil {
		return err
	}

	if err := repo.WriteNote(ev.NewSHA, authorshiplog.Serialize(log)); err != nil {
		return fmt.Errorf("writing authorship note for %s: %w", ev.NewSHA, err)
	}
	return writeInitialForNewBase(repoRoot, ev.NewSHA, newInitial)
}

// replayRebase resolves the merge base of the rewrite's old and new heads
// to recover the two commit ranges Rebase needs: original_commits (unique
// to old_sha) and new_commits (unique to new_sha), both oldest-first.
func replayRebase(repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	base, err := repo.MergeBase(ev.OldSHA, ev.NewSHA)
	if err != nil {
		return fmt.Errorf("finding rebase merge-base: %w", err)
	}
	originalCommits, err := repo.CommitsBetween(ev.OldSHA, base)
	if err != nil {
		return fmt.Errorf("walking original commits: %w", err)
	}
	newCommits, err := repo.CommitsBetween(ev.NewSHA, base)
	if err != nil {
		return fmt.Errorf("walking new commits: %w", err)
	}

	originalHeadLog, err := loadAuthorshipLog(repo, ev.OldSHA)
	if err != nil {
		return err
	}

	logs, err := rewrite.Rebase(repo, originalCommits, ev.OldSHA, originalHeadLog, repo, newCommits, cache)
	if err != nil {
		return err
	}
	return writeCommitLogs(repo, logs)
}

func replayCherryPick(repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	base, err := repo.MergeBase(ev.OldSHA, ev.NewSHA)
	if err != nil {
		return fmt.Errorf("finding cherry-pick merge-base: %w", err)
	}
	sourceCommits, err := repo.CommitsBetween(ev.OldSHA, base)
	if err != nil {
		return fmt.Errorf("walking source commits: %w", err)
	}
	newCommits, err := repo.CommitsBetween(ev.NewSHA, base)
	if err != nil {
		return fmt.Errorf("walking new commits: %w", err)
	}

	sourceTipLog, err := loadAuthorshipLog(repo, ev.OldSHA)
	if err != nil {
		return err
	}

	logs, err := rewrite.CherryPick(repo, sourceCommits, ev.OldSHA, sourceTipLog, repo, newCommits, cache)
	if err != nil {
		return err
	}
	return writeCommitLogs(repo, logs)
}

// replaySquashMerge merges the target and source branch tips and seeds
// INITIAL for the merge's base commit (ev.NewSHA, the not-yet-committed
// working tree's base): a squash merge writes no authorship log, per §4.6.
func replaySquashMerge(repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	targetTree, err := repo.ResolveTree(ev.OldSHA)
	if err != nil {
		return fmt.Errorf("resolving target head tree: %w", err)
	}
	sourceTree, err := repo.ResolveTree(ev.NewSHA)
	if err != nil {
		return fmt.Errorf("resolving source head tree: %w", err)
	}

	targetPaths, err := vcs.ListFiles(targetTree)
	if err != nil {
		return fmt.Errorf("listing target tree: %w", err)
	}
	sourcePaths, err := vcs.ListFiles(sourceTree)
	if err != nil {
		return fmt.Errorf("listing source tree: %w", err)
	}

	targetLog, err := loadAuthorshipLog(repo, ev.OldSHA)
	if err != nil {
		return err
	}
	sourceLog, err := loadAuthorshipLog(repo, ev.NewSHA)
	if err != nil {
		return err
	}

	finalContent, err := mergedFinalContent(sourceTree, sourcePaths)
	if err != nil {
		return err
	}

	wl := workinglog.Open(aiMetadataDir(repoRoot), ev.OldSHA)
	return rewrite.SquashMerge(repo, ev.OldSHA, ev.NewSHA, targetLog, sourceLog, repo, targetPaths, sourcePaths, finalContent, wl, cache)
}

// replayStashApplyOrPop reuses the reset-style reconstruction between
// ev.OldSHA (the HEAD the stash was created against) and ev.NewSHA (the
// stash commit's resolved target), only when they diverge.
func replayStashApplyOrPop(repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	return rewrite.StashApplyOrPop(ev.OldSHA, ev.NewSHA, func() error {
		return replayReset(repo, repoRoot, ev, cache)
	})
}

func replayReset(repo *vcs.Repo, repoRoot string, ev rewrite.Event, cache *authorshiplog.NegativeCache) error {
	targetTree, err := repo.ResolveTree(ev.NewSHA)
	if err != nil {
		return fmt.Errorf("resolving target commit tree: %w", err)
	}
	paths, err := vcs.ListFiles(targetTree)
	if err != nil {
		return fmt.Errorf("listing target tree: %w", err)
	}

	oldHeadLog, err := loadAuthorshipLog(repo, ev.OldSHA)
	if err != nil {
		return err
	}
	targetLog, err := loadAuthorshipLog(repo, ev.NewSHA)
	if err != nil {
		return err
	}

	oldWL := workinglog.Open(aiMetadataDir(repoRoot), ev.OldSHA)
	newWL := workinglog.Open(aiMetadataDir(repoRoot), ev.NewSHA)

	workingDirContent, err := workingTreeContent(repo, paths)
	if err != nil {
		return err
	}

	return rewrite.Reset(repo, oldWL, ev.OldSHA, oldHeadLog, ev.NewSHA, targetLog, repo, paths, workingDirContent, newWL, cache)
}

// writeCommitLogs persists each rewrite-produced commit log to the note
// store, in order.
func writeCommitLogs(repo *vcs.Repo, logs []rewrite.CommitLog) error {
	for _, cl := range logs {
		if err := repo.WriteNote(cl.SHA, authorshiplog.Serialize(cl.Log)); err != nil {
			return fmt.Errorf("writing authorship note for %s: %w", cl.SHA, err)
		}
	}
	return nil
}

// writeInitialForNewBase seeds INITIAL for the amended commit's working log
// directory with the uncommitted remainder Amend split off.
func writeInitialForNewBase(repoRoot, baseSHA string, initial workinglog.InitialAttributions) error {
	if len(initial.Files) == 0 && len(initial.Prompts) == 0 {
		return nil
	}
	wl := workinglog.Open(aiMetadataDir(repoRoot), baseSHA)
	return wl.WriteInitialAttributions(initial.Files, initial.Prompts)
}

// mergedFinalContent reads every path's content out of tree, used as the
// "what the merge actually produced" input to virtualattr.Merge. A squash
// merge's true final content is the merged worktree, but since the
// dispatcher replays after the merge commit's tree already reflects that
// resolution, the source tip's post-merge tree is the best available
// approximation absent a working-tree read.
func mergedFinalContent(tree *object.Tree, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, path := range paths {
		content, ok, err := vcs.FileContent(tree, path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if !ok {
			continue
		}
		out[path] = content
	}
	return out, nil
}

// workingTreeContent reads each path's current on-disk content, used as
// Reset's "read the working directory as the final state" input.
func workingTreeContent(repo *vcs.Repo, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, path := range paths {
		content, ok, err := repo.ReadWorktreeFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading worktree file %s: %w", path, err)
		}
		if ok {
			out[path] = content
		}
	}
	return out, nil
}
