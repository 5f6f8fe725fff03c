// Package rewrite implements the shared history-rewrite template and its
// per-operation drivers (spec §4.6): amend, rebase, cherry-pick, squash
// merge, reset, stash apply/pop, and the CI-side squash/rebase merge replay.
// Every driver here is a thin, VCS-aware orchestrator over
// internal/attribution/virtualattr's pure VA algebra.
package rewrite

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/blametrail/cli/internal/attribution"
	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/attribution/tracker"
	"github.com/blametrail/cli/internal/attribution/virtualattr"
	"github.com/blametrail/cli/internal/attribution/workinglog"
	"github.com/blametrail/cli/internal/vcs"
)

const subsystem = "rewrite"

// treeReader adapts *object.Tree to virtualattr.TreeReader.
type treeReader struct{ tree *object.Tree }

func (t treeReader) FileContent(path string) (string, bool) {
	content, ok, err := vcs.FileContent(t.tree, path)
	if err != nil || !ok {
		return "", false
	}
	return content, true
}

// initialBlame resolves a (path, line)'s author by checking a commit's
// INITIAL seed first (uncommitted lines no authorship log has seen yet),
// then falling back to authorshiplog.LineLookup across logs/notes. A nil
// entry in logs (an old commit whose note could not be read) is simply
// omitted by the caller, implementing "missing authorship log for an old
// commit is non-fatal, treated as an empty log" (spec §4.6 "Failure
// handling").
type initialBlame struct {
	initial    workinglog.InitialAttributions
	logs       []*authorshiplog.Log
	notes      authorshiplog.NoteSource
	candidates []string
	cache      *authorshiplog.NegativeCache
}

func (b initialBlame) LineAuthor(path string, line uint32) (string, bool) {
	for _, e := range b.initial.Files[path] {
		if line >= e.StartLine && line <= e.EndLine {
			return e.AuthorID, true
		}
	}
	res, ok := authorshiplog.LineLookup(b.logs, path, line, b.notes, b.candidates, b.cache)
	if !ok {
		return "", false
	}
	return res.Hash, true
}

// CommitLog pairs a rewritten commit's SHA with the authorship log the
// template produced for it.
type CommitLog struct {
	SHA string
	Log *authorshiplog.Log
}

// Template implements the shared rewrite algorithm every driver below
// composes: for each new commit in order, build the commit's diff relative
// to its own parent, apply it to the VA carried forward from the previous
// step, transform it (restoring dummy spans from reference where content
// matches), and emit an authorship log filtered to files actually present
// in the new tree.
func Template(seed *virtualattr.VA, reference *virtualattr.VA, newCommits []*object.Commit) ([]CommitLog, error) {
	va := seed
	out := make([]CommitLog, 0, len(newCommits))

	for _, commit := range newCommits {
		sha := vcs.CommitSHA(commit)

		parentTree, err := vcs.ParentTree(commit)
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "reading parent tree", err)
		}
		tree, err := commit.Tree()
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "reading commit tree", err)
		}
		changed, err := vcs.ChangedFiles(parentTree, tree)
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "diffing commit trees", err)
		}

		newContent := make(map[string]string, len(changed))
		for _, path := range changed {
			content, ok, err := vcs.FileContent(tree, path)
			if err != nil {
				return nil, attribution.New(attribution.KindVCS, subsystem, "reading new content", err)
			}
			if !ok {
				continue
			}
			newContent[path] = content
		}

		if len(newContent) > 0 {
			transformed, err := virtualattr.Transform(va, newContent, reference)
			if err != nil {
				return nil, err
			}
			va = mergeForward(va, transformed)
		}

		present, err := vcs.ListFiles(tree)
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "listing tree files", err)
		}
		out = append(out, CommitLog{SHA: sha, Log: virtualattr.ToAuthorshipLog(filterToFiles(va, present), sha)})
	}
	return out, nil
}

// mergeForward folds transformed's touched files into va's carried set,
// leaving every untouched file as it was.
func mergeForward(va, transformed *virtualattr.VA) *virtualattr.VA {
	files := make(map[string]virtualattr.FileState, len(va.Files))
	for k, v := range va.Files {
		files[k] = v
	}
	for k, v := range transformed.Files {
		files[k] = v
	}
	return virtualattr.FromRawData(va.BaseCommit, files, transformed.Prompts)
}

// filterToFiles restricts a VA's file set to present, implementing "filtered
// to files actually present (non-empty) in the new tree".
func filterToFiles(va *virtualattr.VA, present []string) *virtualattr.VA {
	set := make(map[string]bool, len(present))
	for _, p := range present {
		set[p] = true
	}
	files := make(map[string]virtualattr.FileState, len(set))
	for path, state := range va.Files {
		if set[path] {
			files[path] = state
		}
	}
	return virtualattr.FromRawData(va.BaseCommit, files, va.Prompts)
}

// cloneVA deep-copies a VA so a caller can freeze it as a reference state
// while `va` is reassigned across Template's iterations (spec §4.6 rebase
// driver: "save a snapshot copy of that VA as the reference").
func cloneVA(va *virtualattr.VA) *virtualattr.VA {
	files := make(map[string]virtualattr.FileState, len(va.Files))
	for k, v := range va.Files {
		attrs := make([]tracker.Attribution, len(v.Attrs))
		copy(attrs, v.Attrs)
		files[k] = virtualattr.FileState{Content: v.Content, Attrs: attrs}
	}
	prompts := make(map[string]workinglog.PromptRecord, len(va.Prompts))
	for k, v := range va.Prompts {
		prompts[k] = v
	}
	return virtualattr.FromRawData(va.BaseCommit, files, prompts)
}

// unionTouchedPaths returns the sorted union of every path touched by any
// commit in commits, each compared against its own first parent.
func unionTouchedPaths(commits []*object.Commit) ([]string, error) {
	set := make(map[string]bool)
	for _, c := range commits {
		parentTree, err := vcs.ParentTree(c)
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "reading parent tree", err)
		}
		tree, err := c.Tree()
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "reading commit tree", err)
		}
		changed, err := vcs.ChangedFiles(parentTree, tree)
		if err != nil {
			return nil, attribution.New(attribution.KindVCS, subsystem, "diffing commit trees", err)
		}
		for _, p := range changed {
			set[p] = true
		}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// linesToEntries flattens a VA file's derived line runs into the
// LineAttributionEntry list WriteInitialAttributions expects.
func linesToEntries(content string, state virtualattr.FileState) []workinglog.LineAttributionEntry {
	runs := tracker.DeriveLineAttributions(content, state.Attrs)
	entries := make([]workinglog.LineAttributionEntry, 0, len(runs))
	for _, r := range runs {
		entries = append(entries, workinglog.LineAttributionEntry{
			StartLine: r.StartLine, EndLine: r.EndLine, AuthorID: r.AuthorID, Overridden: r.Overridden,
		})
	}
	return entries
}

// Amend implements the commit-amend driver: build a VA reflecting the
// original commit's committed state plus its working log's uncommitted
// activity, split it by the amended commit's tree into the part that is
// now committed (-> authorship log) and the part that still isn't (->
// INITIAL for the new base), then retire the superseded working log.
func Amend(repo *vcs.Repo, wl *workinglog.Log, originalCommitSHA string, originalLog *authorshiplog.Log, notes authorshiplog.NoteSource, amendedCommit *object.Commit, changedPaths []string, cache *authorshiplog.NegativeCache) (*authorshiplog.Log, workinglog.InitialAttributions, error) {
	sha := vcs.CommitSHA(amendedCommit)

	if len(changedPaths) == 0 {
		// The amend touched no tracked files (message-only amend, or a
		// metadata-only change): carry the prior commit's authorship log
		// forward unchanged except for its base_commit_sha, rather than
		// running it through the VA machinery with an empty content set
		// (which would silently emit an empty log).
		log := originalLog
		if log == nil {
			log = authorshiplog.New(sha, nil)
		} else {
			log.Metadata.BaseCommitSHA = sha
		}
		if err := wl.Delete(); err != nil {
			return nil, workinglog.InitialAttributions{}, attribution.New(attribution.KindIO, subsystem, "deleting superseded working log", err)
		}
		return log, workinglog.InitialAttributions{}, nil
	}

	originalTree, err := repo.ResolveTree(originalCommitSHA)
	if err != nil {
		return nil, workinglog.InitialAttributions{}, attribution.New(attribution.KindVCS, subsystem, "resolving original commit tree", err)
	}

	var logs []*authorshiplog.Log
	if originalLog != nil {
		logs = append(logs, originalLog)
	}
	blame := initialBlame{initial: wl.ReadInitialAttributions(), logs: logs, notes: notes, candidates: []string{originalCommitSHA}, cache: cache}

	va, err := virtualattr.FromWorkingLogForCommit(originalCommitSHA, changedPaths, treeReader{tree: originalTree}, blame, wl)
	if err != nil {
		return nil, workinglog.InitialAttributions{}, err
	}

	amendedTree, err := amendedCommit.Tree()
	if err != nil {
		return nil, workinglog.InitialAttributions{}, attribution.New(attribution.KindVCS, subsystem, "reading amended commit tree", err)
	}

	committedContent := make(map[string]string, len(changedPaths))
	for _, path := range changedPaths {
		content, ok, err := vcs.FileContent(amendedTree, path)
		if err != nil {
			return nil, workinglog.InitialAttributions{}, attribution.New(attribution.KindVCS, subsystem, "reading amended content", err)
		}
		if !ok {
			continue
		}
		committedContent[path] = content
	}

	log, newInitial := virtualattr.ToAuthorshipLogAndInitialWorkingLog(va, sha, committedContent)

	if err := wl.Delete(); err != nil {
		return nil, workinglog.InitialAttributions{}, attribution.New(attribution.KindIO, subsystem, "deleting superseded working log", err)
	}
	return log, newInitial, nil
}

// Rebase implements the rebase driver: seed a VA from original_head over
// the union of paths touched by original_commits, freeze a snapshot of it
// as the reference state, then run the shared template across new_commits.
func Rebase(repo *vcs.Repo, originalCommits []*object.Commit, originalHeadSHA string, originalHeadLog *authorshiplog.Log, notes authorshiplog.NoteSource, newCommits []*object.Commit, cache *authorshiplog.NegativeCache) ([]CommitLog, error) {
	touched, err := unionTouchedPaths(originalCommits)
	if err != nil {
		return nil, err
	}

	originalHeadTree, err := repo.ResolveTree(originalHeadSHA)
	if err != nil {
		return nil, attribution.New(attribution.KindVCS, subsystem, "resolving original head tree", err)
	}

	var logs []*authorshiplog.Log
	if originalHeadLog != nil {
		logs = append(logs, originalHeadLog)
	}
	blame := initialBlame{logs: logs, notes: notes, candidates: []string{originalHeadSHA}, cache: cache}

	seed, err := virtualattr.NewForBaseCommit(originalHeadSHA, touched, treeReader{tree: originalHeadTree}, blame)
	if err != nil {
		return nil, err
	}

	return Template(seed, cloneVA(seed), newCommits)
}

// CherryPick implements the cherry-pick driver: identical to Rebase except
// the VA is seeded from source_commits' tip, and that same tip VA (not a
// frozen copy) doubles as the reference state.
func CherryPick(repo *vcs.Repo, sourceCommits []*object.Commit, sourceTipSHA string, sourceTipLog *authorshiplog.Log, notes authorshiplog.NoteSource, newCommits []*object.Commit, cache *authorshiplog.NegativeCache) ([]CommitLog, error) {
	touched, err := unionTouchedPaths(sourceCommits)
	if err != nil {
		return nil, err
	}

	tipTree, err := repo.ResolveTree(sourceTipSHA)
	if err != nil {
		return nil, attribution.New(attribution.KindVCS, subsystem, "resolving source tip tree", err)
	}

	var logs []*authorshiplog.Log
	if sourceTipLog != nil {
		logs = append(logs, sourceTipLog)
	}
	blame := initialBlame{logs: logs, notes: notes, candidates: []string{sourceTipSHA}, cache: cache}

	seed, err := virtualattr.NewForBaseCommit(sourceTipSHA, touched, treeReader{tree: tipTree}, blame)
	if err != nil {
		return nil, err
	}

	return Template(seed, seed, newCommits)
}

// SquashMerge implements the squash-merge driver: build VAs for both branch
// tips, merge favoring the target branch, and write the result straight to
// INITIAL for the base commit — no authorship log is produced, since a
// squash merge commit has not been made yet.
func SquashMerge(repo *vcs.Repo, targetHeadSHA, sourceHeadSHA string, targetLog, sourceLog *authorshiplog.Log, notes authorshiplog.NoteSource, targetPaths, sourcePaths []string, finalContent map[string]string, wl *workinglog.Log, cache *authorshiplog.NegativeCache) error {
	targetTree, err := repo.ResolveTree(targetHeadSHA)
	if err != nil {
		return attribution.New(attribution.KindVCS, subsystem, "resolving target head tree", err)
	}
	sourceTree, err := repo.ResolveTree(sourceHeadSHA)
	if err != nil {
		return attribution.New(attribution.KindVCS, subsystem, "resolving source head tree", err)
	}

	var tLogs []*authorshiplog.Log
	if targetLog != nil {
		tLogs = append(tLogs, targetLog)
	}
	targetVA, err := virtualattr.NewForBaseCommit(targetHeadSHA, targetPaths, treeReader{tree: targetTree},
		initialBlame{logs: tLogs, notes: notes, candidates: []string{targetHeadSHA}, cache: cache})
	if err != nil {
		return err
	}

	var sLogs []*authorshiplog.Log
	if sourceLog != nil {
		sLogs = append(sLogs, sourceLog)
	}
	sourceVA, err := virtualattr.NewForBaseCommit(sourceHeadSHA, sourcePaths, treeReader{tree: sourceTree},
		initialBlame{logs: sLogs, notes: notes, candidates: []string{sourceHeadSHA}, cache: cache})
	if err != nil {
		return err
	}

	merged := virtualattr.Merge(targetVA, sourceVA, finalContent)
	return writeMergedInitial(wl, merged)
}

// Reset implements the reset-that-preserves-working-directory driver:
// merge VAs built from old_head and target_commit (favoring old_head),
// read the working directory as the final content, emit INITIAL for
// target_commit, and retire old_head's working log — no authorship log is
// written, since reset never creates a commit.
func Reset(repo *vcs.Repo, oldWL *workinglog.Log, oldHeadSHA string, oldHeadLog *authorshiplog.Log, targetCommitSHA string, targetLog *authorshiplog.Log, notes authorshiplog.NoteSource, paths []string, workingDirContent map[string]string, newWL *workinglog.Log, cache *authorshiplog.NegativeCache) error {
	oldTree, err := repo.ResolveTree(oldHeadSHA)
	if err != nil {
		return attribution.New(attribution.KindVCS, subsystem, "resolving old head tree", err)
	}
	targetTree, err := repo.ResolveTree(targetCommitSHA)
	if err != nil {
		return attribution.New(attribution.KindVCS, subsystem, "resolving target commit tree", err)
	}

	var oLogs []*authorshiplog.Log
	if oldHeadLog != nil {
		oLogs = append(oLogs, oldHeadLog)
	}
	oldBlame := initialBlame{initial: oldWL.ReadInitialAttributions(), logs: oLogs, notes: notes, candidates: []string{oldHeadSHA}, cache: cache}
	oldVA, err := virtualattr.FromWorkingLogForCommit(oldHeadSHA, paths, treeReader{tree: oldTree}, oldBlame, oldWL)
	if err != nil {
		return err
	}

	var tLogs []*authorshiplog.Log
	if targetLog != nil {
		tLogs = append(tLogs, targetLog)
	}
	targetBlame := initialBlame{logs: tLogs, notes: notes, candidates: []string{targetCommitSHA}, cache: cache}
	targetVA, err := virtualattr.NewForBaseCommit(targetCommitSHA, paths, treeReader{tree: targetTree}, targetBlame)
	if err != nil {
		return err
	}

	merged := virtualattr.Merge(oldVA, targetVA, workingDirContent)
	if err := writeMergedInitial(newWL, merged); err != nil {
		return err
	}
	if err := oldWL.Delete(); err != nil {
		return attribution.New(attribution.KindIO, subsystem, "deleting superseded working log", err)
	}
	return nil
}

func writeMergedInitial(wl *workinglog.Log, merged *virtualattr.VA) error {
	files := make(map[string][]workinglog.LineAttributionEntry, len(merged.Files))
	for path, state := range merged.Files {
		files[path] = linesToEntries(state.Content, state)
	}
	if err := wl.WriteInitialAttributions(files, merged.Prompts); err != nil {
		return attribution.New(attribution.KindIO, subsystem, "writing merged INITIAL", err)
	}
	return nil
}

// StashApplyOrPop implements the stash apply/pop driver: when the stash
// resolves to a commit whose first parent still matches HEAD, the existing
// working log already reflects reality and nothing needs rebuilding;
// otherwise the caller's reset closure performs the reset-style
// reconstruction (the stash commit plays the role of target_commit).
func StashApplyOrPop(originalHeadSHA, targetHeadSHA string, reset func() error) error {
	if originalHeadSHA == targetHeadSHA {
		return nil
	}
	return reset()
}

// CIMergeReplay implements the CI-side squash/rebase merge driver: replay
// Template across the upstream commits onto the already-created merge
// commit, then push the resulting authorship log to the note store.
// Pushing the note ref itself to the remote is the caller's responsibility
// (this only writes the local refs/notes/ai entry the push will carry).
func CIMergeReplay(repo *vcs.Repo, upstreamCommits []*object.Commit, upstreamHeadSHA string, upstreamHeadLog *authorshiplog.Log, notes authorshiplog.NoteSource, mergeCommit *object.Commit, cache *authorshiplog.NegativeCache) (*authorshiplog.Log, error) {
	result, err := ComputeCIMergeReplay(repo, upstreamCommits, upstreamHeadSHA, upstreamHeadLog, notes, mergeCommit, cache)
	if err != nil {
		return nil, err
	}
	if err := repo.WriteNote(result.SHA, authorshiplog.Serialize(result.Log)); err != nil {
		return nil, attribution.New(attribution.KindVCS, subsystem, "writing authorship note for merge commit", err)
	}
	return result.Log, nil
}

// ComputeCIMergeReplay runs the CI-side squash/rebase merge replay (spec
// §4.6 "CI-side squash/rebase merge") without writing the result,
// letting callers (e.g. a `--dry-run` CLI flag) inspect the replayed log
// before committing it to the note store.
func ComputeCIMergeReplay(repo *vcs.Repo, upstreamCommits []*object.Commit, upstreamHeadSHA string, upstreamHeadLog *authorshiplog.Log, notes authorshiplog.NoteSource, mergeCommit *object.Commit, cache *authorshiplog.NegativeCache) (CommitLog, error) {
	touched, err := unionTouchedPaths(upstreamCommits)
	if err != nil {
		return CommitLog{}, err
	}

	upstreamTree, err := repo.ResolveTree(upstreamHeadSHA)
	if err != nil {
		return CommitLog{}, attribution.New(attribution.KindVCS, subsystem, "resolving upstream head tree", err)
	}

	var logs []*authorshiplog.Log
	if upstreamHeadLog != nil {
		logs = append(logs, upstreamHeadLog)
	}
	blame := initialBlame{logs: logs, notes: notes, candidates: []string{upstreamHeadSHA}, cache: cache}

	seed, err := virtualattr.NewForBaseCommit(upstreamHeadSHA, touched, treeReader{tree: upstreamTree}, blame)
	if err != nil {
		return CommitLog{}, err
	}

	replayed, err := Template(seed, seed, []*object.Commit{mergeCommit})
	if err != nil {
		return CommitLog{}, err
	}
	if len(replayed) == 0 {
		return CommitLog{}, attribution.New(attribution.KindMismatch, subsystem, "merge replay produced no commit log", nil)
	}
	return replayed[0], nil
}
