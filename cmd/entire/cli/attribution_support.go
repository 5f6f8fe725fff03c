package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/blametrail/cli/cmd/entire/cli/paths"
	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/vcs"
)

// resolveTrackedPath turns a CLI-supplied path argument (relative to the
// caller's cwd, or absolute) into a repo-root-relative path suitable for
// vcs.FileContent/attestation lookups, and rejects anything under the
// .entire metadata tree: that state isn't a tracked file and was never
// attributed.
func resolveTrackedPath(repoRoot, arg string) (string, error) {
	abs := arg
	if !filepath.IsAbs(arg) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		abs = filepath.Join(cwd, arg)
	}

	rel := paths.ToRelativePath(abs, repoRoot)
	if rel == "" {
		return "", fmt.Errorf("%s: outside the repository", arg)
	}
	rel = filepath.ToSlash(rel)
	if paths.IsInfrastructurePath(rel) {
		return "", errors.New("paths under .entire are not tracked files")
	}
	return rel, nil
}

// openRepoAndResolve opens the current repository and resolves rev (a
// commit-ish, defaulting to HEAD when empty) to a commit and its tree.
func openRepoAndResolve(rev string) (*vcs.Repo, *object.Commit, error) {
	repoRoot, err := paths.RepoRoot()
	if err != nil {
		return nil, nil, NewSilentError(fmt.Errorf("not a git repository: %w", err))
	}

	repo, err := vcs.Open(repoRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("opening repository: %w", err)
	}

	if rev == "" || rev == "HEAD" {
		commit, err := repo.HeadCommit()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving HEAD: %w", err)
		}
		return repo, commit, nil
	}

	commit, err := repo.ResolveCommit(rev)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving %s: %w", rev, err)
	}
	return repo, commit, nil
}

// loadAuthorshipLog reads and deserializes the authorship log attached to
// commitSHA. A missing note (never annotated, or a commit predating
// attribution) is reported as a nil log rather than an error, matching
// the rewrite drivers' "missing log is the empty log" policy.
func loadAuthorshipLog(repo *vcs.Repo, commitSHA string) (*authorshiplog.Log, error) {
	text, err := repo.ReadNote(commitSHA)
	if err != nil || text == "" {
		return nil, nil //nolint:nilerr // absent note is not fatal, it's "no attribution yet"
	}
	log, err := authorshiplog.Deserialize(text)
	if err != nil {
		return nil, fmt.Errorf("authorshiplog: parsing note for %s: %w", commitSHA, err)
	}
	return log, nil
}

// fileAttestation returns path's attestation within log, if any.
func fileAttestation(log *authorshiplog.Log, path string) (authorshiplog.FileAttestation, bool) {
	if log == nil {
		return authorshiplog.FileAttestation{}, false
	}
	for _, a := range log.Attestations {
		if a.FilePath == path {
			return a, true
		}
	}
	return authorshiplog.FileAttestation{}, false
}

// lineAuthorLabel resolves line's author within a file's attestation: the
// owning session's tool/id label, or "human" when no AI entry covers it.
func lineAuthorLabel(log *authorshiplog.Log, attestation authorshiplog.FileAttestation, hasAttestation bool, line uint32) string {
	if hasAttestation {
		for _, e := range attestation.Entries {
			for _, r := range e.LineRanges {
				if r.Contains(line) {
					if record, ok := log.Metadata.Prompts[e.Hash]; ok {
						return fmt.Sprintf("%s:%s", record.AgentID.Tool, e.Hash)
					}
					return e.Hash
				}
			}
		}
	}
	return "human"
}
