// Package vcs is the thin go-git wrapper the attribution engine calls into
// for everything spec.md treats as an external collaborator: tree/blob
// reads, the refs/notes/ai note store, and commit-range diffing.
package vcs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// NotesRef is the git-notes ref authorship logs are attached under.
const NotesRef = "refs/notes/ai"

// maxBinarySniff bounds how much of a blob's prefix is scanned for a null
// byte when deciding whether a file is text or binary.
const maxBinarySniff = 8000

// Repo wraps a go-git repository with the read/write operations the
// attribution engine needs, keeping callers from depending on go-git types
// directly.
type Repo struct {
	repo *git.Repository
	root string
}

// Open opens the git repository rooted at path (the working tree root).
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("vcs: open %s: %w", path, err)
	}
	return &Repo{repo: r, root: path}, nil
}

// Root returns the repository's working tree root.
func (r *Repo) Root() string {
	return r.root
}

// ErrNotFound is returned when a requested tree/blob/note entry is absent.
var ErrNotFound = errors.New("vcs: not found")

// ResolveTree returns the tree object for a commit-ish revision string.
func (r *Repo) ResolveTree(rev string) (*object.Tree, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrNotFound, rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s: %w", ErrNotFound, hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("vcs: tree for %s: %w", hash, err)
	}
	return tree, nil
}

// ResolveCommit returns the commit object for a commit-ish revision string.
func (r *Repo) ResolveCommit(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrNotFound, rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s: %w", ErrNotFound, hash, err)
	}
	return commit, nil
}

// FileContent reads path's content out of tree. Returns ErrNotFound if the
// path is absent, and ("", false, nil) if the file looks binary (a null
// byte within the first maxBinarySniff bytes) — binary files are never
// attributed (spec.md §1 non-goals).
func FileContent(tree *object.Tree, path string) (string, bool, error) {
	if tree == nil {
		return "", true, nil
	}
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", true, nil
		}
		return "", false, fmt.Errorf("vcs: read %s: %w", path, err)
	}

	reader, err := f.Reader()
	if err != nil {
		return "", false, fmt.Errorf("vcs: open blob for %s: %w", path, err)
	}
	defer reader.Close() //nolint:errcheck // read-only, nothing actionable on close failure

	prefix := make([]byte, maxBinarySniff)
	n, _ := io.ReadFull(reader, prefix)
	if bytes.IndexByte(prefix[:n], 0) >= 0 {
		return "", false, nil
	}

	rest, err := io.ReadAll(reader)
	if err != nil {
		return "", false, fmt.Errorf("vcs: read %s: %w", path, err)
	}
	content := string(prefix[:n]) + string(rest)
	return content, true, nil
}

// IsBinary reports whether content contains a null byte in its first
// maxBinarySniff bytes — the same heuristic FileContent applies to blobs,
// exposed for checking working-directory content the caller already read.
func IsBinary(content string) bool {
	n := len(content)
	if n > maxBinarySniff {
		n = maxBinarySniff
	}
	return bytes.IndexByte([]byte(content[:n]), 0) >= 0
}

// ListFiles returns every regular-file path present in tree.
func ListFiles(tree *object.Tree) ([]string, error) {
	if tree == nil {
		return nil, nil
	}
	var paths []string
	err := tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vcs: list files: %w", err)
	}
	return paths, nil
}

// ChangedFiles returns the set of paths whose content differs between two
// trees (either may be nil to mean "empty tree"), including adds and
// deletes.
func ChangedFiles(from, to *object.Tree) ([]string, error) {
	var changes object.Changes
	var err error
	switch {
	case from == nil && to == nil:
		return nil, nil
	case from == nil:
		changes, err = object.DiffTree(&object.Tree{}, to)
	case to == nil:
		changes, err = object.DiffTree(from, &object.Tree{})
	default:
		changes, err = object.DiffTree(from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("vcs: diff trees: %w", err)
	}

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		name := c.To.Name
		if name == "" {
			name = c.From.Name
		}
		paths = append(paths, name)
	}
	return paths, nil
}

// CommitsBetween walks first-parent commits from head down to (but
// excluding) base, returning them oldest-first. This is
// walk_commits_to_base from the original Rust source, used to resolve
// original_commits/new_commits for rewrite drivers that only receive a
// head and a base (SPEC_FULL.md supplemented feature 5).
func (r *Repo) CommitsBetween(head, base string) ([]*object.Commit, error) {
	headHash, err := r.repo.ResolveRevision(plumbing.Revision(head))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrNotFound, head, err)
	}
	baseHash, err := r.repo.ResolveRevision(plumbing.Revision(base))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrNotFound, base, err)
	}

	var commits []*object.Commit
	cur := *headHash
	for cur != *baseHash {
		c, err := r.repo.CommitObject(cur)
		if err != nil {
			return nil, fmt.Errorf("vcs: commit %s: %w", cur, err)
		}
		commits = append(commits, c)
		if c.NumParents() == 0 {
			break
		}
		cur = c.ParentHashes[0]
	}

	// Reverse into oldest-first order.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// MergeBase returns the best common ancestor commit SHA of a and b, used by
// the rewrite dispatcher to bound a rebase/cherry-pick/merge replay to the
// commits genuinely unique to each side.
func (r *Repo) MergeBase(a, b string) (string, error) {
	ca, err := r.ResolveCommit(a)
	if err != nil {
		return "", err
	}
	cb, err := r.ResolveCommit(b)
	if err != nil {
		return "", err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", fmt.Errorf("vcs: merge-base of %s and %s: %w", a, b, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("%w: no common ancestor of %s and %s", ErrNotFound, a, b)
	}
	return bases[0].Hash.String(), nil
}

// notesTree resolves NotesRef to its current tree. Returns (nil, nil) if
// the ref does not exist yet (the note store has never been written to).
func (r *Repo) notesTree() (*object.Tree, error) {
	ref, err := r.repo.Reference(plumbing.ReferenceName(NotesRef), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("vcs: resolve %s: %w", NotesRef, err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("vcs: notes commit: %w", err)
	}
	return commit.Tree()
}

// ReadNote returns the note text attached to commitSHA under NotesRef, or
// ErrNotFound if none exists.
func (r *Repo) ReadNote(commitSHA string) (string, error) {
	tree, err := r.notesTree()
	if err != nil {
		return "", err
	}
	if tree == nil {
		return "", fmt.Errorf("%w: notes ref does not exist", ErrNotFound)
	}
	content, ok, err := FileContent(tree, commitSHA)
	if err != nil {
		return "", err
	}
	if !ok || content == "" {
		return "", fmt.Errorf("%w: note for %s", ErrNotFound, commitSHA)
	}
	return content, nil
}

// HasNote reports whether a note exists for commitSHA, without surfacing
// ErrNotFound as an error.
func (r *Repo) HasNote(commitSHA string) bool {
	_, err := r.ReadNote(commitSHA)
	return err == nil
}

// WriteNote attaches text to commitSHA under NotesRef, replacing any
// existing note for that commit, using go-git's object store directly
// (blob + flat tree + commit), matching the teacher's preference for
// go-git plumbing over shelling out. The notes tree uses the flat
// filename-is-the-full-SHA layout, which `git notes` itself falls back to
// reading even though it switches to a fanout layout once note counts grow.
func (r *Repo) WriteNote(commitSHA, text string) error {
	existing, err := r.notesTree()
	if err != nil {
		return err
	}

	entries := make(map[string]plumbing.Hash)
	if existing != nil {
		if err := existing.Files().ForEach(func(f *object.File) error {
			entries[f.Name] = f.Blob.Hash
			return nil
		}); err != nil {
			return fmt.Errorf("vcs: read existing notes tree: %w", err)
		}
	}

	blob := &plumbing.MemoryObject{}
	blob.SetType(plumbing.BlobObject)
	if _, err := blob.Write([]byte(text)); err != nil {
		return fmt.Errorf("vcs: write note blob: %w", err)
	}
	blobHash, err := r.repo.Storer.SetEncodedObject(blob)
	if err != nil {
		return fmt.Errorf("vcs: store note blob: %w", err)
	}
	entries[commitSHA] = blobHash

	treeHash, err := r.writeFlatTree(entries)
	if err != nil {
		return err
	}

	var parents []plumbing.Hash
	if ref, err := r.repo.Reference(plumbing.ReferenceName(NotesRef), true); err == nil {
		parents = []plumbing.Hash{ref.Hash()}
	}

	sig := object.Signature{Name: "entire", Email: "entire@localhost", When: time.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("Notes for %s", commitSHA),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	commitObj := r.repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return fmt.Errorf("vcs: encode notes commit: %w", err)
	}
	commitHash, err := r.repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return fmt.Errorf("vcs: store notes commit: %w", err)
	}

	newRef := plumbing.NewHashReference(plumbing.ReferenceName(NotesRef), commitHash)
	if err := r.repo.Storer.SetReference(newRef); err != nil {
		return fmt.Errorf("vcs: update %s: %w", NotesRef, err)
	}
	return nil
}

// writeFlatTree stores a single-level tree from name -> blob hash and
// returns its hash.
func (r *Repo) writeFlatTree(entries map[string]plumbing.Hash) (plumbing.Hash, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	tree := &object.Tree{}
	for _, name := range names {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: name,
			Mode: filemode.Regular,
			Hash: entries[name],
		})
	}

	obj := r.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("vcs: encode notes tree: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("vcs: store notes tree: %w", err)
	}
	return hash, nil
}

// WorktreeChange is one path with uncommitted changes relative to HEAD.
type WorktreeChange struct {
	Path   string
	Status byte // go-git status code: 'M', 'A', 'D', 'U', etc.
}

// ChangedWorktreeFiles reports every tracked or newly-added path with
// uncommitted changes (staged or unstaged), the set a human pre-commit
// checkpoint attributes (spec §4.7 "Human pre-commit checkpoint").
func (r *Repo) ChangedWorktreeFiles() ([]WorktreeChange, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("vcs: open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("vcs: worktree status: %w", err)
	}

	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := make([]WorktreeChange, 0, len(paths))
	for _, path := range paths {
		fs := status[path]
		code := byte(fs.Worktree)
		if code == ' ' {
			code = byte(fs.Staging)
		}
		changes = append(changes, WorktreeChange{Path: path, Status: code})
	}
	return changes, nil
}

// ReadWorktreeFile reads a path's current on-disk content relative to the
// repository root.
func (r *Repo) ReadWorktreeFile(path string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(r.root, path)) //nolint:gosec // path is relative to the repo root the caller opened
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vcs: read worktree file %s: %w", path, err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// CommitSHA returns a commit object's hex SHA.
func CommitSHA(c *object.Commit) string {
	return c.Hash.String()
}

// HeadCommit resolves the checked-out branch's current commit, the base a
// human pre-commit checkpoint or an AI post-tool-use checkpoint attributes
// against.
func (r *Repo) HeadCommit() (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision("HEAD"))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving HEAD: %w", ErrNotFound, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s: %w", ErrNotFound, hash, err)
	}
	return commit, nil
}

// ParentTree returns a commit's first-parent tree, or nil if it has none
// (i.e. this is the repository's root commit).
func ParentTree(c *object.Commit) (*object.Tree, error) {
	if c.NumParents() == 0 {
		return nil, nil
	}
	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("vcs: parent of %s: %w", c.Hash, err)
	}
	return parent.Tree()
}
