package workinglog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/blametrail/cli/internal/attribution/rangealg"
	"github.com/blametrail/cli/internal/attribution/tracker"
	"github.com/blametrail/cli/internal/vcs"
)

// MaxConcurrentFileTasks bounds per-file checkpoint work (spec §5: "cap ~30
// concurrent file tasks").
const MaxConcurrentFileTasks = 30

// ChangeStatus is the tracked-file status a checkpoint entry is built from.
type ChangeStatus string

const (
	StatusModified  ChangeStatus = "modified"
	StatusAdded     ChangeStatus = "added"
	StatusDeleted   ChangeStatus = "deleted"
	StatusUntracked ChangeStatus = "untracked"
	StatusUnmerged  ChangeStatus = "unmerged"
)

// FileChange is one candidate file for this checkpoint, as reported by the
// VCS status (out of scope for this package; the caller supplies it).
type FileChange struct {
	Path   string
	Status ChangeStatus
}

// BlameService reports, for a line of a file as of the working log's prior
// state, which author_id currently owns it. AI-authored lines report the
// owning session hash; anything else reports HumanAuthorID or !ok.
type BlameService interface {
	LineAuthor(file string, line uint32) (authorID string, ok bool)
}

// noopBlame is used when the caller has no authorship log to consult yet
// (e.g. the repository's very first checkpoint).
type noopBlame struct{}

func (noopBlame) LineAuthor(string, uint32) (string, bool) { return "", false }

// NoBlame is a BlameService with no prior state.
var NoBlame BlameService = noopBlame{}

// BuildOptions configures one checkpoint-construction pass (spec §4.3
// "Checkpoint construction").
type BuildOptions struct {
	// RepoRoot is the working directory root current_content is read from.
	RepoRoot string
	// BaseTree is the base commit's tree, used as the previous_content
	// fallback when no working-log blob exists yet for a file.
	BaseTree    *object.Tree
	Changes     []FileChange
	Kind        CheckpointKind
	Author      string
	AgentID     *AgentID
	Transcript  []Message
	Timestamp   int64
	// NewAuthorID is credited for any newly inserted text: HumanAuthorID
	// for a human checkpoint, the active session's short hash for an AI
	// checkpoint.
	NewAuthorID string
	Blame       BlameService
	Initial     InitialAttributions
	Concurrency int
}

// fileResult is the per-file outcome of one bounded-concurrency task.
type fileResult struct {
	entry           FileEntry
	lineOwners      map[uint32]string
	additions       int
	deletions       int
	newlyOverridden int
	skip            bool
}

// BuildCheckpoint runs the bounded-concurrency per-file pipeline (read
// prior blob -> read current content -> tracker.Track -> derive line
// attributions) and appends the resulting checkpoint to log. It returns the
// per-file line-owner snapshot so the caller can feed it back in as the
// BlameService input for the next checkpoint on this base.
func BuildCheckpoint(ctx context.Context, log *Log, opts BuildOptions) (map[string]map[uint32]string, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = MaxConcurrentFileTasks
	}

	results := make([]*fileResult, len(opts.Changes))
	sem := make(chan struct{}, limit)
	g, gctx := errgroup.WithContext(ctx)

	for i, change := range opts.Changes {
		i, change := i, change
		if change.Status == StatusUnmerged {
			continue
		}
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			res, err := buildFileEntry(log, opts, change)
			if err != nil {
				return fmt.Errorf("workinglog: building entry for %s: %w", change.Path, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	cp := Checkpoint{
		APIVersion: CheckpointAPIVersion,
		Kind:       opts.Kind,
		Author:     opts.Author,
		AgentID:    opts.AgentID,
		Transcript: opts.Transcript,
		Timestamp:  opts.Timestamp,
	}

	allOwners := make(map[string]map[uint32]string)
	var overrideLines int
	for _, res := range results {
		if res == nil || res.skip {
			continue
		}
		cp.Entries = append(cp.Entries, res.entry)
		allOwners[res.entry.File] = res.lineOwners
		overrideLines += res.newlyOverridden

		switch opts.Kind {
		case KindHuman:
			cp.LineStats.HumanAdded += res.additions
			cp.LineStats.HumanDeleted += res.deletions
		default:
			cp.LineStats.AIAdded += res.additions
			cp.LineStats.AIDeleted += res.deletions
		}
	}
	cp.LineStats.Overrides = overrideLines

	sort.Slice(cp.Entries, func(i, j int) bool { return cp.Entries[i].File < cp.Entries[j].File })

	if len(cp.Entries) == 0 {
		return allOwners, nil
	}
	if err := log.AppendCheckpoint(cp); err != nil {
		return nil, err
	}
	return allOwners, nil
}

func buildFileEntry(log *Log, opts BuildOptions, change FileChange) (*fileResult, error) {
	currentContent, err := readCurrentContent(opts.RepoRoot, change)
	if err != nil {
		return nil, err
	}
	if vcs.IsBinary(currentContent) {
		return &fileResult{skip: true}, nil
	}

	previousContent, priorOwners, err := previousState(log, opts, change.Path)
	if err != nil {
		return nil, err
	}

	_, hasInitial := opts.Initial.Files[change.Path]
	if previousContent == currentContent && !hasInitial {
		return &fileResult{skip: true}, nil
	}

	priorAttrs := ownersToAttributions(previousContent, priorOwners)
	newAttrs := tracker.Track(previousContent, currentContent, priorAttrs, opts.NewAuthorID, opts.Timestamp)

	lineRuns := tracker.DeriveLineAttributions(currentContent, newAttrs)
	currentOwners := runsToOwners(lineRuns)
	overridden := detectOverrideLines(priorOwners, currentOwners)
	lineRuns = tracker.ApplyOverrides(lineRuns, overridden)

	blobHash := ""
	if currentContent != "" {
		blobHash, err = log.PersistFileVersion([]byte(currentContent))
		if err != nil {
			return nil, err
		}
	}

	entry := FileEntry{
		File:             change.Path,
		BlobSHA:          blobHash,
		Attributions:     toAttributionEntries(newAttrs),
		LineAttributions: toLineAttributionEntries(lineRuns),
	}

	additions, deletions := lineDelta(previousContent, currentContent)

	owners := make(map[uint32]string, len(currentOwners))
	for line, a := range currentOwners {
		owners[line] = a
	}

	return &fileResult{
		entry:           entry,
		lineOwners:      owners,
		additions:       additions,
		deletions:       deletions,
		newlyOverridden: len(overridden),
	}, nil
}

func readCurrentContent(repoRoot string, change FileChange) (string, error) {
	if change.Status == StatusDeleted {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(repoRoot, change.Path)) //nolint:gosec // path is a repo-relative tracked file
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("workinglog: read %s: %w", change.Path, err)
	}
	return string(data), nil
}

// previousState resolves a file's content as of the last checkpoint (or the
// base tree if there is none yet), plus the line-owner map to seed the
// tracker's prior attributions.
func previousState(log *Log, opts BuildOptions, path string) (string, map[uint32]string, error) {
	checkpoints, err := log.ReadAllCheckpoints()
	if err != nil {
		return "", nil, err
	}

	for i := len(checkpoints) - 1; i >= 0; i-- {
		for _, e := range checkpoints[i].Entries {
			if e.File != path {
				continue
			}
			var content string
			if e.BlobSHA != "" {
				blob, err := log.GetFileVersion(e.BlobSHA)
				if err != nil {
					return "", nil, err
				}
				content = string(blob)
			}
			return content, seedLineOwners(path, content, opts, entryLineOwners(e)), nil
		}
	}

	// No checkpoint yet: fall back to INITIAL, then the base tree.
	if initialAttrs, ok := opts.Initial.Files[path]; ok {
		content := baseTreeContent(opts, path)
		return content, seedLineOwners(path, content, opts, linesFromInitial(initialAttrs)), nil
	}

	content := baseTreeContent(opts, path)
	return content, seedLineOwners(path, content, opts, nil), nil
}

func baseTreeContent(opts BuildOptions, path string) string {
	if opts.BaseTree == nil {
		return ""
	}
	content, ok, err := vcs.FileContent(opts.BaseTree, path)
	if err != nil || !ok {
		return ""
	}
	return content
}

func entryLineOwners(e FileEntry) map[uint32]string {
	owners := make(map[uint32]string)
	for _, la := range e.LineAttributions {
		for l := la.StartLine; l <= la.EndLine; l++ {
			owners[l] = la.AuthorID
		}
	}
	return owners
}

func linesFromInitial(attrs []LineAttributionEntry) map[uint32]string {
	owners := make(map[uint32]string)
	for _, la := range attrs {
		for l := la.StartLine; l <= la.EndLine; l++ {
			owners[l] = la.AuthorID
		}
	}
	return owners
}

// seedLineOwners applies spec §4.3's checkpoint-construction rule: human
// lines are kept as the human sentinel for human checkpoints, and rewritten
// to the active AI session for AI checkpoints (the session is understood to
// have accepted them); lines with no known owner fall back to the
// BlameService, then to the human sentinel.
func seedLineOwners(path, content string, opts BuildOptions, known map[uint32]string) map[uint32]string {
	n := tracker.CountLines(content)
	owners := make(map[uint32]string, n)
	for line := 1; line <= n; line++ {
		//nolint:gosec // G115: line count bounded well under uint32 in practice
		l := uint32(line)
		authorID, ok := known[l]
		if !ok && opts.Blame != nil {
			authorID, ok = opts.Blame.LineAuthor(path, l)
		}
		if !ok {
			authorID = tracker.HumanAuthorID
		}
		if authorID == tracker.HumanAuthorID && opts.Kind != KindHuman {
			authorID = opts.NewAuthorID
		}
		owners[l] = authorID
	}
	return owners
}

func ownersToAttributions(content string, owners map[uint32]string) []tracker.Attribution {
	starts := lineByteStarts(content)
	var out []tracker.Attribution
	for i := range starts {
		//nolint:gosec // G115: line count bounded well under uint32 in practice
		line := uint32(i + 1)
		author, ok := owners[line]
		if !ok {
			continue
		}
		end := len(content)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		out = append(out, tracker.Attribution{Start: starts[i], End: end, AuthorID: author})
	}
	return coalesceByAuthor(out)
}

func coalesceByAuthor(attrs []tracker.Attribution) []tracker.Attribution {
	if len(attrs) == 0 {
		return nil
	}
	out := []tracker.Attribution{attrs[0]}
	for _, a := range attrs[1:] {
		last := &out[len(out)-1]
		if last.End == a.Start && last.AuthorID == a.AuthorID {
			last.End = a.End
			continue
		}
		out = append(out, a)
	}
	return out
}

func lineByteStarts(content string) []int {
	if content == "" {
		return nil
	}
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func runsToOwners(runs []tracker.LineAttribution) map[uint32]string {
	owners := make(map[uint32]string)
	for _, r := range runs {
		for l := r.StartLine; l <= r.EndLine; l++ {
			owners[l] = r.AuthorID
		}
	}
	return owners
}

// detectOverrideLines compares owner snapshots the same way
// tracker.DetectOverrides does, but over the simpler string-keyed maps this
// package uses at its boundary.
func detectOverrideLines(previous, current map[uint32]string) map[uint32]bool {
	overridden := make(map[uint32]bool)
	for line, now := range current {
		if was, ok := previous[line]; ok && was != now {
			overridden[line] = true
		}
	}
	return overridden
}

func toAttributionEntries(attrs []tracker.Attribution) []AttributionEntry {
	out := make([]AttributionEntry, len(attrs))
	for i, a := range attrs {
		out[i] = AttributionEntry{Start: a.Start, End: a.End, AuthorID: a.AuthorID, Timestamp: a.Timestamp}
	}
	return out
}

func toLineAttributionEntries(runs []tracker.LineAttribution) []LineAttributionEntry {
	out := make([]LineAttributionEntry, len(runs))
	for i, r := range runs {
		out[i] = LineAttributionEntry{StartLine: r.StartLine, EndLine: r.EndLine, AuthorID: r.AuthorID, Overridden: r.Overridden}
	}
	return out
}

func lineDelta(previous, current string) (additions, deletions int) {
	if previous == current {
		return 0, 0
	}
	prevLines := splitLines(previous)
	curLines := splitLines(current)

	prevSet := make(map[string]int)
	for _, l := range prevLines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		prevSet[l]++
	}
	curSet := make(map[string]int)
	for _, l := range curLines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		curSet[l]++
	}

	for l, n := range curSet {
		if have := prevSet[l]; n > have {
			additions += n - have
		}
	}
	for l, n := range prevSet {
		if have := curSet[l]; n > have {
			deletions += n - have
		}
	}
	return additions, deletions
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// ApplyLineRanges converts lines to LineRange entries via rangealg, used by
// callers that need to turn a line-owner map into the committed-range form
// authorshiplog expects.
func ApplyLineRanges(lines []uint32) []rangealg.LineRange {
	return rangealg.CompressLines(lines)
}
