// Package virtualattr implements the in-memory "virtual attribution"
// projection: what the authorship of a set of files would be, as of some
// base commit, transformable onto arbitrary new content and mergeable
// across two parents (spec §4.5). This is what every rewrite driver in
// internal/attribution/rewrite builds and consumes.
package virtualattr

import (
	"sort"

	"github.com/blametrail/cli/internal/attribution"
	"github.com/blametrail/cli/internal/attribution/authorshiplog"
	"github.com/blametrail/cli/internal/attribution/rangealg"
	"github.com/blametrail/cli/internal/attribution/tracker"
	"github.com/blametrail/cli/internal/attribution/workinglog"
)

const subsystem = "virtualattr"

// FileState is one file's content plus its character-interval attributions
// as of the VA's current point in time.
type FileState struct {
	Content string
	Attrs   []tracker.Attribution
}

// VA ("virtual attribution") is a file-by-file authorship snapshot not yet
// bound to any commit.
type VA struct {
	BaseCommit string
	Files      map[string]FileState
	Prompts    map[string]workinglog.PromptRecord
}

// BlameLookup resolves, for a (path, line) pair at a given commit, the
// owning author_id — the "local blame service" spec §4.5 construction
// calls into. Implementations typically wrap authorshiplog.LineLookup
// plus a vcs.Repo for tree reads.
type BlameLookup interface {
	LineAuthor(path string, line uint32) (authorID string, ok bool)
}

// TreeReader abstracts the single read construction needs: a path's full
// content at the VA's base commit.
type TreeReader interface {
	FileContent(path string) (content string, ok bool)
}

// NewForBaseCommit implements `new_for_base_commit(commit, paths)`: for
// each path, read content at commit and run blame to populate attributions.
func NewForBaseCommit(commit string, paths []string, tree TreeReader, blame BlameLookup) (*VA, error) {
	va := &VA{BaseCommit: commit, Files: make(map[string]FileState, len(paths)), Prompts: make(map[string]workinglog.PromptRecord)}

	for _, path := range paths {
		content, ok := tree.FileContent(path)
		if !ok {
			continue
		}
		attrs := attributionsFromBlame(content, path, blame)
		va.Files[path] = FileState{Content: content, Attrs: attrs}
	}
	return va, nil
}

// FromWorkingLogForCommit implements `from_working_log_for_commit`: build
// as NewForBaseCommit, then fold in the commit's working log checkpoints so
// uncommitted AI activity is visible.
func FromWorkingLogForCommit(commit string, paths []string, tree TreeReader, blame BlameLookup, log *workinglog.Log) (*VA, error) {
	va, err := NewForBaseCommit(commit, paths, tree, blame)
	if err != nil {
		return nil, err
	}

	checkpoints, err := log.ReadAllCheckpoints()
	if err != nil {
		return nil, attribution.New(attribution.KindIO, subsystem, "reading working log checkpoints", err)
	}

	for _, cp := range checkpoints {
		if cp.AgentID != nil {
			hash := authorshiplog.ShortHash(cp.AgentID.Tool, cp.AgentID.ID)
			va.Prompts[hash] = promptRecordFromCheckpoint(cp, va.Prompts[hash])
		}
		for _, entry := range cp.Entries {
			state := va.Files[entry.File]
			newContent := contentFromBlob(log, entry.BlobSHA, state.Content)
			newAuthor := tracker.HumanAuthorID
			if cp.AgentID != nil {
				newAuthor = authorshiplog.ShortHash(cp.AgentID.Tool, cp.AgentID.ID)
			}
			attrs := tracker.Track(state.Content, newContent, state.Attrs, newAuthor, cp.Timestamp)
			va.Files[entry.File] = FileState{Content: newContent, Attrs: attrs}
		}
	}
	return va, nil
}

// FromRawData implements `from_raw_data`: a low-level constructor used by
// the transformer to build an intermediate VA without re-reading any VCS
// state.
func FromRawData(base string, files map[string]FileState, prompts map[string]workinglog.PromptRecord) *VA {
	return &VA{BaseCommit: base, Files: files, Prompts: prompts}
}

func promptRecordFromCheckpoint(cp workinglog.Checkpoint, existing workinglog.PromptRecord) workinglog.PromptRecord {
	record := existing
	if record.AgentID.Tool == "" && cp.AgentID != nil {
		record.AgentID = *cp.AgentID
		record.HumanAuthor = cp.Author
	}
	if len(cp.Transcript) > len(record.Messages) {
		record.Messages = cp.Transcript
	}
	record.TotalAdditions += cp.LineStats.AIAdded
	record.TotalDeletions += cp.LineStats.AIDeleted
	record.OverriddenLines += cp.LineStats.Overrides
	return record
}

func contentFromBlob(log *workinglog.Log, blobSHA, fallback string) string {
	if blobSHA == "" {
		return fallback
	}
	data, err := log.GetFileVersion(blobSHA)
	if err != nil {
		return fallback
	}
	return string(data)
}

func attributionsFromBlame(content string, path string, blame BlameLookup) []tracker.Attribution {
	n := tracker.CountLines(content)
	owners := make(map[uint32]string, n)
	for line := uint32(1); line <= uint32(n); line++ { //nolint:gosec // G115: bounded well under uint32 in practice
		authorID := tracker.HumanAuthorID
		if blame != nil {
			if a, ok := blame.LineAuthor(path, line); ok {
				authorID = a
			}
		}
		owners[line] = authorID
	}
	return lineOwnersToAttributions(content, owners)
}

func lineOwnersToAttributions(content string, owners map[uint32]string) []tracker.Attribution {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}

	var out []tracker.Attribution
	for i, start := range starts {
		end := len(content)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		author, ok := owners[uint32(i+1)] //nolint:gosec // G115: bounded well under uint32 in practice
		if !ok {
			continue
		}
		out = append(out, tracker.Attribution{Start: start, End: end, AuthorID: author})
	}
	return coalesce(out)
}

func coalesce(attrs []tracker.Attribution) []tracker.Attribution {
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

// Transform implements "Transform to a new content state" (spec §4.5): for
// each file in newContent, track genuinely new text under DummyAuthorID,
// then if reference is non-nil attempt restoration of the dummy spans from
// it, drop anything still dummy, and re-derive line attributions.
// Files whose newContent is empty keep their previous state verbatim (the
// file is simply not present in this commit yet).
func Transform(va *VA, newContent map[string]string, reference *VA) (*VA, error) {
	out := &VA{BaseCommit: va.BaseCommit, Files: make(map[string]FileState, len(newContent)), Prompts: clonePrompts(va.Prompts)}

	for path, content := range newContent {
		prior := va.Files[path]
		if content == "" {
			out.Files[path] = prior
			continue
		}

		attrs := tracker.Track(prior.Content, content, prior.Attrs, tracker.DummyAuthorID, 0)

		if reference != nil {
			if refState, ok := reference.Files[path]; ok {
				attrs = restoreFromReference(content, attrs, refState)
			}
		}

		attrs = tracker.FilterDummies(attrs)
		out.Files[path] = FileState{Content: content, Attrs: attrs}
	}

	if len(out.Files) != len(newContent) {
		return nil, attribution.New(attribution.KindMismatch, subsystem, "transformed file count disagrees with input", nil)
	}
	return out, nil
}

// restoreFromReference implements the dummy-restoration rule: if content
// exactly matches the reference's content, adopt its attributions
// wholesale; otherwise, for each dummy interval, locate the matching text
// in the reference and, if found, adopt the reference's author for it.
func restoreFromReference(content string, attrs []tracker.Attribution, ref FileState) []tracker.Attribution {
	if content == ref.Content {
		out := make([]tracker.Attribution, len(ref.Attrs))
		copy(out, ref.Attrs)
		return out
	}

	out := make([]tracker.Attribution, len(attrs))
	copy(out, attrs)
	for i, a := range out {
		if a.AuthorID != tracker.DummyAuthorID {
			continue
		}
		text := content[a.Start:a.End]
		if idx := indexOf(ref.Content, text); idx >= 0 {
			if owner, ok := authorAtOffset(ref.Attrs, idx); ok {
				out[i].AuthorID = owner.AuthorID
				out[i].Timestamp = owner.Timestamp
			}
		}
	}
	return out
}

func indexOf(haystack, needle string) int {
	if needle == "" {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func authorAtOffset(attrs []tracker.Attribution, offset int) (tracker.Attribution, bool) {
	for _, a := range attrs {
		if offset >= a.Start && offset < a.End {
			return a, true
		}
	}
	return tracker.Attribution{}, false
}

func clonePrompts(prompts map[string]workinglog.PromptRecord) map[string]workinglog.PromptRecord {
	out := make(map[string]workinglog.PromptRecord, len(prompts))
	for k, v := range prompts {
		out[k] = v
	}
	return out
}

// Merge implements "Merging two VAs (favor first)": for each file, a line
// is attributed to primary's author when both agree the line exists and
// primary claims it; otherwise whichever side has a non-gap attribution
// wins. finalContent supplies the content each merged file should carry.
func Merge(primary, secondary *VA, finalContent map[string]string) *VA {
	out := &VA{Files: make(map[string]FileState, len(finalContent)), Prompts: mergePrompts(primary.Prompts, secondary.Prompts)}

	for path, content := range finalContent {
		p, pok := primary.Files[path]
		s, sok := secondary.Files[path]

		if content == "" {
			switch {
			case pok:
				out.Files[path] = p
			case sok:
				out.Files[path] = s
			}
			continue
		}

		pOwners := tracker.LineAuthors(content, p.Attrs)
		sOwners := tracker.LineAuthors(content, s.Attrs)

		n := tracker.CountLines(content)
		merged := make(map[uint32]tracker.Attribution)
		for line := uint32(1); line <= uint32(n); line++ { //nolint:gosec // G115: bounded well under uint32 in practice
			po, pHas := pOwners[line]
			so, sHas := sOwners[line]
			switch {
			case pHas:
				merged[line] = tracker.Attribution{AuthorID: po.AuthorID, Timestamp: po.Timestamp}
			case sHas:
				merged[line] = tracker.Attribution{AuthorID: so.AuthorID, Timestamp: so.Timestamp}
			}
		}

		attrs := mergedLinesToCharAttrs(content, merged)
		out.Files[path] = FileState{Content: content, Attrs: attrs}
	}
	return out
}

func mergedLinesToCharAttrs(content string, merged map[uint32]tracker.Attribution) []tracker.Attribution {
	owners := make(map[uint32]string, len(merged))
	for l, a := range merged {
		owners[l] = a.AuthorID
	}
	return lineOwnersToAttributions(content, owners)
}

func mergePrompts(a, b map[string]workinglog.PromptRecord) map[string]workinglog.PromptRecord {
	out := make(map[string]workinglog.PromptRecord, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ToAuthorshipLog implements `to_authorship_log()`: group line-attributions
// by author_id (dropping the human sentinel), build attestations, and
// populate metadata.prompts from retained sessions.
func ToAuthorshipLog(va *VA, commitSHA string) *authorshiplog.Log {
	log := authorshiplog.New(commitSHA, va.Prompts)

	paths := sortedKeys(va.Files)
	var attestations []authorshiplog.FileAttestation
	for _, path := range paths {
		state := va.Files[path]
		lineRuns := tracker.DeriveLineAttributions(state.Content, state.Attrs)

		byAuthor := make(map[string][]uint32)
		for _, r := range lineRuns {
			if r.AuthorID == tracker.HumanAuthorID || r.AuthorID == "" {
				continue
			}
			for l := r.StartLine; l <= r.EndLine; l++ {
				byAuthor[r.AuthorID] = append(byAuthor[r.AuthorID], l)
			}
		}
		if len(byAuthor) == 0 {
			continue
		}

		hashes := make([]string, 0, len(byAuthor))
		for h := range byAuthor {
			hashes = append(hashes, h)
		}
		sort.Strings(hashes)

		var entries []authorshiplog.AttestationEntry
		for _, h := range hashes {
			ranges := mergeSortedLines(byAuthor[h])
			entries = append(entries, authorshiplog.AttestationEntry{Hash: h, LineRanges: ranges})
		}
		attestations = append(attestations, authorshiplog.FileAttestation{FilePath: path, Entries: entries})
	}

	log.Attestations = attestations
	finalizePrompts(log)
	return log
}

// ToAuthorshipLogAndInitialWorkingLog implements
// `to_authorship_log_and_initial_working_log(committed_files)`: splits each
// file's line-attributions into the lines whose text matches the
// corresponding committed content (-> authorship log) and the remainder
// (-> INITIAL seed).
func ToAuthorshipLogAndInitialWorkingLog(va *VA, commitSHA string, committedContent map[string]string) (*authorshiplog.Log, workinglog.InitialAttributions) {
	log := authorshiplog.New(commitSHA, va.Prompts)
	initial := workinglog.InitialAttributions{
		Files:   make(map[string][]workinglog.LineAttributionEntry),
		Prompts: clonePrompts(va.Prompts),
	}

	paths := sortedKeys(va.Files)
	var attestations []authorshiplog.FileAttestation
	for _, path := range paths {
		state := va.Files[path]
		lineRuns := tracker.DeriveLineAttributions(state.Content, state.Attrs)

		committedLines := tracker.CountLines(committedContent[path])

		byAuthor := make(map[string][]uint32)
		var remainder []workinglog.LineAttributionEntry
		for _, r := range lineRuns {
			for l := r.StartLine; l <= r.EndLine; l++ {
				if l <= uint32(committedLines) { //nolint:gosec // G115: bounded well under uint32 in practice
					if r.AuthorID != tracker.HumanAuthorID && r.AuthorID != "" {
						byAuthor[r.AuthorID] = append(byAuthor[r.AuthorID], l)
					}
				} else {
					remainder = append(remainder, workinglog.LineAttributionEntry{StartLine: l, EndLine: l, AuthorID: r.AuthorID, Overridden: r.Overridden})
				}
			}
		}

		if len(byAuthor) > 0 {
			hashes := make([]string, 0, len(byAuthor))
			for h := range byAuthor {
				hashes = append(hashes, h)
			}
			sort.Strings(hashes)
			var entries []authorshiplog.AttestationEntry
			for _, h := range hashes {
				entries = append(entries, authorshiplog.AttestationEntry{Hash: h, LineRanges: mergeSortedLines(byAuthor[h])})
			}
			attestations = append(attestations, authorshiplog.FileAttestation{FilePath: path, Entries: entries})
		}
		if len(remainder) > 0 {
			initial.Files[path] = remainder
		}
	}

	log.Attestations = attestations
	finalizePrompts(log)
	return log, initial
}

// finalizePrompts computes each referenced session's accepted_lines from the
// log's own attestations and drops any prompt record no attestation
// references, mirroring authorshiplog.finalize's bookkeeping (invariant 4:
// hash coverage) for VA-produced logs.
func finalizePrompts(log *authorshiplog.Log) {
	accepted := make(map[string]int)
	for _, a := range log.Attestations {
		for _, e := range a.Entries {
			accepted[e.Hash] += len(rangealg.ExpandAll(e.LineRanges))
		}
	}
	for hash, record := range log.Metadata.Prompts {
		n, ok := accepted[hash]
		if !ok {
			delete(log.Metadata.Prompts, hash)
			continue
		}
		record.AcceptedLines = n
		log.Metadata.Prompts[hash] = record
	}
}

func mergeSortedLines(lines []uint32) []rangealg.LineRange {
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
	return rangealg.MergeLineRanges(rangealg.CompressLines(lines))
}

func sortedKeys(m map[string]FileState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
