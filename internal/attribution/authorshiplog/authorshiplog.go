// Package authorshiplog implements the per-commit, on-disk authorship
// record: construction from a working log's checkpoint stream, the
// reverse-scan line lookup with note-store fallback, filtering to
// committed lines, and the text serialization format (spec §4.4).
package authorshiplog

import (
	"sort"

	"github.com/blametrail/cli/internal/attribution/rangealg"
	"github.com/blametrail/cli/internal/attribution/tracker"
	"github.com/blametrail/cli/internal/attribution/workinglog"
)

// SchemaVersion is compared exactly when deserializing metadata JSON.
const SchemaVersion = "authorship/3.0.0"

const subsystem = "authorshiplog"

// AttestationEntry is one (session, ranges) pair within a file's attestation.
type AttestationEntry struct {
	Hash       string
	LineRanges []rangealg.LineRange
}

// FileAttestation is one file's AI-attributed line ranges, grouped by session.
type FileAttestation struct {
	FilePath string
	Entries  []AttestationEntry
}

// AuthorshipMetadata is the JSON block below the `---` divider.
type AuthorshipMetadata struct {
	SchemaVersion string                             `json:"schema_version"`
	BaseCommitSHA string                              `json:"base_commit_sha"`
	Prompts       map[string]workinglog.PromptRecord `json:"prompts"`
}

// Log is one commit's authorship record (spec §3 AuthorshipLog).
type Log struct {
	Attestations []FileAttestation
	Metadata     AuthorshipMetadata
}

// New returns an empty log bound to commitSHA, per construction step 1.
func New(commitSHA string, initialPrompts map[string]workinglog.PromptRecord) *Log {
	prompts := make(map[string]workinglog.PromptRecord, len(initialPrompts))
	for k, v := range initialPrompts {
		prompts[k] = v
	}
	return &Log{
		Metadata: AuthorshipMetadata{
			SchemaVersion: SchemaVersion,
			BaseCommitSHA: commitSHA,
			Prompts:       prompts,
		},
	}
}

// fileLineAuthors flattens one checkpoint file entry's line_attributions
// into a per-line author map, skipping overridden bookkeeping (irrelevant
// to which session currently owns the line).
func fileLineAuthors(entries []workinglog.LineAttributionEntry) map[uint32]string {
	owners := make(map[uint32]string)
	for _, e := range entries {
		for l := e.StartLine; l <= e.EndLine; l++ {
			owners[l] = e.AuthorID
		}
	}
	return owners
}

// linesByAuthor groups a per-line owner map by author_id, skipping the
// human sentinel (construction step 3: "skipping the human sentinel").
func linesByAuthor(owners map[uint32]string) map[string][]uint32 {
	byAuthor := make(map[string][]uint32)
	for line, author := range owners {
		if author == tracker.HumanAuthorID || author == "" {
			continue
		}
		byAuthor[author] = append(byAuthor[author], line)
	}
	for author := range byAuthor {
		sort.Slice(byAuthor[author], func(i, j int) bool { return byAuthor[author][i] < byAuthor[author][j] })
	}
	return byAuthor
}

// BuildFromCheckpoints implements commit-time construction (spec §4.4
// steps 1-5): fold a base commit's checkpoint stream (seeded from
// INITIAL.prompts) into a finalized authorship log for commitSHA.
// ignorePrompts implements step 5: process-wide prompt persistence toggle.
func BuildFromCheckpoints(commitSHA string, initial workinglog.InitialAttributions, checkpoints []workinglog.Checkpoint, ignorePrompts bool) *Log {
	log := New(commitSHA, initial.Prompts)

	// file -> author -> lines, replaced wholesale by each checkpoint's entry
	// (step 3: "replace any existing per-file entries with fresh ones").
	fileAuthorLines := make(map[string]map[string][]uint32)

	for _, cp := range checkpoints {
		registerPromptRecord(log, cp)

		for _, entry := range cp.Entries {
			owners := fileLineAuthors(entry.LineAttributions)
			fileAuthorLines[entry.File] = linesByAuthor(owners)
		}
	}

	finalize(log, fileAuthorLines)

	if ignorePrompts {
		for hash, record := range log.Metadata.Prompts {
			record.Messages = nil
			log.Metadata.Prompts[hash] = record
		}
	}

	return log
}

// registerPromptRecord implements step 2: register/update the prompt
// record keyed by the checkpoint's session hash, keeping the
// longest-seen transcript and accumulating per-session add/delete deltas.
func registerPromptRecord(log *Log, cp workinglog.Checkpoint) {
	if cp.AgentID == nil {
		return
	}
	hash := ShortHash(cp.AgentID.Tool, cp.AgentID.ID)

	record, ok := log.Metadata.Prompts[hash]
	if !ok {
		record = workinglog.PromptRecord{AgentID: *cp.AgentID, HumanAuthor: cp.Author}
	}
	if len(cp.Transcript) > len(record.Messages) {
		record.Messages = cp.Transcript
	}
	record.TotalAdditions += cp.LineStats.AIAdded
	record.TotalDeletions += cp.LineStats.AIDeleted
	record.OverriddenLines += cp.LineStats.Overrides

	log.Metadata.Prompts[hash] = record
}

// finalize implements step 4: drop empty entries/files, sort by hash,
// merge ranges, compute accepted_lines, and write attestations in
// deterministic (sorted-by-path) order.
func finalize(log *Log, fileAuthorLines map[string]map[string][]uint32) {
	acceptedByHash := make(map[string]int)

	paths := make([]string, 0, len(fileAuthorLines))
	for p := range fileAuthorLines {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var attestations []FileAttestation
	for _, path := range paths {
		authorLines := fileAuthorLines[path]
		hashes := make([]string, 0, len(authorLines))
		for h := range authorLines {
			hashes = append(hashes, h)
		}
		sort.Strings(hashes)

		var entries []AttestationEntry
		for _, hash := range hashes {
			lines := authorLines[hash]
			if len(lines) == 0 {
				continue
			}
			ranges := rangealg.MergeLineRanges(rangealg.CompressLines(lines))
			entries = append(entries, AttestationEntry{Hash: hash, LineRanges: ranges})
			acceptedByHash[hash] += len(rangealg.ExpandAll(ranges))
		}
		if len(entries) == 0 {
			continue
		}
		attestations = append(attestations, FileAttestation{FilePath: path, Entries: entries})
	}

	log.Attestations = attestations

	for hash, n := range acceptedByHash {
		record := log.Metadata.Prompts[hash]
		record.AcceptedLines = n
		log.Metadata.Prompts[hash] = record
	}

	// Invariant 4 (hash coverage): drop any prompt record never referenced.
	referenced := make(map[string]bool)
	for _, a := range attestations {
		for _, e := range a.Entries {
			referenced[e.Hash] = true
		}
	}
	for hash := range log.Metadata.Prompts {
		if !referenced[hash] {
			delete(log.Metadata.Prompts, hash)
		}
	}
}

// NoteSource resolves an authorship log for a commit SHA from the VCS note
// store, used as the fallback when a session hash is absent from the local
// log's own metadata.prompts (spec §4.4 "Line lookup").
type NoteSource interface {
	ReadNote(commitSHA string) (string, error)
}

// LineLookupResult is the outcome of a successful line lookup: the owning
// session's short hash plus its prompt record.
type LineLookupResult struct {
	Hash   string
	Prompt workinglog.PromptRecord
}

// LineLookup scans logs (ordered oldest-to-newest, i.e. the latest entry
// last) in reverse so the latest-written attestation wins. When a matching
// hash's prompt record is absent from the log that references it, it falls
// back to searching candidateSHAs' notes via notes, guarded by a negative
// cache so a hash never searched twice comes back empty immediately.
func LineLookup(logs []*Log, file string, line uint32, notes NoteSource, candidateSHAs []string, cache *NegativeCache) (LineLookupResult, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		log := logs[i]
		for _, a := range log.Attestations {
			if a.FilePath != file {
				continue
			}
			for _, e := range a.Entries {
				if !rangesContain(e.LineRanges, line) {
					continue
				}
				if record, ok := log.Metadata.Prompts[e.Hash]; ok {
					return LineLookupResult{Hash: e.Hash, Prompt: record}, true
				}
				if cache != nil && cache.IsNegative(e.Hash) {
					continue
				}
				if notes != nil {
					if record, ok := searchNoteStore(notes, candidateSHAs, e.Hash); ok {
						return LineLookupResult{Hash: e.Hash, Prompt: record}, true
					}
				}
				if cache != nil {
					cache.MarkNegative(e.Hash)
				}
			}
		}
	}
	return LineLookupResult{}, false
}

// searchNoteStore fetches and deserializes the note attached to each
// candidate commit SHA (most recent first) looking for hash in its
// metadata.prompts, stopping at the first match. Unreadable or malformed
// notes are skipped rather than treated as fatal, consistent with
// rewrite drivers treating a missing authorship log as "nothing to carry".
func searchNoteStore(notes NoteSource, candidateSHAs []string, hash string) (workinglog.PromptRecord, bool) {
	for i := len(candidateSHAs) - 1; i >= 0; i-- {
		text, err := notes.ReadNote(candidateSHAs[i])
		if err != nil {
			continue
		}
		log, err := Deserialize(text)
		if err != nil {
			continue
		}
		if record, ok := log.Metadata.Prompts[hash]; ok {
			return record, true
		}
	}
	return workinglog.PromptRecord{}, false
}

func rangesContain(ranges []rangealg.LineRange, line uint32) bool {
	for _, r := range ranges {
		if r.Contains(line) {
			return true
		}
	}
	return false
}

// FilterToCommittedLines implements "Filtering to committed lines": prune
// each attestation's ranges to the intersection with committed[file], drop
// anything left empty, and drop prompt records no longer referenced.
func FilterToCommittedLines(log *Log, committed map[string][]rangealg.LineRange) *Log {
	out := &Log{Metadata: AuthorshipMetadata{
		SchemaVersion: log.Metadata.SchemaVersion,
		BaseCommitSHA: log.Metadata.BaseCommitSHA,
		Prompts:       make(map[string]workinglog.PromptRecord, len(log.Metadata.Prompts)),
	}}

	for _, a := range log.Attestations {
		keepRanges, ok := committed[a.FilePath]
		if !ok {
			continue
		}
		var entries []AttestationEntry
		for _, e := range a.Entries {
			inter := rangealg.Intersect(e.LineRanges, keepRanges)
			if len(inter) == 0 {
				continue
			}
			entries = append(entries, AttestationEntry{Hash: e.Hash, LineRanges: inter})
		}
		if len(entries) == 0 {
			continue
		}
		out.Attestations = append(out.Attestations, FileAttestation{FilePath: a.FilePath, Entries: entries})
	}

	referenced := make(map[string]bool)
	for _, a := range out.Attestations {
		for _, e := range a.Entries {
			referenced[e.Hash] = true
		}
	}
	for hash, record := range log.Metadata.Prompts {
		if referenced[hash] {
			out.Metadata.Prompts[hash] = record
		}
	}
	return out
}
