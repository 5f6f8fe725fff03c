// Package tracker implements the character-interval attribution algorithm:
// given a file's previous content, its new content, and the attribution set
// that described the previous content, it produces the attribution set that
// describes the new content. This is the core intellectual work of the
// attribution engine (spec §4.2).
package tracker

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// HumanAuthorID is the fixed sentinel author for human-written content.
const HumanAuthorID = "human"

// DummyAuthorID is the reserved internal sentinel the virtual-attribution
// transformer uses to mark "genuinely new" text while reconstructing state
// across a history rewrite. It must never reach a written authorship log or
// working log; callers filter it before emission.
const DummyAuthorID = "__DUMMY__"

// Attribution is a half-open [Start, End) byte interval into a file's
// current content, owned by a single author as of Timestamp.
type Attribution struct {
	Start     int
	End       int
	AuthorID  string
	Timestamp int64
}

// Len returns the byte length of the interval.
func (a Attribution) Len() int {
	return a.End - a.Start
}

var dmp = diffmatchpatch.New()

// Track computes the next attribution list for new content, given the
// previous content/attributions and the author to credit for any inserted
// text. It is the one entry point implementing spec §4.2 steps 1-7.
func Track(previous, current string, previousAttrs []Attribution, newAuthorID string, ts int64) []Attribution {
	if previous == current {
		// Identity: conservation invariant (spec §8 property 5).
		out := make([]Attribution, len(previousAttrs))
		copy(out, previousAttrs)
		return out
	}

	diffs := lineDiff(previous, current)

	sorted := make([]Attribution, len(previousAttrs))
	copy(sorted, previousAttrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Attribution
	prevCursor, newCursor := 0, 0

	for _, d := range diffs {
		n := len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			runStart, runEnd := prevCursor, prevCursor+n
			for _, a := range sorted {
				overlapStart := max(a.Start, runStart)
				overlapEnd := min(a.End, runEnd)
				if overlapStart >= overlapEnd {
					continue
				}
				out = append(out, Attribution{
					Start:     overlapStart - runStart + newCursor,
					End:       overlapEnd - runStart + newCursor,
					AuthorID:  a.AuthorID,
					Timestamp: a.Timestamp,
				})
			}
			prevCursor += n
			newCursor += n
		case diffmatchpatch.DiffDelete:
			// Dropped entirely; any portion of an attribution outside this
			// run is picked up when its containing Equal run is processed.
			prevCursor += n
		case diffmatchpatch.DiffInsert:
			if n > 0 {
				out = append(out, Attribution{
					Start:     newCursor,
					End:       newCursor + n,
					AuthorID:  newAuthorID,
					Timestamp: ts,
				})
			}
			newCursor += n
		}
	}

	return coalesce(out)
}

// lineDiff runs a line-granularity diff so that diff boundaries never split
// a line, matching the teacher's DiffLinesToChars/DiffMain/DiffCharsToLines
// idiom (strategy/manual_commit_attribution.go's diffLines).
func lineDiff(previous, current string) []diffmatchpatch.Diff {
	text1, text2, lineArray := dmp.DiffLinesToChars(previous, current)
	diffs := dmp.DiffMain(text1, text2, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

// coalesce merges adjacent attributions sharing the same author, keeping
// the later of the two timestamps, after sorting by start offset.
func coalesce(attrs []Attribution) []Attribution {
	if len(attrs) == 0 {
		return nil
	}
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].Start != attrs[j].Start {
			return attrs[i].Start < attrs[j].Start
		}
		return attrs[i].End < attrs[j].End
	})

	out := []Attribution{attrs[0]}
	for _, a := range attrs[1:] {
		last := &out[len(out)-1]
		if last.End == a.Start && last.AuthorID == a.AuthorID {
			if a.Timestamp > last.Timestamp {
				last.Timestamp = a.Timestamp
			}
			last.End = a.End
			continue
		}
		out = append(out, a)
	}
	return out
}

// AttributeUnattributedRanges fills every gap in attrs (relative to the full
// span of content) with fallbackAuthor at timestamp ts.
func AttributeUnattributedRanges(content string, attrs []Attribution, fallbackAuthor string, ts int64) []Attribution {
	n := len(content)
	if n == 0 {
		return nil
	}

	sorted := make([]Attribution, len(attrs))
	copy(sorted, attrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Attribution
	cursor := 0
	for _, a := range sorted {
		if a.Start > cursor {
			out = append(out, Attribution{Start: cursor, End: a.Start, AuthorID: fallbackAuthor, Timestamp: ts})
		}
		out = append(out, a)
		if a.End > cursor {
			cursor = a.End
		}
	}
	if cursor < n {
		out = append(out, Attribution{Start: cursor, End: n, AuthorID: fallbackAuthor, Timestamp: ts})
	}
	return coalesce(out)
}

// FilterDummies drops every attribution still marked DummyAuthorID. It must
// be called before any virtual-attribution output reaches a working log or
// authorship log (spec §9 "Dummy-author discipline").
func FilterDummies(attrs []Attribution) []Attribution {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.AuthorID == DummyAuthorID {
			continue
		}
		out = append(out, a)
	}
	return out
}

// LineAttribution is a run of contiguous, 1-indexed lines owned by one
// author, with Overridden set when the prior checkpoint attributed the same
// line number to a different author.
type LineAttribution struct {
	StartLine  uint32
	EndLine    uint32
	AuthorID   string
	Overridden bool
}

// DeriveLineAttributions scans content's line boundaries and assigns each
// line to the author covering the most bytes of that line, breaking ties by
// latest timestamp and then by lexicographically smaller author_id (spec
// §4.2's tie-break rule; the exact-tie case is this implementation's
// documented choice per spec §9's open question).
func DeriveLineAttributions(content string, attrs []Attribution) []LineAttribution {
	if content == "" {
		return nil
	}

	lineAuthors := LineAuthors(content, attrs)
	return compressLineAuthors(lineAuthors)
}

// LineAuthors returns, for each 1-indexed line in content, the author_id
// that owns the most bytes of that line (same tie-break as
// DeriveLineAttributions). Lines with no covering attribution are absent
// from the map.
func LineAuthors(content string, attrs []Attribution) map[uint32]lineOwner {
	starts := lineStartOffsets(content)
	result := make(map[uint32]lineOwner, len(starts))

	for i, lineStart := range starts {
		lineEnd := len(content)
		if i+1 < len(starts) {
			lineEnd = starts[i+1]
		}
		owner, ok := pickLineOwner(lineStart, lineEnd, attrs)
		if !ok {
			continue
		}
		//nolint:gosec // G115: line numbers bounded well under uint32 in practice
		result[uint32(i+1)] = owner
	}
	return result
}

// lineOwner is the winning author for one line plus the bookkeeping needed
// to break ties deterministically.
type lineOwner struct {
	AuthorID  string
	Timestamp int64
}

func pickLineOwner(lineStart, lineEnd int, attrs []Attribution) (lineOwner, bool) {
	byteCounts := make(map[string]int)
	latestTS := make(map[string]int64)

	for _, a := range attrs {
		overlapStart := max(a.Start, lineStart)
		overlapEnd := min(a.End, lineEnd)
		if overlapStart >= overlapEnd {
			continue
		}
		byteCounts[a.AuthorID] += overlapEnd - overlapStart
		if a.Timestamp > latestTS[a.AuthorID] {
			latestTS[a.AuthorID] = a.Timestamp
		}
	}

	if len(byteCounts) == 0 {
		return lineOwner{}, false
	}

	authors := make([]string, 0, len(byteCounts))
	for id := range byteCounts {
		authors = append(authors, id)
	}
	sort.Slice(authors, func(i, j int) bool {
		ai, aj := authors[i], authors[j]
		if byteCounts[ai] != byteCounts[aj] {
			return byteCounts[ai] > byteCounts[aj]
		}
		if latestTS[ai] != latestTS[aj] {
			return latestTS[ai] > latestTS[aj]
		}
		return ai < aj
	})

	winner := authors[0]
	return lineOwner{AuthorID: winner, Timestamp: latestTS[winner]}, true
}

func compressLineAuthors(lineAuthors map[uint32]lineOwner) []LineAttribution {
	if len(lineAuthors) == 0 {
		return nil
	}
	lines := make([]uint32, 0, len(lineAuthors))
	for l := range lineAuthors {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })

	var out []LineAttribution
	start := lines[0]
	prev := lines[0]
	author := lineAuthors[start].AuthorID
	for _, l := range lines[1:] {
		owner := lineAuthors[l]
		if l == prev+1 && owner.AuthorID == author {
			prev = l
			continue
		}
		out = append(out, LineAttribution{StartLine: start, EndLine: prev, AuthorID: author})
		start, prev, author = l, l, owner.AuthorID
	}
	out = append(out, LineAttribution{StartLine: start, EndLine: prev, AuthorID: author})
	return out
}

// lineStartOffsets returns the byte offset of every line start in content:
// offset 0, then one past every '\n'.
func lineStartOffsets(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// DetectOverrides compares two line-owner snapshots of the same file and
// returns the set of lines whose owning author changed, for marking
// Overridden and for the non-decreasing line_stats.overrides counter (spec
// §4.2 "Override detection"). Each (file, line) transition is reported once.
func DetectOverrides(previous, current map[uint32]lineOwner) map[uint32]bool {
	overridden := make(map[uint32]bool)
	for line, now := range current {
		if was, ok := previous[line]; ok && was.AuthorID != now.AuthorID {
			overridden[line] = true
		}
	}
	return overridden
}

// ApplyOverrides marks Overridden on any LineAttribution run whose lines
// intersect overriddenLines.
func ApplyOverrides(runs []LineAttribution, overriddenLines map[uint32]bool) []LineAttribution {
	out := make([]LineAttribution, len(runs))
	for i, r := range runs {
		out[i] = r
		for l := r.StartLine; l <= r.EndLine; l++ {
			if overriddenLines[l] {
				out[i].Overridden = true
				break
			}
		}
	}
	return out
}

// CountLines returns the number of lines in content the same way the
// teacher's line-stats counter does: an empty string has zero lines, and a
// trailing newline does not create a phantom final line.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
