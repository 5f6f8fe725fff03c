// Package rangealg provides pure arithmetic over 1-indexed, inclusive line
// ranges: the compact representation used everywhere an attestation or a
// checkpoint needs to talk about "which lines" without expanding to a full
// line list.
package rangealg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LineRange is either a single line or an inclusive [Start, End] span.
// Single is represented as Start == End. All inputs are trusted, already
// validated line numbers; no operation here returns an error.
type LineRange struct {
	Start uint32
	End   uint32
}

// Single builds a one-line range.
func Single(n uint32) LineRange {
	return LineRange{Start: n, End: n}
}

// Range builds an inclusive multi-line range. Panics if end < start, since
// every caller in this codebase constructs ranges from already-sorted data.
func Range(start, end uint32) LineRange {
	if end < start {
		panic(fmt.Sprintf("rangealg: invalid range %d..%d", start, end))
	}
	return LineRange{Start: start, End: end}
}

// IsSingle reports whether r represents exactly one line.
func (r LineRange) IsSingle() bool {
	return r.Start == r.End
}

// Contains reports whether line is within r.
func (r LineRange) Contains(line uint32) bool {
	return line >= r.Start && line <= r.End
}

// Expand returns every line number covered by r, in ascending order.
func (r LineRange) Expand() []uint32 {
	lines := make([]uint32, 0, r.End-r.Start+1)
	for l := r.Start; l <= r.End; l++ {
		lines = append(lines, l)
	}
	return lines
}

// Len returns the number of lines covered by r.
func (r LineRange) Len() uint32 {
	return r.End - r.Start + 1
}

// Shift relocates r when delta lines are inserted or removed at p.
// A range strictly before p is unchanged; a range strictly at or after p
// moves by delta; a range straddling p keeps its unaffected portion and
// moves the affected portion. Returns false if delta empties the range.
func (r LineRange) Shift(p int64, delta int64) (LineRange, bool) {
	start, end := int64(r.Start), int64(r.End)

	switch {
	case end < p:
		// Entirely before the insertion point: unaffected.
		return r, true
	case start >= p:
		// Entirely at or after: both endpoints move.
		start += delta
		end += delta
	default:
		// Straddles p: the portion before p is fixed, the portion at/after
		// p moves. Only the end can move in this branch since start < p <= end.
		end += delta
	}

	if end < start || start < 1 {
		return LineRange{}, false
	}
	if start < 1 {
		start = 1
	}
	//nolint:gosec // G115: line numbers are bounded well under uint32 range in practice
	return LineRange{Start: uint32(start), End: uint32(end)}, true
}

// Remove performs set subtraction, returning the 0, 1, or 2 residual ranges
// left after removing other's coverage from r.
func (r LineRange) Remove(other LineRange) []LineRange {
	if other.End < r.Start || other.Start > r.End {
		return []LineRange{r}
	}

	var out []LineRange
	if other.Start > r.Start {
		out = append(out, LineRange{Start: r.Start, End: other.Start - 1})
	}
	if other.End < r.End {
		out = append(out, LineRange{Start: other.End + 1, End: r.End})
	}
	return out
}

// CompressLines builds the minimal set of canonical ranges covering exactly
// the given sorted, unique line numbers.
func CompressLines(lines []uint32) []LineRange {
	if len(lines) == 0 {
		return nil
	}

	var out []LineRange
	start, prev := lines[0], lines[0]
	for _, l := range lines[1:] {
		if l == prev+1 {
			prev = l
			continue
		}
		out = append(out, LineRange{Start: start, End: prev})
		start, prev = l, l
	}
	out = append(out, LineRange{Start: start, End: prev})
	return out
}

// MergeLineRanges sorts ranges by start and merges any two that overlap or
// are adjacent (end+1 == next start).
func MergeLineRanges(ranges []LineRange) []LineRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]LineRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := []LineRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Format renders a comma-separated list of ranges, one element per range:
// a bare decimal for a single line, "start-end" for a span, no spaces.
// This is the exact grammar the authorship log serializer uses.
func Format(ranges []LineRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		if r.IsSingle() {
			parts[i] = strconv.FormatUint(uint64(r.Start), 10)
		} else {
			parts[i] = fmt.Sprintf("%d-%d", r.Start, r.End)
		}
	}
	return strings.Join(parts, ",")
}

// Parse reverses Format. Returns an error if any element is malformed.
func Parse(s string) ([]LineRange, error) {
	if s == "" {
		return nil, nil
	}
	elems := strings.Split(s, ",")
	out := make([]LineRange, 0, len(elems))
	for _, e := range elems {
		if dash := strings.IndexByte(e, '-'); dash > 0 {
			start, err := strconv.ParseUint(e[:dash], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("rangealg: invalid range start %q: %w", e, err)
			}
			end, err := strconv.ParseUint(e[dash+1:], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("rangealg: invalid range end %q: %w", e, err)
			}
			if end < start {
				return nil, fmt.Errorf("rangealg: invalid range %q: end before start", e)
			}
			out = append(out, LineRange{Start: uint32(start), End: uint32(end)})
			continue
		}
		n, err := strconv.ParseUint(e, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("rangealg: invalid line number %q: %w", e, err)
		}
		out = append(out, LineRange{Start: uint32(n), End: uint32(n)})
	}
	return out, nil
}

// ExpandAll flattens a list of ranges into a sorted, unique line list.
func ExpandAll(ranges []LineRange) []uint32 {
	seen := make(map[uint32]struct{})
	for _, r := range ranges {
		for _, l := range r.Expand() {
			seen[l] = struct{}{}
		}
	}
	lines := make([]uint32, 0, len(seen))
	for l := range seen {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
	return lines
}

// Intersect returns the canonical ranges common to both a and b.
func Intersect(a, b []LineRange) []LineRange {
	aLines := ExpandAll(a)
	bSet := make(map[uint32]struct{}, len(b)*2)
	for _, l := range ExpandAll(b) {
		bSet[l] = struct{}{}
	}
	var common []uint32
	for _, l := range aLines {
		if _, ok := bSet[l]; ok {
			common = append(common, l)
		}
	}
	return CompressLines(common)
}
