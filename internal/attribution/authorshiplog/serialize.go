package authorshiplog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blametrail/cli/internal/attribution"
	"github.com/blametrail/cli/internal/attribution/rangealg"
)

// divider is the literal line separating the attestation section from the
// JSON metadata block (spec §4.4 "Serialization format").
const divider = "---"

// ShortHash computes the 7-character hex session identifier
// sha256("tool:agent_id")[0..7].
func ShortHash(tool, agentID string) string {
	sum := sha256.Sum256([]byte(tool + ":" + agentID))
	return hex.EncodeToString(sum[:])[:7]
}

// Serialize renders log in the text format: one quoted-or-bare path per
// attestation, two-space-indented "<hash> <ranges>" lines beneath it, the
// divider, then pretty JSON metadata.
func Serialize(log *Log) string {
	var b strings.Builder
	for _, a := range log.Attestations {
		b.WriteString(quotePath(a.FilePath))
		b.WriteByte('\n')
		for _, e := range a.Entries {
			fmt.Fprintf(&b, "  %s %s\n", e.Hash, rangealg.Format(e.LineRanges))
		}
	}
	b.WriteString(divider)
	b.WriteByte('\n')

	meta, _ := json.MarshalIndent(log.Metadata, "", "  ") //nolint:errcheck // map[string]PromptRecord/string fields always marshal
	b.Write(meta)
	b.WriteByte('\n')
	return b.String()
}

// quotePath wraps path in ASCII double quotes if it contains whitespace;
// paths containing `"` or a newline are ill-formed input this serializer
// does not attempt to escape (spec §4.4 "no escape mechanism").
func quotePath(path string) string {
	if strings.ContainsAny(path, " \t") {
		return `"` + path + `"`
	}
	return path
}

func unquotePath(line string) string {
	if len(line) >= 2 && line[0] == '"' && line[len(line)-1] == '"' {
		return line[1 : len(line)-1]
	}
	return line
}

// Deserialize parses Serialize's output back into a Log, failing with
// KindBadFormat on any malformed input (spec §4.4 "Failures").
func Deserialize(text string) (*Log, error) {
	lines := splitLinesKeepEmpty(text)

	dividerIdx := -1
	for i, l := range lines {
		if l == divider {
			dividerIdx = i
			break
		}
	}
	if dividerIdx == -1 {
		return nil, badFormat("missing divider")
	}

	var attestations []FileAttestation
	var current *FileAttestation
	for _, l := range lines[:dividerIdx] {
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "  ") {
			if current == nil {
				return nil, badFormat("attestation line before any path")
			}
			entry, err := parseEntryLine(strings.TrimPrefix(l, "  "))
			if err != nil {
				return nil, err
			}
			current.Entries = append(current.Entries, entry)
			continue
		}
		if current != nil {
			attestations = append(attestations, *current)
		}
		path := unquotePath(l)
		current = &FileAttestation{FilePath: path}
	}
	if current != nil {
		attestations = append(attestations, *current)
	}

	jsonBlock := strings.Join(lines[dividerIdx+1:], "\n")
	var meta AuthorshipMetadata
	if err := json.Unmarshal([]byte(jsonBlock), &meta); err != nil {
		return nil, attribution.New(attribution.KindBadFormat, subsystem, "malformed metadata JSON", err)
	}

	return &Log{Attestations: attestations, Metadata: meta}, nil
}

func parseEntryLine(line string) (AttestationEntry, error) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return AttestationEntry{}, badFormat("attestation line missing hash/ranges split")
	}
	ranges, err := rangealg.Parse(parts[1])
	if err != nil {
		return AttestationEntry{}, attribution.New(attribution.KindBadFormat, subsystem, "unparseable line range", err)
	}
	return AttestationEntry{Hash: parts[0], LineRanges: ranges}, nil
}

func splitLinesKeepEmpty(text string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	return out
}

func badFormat(reason string) error {
	return attribution.New(attribution.KindBadFormat, subsystem, reason, nil)
}

// NegativeCache bounds repeated note-store searches for hashes known not to
// exist anywhere reachable, per spec §4.4 "cache negative lookups to avoid
// repeated searches" and §9 "Global state (b)".
type NegativeCache struct {
	cache *lru.Cache[string, struct{}]
}

// NewNegativeCache builds a cache holding up to size entries.
func NewNegativeCache(size int) *NegativeCache {
	c, _ := lru.New[string, struct{}](size) //nolint:errcheck // size > 0 is the only failure mode and callers pass a constant
	return &NegativeCache{cache: c}
}

// IsNegative reports whether hash was previously marked as not found.
func (n *NegativeCache) IsNegative(hash string) bool {
	if n == nil || n.cache == nil {
		return false
	}
	_, ok := n.cache.Get(hash)
	return ok
}

// MarkNegative records hash as not found in the note store.
func (n *NegativeCache) MarkNegative(hash string) {
	if n == nil || n.cache == nil {
		return
	}
	n.cache.Add(hash, struct{}{})
}
