// Package workinglog implements the per-base-commit working log: an
// append-only checkpoint stream backed by a content-addressed blob store,
// plus an optional INITIAL seed written by rewrite drivers (spec §4.3).
package workinglog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CheckpointAPIVersion is compared exactly on read; checkpoints written by
// an incompatible future version are silently skipped.
const CheckpointAPIVersion = "checkpoint/1.0.0"

// CheckpointKind distinguishes who produced a checkpoint.
type CheckpointKind string

const (
	KindHuman   CheckpointKind = "Human"
	KindAIAgent CheckpointKind = "AiAgent"
	KindAITab   CheckpointKind = "AiTab"
)

// AgentID identifies the AI session a non-human checkpoint belongs to.
type AgentID struct {
	Tool  string `json:"tool"`
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

// MessageRole distinguishes transcript message authorship.
type MessageRole string

const (
	RoleUser      MessageRole = "User"
	RoleAssistant MessageRole = "Assistant"
	RoleToolUse   MessageRole = "ToolUse"
)

// Message is one entry in a checkpoint's transcript excerpt.
type Message struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// LineStats accumulates additions/deletions per checkpoint kind plus the
// running override count.
type LineStats struct {
	HumanAdded   int `json:"human_added"`
	HumanDeleted int `json:"human_deleted"`
	AIAdded      int `json:"ai_added"`
	AIDeleted    int `json:"ai_deleted"`
	Overrides    int `json:"overrides"`
}

// LineRangeJSON mirrors rangealg.LineRange for JSON (de)serialization
// without the working log depending on the serializer's text grammar.
type LineRangeJSON struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// AttributionEntry is one character interval recorded in a checkpoint.
type AttributionEntry struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	AuthorID  string `json:"author_id"`
	Timestamp int64  `json:"timestamp"`
}

// LineAttributionEntry is one line-range run recorded in a checkpoint.
type LineAttributionEntry struct {
	StartLine  uint32 `json:"start_line"`
	EndLine    uint32 `json:"end_line"`
	AuthorID   string `json:"author_id"`
	Overridden bool   `json:"overridden"`
}

// FileEntry is one touched file's snapshot within a checkpoint.
type FileEntry struct {
	File             string                  `json:"file"`
	BlobSHA          string                  `json:"blob_sha"`
	Attributions     []AttributionEntry      `json:"attributions"`
	LineAttributions []LineAttributionEntry  `json:"line_attributions"`
}

// Checkpoint is one atomic snapshot appended to a working log.
type Checkpoint struct {
	APIVersion string         `json:"api_version"`
	Kind       CheckpointKind `json:"kind"`
	Author     string         `json:"author"`
	AgentID    *AgentID       `json:"agent_id,omitempty"`
	Transcript []Message      `json:"transcript,omitempty"`
	LineStats  LineStats      `json:"line_stats"`
	Entries    []FileEntry    `json:"entries"`
	Timestamp  int64          `json:"timestamp"`
}

// PromptRecord is the per-session metadata carried in INITIAL and, later,
// in an authorship log's metadata block.
type PromptRecord struct {
	AgentID          AgentID   `json:"agent_id"`
	HumanAuthor      string    `json:"human_author,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	TotalAdditions   int       `json:"total_additions"`
	TotalDeletions   int       `json:"total_deletions"`
	AcceptedLines    int       `json:"accepted_lines"`
	OverriddenLines  int       `json:"overridden_lines"`
}

// InitialAttributions is the INITIAL seed file's structure.
type InitialAttributions struct {
	Files   map[string][]LineAttributionEntry `json:"files"`
	Prompts map[string]PromptRecord            `json:"prompts"`
}

// ErrMissing is returned when a requested blob is absent.
var ErrMissing = errors.New("workinglog: missing")

// Log is a handle onto one base commit's working-log directory.
type Log struct {
	dir string
}

// Open returns a handle onto the working log directory for baseCommitSHA,
// rooted under metadataDir (e.g. "<repo>/.entire/ai/working_logs"). The
// directory is created lazily by the first write, matching "created
// lazily on first checkpoint" (spec §3).
func Open(metadataDir, baseCommitSHA string) *Log {
	return &Log{dir: filepath.Join(metadataDir, "working_logs", baseCommitSHA)}
}

// Dir returns the working log's root directory.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) blobsDir() string {
	return filepath.Join(l.dir, "blobs")
}

func (l *Log) checkpointsPath() string {
	return filepath.Join(l.dir, "checkpoints.jsonl")
}

func (l *Log) initialPath() string {
	return filepath.Join(l.dir, "INITIAL")
}

// PersistFileVersion content-addresses bytes under blobs/<sha256> and
// returns its hex digest. Writing is idempotent: an existing blob with the
// same hash is left untouched.
func (l *Log) PersistFileVersion(content []byte) (string, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(l.blobsDir(), 0o755); err != nil { //nolint:gosec // working log is process-local state
		return "", fmt.Errorf("workinglog: create blobs dir: %w", err)
	}
	path := filepath.Join(l.blobsDir(), hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil { //nolint:gosec // blob content is not secret
		return "", fmt.Errorf("workinglog: write blob %s: %w", hash, err)
	}
	return hash, nil
}

// GetFileVersion reads the blob stored under hash.
func (l *Log) GetFileVersion(hash string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.blobsDir(), hash)) //nolint:gosec // hash comes from content-addressed store
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s", ErrMissing, hash)
		}
		return nil, fmt.Errorf("workinglog: read blob %s: %w", hash, err)
	}
	return data, nil
}

// AppendCheckpoint appends one JSON line to checkpoints.jsonl. Never
// rewrites prior lines.
func (l *Log) AppendCheckpoint(cp Checkpoint) error {
	if cp.APIVersion == "" {
		cp.APIVersion = CheckpointAPIVersion
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil { //nolint:gosec // working log is process-local state
		return fmt.Errorf("workinglog: create working log dir: %w", err)
	}

	line, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("workinglog: marshal checkpoint: %w", err)
	}

	f, err := os.OpenFile(l.checkpointsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // checkpoints are local metadata
	if err != nil {
		return fmt.Errorf("workinglog: open checkpoints.jsonl: %w", err)
	}
	defer f.Close() //nolint:errcheck // best-effort close after a successful append

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("workinglog: append checkpoint: %w", err)
	}
	return nil
}

// ReadAllCheckpoints streams checkpoints.jsonl, silently dropping lines
// whose api_version this reader doesn't recognize (forward compatibility)
// and tolerating a truncated trailing line (a cancelled hook mid-write).
func (l *Log) ReadAllCheckpoints() ([]Checkpoint, error) {
	data, err := os.ReadFile(l.checkpointsPath()) //nolint:gosec // path is derived from working log root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workinglog: read checkpoints.jsonl: %w", err)
	}

	var out []Checkpoint
	start := 0
	for i := 0; i <= len(data); i++ {
		if i < len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(line, &cp); err != nil {
			// Truncated trailing line from a cancelled hook: stop, don't fail.
			break
		}
		if cp.APIVersion != CheckpointAPIVersion {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// ResetWorkingLog truncates checkpoints.jsonl and removes the blob store.
func (l *Log) ResetWorkingLog() error {
	if err := os.RemoveAll(l.blobsDir()); err != nil {
		return fmt.Errorf("workinglog: remove blobs: %w", err)
	}
	if err := os.Remove(l.checkpointsPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workinglog: truncate checkpoints: %w", err)
	}
	return nil
}

// Delete removes the entire working log directory: called once the base
// commit it tracks has been superseded by a commit, amend, or rebased
// successor (spec §3 working log lifecycle).
func (l *Log) Delete() error {
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("workinglog: delete %s: %w", l.dir, err)
	}
	return nil
}

// WriteInitialAttributions writes INITIAL, pruning any file whose line
// attribution list is empty; if nothing remains after pruning, no file is
// written at all.
func (l *Log) WriteInitialAttributions(files map[string][]LineAttributionEntry, prompts map[string]PromptRecord) error {
	pruned := make(map[string][]LineAttributionEntry, len(files))
	for path, attrs := range files {
		if len(attrs) == 0 {
			continue
		}
		pruned[path] = attrs
	}
	if len(pruned) == 0 {
		return nil
	}

	initial := InitialAttributions{Files: pruned, Prompts: prompts}
	data, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("workinglog: marshal INITIAL: %w", err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil { //nolint:gosec // working log is process-local state
		return fmt.Errorf("workinglog: create working log dir: %w", err)
	}
	if err := os.WriteFile(l.initialPath(), data, 0o644); err != nil { //nolint:gosec // INITIAL is local metadata
		return fmt.Errorf("workinglog: write INITIAL: %w", err)
	}
	return nil
}

// ReadInitialAttributions returns an empty default if INITIAL is absent or
// unparseable.
func (l *Log) ReadInitialAttributions() InitialAttributions {
	empty := InitialAttributions{Files: map[string][]LineAttributionEntry{}, Prompts: map[string]PromptRecord{}}

	data, err := os.ReadFile(l.initialPath()) //nolint:gosec // path is derived from working log root
	if err != nil {
		return empty
	}
	var initial InitialAttributions
	if err := json.Unmarshal(data, &initial); err != nil {
		return empty
	}
	if initial.Files == nil {
		initial.Files = map[string][]LineAttributionEntry{}
	}
	if initial.Prompts == nil {
		initial.Prompts = map[string]PromptRecord{}
	}
	return initial
}

// Exists reports whether the working log directory has been created.
func (l *Log) Exists() bool {
	_, err := os.Stat(l.dir)
	return err == nil
}

// CompactBlobs removes blobs under the CAS store no longer referenced by
// any checkpoint or by INITIAL (the `flush-cas` command's per-log unit of
// work). Returns the number of blobs removed.
func (l *Log) CompactBlobs() (int, error) {
	entries, err := os.ReadDir(l.blobsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("workinglog: list blobs: %w", err)
	}

	live := make(map[string]struct{}, len(entries))
	checkpoints, err := l.ReadAllCheckpoints()
	if err != nil {
		return 0, err
	}
	for _, cp := range checkpoints {
		for _, fe := range cp.Entries {
			if fe.BlobSHA != "" {
				live[fe.BlobSHA] = struct{}{}
			}
		}
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := live[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(l.blobsDir(), entry.Name())); err != nil {
			return removed, fmt.Errorf("workinglog: remove orphan blob %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}
