package rewrite

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/blametrail/cli/internal/attribution"
)

// EventKind tags one line of the rewrite log (spec §6 "Rewrite log").
type EventKind string

const (
	EventCommit             EventKind = "Commit"
	EventCommitAmend        EventKind = "CommitAmend"
	EventMergeSquash        EventKind = "MergeSquash"
	EventRebaseComplete     EventKind = "RebaseComplete"
	EventCherryPickComplete EventKind = "CherryPickComplete"
	EventStashCreate        EventKind = "StashCreate"
	EventStashApply         EventKind = "StashApply"
	EventStashPop           EventKind = "StashPop"
)

// Event is one JSONL record describing a history-mutating operation the
// hook layer observed, carrying what the corresponding driver needs.
type Event struct {
	Kind       EventKind `json:"kind"`
	OldSHA     string    `json:"old_sha,omitempty"`
	NewSHA     string    `json:"new_sha,omitempty"`
	BranchName string    `json:"branch_name,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

// Log is an append-only JSONL file at <repo_metadata>/ai/rewrite_log.
type Log struct {
	path string
}

// Open returns a handle onto the rewrite log rooted under metadataDir
// (e.g. "<repo>/.entire/ai").
func Open(metadataDir string) *Log {
	return &Log{path: filepath.Join(metadataDir, "rewrite_log")}
}

// Append adds one event to the log.
func (l *Log) Append(ev Event) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil { //nolint:gosec // rewrite log is process-local state
		return attribution.New(attribution.KindIO, subsystem, "creating rewrite log directory", err)
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return attribution.New(attribution.KindIO, subsystem, "marshaling rewrite event", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // rewrite log is local metadata
	if err != nil {
		return attribution.New(attribution.KindIO, subsystem, "opening rewrite log", err)
	}
	defer f.Close() //nolint:errcheck // best-effort close after a successful append
	if _, err := f.Write(append(line, '\n')); err != nil {
		return attribution.New(attribution.KindIO, subsystem, "appending rewrite event", err)
	}
	return nil
}

// Clear truncates the rewrite log, used by the dispatcher once every event
// ReadAll returned has been replayed.
func (l *Log) Clear() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return attribution.New(attribution.KindIO, subsystem, "clearing rewrite log", err)
	}
	return nil
}

// ReadAll streams every event in the log, tolerating a truncated trailing
// line the same way workinglog's checkpoint reader does.
func (l *Log) ReadAll() ([]Event, error) {
	data, err := os.ReadFile(l.path) //nolint:gosec // path is derived from the rewrite log root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, attribution.New(attribution.KindIO, subsystem, "reading rewrite log", err)
	}

	var out []Event
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
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}
