package cli

import (
	"os"

	"github.com/blametrail/cli/cmd/entire/cli/agent"
	"github.com/blametrail/cli/cmd/entire/cli/summarize"
	"github.com/blametrail/cli/cmd/entire/cli/transcript"
	"github.com/blametrail/cli/internal/attribution/workinglog"
	"github.com/blametrail/cli/redact"
)

// maxTranscriptExcerptMessages bounds how many condensed transcript entries
// ride along on a single checkpoint: Checkpoint.Transcript is an excerpt for
// the PromptRecord, not a copy of the whole session (spec §3, §4.4).
const maxTranscriptExcerptMessages = 20

// buildTranscriptExcerpt reads the agent's native transcript referenced by
// hookInput.SessionRef, condenses it to user/assistant/tool entries, and
// returns the trailing window as redacted working-log messages. Returns nil
// when no transcript is available or readable: a checkpoint with no
// transcript excerpt is still a valid checkpoint.
func buildTranscriptExcerpt(hookInput *agent.HookInput) []workinglog.Message {
	if hookInput == nil || hookInput.SessionRef == "" {
		return nil
	}

	data, err := os.ReadFile(hookInput.SessionRef) //nolint:gosec // path comes from the agent's own hook payload
	if err != nil {
		return nil
	}

	lines, err := transcript.ParseFromBytes(data)
	if err != nil {
		return nil
	}

	condensed := summarize.BuildCondensedTranscript(lines)
	if len(condensed) > maxTranscriptExcerptMessages {
		condensed = condensed[len(condensed)-maxTranscriptExcerptMessages:]
	}

	messages := make([]workinglog.Message, 0, len(condensed))
	for _, entry := range condensed {
		if msg, ok := transcriptMessageFromEntry(entry); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

// transcriptMessageFromEntry converts one condensed transcript entry into a
// redacted working-log message, scrubbing secrets before the text is ever
// written to the working log or authorship log metadata.
func transcriptMessageFromEntry(entry summarize.Entry) (workinglog.Message, bool) {
	switch entry.Type {
	case summarize.EntryTypeUser:
		if entry.Content == "" {
			return workinglog.Message{}, false
		}
		return workinglog.Message{Role: workinglog.RoleUser, Text: redact.String(entry.Content)}, true
	case summarize.EntryTypeAssistant:
		if entry.Content == "" {
			return workinglog.Message{}, false
		}
		return workinglog.Message{Role: workinglog.RoleAssistant, Text: redact.String(entry.Content)}, true
	case summarize.EntryTypeTool:
		text := entry.ToolName
		if entry.ToolDetail != "" {
			text += ": " + entry.ToolDetail
		}
		if text == "" {
			return workinglog.Message{}, false
		}
		return workinglog.Message{Role: workinglog.RoleToolUse, Text: redact.String(text)}, true
	default:
		return workinglog.Message{}, false
	}
}
