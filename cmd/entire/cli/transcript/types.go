package transcript

import "encoding/json"

// LineType distinguishes the role of one JSONL transcript line.
type LineType string

const (
	TypeUser      LineType = "user"
	TypeAssistant LineType = "assistant"
)

// Line is one entry in a Claude-style JSONL transcript file.
type Line struct {
	Type    LineType        `json:"type"`
	UUID    string          `json:"uuid"`
	Message json.RawMessage `json:"message"`
}

// UserMessage is the "message" payload of a user transcript line. Content is
// either a bare string or an array of content blocks (text/tool_result),
// hence the untyped interface{}.
type UserMessage struct {
	Content interface{} `json:"content"`
}

// Content block type discriminants, matching the "type" field of one
// assistant content block.
const (
	ContentTypeText       = "text"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
)

// AssistantMessage is the "message" payload of an assistant transcript line.
type AssistantMessage struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block within an assistant message's content array.
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolInput is the union of fields extracted from a tool_use block's Input,
// covering the tools BuildCondensedTranscript knows how to summarize.
type ToolInput struct {
	FilePath     string `json:"file_path,omitempty"`
	NotebookPath string `json:"notebook_path,omitempty"`
	Command      string `json:"command,omitempty"`
	Description  string `json:"description,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	URL          string `json:"url,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Skill        string `json:"skill,omitempty"`
}
