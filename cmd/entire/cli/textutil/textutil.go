// Package textutil provides small, dependency-free text-cleanup helpers
// shared by the transcript parsers and condensation strategies.
package textutil

import (
	"regexp"
	"strings"
)

// ideContextTagPattern matches IDE-injected context blocks such as
// <ide_opened_file>...</ide_opened_file> or <ide_selection>...</ide_selection>
// that editors splice into a user prompt but which aren't part of what the
// user actually typed.
var ideContextTagPattern = regexp.MustCompile(`(?s)<ide_[a-z_]+>.*?</ide_[a-z_]+>`)

// StripIDEContextTags removes IDE-injected context tags from s and trims the
// surrounding whitespace left behind.
func StripIDEContextTags(s string) string {
	return strings.TrimSpace(ideContextTagPattern.ReplaceAllString(s, ""))
}
