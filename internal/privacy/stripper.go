// Package privacy strips user-marked private content and injected memory
// context from text before it is persisted.
package privacy

import (
	"regexp"
	"strings"
)

var (
	// privateTagRegex matches <private>...</private> spans.
	privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

	// memoryTagRegex matches <claude-mem-context>...</claude-mem-context>
	// spans, the context block this daemon itself injects. Persisting it
	// would feed prior summaries back into extraction.
	memoryTagRegex = regexp.MustCompile(`(?s)<claude-mem-context>.*?</claude-mem-context>`)
)

// StripPrivateTags removes all <private>...</private> content.
func StripPrivateTags(text string) string {
	return privateTagRegex.ReplaceAllString(text, "")
}

// StripMemoryTags removes all injected memory context blocks.
func StripMemoryTags(text string) string {
	return memoryTagRegex.ReplaceAllString(text, "")
}

// IsEntirelyPrivate reports whether nothing remains once private spans are
// removed.
func IsEntirelyPrivate(text string) bool {
	stripped := StripPrivateTags(text)
	return strings.TrimSpace(stripped) == ""
}

// Clean strips private spans and injected context and trims whitespace.
// Call it on any user content before storing or queueing it.
func Clean(text string) string {
	text = StripPrivateTags(text)
	text = StripMemoryTags(text)
	return strings.TrimSpace(text)
}
