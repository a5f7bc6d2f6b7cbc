// Package models contains domain models for claude-mem.
package models

// UserPrompt represents a user prompt captured during a session.
// Prompt numbers increase monotonically per session; rows are append-only.
type UserPrompt struct {
	ContentSessionID string `db:"content_session_id" json:"content_session_id"`
	PromptText       string `db:"prompt_text" json:"prompt_text"`
	CreatedAt        string `db:"created_at" json:"created_at"`
	ID               int64  `db:"id" json:"id"`
	PromptNumber     int    `db:"prompt_number" json:"prompt_number"`
	CreatedAtEpoch   int64  `db:"created_at_epoch" json:"created_at_epoch"`
}

// UserPromptWithSession includes session context for search results.
type UserPromptWithSession struct {
	Project         string `db:"project" json:"project"`
	MemorySessionID string `db:"memory_session_id" json:"memory_session_id"`
	UserPrompt
}
