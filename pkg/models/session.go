// Package models contains domain models for claude-mem.
package models

import "database/sql"

// SessionStatus represents the lifecycle status of a captured session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session represents one continuous assistant interaction with a project,
// tracked from first prompt to completion or failure.
//
// ContentSessionID is supplied by the assistant's lifecycle hooks and is
// unique. MemorySessionID is assigned lazily by the orchestrator on the first
// successful agent response (stateless providers get a generated UUID) and is
// the key used by observations and summaries.
type Session struct {
	ID               int64          `db:"id" json:"id"`
	ContentSessionID string         `db:"content_session_id" json:"content_session_id"`
	MemorySessionID  sql.NullString `db:"memory_session_id" json:"memory_session_id,omitempty"`
	Project          string         `db:"project" json:"project"`
	UserPrompt       sql.NullString `db:"user_prompt" json:"user_prompt,omitempty"`
	PromptCounter    int64          `db:"prompt_counter" json:"prompt_counter"`
	Status           SessionStatus  `db:"status" json:"status"`
	StartedAt        string         `db:"started_at" json:"started_at"`
	StartedAtEpoch   int64          `db:"started_at_epoch" json:"started_at_epoch"`
	CompletedAt      sql.NullString `db:"completed_at" json:"completed_at,omitempty"`
	CompletedAtEpoch sql.NullInt64  `db:"completed_at_epoch" json:"completed_at_epoch,omitempty"`
}
