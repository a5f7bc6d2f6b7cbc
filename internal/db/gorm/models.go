// Package gorm provides GORM-based database operations for claude-mem.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// GORM models. JSON column types (JSONStringArray) come from pkg/models and
// implement sql.Scanner and driver.Valuer.

// Session represents a captured assistant session.
type Session struct {
	ID               int64          `gorm:"primaryKey;autoIncrement"`
	ContentSessionID string         `gorm:"uniqueIndex;not null"`
	MemorySessionID  sql.NullString `gorm:"uniqueIndex"`
	Project          string         `gorm:"index;not null"`
	UserPrompt       sql.NullString
	PromptCounter    int    `gorm:"default:0"`
	Status           string `gorm:"type:text;check:status IN ('active', 'completed', 'failed');default:'active';index"`
	StartedAt        string `gorm:"not null"`
	StartedAtEpoch   int64  `gorm:"index:idx_sessions_started,sort:desc;not null"`
	CompletedAt      sql.NullString
	CompletedAtEpoch sql.NullInt64
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure timestamps are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.StartedAtEpoch == 0 {
		s.StartedAtEpoch = time.Now().UnixMilli()
	}
	if s.StartedAt == "" {
		s.StartedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// PendingMessage is a queued capture request.
type PendingMessage struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	ContentSessionID string `gorm:"index:idx_pending_session_status,priority:1;not null"`
	// Kind is deliberately unconstrained: a newer schema may enqueue kinds
	// this binary does not know, and those rows must stay claimable so the
	// drain loop can discard them.
	Kind                 string `gorm:"type:text;not null"`
	Status               string `gorm:"type:text;check:status IN ('pending', 'processing', 'processed', 'failed');default:'pending';index:idx_pending_session_status,priority:2"`
	ToolName             string `gorm:"type:text"`
	ToolInput            string `gorm:"type:text"`
	ToolOutput           string `gorm:"type:text"`
	CWD                  string `gorm:"type:text"`
	LastAssistantMessage string `gorm:"type:text"`
	PromptNumber         int    `gorm:"default:0"`
	RetryCount           int    `gorm:"default:0"`
	ClaimedAt            sql.NullString
	ClaimedAtEpoch       sql.NullInt64
	CreatedAt            string `gorm:"not null"`
	CreatedAtEpoch       int64  `gorm:"index;not null"`
}

func (PendingMessage) TableName() string { return "pending_messages" }

// BeforeCreate hook to ensure timestamps are set.
func (m *PendingMessage) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAtEpoch == 0 {
		m.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Observation represents a stored observation (extracted insight).
type Observation struct {
	ID              int64                  `gorm:"primaryKey;autoIncrement"`
	MemorySessionID string                 `gorm:"index;not null"`
	Project         string                 `gorm:"index;not null"`
	Type            models.ObservationType `gorm:"type:text;check:type IN ('decision', 'bugfix', 'feature', 'refactor', 'discovery');index;not null"`

	// Content fields
	Title         sql.NullString         `gorm:"type:text"`
	Subtitle      sql.NullString         `gorm:"type:text"`
	Narrative     sql.NullString         `gorm:"type:text"`
	Facts         models.JSONStringArray `gorm:"type:text"` // JSON array
	Concepts      models.JSONStringArray `gorm:"type:text"` // JSON array
	FilesRead     models.JSONStringArray `gorm:"type:text"` // JSON array
	FilesModified models.JSONStringArray `gorm:"type:text"` // JSON array

	// Metadata
	PromptNumber    sql.NullInt64
	DiscoveryTokens int64  `gorm:"default:0"`
	CreatedAt       string `gorm:"not null"`
	CreatedAtEpoch  int64  `gorm:"index:idx_observations_created,sort:desc;not null"`
}

func (Observation) TableName() string { return "observations" }

// BeforeCreate hook to ensure timestamps are set.
func (o *Observation) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAtEpoch == 0 {
		o.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if o.CreatedAt == "" {
		o.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// SessionSummary represents a session summary. Unique per memory session.
type SessionSummary struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	MemorySessionID string `gorm:"uniqueIndex;not null"`
	Project         string `gorm:"index;not null"`

	Request      sql.NullString
	Investigated sql.NullString
	Learned      sql.NullString
	Completed    sql.NullString
	NextSteps    sql.NullString `gorm:"column:next_steps"`
	Notes        sql.NullString

	PromptNumber    sql.NullInt64
	DiscoveryTokens int64  `gorm:"default:0"`
	CreatedAt       string `gorm:"not null"`
	CreatedAtEpoch  int64  `gorm:"index:idx_summaries_created,sort:desc;not null"`
}

func (SessionSummary) TableName() string { return "session_summaries" }

// BeforeCreate hook to ensure timestamps are set.
func (s *SessionSummary) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// UserPrompt represents a user prompt.
type UserPrompt struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	ContentSessionID string `gorm:"index;not null;uniqueIndex:idx_user_prompts_session_number_unique,priority:1"`
	PromptNumber     int    `gorm:"index;not null;uniqueIndex:idx_user_prompts_session_number_unique,priority:2"`
	PromptText       string `gorm:"type:text;not null"`
	CreatedAt        string `gorm:"not null"`
	CreatedAtEpoch   int64  `gorm:"index:idx_prompts_created,sort:desc;not null"`
}

func (UserPrompt) TableName() string { return "user_prompts" }

// BeforeCreate hook to ensure timestamps are set.
func (p *UserPrompt) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}
