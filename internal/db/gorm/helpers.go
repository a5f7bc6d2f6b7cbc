// Package gorm provides GORM-based database operations for claude-mem.
package gorm

import (
	"database/sql"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// nullString creates a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt64 creates a sql.NullInt64 from an int.
func nullInt64(i int) sql.NullInt64 {
	if i <= 0 {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

// toModelSession converts a DB session to the domain model.
func toModelSession(s *Session) *models.Session {
	return &models.Session{
		ID:               s.ID,
		ContentSessionID: s.ContentSessionID,
		MemorySessionID:  s.MemorySessionID,
		Project:          s.Project,
		UserPrompt:       s.UserPrompt,
		PromptCounter:    int64(s.PromptCounter),
		Status:           models.SessionStatus(s.Status),
		StartedAt:        s.StartedAt,
		StartedAtEpoch:   s.StartedAtEpoch,
		CompletedAt:      s.CompletedAt,
		CompletedAtEpoch: s.CompletedAtEpoch,
	}
}

// toModelObservation converts a DB observation to the domain model.
func toModelObservation(o *Observation) *models.Observation {
	return &models.Observation{
		ID:              o.ID,
		MemorySessionID: o.MemorySessionID,
		Project:         o.Project,
		Type:            o.Type,
		Title:           o.Title,
		Subtitle:        o.Subtitle,
		Narrative:       o.Narrative,
		Facts:           o.Facts,
		Concepts:        o.Concepts,
		FilesRead:       o.FilesRead,
		FilesModified:   o.FilesModified,
		PromptNumber:    o.PromptNumber,
		DiscoveryTokens: o.DiscoveryTokens,
		CreatedAt:       o.CreatedAt,
		CreatedAtEpoch:  o.CreatedAtEpoch,
	}
}

// toModelSummary converts a DB summary to the domain model.
func toModelSummary(s *SessionSummary) *models.SessionSummary {
	return &models.SessionSummary{
		ID:              s.ID,
		MemorySessionID: s.MemorySessionID,
		Project:         s.Project,
		Request:         s.Request,
		Investigated:    s.Investigated,
		Learned:         s.Learned,
		Completed:       s.Completed,
		NextSteps:       s.NextSteps,
		Notes:           s.Notes,
		PromptNumber:    s.PromptNumber,
		DiscoveryTokens: s.DiscoveryTokens,
		CreatedAt:       s.CreatedAt,
		CreatedAtEpoch:  s.CreatedAtEpoch,
	}
}

// toModelPendingMessage converts a DB pending message to the domain model.
func toModelPendingMessage(m *PendingMessage) *models.PendingMessage {
	return &models.PendingMessage{
		ID:                   m.ID,
		ContentSessionID:     m.ContentSessionID,
		Kind:                 models.MessageKind(m.Kind),
		Status:               models.MessageStatus(m.Status),
		ToolName:             m.ToolName,
		ToolInput:            m.ToolInput,
		ToolOutput:           m.ToolOutput,
		CWD:                  m.CWD,
		LastAssistantMessage: m.LastAssistantMessage,
		PromptNumber:         m.PromptNumber,
		RetryCount:           m.RetryCount,
		CreatedAt:            m.CreatedAt,
		CreatedAtEpoch:       m.CreatedAtEpoch,
	}
}
