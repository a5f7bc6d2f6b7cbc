// Package gorm provides GORM-based database operations for claude-mem.
package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// SessionStore provides session-related database operations.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB}
}

// InitOrUpsertSession creates the session row on first prompt and bumps the
// prompt counter on every subsequent prompt. Idempotent on
// contentSessionID; returns the session DB id and the prompt number assigned
// to this prompt (0 when promptText is empty).
func (s *SessionStore) InitOrUpsertSession(ctx context.Context, contentSessionID, project, promptText string) (int64, int, error) {
	var sessionID int64
	var promptNumber int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := &Session{
			ContentSessionID: contentSessionID,
			Project:          project,
			UserPrompt:       nullString(promptText),
			Status:           string(models.SessionStatusActive),
		}
		// INSERT OR IGNORE keeps this idempotent across hooks firing in any order.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_session_id"}},
			DoNothing: true,
		}).Create(session).Error; err != nil {
			return err
		}

		var existing Session
		if err := tx.Where("content_session_id = ?", contentSessionID).First(&existing).Error; err != nil {
			return err
		}
		sessionID = existing.ID

		// A later hook may carry the project the first one lacked.
		if existing.Project == "" && project != "" {
			if err := tx.Model(&Session{}).Where("id = ?", existing.ID).
				Update("project", project).Error; err != nil {
				return err
			}
		}

		if promptText == "" {
			promptNumber = existing.PromptCounter
			return nil
		}

		promptNumber = existing.PromptCounter + 1
		updates := map[string]interface{}{"prompt_counter": promptNumber}
		if !existing.UserPrompt.Valid {
			updates["user_prompt"] = promptText
		}
		if err := tx.Model(&Session{}).Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		prompt := &UserPrompt{
			ContentSessionID: contentSessionID,
			PromptNumber:     promptNumber,
			PromptText:       promptText,
		}
		return tx.Create(prompt).Error
	})

	return sessionID, promptNumber, err
}

// GetSessionByContentID retrieves a session by its external session id.
// Returns nil when not found.
func (s *SessionStore) GetSessionByContentID(ctx context.Context, contentSessionID string) (*models.Session, error) {
	var session Session
	err := s.db.WithContext(ctx).
		Where("content_session_id = ?", contentSessionID).
		First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&session), nil
}

// AssignMemorySessionID sets the internal memory session id if not already
// assigned and returns the effective value. The first writer wins; later
// calls return the stored id unchanged.
func (s *SessionStore) AssignMemorySessionID(ctx context.Context, contentSessionID, memorySessionID string) (string, error) {
	var effective string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session Session
		if err := tx.Where("content_session_id = ?", contentSessionID).First(&session).Error; err != nil {
			return err
		}
		if session.MemorySessionID.Valid && session.MemorySessionID.String != "" {
			effective = session.MemorySessionID.String
			return nil
		}
		effective = memorySessionID
		return tx.Model(&Session{}).Where("id = ?", session.ID).
			Update("memory_session_id", memorySessionID).Error
	})
	return effective, err
}

// SetStatus transitions the session to the given status, stamping the
// completion time for terminal states.
func (s *SessionStore) SetStatus(ctx context.Context, contentSessionID string, status models.SessionStatus) error {
	updates := map[string]interface{}{"status": string(status)}
	if status == models.SessionStatusCompleted || status == models.SessionStatusFailed {
		now := time.Now()
		updates["completed_at"] = now.Format(time.RFC3339)
		updates["completed_at_epoch"] = now.UnixMilli()
	}
	return s.db.WithContext(ctx).Model(&Session{}).
		Where("content_session_id = ?", contentSessionID).
		Updates(updates).Error
}
