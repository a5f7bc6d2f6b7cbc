package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// ErrQueueEmpty is returned by ClaimNext when no pending message exists
// for the requested session.
var ErrQueueEmpty = errors.New("no pending messages")

// QueueStore provides durable FIFO operations over pending_messages.
type QueueStore struct {
	db         *gorm.DB
	stuckAfter time.Duration
}

// NewQueueStore creates a new queue store. stuckAfter controls when a row
// counts as stuck in Stats.
func NewQueueStore(store *Store, stuckAfter time.Duration) *QueueStore {
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	return &QueueStore{db: store.DB, stuckAfter: stuckAfter}
}

// Enqueue appends a message to the tail of the session's queue.
func (q *QueueStore) Enqueue(ctx context.Context, msg *models.PendingMessage) (int64, error) {
	row := &PendingMessage{
		ContentSessionID:     msg.ContentSessionID,
		Kind:                 string(msg.Kind),
		Status:               string(models.MessageStatusPending),
		ToolName:             msg.ToolName,
		ToolInput:            msg.ToolInput,
		ToolOutput:           msg.ToolOutput,
		CWD:                  msg.CWD,
		LastAssistantMessage: msg.LastAssistantMessage,
		PromptNumber:         msg.PromptNumber,
	}
	if err := q.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// ClaimNext atomically claims the oldest pending message for the session,
// marking it processing so a crash mid-flight leaves a recoverable row.
// Losing a claim race to a concurrent claimer moves on to the next row;
// ErrQueueEmpty means the session genuinely has nothing pending.
func (q *QueueStore) ClaimNext(ctx context.Context, contentSessionID string) (*models.PendingMessage, error) {
	var claimed *PendingMessage
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var afterID int64
		for {
			var row PendingMessage
			err := tx.Where("content_session_id = ? AND status = ? AND id > ?",
				contentSessionID, string(models.MessageStatusPending), afterID).
				Order("id ASC").
				First(&row).Error
			if err == gorm.ErrRecordNotFound {
				return ErrQueueEmpty
			}
			if err != nil {
				return err
			}

			now := time.Now()
			res := tx.Model(&PendingMessage{}).
				Where("id = ? AND status = ?", row.ID, string(models.MessageStatusPending)).
				Updates(map[string]interface{}{
					"status":           string(models.MessageStatusProcessing),
					"claimed_at":       now.Format(time.RFC3339),
					"claimed_at_epoch": now.UnixMilli(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Another claimer took this row between the select and the
				// update; advance past it.
				afterID = row.ID
				continue
			}
			row.Status = string(models.MessageStatusProcessing)
			claimed = &row
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return toModelPendingMessage(claimed), nil
}

// Complete deletes a successfully processed message. Called only after the
// results of processing have been committed elsewhere.
func (q *QueueStore) Complete(ctx context.Context, id int64) error {
	return q.db.WithContext(ctx).Delete(&PendingMessage{}, id).Error
}

// Fail records a processing failure. The message returns to pending for
// another attempt until maxRetries is exhausted, then it is marked failed
// and left in place for inspection.
func (q *QueueStore) Fail(ctx context.Context, id int64, maxRetries int) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row PendingMessage
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		retries := row.RetryCount + 1
		status := string(models.MessageStatusPending)
		if retries >= maxRetries {
			status = string(models.MessageStatusFailed)
		}
		return tx.Model(&PendingMessage{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":           status,
				"retry_count":      retries,
				"claimed_at":       nil,
				"claimed_at_epoch": nil,
			}).Error
	})
}

// Release returns a claimed message to pending without charging a retry.
// Used when a drain loop is cancelled mid-claim: the work is untouched and
// should run again as soon as the session resumes.
func (q *QueueStore) Release(ctx context.Context, id int64) error {
	return q.db.WithContext(ctx).Model(&PendingMessage{}).
		Where("id = ? AND status = ?", id, string(models.MessageStatusProcessing)).
		Updates(map[string]interface{}{
			"status":           string(models.MessageStatusPending),
			"claimed_at":       nil,
			"claimed_at_epoch": nil,
		}).Error
}

// Discard marks a message failed without retry, for payloads that can
// never be processed (unknown kind, missing session).
func (q *QueueStore) Discard(ctx context.Context, id int64) error {
	return q.db.WithContext(ctx).Model(&PendingMessage{}).Where("id = ?", id).
		Update("status", string(models.MessageStatusFailed)).Error
}

// RecoverOnStartup resets messages left processing by a crashed worker back
// to pending. Returns the number of rows recovered.
func (q *QueueStore) RecoverOnStartup(ctx context.Context) (int64, error) {
	res := q.db.WithContext(ctx).Model(&PendingMessage{}).
		Where("status = ?", string(models.MessageStatusProcessing)).
		Updates(map[string]interface{}{
			"status":           string(models.MessageStatusPending),
			"claimed_at":       nil,
			"claimed_at_epoch": nil,
		})
	return res.RowsAffected, res.Error
}

// SessionsWithPending returns the distinct sessions that currently have
// pending work, oldest session first.
func (q *QueueStore) SessionsWithPending(ctx context.Context) ([]string, error) {
	var sessions []string
	err := q.db.WithContext(ctx).Model(&PendingMessage{}).
		Where("status = ?", string(models.MessageStatusPending)).
		Group("content_session_id").
		Order("MIN(id) ASC").
		Pluck("content_session_id", &sessions).Error
	return sessions, err
}

// Stats returns queue depth broken down by status, plus a stuck count
// covering both processing rows claimed too long ago and pending rows no
// drain loop has picked up within the same threshold.
func (q *QueueStore) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}

	var rows []struct {
		Status string
		Count  int64
	}
	err := q.db.WithContext(ctx).Model(&PendingMessage{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch models.MessageStatus(r.Status) {
		case models.MessageStatusPending:
			stats.Pending = r.Count
		case models.MessageStatusProcessing:
			stats.Processing = r.Count
		case models.MessageStatusProcessed:
			stats.Processed = r.Count
		case models.MessageStatusFailed:
			stats.Failed = r.Count
		}
	}

	cutoff := time.Now().Add(-q.stuckAfter).UnixMilli()
	err = q.db.WithContext(ctx).Model(&PendingMessage{}).
		Where("(status = ? AND claimed_at_epoch IS NOT NULL AND claimed_at_epoch < ?) OR (status = ? AND created_at_epoch < ?)",
			string(models.MessageStatusProcessing), cutoff,
			string(models.MessageStatusPending), cutoff).
		Count(&stats.Stuck).Error
	if err != nil {
		return nil, err
	}

	err = q.db.WithContext(ctx).Model(&PendingMessage{}).
		Where("status IN ?", []string{
			string(models.MessageStatusPending),
			string(models.MessageStatusProcessing),
		}).
		Distinct("content_session_id").
		Order("content_session_id ASC").
		Pluck("content_session_id", &stats.Sessions).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
