package gorm

import (
	"context"
	"database/sql"
	"strings"

	"gorm.io/gorm"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// PromptStore provides user prompt database operations. Prompt rows are
// written by SessionStore.InitOrUpsertSession; this store covers retrieval
// and search.
type PromptStore struct {
	db    *gorm.DB
	rawDB *sql.DB
}

// NewPromptStore creates a new prompt store.
func NewPromptStore(store *Store) *PromptStore {
	return &PromptStore{
		db:    store.DB,
		rawDB: store.GetRawDB(),
	}
}

// GetPromptsBySession retrieves all prompts for a session in prompt order.
func (s *PromptStore) GetPromptsBySession(ctx context.Context, contentSessionID string) ([]*models.UserPrompt, error) {
	var rows []UserPrompt
	err := s.db.WithContext(ctx).
		Where("content_session_id = ?", contentSessionID).
		Order("prompt_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelPrompts(rows), nil
}

// GetPromptsByIDs retrieves prompts with session context by ID. Missing
// IDs are silently omitted.
func (s *PromptStore) GetPromptsByIDs(ctx context.Context, ids []int64) ([]*models.UserPromptWithSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []promptWithSessionRow
	err := s.db.WithContext(ctx).
		Table("user_prompts").
		Select("user_prompts.*, sessions.project AS project, COALESCE(sessions.memory_session_id, '') AS memory_session_id").
		Joins("JOIN sessions ON sessions.content_session_id = user_prompts.content_session_id").
		Where("user_prompts.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelPromptsWithSession(rows), nil
}

// GetPromptByNumber retrieves one prompt with session context. Returns nil
// when the session has no prompt with that number.
func (s *PromptStore) GetPromptByNumber(ctx context.Context, contentSessionID string, promptNumber int) (*models.UserPromptWithSession, error) {
	var rows []promptWithSessionRow
	err := s.db.WithContext(ctx).
		Table("user_prompts").
		Select("user_prompts.*, sessions.project AS project, COALESCE(sessions.memory_session_id, '') AS memory_session_id").
		Joins("JOIN sessions ON sessions.content_session_id = user_prompts.content_session_id").
		Where("user_prompts.content_session_id = ? AND user_prompts.prompt_number = ?", contentSessionID, promptNumber).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toModelPromptsWithSession(rows)[0], nil
}

// SearchPromptsFTS performs full-text search on prompts using FTS5,
// falling back to LIKE when FTS5 fails or finds nothing.
func (s *PromptStore) SearchPromptsFTS(ctx context.Context, query, project string, limit int) ([]*models.UserPromptWithSession, error) {
	if limit <= 0 {
		limit = 10
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	ftsTerms := strings.Join(keywords, " OR ")

	ftsQuery := `
		SELECT up.id, up.content_session_id, up.prompt_number, up.prompt_text,
		       up.created_at, up.created_at_epoch,
		       s.project, COALESCE(s.memory_session_id, '') AS memory_session_id
		FROM user_prompts up
		JOIN user_prompts_fts fts ON up.id = fts.rowid
		JOIN sessions s ON s.content_session_id = up.content_session_id
		WHERE user_prompts_fts MATCH ?`
	args := []interface{}{ftsTerms}
	if project != "" {
		ftsQuery += " AND s.project = ?"
		args = append(args, project)
	}
	ftsQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.rawDB.QueryContext(ctx, ftsQuery, args...)
	if err != nil {
		return s.searchPromptsLike(ctx, keywords, project, limit)
	}
	defer rows.Close()

	var prompts []*models.UserPromptWithSession
	for rows.Next() {
		var p models.UserPromptWithSession
		err := rows.Scan(
			&p.ID, &p.ContentSessionID, &p.PromptNumber, &p.PromptText,
			&p.CreatedAt, &p.CreatedAtEpoch,
			&p.Project, &p.MemorySessionID,
		)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(prompts) == 0 {
		return s.searchPromptsLike(ctx, keywords, project, limit)
	}
	return prompts, nil
}

// searchPromptsLike performs fallback LIKE search on prompts.
func (s *PromptStore) searchPromptsLike(ctx context.Context, keywords []string, project string, limit int) ([]*models.UserPromptWithSession, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "user_prompts.prompt_text LIKE ?")
		args = append(args, "%"+kw+"%")
	}

	query := s.db.WithContext(ctx).
		Table("user_prompts").
		Select("user_prompts.*, sessions.project AS project, COALESCE(sessions.memory_session_id, '') AS memory_session_id").
		Joins("JOIN sessions ON sessions.content_session_id = user_prompts.content_session_id").
		Where(strings.Join(conditions, " OR "), args...)
	if project != "" {
		query = query.Where("sessions.project = ?", project)
	}

	var rows []promptWithSessionRow
	err := query.Order("user_prompts.created_at_epoch DESC, user_prompts.id DESC").Limit(limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelPromptsWithSession(rows), nil
}

// promptWithSessionRow is the scan target for prompt+session joins.
type promptWithSessionRow struct {
	UserPrompt
	Project         string
	MemorySessionID string
}

func toModelPrompts(rows []UserPrompt) []*models.UserPrompt {
	result := make([]*models.UserPrompt, len(rows))
	for i := range rows {
		r := &rows[i]
		result[i] = &models.UserPrompt{
			ID:               r.ID,
			ContentSessionID: r.ContentSessionID,
			PromptNumber:     r.PromptNumber,
			PromptText:       r.PromptText,
			CreatedAt:        r.CreatedAt,
			CreatedAtEpoch:   r.CreatedAtEpoch,
		}
	}
	return result
}

func toModelPromptsWithSession(rows []promptWithSessionRow) []*models.UserPromptWithSession {
	result := make([]*models.UserPromptWithSession, len(rows))
	for i := range rows {
		r := &rows[i]
		result[i] = &models.UserPromptWithSession{
			Project:         r.Project,
			MemorySessionID: r.MemorySessionID,
			UserPrompt: models.UserPrompt{
				ID:               r.UserPrompt.ID,
				ContentSessionID: r.UserPrompt.ContentSessionID,
				PromptNumber:     r.UserPrompt.PromptNumber,
				PromptText:       r.UserPrompt.PromptText,
				CreatedAt:        r.UserPrompt.CreatedAt,
				CreatedAtEpoch:   r.UserPrompt.CreatedAtEpoch,
			},
		}
	}
	return result
}
