package gorm

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// SummaryStore provides session summary database operations.
type SummaryStore struct {
	db    *gorm.DB
	rawDB *sql.DB
}

// NewSummaryStore creates a new summary store.
func NewSummaryStore(store *Store) *SummaryStore {
	return &SummaryStore{
		db:    store.DB,
		rawDB: store.GetRawDB(),
	}
}

// StoreSummary persists a summary for a memory session. A session has at
// most one summary and the first write wins: a later attempt leaves the
// stored row untouched and returns its id.
func (s *SummaryStore) StoreSummary(ctx context.Context, summary *models.SessionSummary) (int64, error) {
	now := time.Now()
	row := &SessionSummary{
		MemorySessionID: summary.MemorySessionID,
		Project:         summary.Project,
		Request:         summary.Request,
		Investigated:    summary.Investigated,
		Learned:         summary.Learned,
		Completed:       summary.Completed,
		NextSteps:       summary.NextSteps,
		Notes:           summary.Notes,
		PromptNumber:    summary.PromptNumber,
		DiscoveryTokens: summary.DiscoveryTokens,
		CreatedAt:       now.Format(time.RFC3339),
		CreatedAtEpoch:  now.UnixMilli(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "memory_session_id"}},
		DoNothing: true,
	}).Create(row).Error
	if err != nil {
		return 0, err
	}

	// A conflicting insert is silently ignored; read the winner back.
	if row.ID == 0 {
		existing, err := s.GetSummaryBySession(ctx, summary.MemorySessionID)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return 0, gorm.ErrRecordNotFound
		}
		row.ID = existing.ID
	}
	return row.ID, nil
}

// GetSummaryByID retrieves a summary by its ID. Returns nil when not found.
func (s *SummaryStore) GetSummaryByID(ctx context.Context, id int64) (*models.SessionSummary, error) {
	var row SessionSummary
	err := s.db.WithContext(ctx).First(&row, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelSummary(&row), nil
}

// GetSummaryBySession retrieves the summary for a memory session. Returns
// nil when the session has no summary yet.
func (s *SummaryStore) GetSummaryBySession(ctx context.Context, memorySessionID string) (*models.SessionSummary, error) {
	var row SessionSummary
	err := s.db.WithContext(ctx).
		Where("memory_session_id = ?", memorySessionID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelSummary(&row), nil
}

// GetSummariesByIDs retrieves summaries by id list, returned in input
// order. Missing ids are silently dropped.
func (s *SummaryStore) GetSummariesByIDs(ctx context.Context, ids []int64) ([]*models.SessionSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []SessionSummary
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*SessionSummary, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}

	summaries := make([]*models.SessionSummary, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			summaries = append(summaries, toModelSummary(row))
		}
	}
	return summaries, nil
}

// GetRecentSummaries retrieves recent summaries for a project, newest
// first. An empty project returns summaries across all projects.
func (s *SummaryStore) GetRecentSummaries(ctx context.Context, project string, limit int) ([]*models.SessionSummary, error) {
	query := s.db.WithContext(ctx).Model(&SessionSummary{})
	if project != "" {
		query = query.Where("project = ?", project)
	}

	var rows []SessionSummary
	err := query.Order("created_at_epoch DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelSummaries(rows), nil
}

// SearchSummariesFTS performs full-text search on summaries using FTS5,
// falling back to LIKE when FTS5 fails or finds nothing.
func (s *SummaryStore) SearchSummariesFTS(ctx context.Context, query, project string, limit int) ([]*models.SessionSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	ftsTerms := strings.Join(keywords, " OR ")

	ftsQuery := `
		SELECT ss.id
		FROM session_summaries ss
		JOIN session_summaries_fts fts ON ss.id = fts.rowid
		WHERE session_summaries_fts MATCH ?`
	args := []interface{}{ftsTerms}
	if project != "" {
		ftsQuery += " AND ss.project = ?"
		args = append(args, project)
	}
	ftsQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.rawDB.QueryContext(ctx, ftsQuery, args...)
	if err != nil {
		return s.searchSummariesLike(ctx, keywords, project, limit)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return s.searchSummariesLike(ctx, keywords, project, limit)
	}
	return s.GetSummariesByIDs(ctx, ids)
}

// searchSummariesLike performs fallback LIKE search on summaries.
func (s *SummaryStore) searchSummariesLike(ctx context.Context, keywords []string, project string, limit int) ([]*models.SessionSummary, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		pattern := "%" + kw + "%"
		conditions = append(conditions, "(request LIKE ? OR learned LIKE ? OR completed LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	query := s.db.WithContext(ctx).Model(&SessionSummary{}).
		Where(strings.Join(conditions, " OR "), args...)
	if project != "" {
		query = query.Where("project = ?", project)
	}

	var rows []SessionSummary
	err := query.Order("created_at_epoch DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelSummaries(rows), nil
}

// toModelSummaries converts GORM summaries to domain models.
func toModelSummaries(rows []SessionSummary) []*models.SessionSummary {
	result := make([]*models.SessionSummary, len(rows))
	for i := range rows {
		result[i] = toModelSummary(&rows[i])
	}
	return result
}
