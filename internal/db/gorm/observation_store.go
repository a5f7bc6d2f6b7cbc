package gorm

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// ObservationStore provides observation-related database operations using GORM.
type ObservationStore struct {
	db    *gorm.DB
	rawDB *sql.DB
}

// NewObservationStore creates a new observation store.
func NewObservationStore(store *Store) *ObservationStore {
	return &ObservationStore{
		db:    store.DB,
		rawDB: store.GetRawDB(),
	}
}

// StoreObservation stores a new observation and returns its id and creation
// epoch.
func (s *ObservationStore) StoreObservation(ctx context.Context, memorySessionID, project string, obs *models.ParsedObservation, promptNumber int, discoveryTokens int64) (int64, int64, error) {
	now := time.Now()
	nowEpoch := now.UnixMilli()

	dbObs := &Observation{
		MemorySessionID: memorySessionID,
		Project:         project,
		Type:            obs.Type,
		Title:           nullString(obs.Title),
		Subtitle:        nullString(obs.Subtitle),
		Narrative:       nullString(obs.Narrative),
		Facts:           models.JSONStringArray(obs.Facts),
		Concepts:        models.JSONStringArray(obs.Concepts),
		FilesRead:       models.JSONStringArray(obs.FilesRead),
		FilesModified:   models.JSONStringArray(obs.FilesModified),
		PromptNumber:    nullInt64(promptNumber),
		DiscoveryTokens: discoveryTokens,
		CreatedAt:       now.Format(time.RFC3339),
		CreatedAtEpoch:  nowEpoch,
	}

	if err := s.db.WithContext(ctx).Create(dbObs).Error; err != nil {
		return 0, 0, err
	}
	return dbObs.ID, nowEpoch, nil
}

// StoreObservations persists a batch of parsed observations in one
// transaction, so a multi-record agent response commits all-or-nothing.
// Returns the stored rows in input order.
func (s *ObservationStore) StoreObservations(ctx context.Context, memorySessionID, project string, parsed []*models.ParsedObservation, promptNumber int, discoveryTokens int64) ([]*models.Observation, error) {
	if len(parsed) == 0 {
		return nil, nil
	}

	now := time.Now()
	nowEpoch := now.UnixMilli()

	rows := make([]*Observation, len(parsed))
	for i, obs := range parsed {
		rows[i] = &Observation{
			MemorySessionID: memorySessionID,
			Project:         project,
			Type:            obs.Type,
			Title:           nullString(obs.Title),
			Subtitle:        nullString(obs.Subtitle),
			Narrative:       nullString(obs.Narrative),
			Facts:           models.JSONStringArray(obs.Facts),
			Concepts:        models.JSONStringArray(obs.Concepts),
			FilesRead:       models.JSONStringArray(obs.FilesRead),
			FilesModified:   models.JSONStringArray(obs.FilesModified),
			PromptNumber:    nullInt64(promptNumber),
			DiscoveryTokens: discoveryTokens,
			CreatedAt:       now.Format(time.RFC3339),
			CreatedAtEpoch:  nowEpoch,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored := make([]*models.Observation, len(rows))
	for i, row := range rows {
		stored[i] = toModelObservation(row)
	}
	return stored, nil
}

// GetObservationByID retrieves an observation by its ID. Returns nil when
// not found.
func (s *ObservationStore) GetObservationByID(ctx context.Context, id int64) (*models.Observation, error) {
	var dbObs Observation
	err := s.db.WithContext(ctx).First(&dbObs, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelObservation(&dbObs), nil
}

// GetObservationsByIDs retrieves observations by id list, returned in the
// order of the input list. Missing ids are silently dropped.
func (s *ObservationStore) GetObservationsByIDs(ctx context.Context, ids []int64) ([]*models.Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var dbObservations []Observation
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&dbObservations).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*Observation, len(dbObservations))
	for i := range dbObservations {
		byID[dbObservations[i].ID] = &dbObservations[i]
	}

	observations := make([]*models.Observation, 0, len(ids))
	for _, id := range ids {
		if dbObs, ok := byID[id]; ok {
			observations = append(observations, toModelObservation(dbObs))
		}
	}
	return observations, nil
}

// ObservationFilter narrows metadata-driven observation queries.
type ObservationFilter struct {
	Project         string
	Types           []models.ObservationType
	Concepts        []string
	Files           []string
	MemorySessionID string
	Since           int64 // created_at_epoch lower bound, 0 = unbounded
	Until           int64 // created_at_epoch upper bound, 0 = unbounded
}

// FindObservations retrieves observations matching the filter, newest first.
func (s *ObservationStore) FindObservations(ctx context.Context, f ObservationFilter, limit int) ([]*models.Observation, error) {
	query := s.db.WithContext(ctx).Model(&Observation{})
	query = applyObservationFilter(query, f)

	var dbObservations []Observation
	err := query.Order("created_at_epoch DESC, id DESC").Limit(limit).Find(&dbObservations).Error
	if err != nil {
		return nil, err
	}
	return toModelObservations(dbObservations), nil
}

// GetRecentObservations retrieves recent observations for a project, newest
// first.
func (s *ObservationStore) GetRecentObservations(ctx context.Context, project string, limit int) ([]*models.Observation, error) {
	return s.FindObservations(ctx, ObservationFilter{Project: project}, limit)
}

// GetObservationsBySession retrieves all observations for a memory session
// in creation order.
func (s *ObservationStore) GetObservationsBySession(ctx context.Context, memorySessionID string) ([]*models.Observation, error) {
	var dbObservations []Observation
	err := s.db.WithContext(ctx).
		Where("memory_session_id = ?", memorySessionID).
		Order("id ASC").
		Find(&dbObservations).Error
	if err != nil {
		return nil, err
	}
	return toModelObservations(dbObservations), nil
}

// SearchObservationsFTS performs full-text search on observations using
// FTS5, constrained by the filter. Falls back to LIKE search if FTS5 fails
// or returns nothing.
func (s *ObservationStore) SearchObservationsFTS(ctx context.Context, query string, f ObservationFilter, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 10
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	// keyword1 OR keyword2 OR keyword3
	ftsTerms := strings.Join(keywords, " OR ")

	// GORM can't express the FTS5 MATCH operator, so this goes through the
	// raw connection.
	ftsQuery := `
		SELECT o.id
		FROM observations o
		JOIN observations_fts fts ON o.id = fts.rowid
		WHERE observations_fts MATCH ?`
	args := []interface{}{ftsTerms}
	if f.Project != "" {
		ftsQuery += " AND o.project = ?"
		args = append(args, f.Project)
	}
	ftsQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.rawDB.QueryContext(ctx, ftsQuery, args...)
	if err != nil {
		return s.searchObservationsLike(ctx, keywords, f, limit)
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
		return s.searchObservationsLike(ctx, keywords, f, limit)
	}

	observations, err := s.GetObservationsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return filterObservations(observations, f), nil
}

// searchObservationsLike performs fallback LIKE search on observations.
func (s *ObservationStore) searchObservationsLike(ctx context.Context, keywords []string, f ObservationFilter, limit int) ([]*models.Observation, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		pattern := "%" + kw + "%"
		conditions = append(conditions, "(title LIKE ? OR subtitle LIKE ? OR narrative LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	query := s.db.WithContext(ctx).Model(&Observation{}).
		Where(strings.Join(conditions, " OR "), args...)
	query = applyObservationFilter(query, f)

	var dbObservations []Observation
	err := query.Order("created_at_epoch DESC, id DESC").Limit(limit).Find(&dbObservations).Error
	if err != nil {
		return nil, err
	}
	return toModelObservations(dbObservations), nil
}

// applyObservationFilter adds the filter's WHERE clauses to a query. JSON
// array columns (concepts, files) are matched with LIKE on the serialized
// form.
func applyObservationFilter(query *gorm.DB, f ObservationFilter) *gorm.DB {
	if f.Project != "" {
		query = query.Where("project = ?", f.Project)
	}
	if f.MemorySessionID != "" {
		query = query.Where("memory_session_id = ?", f.MemorySessionID)
	}
	if len(f.Types) > 0 {
		query = query.Where("type IN ?", f.Types)
	}
	for _, concept := range f.Concepts {
		query = query.Where("concepts LIKE ?", "%"+quoteJSONFragment(concept)+"%")
	}
	if len(f.Files) > 0 {
		var conds []string
		var args []interface{}
		for _, file := range f.Files {
			pattern := "%" + quoteJSONFragment(file) + "%"
			conds = append(conds, "(files_read LIKE ? OR files_modified LIKE ?)")
			args = append(args, pattern, pattern)
		}
		query = query.Where(strings.Join(conds, " OR "), args...)
	}
	if f.Since > 0 {
		query = query.Where("created_at_epoch >= ?", f.Since)
	}
	if f.Until > 0 {
		query = query.Where("created_at_epoch <= ?", f.Until)
	}
	return query
}

// filterObservations re-applies the non-project filter clauses in memory,
// for result sets assembled from id lists.
func filterObservations(observations []*models.Observation, f ObservationFilter) []*models.Observation {
	if len(f.Types) == 0 && len(f.Concepts) == 0 && len(f.Files) == 0 &&
		f.MemorySessionID == "" && f.Since == 0 && f.Until == 0 {
		return observations
	}

	typeSet := make(map[models.ObservationType]bool, len(f.Types))
	for _, t := range f.Types {
		typeSet[t] = true
	}

	var filtered []*models.Observation
	for _, obs := range observations {
		if len(typeSet) > 0 && !typeSet[obs.Type] {
			continue
		}
		if f.MemorySessionID != "" && obs.MemorySessionID != f.MemorySessionID {
			continue
		}
		if f.Since > 0 && obs.CreatedAtEpoch < f.Since {
			continue
		}
		if f.Until > 0 && obs.CreatedAtEpoch > f.Until {
			continue
		}
		if len(f.Concepts) > 0 && !containsAll(obs.Concepts, f.Concepts) {
			continue
		}
		if len(f.Files) > 0 && !containsAny(append(append([]string{}, obs.FilesRead...), obs.FilesModified...), f.Files) {
			continue
		}
		filtered = append(filtered, obs)
	}
	return filtered
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[strings.ToLower(h)] = true
	}
	for _, n := range needles {
		if !set[strings.ToLower(n)] {
			return false
		}
	}
	return true
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if strings.EqualFold(h, n) || strings.HasSuffix(h, n) {
				return true
			}
		}
	}
	return false
}

// quoteJSONFragment escapes a value the way encoding/json stores it inside
// a serialized array, so LIKE matching stays aligned with the column format.
func quoteJSONFragment(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// toModelObservations converts a slice of GORM Observation to pkg/models.Observation.
func toModelObservations(observations []Observation) []*models.Observation {
	result := make([]*models.Observation, len(observations))
	for i := range observations {
		result[i] = toModelObservation(&observations[i])
	}
	return result
}

// extractKeywords extracts keywords from a search query.
func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var keywords []string

	commonWords := map[string]bool{
		"the": true, "and": true, "or": true, "but": true, "in": true,
		"on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true,
		"was": true, "are": true, "were": true, "be": true, "been": true,
		"being": true, "have": true, "has": true, "had": true, "do": true,
		"does": true, "did": true, "will": true, "would": true, "should": true,
		"could": true, "may": true, "might": true, "must": true, "can": true,
	}

	for _, word := range words {
		if len(word) <= 3 || commonWords[word] {
			continue
		}
		keywords = append(keywords, word)
	}

	return keywords
}
