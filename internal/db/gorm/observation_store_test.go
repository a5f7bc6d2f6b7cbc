//go:build fts5

package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

func storeTestObservation(t *testing.T, s *ObservationStore, memSession, project string, obs *models.ParsedObservation) int64 {
	t.Helper()
	id, _, err := s.StoreObservation(context.Background(), memSession, project, obs, 1, 1200)
	require.NoError(t, err)
	return id
}

func TestObservationStore_StoreAndGet(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)
	ctx := context.Background()

	id := storeTestObservation(t, s, "mem-1", "myproject", &models.ParsedObservation{
		Type:          models.ObsTypeBugfix,
		Title:         "Fixed nil pointer in auth middleware",
		Subtitle:      "Guard against missing session claims",
		Narrative:     "The middleware dereferenced claims before checking the parse error.",
		Facts:         []string{"claims parse error was ignored", "panic on expired tokens"},
		Concepts:      []string{"authentication", "middleware"},
		FilesRead:     []string{"internal/auth/middleware.go"},
		FilesModified: []string{"internal/auth/middleware.go"},
	})

	obs, err := s.GetObservationByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, models.ObsTypeBugfix, obs.Type)
	assert.Equal(t, "Fixed nil pointer in auth middleware", obs.Title.String)
	assert.Equal(t, []string{"authentication", "middleware"}, []string(obs.Concepts))
	assert.Equal(t, "mem-1", obs.MemorySessionID)
	assert.Equal(t, int64(1200), obs.DiscoveryTokens)
	assert.NotZero(t, obs.CreatedAtEpoch)
}

func TestObservationStore_GetByIDs_PreservesOrder(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)
	ctx := context.Background()

	a := storeTestObservation(t, s, "mem-1", "p", &models.ParsedObservation{Type: models.ObsTypeDecision, Title: "a"})
	b := storeTestObservation(t, s, "mem-1", "p", &models.ParsedObservation{Type: models.ObsTypeFeature, Title: "b"})
	c := storeTestObservation(t, s, "mem-1", "p", &models.ParsedObservation{Type: models.ObsTypeDiscovery, Title: "c"})

	got, err := s.GetObservationsByIDs(ctx, []int64{c, a, 9999, b})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Title.String)
	assert.Equal(t, "a", got[1].Title.String)
	assert.Equal(t, "b", got[2].Title.String)
}

func TestObservationStore_FindObservations_Filters(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)
	ctx := context.Background()

	storeTestObservation(t, s, "mem-1", "alpha", &models.ParsedObservation{
		Type:     models.ObsTypeBugfix,
		Title:    "alpha bugfix",
		Concepts: []string{"database"},
	})
	storeTestObservation(t, s, "mem-2", "alpha", &models.ParsedObservation{
		Type:      models.ObsTypeFeature,
		Title:     "alpha feature",
		FilesRead: []string{"cmd/worker/main.go"},
	})
	storeTestObservation(t, s, "mem-3", "beta", &models.ParsedObservation{
		Type:  models.ObsTypeBugfix,
		Title: "beta bugfix",
	})

	byProject, err := s.FindObservations(ctx, ObservationFilter{Project: "alpha"}, 10)
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	byType, err := s.FindObservations(ctx, ObservationFilter{
		Project: "alpha",
		Types:   []models.ObservationType{models.ObsTypeBugfix},
	}, 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "alpha bugfix", byType[0].Title.String)

	byConcept, err := s.FindObservations(ctx, ObservationFilter{Concepts: []string{"database"}}, 10)
	require.NoError(t, err)
	require.Len(t, byConcept, 1)
	assert.Equal(t, "alpha bugfix", byConcept[0].Title.String)

	byFile, err := s.FindObservations(ctx, ObservationFilter{Files: []string{"cmd/worker/main.go"}}, 10)
	require.NoError(t, err)
	require.Len(t, byFile, 1)
	assert.Equal(t, "alpha feature", byFile[0].Title.String)
}

func TestObservationStore_FindObservations_NewestFirst(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)
	ctx := context.Background()

	// Same-millisecond inserts still order by id through the epoch tie.
	storeTestObservation(t, s, "mem-1", "p", &models.ParsedObservation{Type: models.ObsTypeDecision, Title: "older"})
	newer := storeTestObservation(t, s, "mem-1", "p", &models.ParsedObservation{Type: models.ObsTypeDecision, Title: "newer"})

	got, err := s.GetRecentObservations(ctx, "p", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, newer, got[0].ID)
}

func TestObservationStore_SearchFTS(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)
	ctx := context.Background()

	storeTestObservation(t, s, "mem-1", "myproject", &models.ParsedObservation{
		Type:      models.ObsTypeDiscovery,
		Title:     "Connection pooling misconfigured",
		Narrative: "The postgres pool was capped at two connections causing timeouts.",
	})
	storeTestObservation(t, s, "mem-1", "myproject", &models.ParsedObservation{
		Type:  models.ObsTypeFeature,
		Title: "Added retry middleware",
	})

	results, err := s.SearchObservationsFTS(ctx, "postgres connection timeouts", ObservationFilter{Project: "myproject"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Connection pooling misconfigured", results[0].Title.String)

	// Project filter excludes everything.
	results, err = s.SearchObservationsFTS(ctx, "postgres connection", ObservationFilter{Project: "other"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExtractKeywords(t *testing.T) {
	keywords := extractKeywords("How does the worker handle database connection errors")
	assert.Contains(t, keywords, "worker")
	assert.Contains(t, keywords, "database")
	assert.Contains(t, keywords, "connection")
	assert.Contains(t, keywords, "errors")
	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "does")

	assert.Empty(t, extractKeywords("the and or"))
}

func TestObservationStore_StoreObservations_Batch(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)
	ctx := context.Background()

	stored, err := s.StoreObservations(ctx, "mem-1", "p", []*models.ParsedObservation{
		{Type: models.ObsTypeDecision, Title: "first"},
		{Type: models.ObsTypeDiscovery, Title: "second"},
	}, 2, 900)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "first", stored[0].Title.String)
	assert.Equal(t, "second", stored[1].Title.String)
	assert.NotZero(t, stored[0].ID)

	got, err := s.GetObservationByID(ctx, stored[1].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(900), got.DiscoveryTokens)
}

func TestObservationStore_StoreObservations_EmptyBatch(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	s := NewObservationStore(store)

	stored, err := s.StoreObservations(context.Background(), "mem-1", "p", nil, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
