package similarity

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

func titled(id int64, title, narrative string) *models.Observation {
	return &models.Observation{
		ID:        id,
		Title:     sql.NullString{String: title, Valid: true},
		Narrative: sql.NullString{String: narrative, Valid: narrative != ""},
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		set1     map[string]bool
		set2     map[string]bool
		expected float64
	}{
		{
			name:     "identical sets",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"a": true, "b": true, "c": true},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			set1:     map[string]bool{"a": true, "b": true},
			set2:     map[string]bool{"c": true, "d": true},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"b": true, "c": true, "d": true},
			expected: 0.5, // intersection=2, union=4
		},
		{
			name:     "empty sets",
			set1:     map[string]bool{},
			set2:     map[string]bool{},
			expected: 1.0,
		},
		{
			name:     "one empty set",
			set1:     map[string]bool{"a": true},
			set2:     map[string]bool{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, JaccardSimilarity(tt.set1, tt.set2), 0.001)
		})
	}
}

func TestExtractObservationTerms(t *testing.T) {
	obs := &models.Observation{
		Title:     sql.NullString{String: "Authentication flow implementation", Valid: true},
		Narrative: sql.NullString{String: "We implemented JWT-based authentication", Valid: true},
		Facts:     models.JSONStringArray{"Users authenticate via API", "Tokens expire after 24 hours"},
		FilesRead: models.JSONStringArray{"/src/auth/handler.go", "/src/auth/jwt.go"},
	}

	terms := ExtractObservationTerms(obs)

	assert.Contains(t, terms, "authentication")
	assert.Contains(t, terms, "flow")
	assert.Contains(t, terms, "implemented")
	assert.Contains(t, terms, "tokens")
	assert.Contains(t, terms, "expire")

	// file base names, not full paths
	assert.Contains(t, terms, "handler.go")
	assert.Contains(t, terms, "jwt.go")
	assert.NotContains(t, terms, "/src/auth/handler.go")

	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "and")
	assert.NotContains(t, terms, "we")
}

func TestAddTerms_FiltersStopWordsAndShortTokens(t *testing.T) {
	terms := make(map[string]bool)
	addTerms(terms, "The quick brown fox is in a box")

	assert.Contains(t, terms, "quick")
	assert.Contains(t, terms, "brown")
	assert.Contains(t, terms, "fox")
	assert.Contains(t, terms, "box")
	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "is")
	assert.NotContains(t, terms, "in")
}

func TestClusterObservations_CollapsesSimilarContent(t *testing.T) {
	observations := []*models.Observation{
		titled(1, "Authentication flow implementation", "JWT-based authentication for API"),
		titled(2, "Authentication flow update", "Updated JWT authentication logic"),
		titled(3, "Database migration guide", "How to run database migrations"),
		titled(4, "Database schema changes", "Updated database schema for users"),
	}

	clustered := ClusterObservations(observations, 0.4)

	assert.Less(t, len(clustered), 4, "similar observations should collapse")
	require.NotEmpty(t, clustered)
	assert.Equal(t, int64(1), clustered[0].ID, "first member of a cluster is kept")
}

func TestClusterObservations_KeepsDistinctContent(t *testing.T) {
	observations := []*models.Observation{
		titled(1, "Authentication system", "JWT tokens for user auth"),
		titled(2, "Database configuration", "SQLite setup and migrations"),
		titled(3, "Caching layer", "Embedding cache implementation"),
		titled(4, "Logging setup", "Structured logging with zerolog"),
		titled(5, "API endpoints", "REST API implementation"),
	}

	clustered := ClusterObservations(observations, 0.4)
	assert.Len(t, clustered, 5)
}

func TestClusterObservations_SmallInputs(t *testing.T) {
	assert.Empty(t, ClusterObservations(nil, 0.4))
	assert.Empty(t, ClusterObservations([]*models.Observation{}, 0.4))

	single := titled(1, "Single observation", "")
	clustered := ClusterObservations([]*models.Observation{single}, 0.4)
	require.Len(t, clustered, 1)
	assert.Equal(t, int64(1), clustered[0].ID)
}

func TestClusterObservations_PreservesInputOrder(t *testing.T) {
	observations := []*models.Observation{
		titled(1, "First auth observation", ""),
		titled(2, "Second auth observation", ""),
		titled(3, "Database observation", ""),
	}

	clustered := ClusterObservations(observations, 0.4)

	require.NotEmpty(t, clustered)
	assert.Equal(t, int64(1), clustered[0].ID)
}
