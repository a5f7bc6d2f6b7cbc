// Package models contains domain models for claude-mem.
package models

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ObservationSuite is a test suite for Observation operations.
type ObservationSuite struct {
	suite.Suite
}

func TestObservationSuite(t *testing.T) {
	suite.Run(t, new(ObservationSuite))
}

// TestObservationTypeConstants tests observation type constants.
func (s *ObservationSuite) TestObservationTypeConstants() {
	s.Equal(ObservationType("decision"), ObsTypeDecision)
	s.Equal(ObservationType("bugfix"), ObsTypeBugfix)
	s.Equal(ObservationType("feature"), ObsTypeFeature)
	s.Equal(ObservationType("refactor"), ObsTypeRefactor)
	s.Equal(ObservationType("discovery"), ObsTypeDiscovery)
}

// TestValidObservationType_TableDriven tests type validation.
func (s *ObservationSuite) TestValidObservationType_TableDriven() {
	tests := []struct {
		name     string
		typ      ObservationType
		expected bool
	}{
		{"decision is valid", ObsTypeDecision, true},
		{"bugfix is valid", ObsTypeBugfix, true},
		{"empty is invalid", ObservationType(""), false},
		{"unknown is invalid", ObservationType("musing"), false},
		{"change is not in the enum", ObservationType("change"), false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.expected, ValidObservationType(tt.typ))
		})
	}
}

// TestMarshalJSON tests that nullable fields flatten cleanly.
func (s *ObservationSuite) TestMarshalJSON() {
	obs := &Observation{
		ID:              7,
		MemorySessionID: "mem-1",
		Project:         "demo_abc123",
		Type:            ObsTypeBugfix,
		Title:           sql.NullString{String: "Fixed token refresh", Valid: true},
		Narrative:       sql.NullString{String: "The refresh endpoint returned stale tokens", Valid: true},
		Facts:           JSONStringArray{"refresh window is 5m"},
		PromptNumber:    sql.NullInt64{Int64: 3, Valid: true},
	}

	data, err := json.Marshal(obs)
	s.Require().NoError(err)

	var decoded map[string]interface{}
	s.Require().NoError(json.Unmarshal(data, &decoded))
	s.Equal("Fixed token refresh", decoded["title"])
	s.Equal("bugfix", decoded["type"])
	s.Equal(float64(3), decoded["prompt_number"])
	s.NotContains(decoded, "subtitle")
}

// TestJSONStringArray_Scan tests scanning from TEXT column values.
func (s *ObservationSuite) TestJSONStringArray_Scan() {
	var arr JSONStringArray
	s.Require().NoError(arr.Scan(`["a","b"]`))
	s.Equal(JSONStringArray{"a", "b"}, arr)

	s.Require().NoError(arr.Scan(nil))
	s.Nil(arr)

	s.Error(arr.Scan(42))
}
