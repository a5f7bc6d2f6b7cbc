// Package models contains domain models for claude-mem.
package models

import (
	"database/sql"
	"encoding/json"
)

// ObservationType classifies an extracted insight.
type ObservationType string

const (
	ObsTypeDecision  ObservationType = "decision"
	ObsTypeBugfix    ObservationType = "bugfix"
	ObsTypeFeature   ObservationType = "feature"
	ObsTypeRefactor  ObservationType = "refactor"
	ObsTypeDiscovery ObservationType = "discovery"
)

// ObservationTypes lists all valid observation types.
var ObservationTypes = []ObservationType{
	ObsTypeDecision, ObsTypeBugfix, ObsTypeFeature, ObsTypeRefactor, ObsTypeDiscovery,
}

// ValidObservationType reports whether t is a known observation type.
func ValidObservationType(t ObservationType) bool {
	for _, known := range ObservationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Observation is a structured, persisted insight extracted from one unit of
// tool activity. Append-only; many per session.
type Observation struct {
	ID              int64           `db:"id" json:"id"`
	MemorySessionID string          `db:"memory_session_id" json:"memory_session_id"`
	Project         string          `db:"project" json:"project"`
	Type            ObservationType `db:"type" json:"type"`
	Title           sql.NullString  `db:"title" json:"-"`
	Subtitle        sql.NullString  `db:"subtitle" json:"-"`
	Narrative       sql.NullString  `db:"narrative" json:"-"`
	Facts           JSONStringArray `db:"facts" json:"facts,omitempty"`
	Concepts        JSONStringArray `db:"concepts" json:"concepts,omitempty"`
	FilesRead       JSONStringArray `db:"files_read" json:"files_read,omitempty"`
	FilesModified   JSONStringArray `db:"files_modified" json:"files_modified,omitempty"`
	PromptNumber    sql.NullInt64   `db:"prompt_number" json:"prompt_number,omitempty"`
	DiscoveryTokens int64           `db:"discovery_tokens" json:"discovery_tokens"`
	CreatedAt       string          `db:"created_at" json:"created_at"`
	CreatedAtEpoch  int64           `db:"created_at_epoch" json:"created_at_epoch"`
}

// ParsedObservation is an observation parsed out of agent response text,
// before it is persisted.
type ParsedObservation struct {
	Type          ObservationType
	Title         string
	Subtitle      string
	Narrative     string
	Facts         []string
	Concepts      []string
	FilesRead     []string
	FilesModified []string
}

// observationJSON flattens the sql.Null* fields for clean JSON output.
type observationJSON struct {
	ID              int64           `json:"id"`
	MemorySessionID string          `json:"memory_session_id"`
	Project         string          `json:"project"`
	Type            ObservationType `json:"type"`
	Title           string          `json:"title,omitempty"`
	Subtitle        string          `json:"subtitle,omitempty"`
	Narrative       string          `json:"narrative,omitempty"`
	Facts           []string        `json:"facts,omitempty"`
	Concepts        []string        `json:"concepts,omitempty"`
	FilesRead       []string        `json:"files_read,omitempty"`
	FilesModified   []string        `json:"files_modified,omitempty"`
	PromptNumber    int64           `json:"prompt_number,omitempty"`
	DiscoveryTokens int64           `json:"discovery_tokens"`
	CreatedAt       string          `json:"created_at"`
	CreatedAtEpoch  int64           `json:"created_at_epoch"`
}

// MarshalJSON implements json.Marshaler.
func (o *Observation) MarshalJSON() ([]byte, error) {
	j := observationJSON{
		ID:              o.ID,
		MemorySessionID: o.MemorySessionID,
		Project:         o.Project,
		Type:            o.Type,
		Facts:           o.Facts,
		Concepts:        o.Concepts,
		FilesRead:       o.FilesRead,
		FilesModified:   o.FilesModified,
		DiscoveryTokens: o.DiscoveryTokens,
		CreatedAt:       o.CreatedAt,
		CreatedAtEpoch:  o.CreatedAtEpoch,
	}
	if o.Title.Valid {
		j.Title = o.Title.String
	}
	if o.Subtitle.Valid {
		j.Subtitle = o.Subtitle.String
	}
	if o.Narrative.Valid {
		j.Narrative = o.Narrative.String
	}
	if o.PromptNumber.Valid {
		j.PromptNumber = o.PromptNumber.Int64
	}
	return json.Marshal(j)
}
