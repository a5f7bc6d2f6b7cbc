// Package models contains domain models for claude-mem.
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

// SummarySuite is a test suite for SessionSummary operations.
type SummarySuite struct {
	suite.Suite
}

func TestSummarySuite(t *testing.T) {
	suite.Run(t, new(SummarySuite))
}

// TestNewSessionSummary tests construction from parsed data.
func (s *SummarySuite) TestNewSessionSummary() {
	parsed := &ParsedSummary{
		Request:   "Fix the login flow",
		Learned:   "Sessions expire after 30 minutes",
		NextSteps: "Add tests for token renewal",
	}

	summary := NewSessionSummary("mem-42", "demo_abc123", parsed, 2, 512)

	s.Equal("mem-42", summary.MemorySessionID)
	s.Equal("demo_abc123", summary.Project)
	s.True(summary.Request.Valid)
	s.Equal("Fix the login flow", summary.Request.String)
	s.False(summary.Investigated.Valid)
	s.True(summary.PromptNumber.Valid)
	s.Equal(int64(2), summary.PromptNumber.Int64)
	s.Equal(int64(512), summary.DiscoveryTokens)
	s.NotZero(summary.CreatedAtEpoch)
	s.NotEmpty(summary.CreatedAt)
}

// TestNewSessionSummary_ZeroPromptNumber leaves prompt_number null.
func (s *SummarySuite) TestNewSessionSummary_ZeroPromptNumber() {
	summary := NewSessionSummary("mem-1", "proj", &ParsedSummary{Request: "r"}, 0, 0)
	s.False(summary.PromptNumber.Valid)
}

// TestParsedSummary_IsEmpty tests the empty check.
func (s *SummarySuite) TestParsedSummary_IsEmpty() {
	s.True((&ParsedSummary{}).IsEmpty())
	s.False((&ParsedSummary{Notes: "n"}).IsEmpty())
	s.False((&ParsedSummary{Completed: "done"}).IsEmpty())
}

// TestMarshalJSON tests sql.NullString flattening.
func (s *SummarySuite) TestMarshalJSON() {
	summary := NewSessionSummary("mem-9", "proj", &ParsedSummary{
		Request: "Trace the queue bug",
		Learned: "Claims must stay in one transaction",
	}, 4, 128)
	summary.ID = 11

	data, err := json.Marshal(summary)
	s.Require().NoError(err)

	var decoded map[string]interface{}
	s.Require().NoError(json.Unmarshal(data, &decoded))
	s.Equal("Trace the queue bug", decoded["request"])
	s.Equal("Claims must stay in one transaction", decoded["learned"])
	s.Equal(float64(11), decoded["id"])
	s.NotContains(decoded, "notes")
}
