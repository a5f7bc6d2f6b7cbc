package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

func TestParseObservations(t *testing.T) {
	text := `Some preamble the model added.
<observation>
  <type>bugfix</type>
  <title>Fixed token expiry check</title>
  <subtitle>JWT exp claim was ignored</subtitle>
  <narrative>The auth middleware accepted expired tokens because the exp claim was never validated.</narrative>
  <facts>
    <fact>validateToken skipped the exp claim</fact>
    <fact>expired tokens were accepted for up to 24h</fact>
  </facts>
  <concepts>
    <concept>gotcha</concept>
  </concepts>
  <files_read>
    <file>internal/auth/middleware.go</file>
  </files_read>
  <files_modified>
    <file>internal/auth/middleware.go</file>
    <file>internal/auth/middleware_test.go</file>
  </files_modified>
</observation>
Trailing commentary.`

	observations := ParseObservations(text)
	require.Len(t, observations, 1)

	obs := observations[0]
	assert.Equal(t, models.ObsTypeBugfix, obs.Type)
	assert.Equal(t, "Fixed token expiry check", obs.Title)
	assert.Equal(t, "JWT exp claim was ignored", obs.Subtitle)
	assert.Contains(t, obs.Narrative, "expired tokens")
	assert.Equal(t, []string{
		"validateToken skipped the exp claim",
		"expired tokens were accepted for up to 24h",
	}, obs.Facts)
	assert.Equal(t, []string{"gotcha"}, obs.Concepts)
	assert.Equal(t, []string{"internal/auth/middleware.go"}, obs.FilesRead)
	assert.Len(t, obs.FilesModified, 2)
}

func TestParseObservations_MultipleBlocks(t *testing.T) {
	text := `<observation><type>discovery</type><title>A</title></observation>
<observation><type>decision</type><title>B</title></observation>`

	observations := ParseObservations(text)
	require.Len(t, observations, 2)
	assert.Equal(t, models.ObsTypeDiscovery, observations[0].Type)
	assert.Equal(t, models.ObsTypeDecision, observations[1].Type)
}

func TestParseObservations_UnknownTypeSkipped(t *testing.T) {
	text := `<observation><type>haiku</type><title>Nope</title></observation>
<observation><type>refactor</type><title>Kept</title></observation>`

	observations := ParseObservations(text)
	require.Len(t, observations, 1)
	assert.Equal(t, "Kept", observations[0].Title)
}

func TestParseObservations_NoBlocks(t *testing.T) {
	assert.Empty(t, ParseObservations("Nothing worth recording here."))
	assert.Empty(t, ParseObservations(""))
}

func TestParseObservations_MissingFieldsDegrade(t *testing.T) {
	text := `<observation><type>feature</type></observation>`

	observations := ParseObservations(text)
	require.Len(t, observations, 1)
	assert.Empty(t, observations[0].Title)
	assert.Empty(t, observations[0].Facts)
	assert.Empty(t, observations[0].FilesModified)
}

func TestParseSummary(t *testing.T) {
	text := `<summary>
  <request>Fix authentication bug</request>
  <investigated>Traced the login flow through the middleware.</investigated>
  <learned>The JWT library needs explicit algorithm validation.</learned>
  <completed>Patched validateToken and added tests.</completed>
  <next_steps>Benchmark the auth path.</next_steps>
  <notes>Session expiry config is undocumented.</notes>
</summary>`

	summary := ParseSummary(text)
	require.NotNil(t, summary)
	assert.Equal(t, "Fix authentication bug", summary.Request)
	assert.Equal(t, "Benchmark the auth path.", summary.NextSteps)
	assert.False(t, summary.IsEmpty())
}

func TestParseSummary_Absent(t *testing.T) {
	assert.Nil(t, ParseSummary("no structured content at all"))
}

func TestParseSummary_PartialFields(t *testing.T) {
	summary := ParseSummary(`<summary><request>Only a title</request></summary>`)
	require.NotNil(t, summary)
	assert.Equal(t, "Only a title", summary.Request)
	assert.Empty(t, summary.Learned)
}

func TestIsSelfReferentialSummary(t *testing.T) {
	tests := []struct {
		name     string
		summary  *models.ParsedSummary
		expected bool
	}{
		{
			name: "meta summary about memory agent role",
			summary: &models.ParsedSummary{
				Request:   "Memory extraction agent role - analyze tool executions and extract meaningful observations for future sessions",
				Completed: "No work has been completed yet. The session has just started with the user providing role definition and operational guidelines.",
				Learned:   "The system expects observations to be created from meaningful learnings during Claude Code sessions, with focus on decisions, bugs fixed, patterns discovered, project structure changes, and code modifications.",
				NextSteps: "Awaiting tool executions or user requests that contain actual work performed in a Claude Code session.",
			},
			expected: true,
		},
		{
			name: "legitimate summary about code changes",
			summary: &models.ParsedSummary{
				Request:   "Fix authentication bug in login handler",
				Completed: "Updated the auth middleware to properly validate JWT tokens and fixed the session expiry check.",
				Learned:   "The JWT library requires explicit algorithm validation to prevent token substitution attacks.",
				NextSteps: "Add unit tests for the authentication flow.",
			},
			expected: false,
		},
		{
			name: "awaiting user summary",
			summary: &models.ParsedSummary{
				Request:   "Session initialization",
				Completed: "No work completed yet.",
				Learned:   "Awaiting user input to begin work.",
				NextSteps: "Waiting for the user to provide instructions.",
			},
			expected: true,
		},
		{
			name: "summary about refactoring",
			summary: &models.ParsedSummary{
				Request:   "Refactor database connection pooling",
				Completed: "Implemented connection pooling using pgxpool with max 10 connections.",
				Learned:   "pgxpool automatically handles connection reuse and health checks.",
				NextSteps: "Run benchmarks to verify performance improvement.",
			},
			expected: false,
		},
		{
			name: "meta summary with extraction agent mention",
			summary: &models.ParsedSummary{
				Request:   "Extraction agent initialization",
				Completed: "No substantive work has been done.",
				Learned:   "The memory extraction agent analyzes tool executions.",
				NextSteps: "Awaiting tool results to extract observations.",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSelfReferentialSummary(tt.summary))
		})
	}
}

func TestHasMeaningfulContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected bool
	}{
		{
			name:     "empty content",
			content:  "",
			expected: false,
		},
		{
			name:     "too short content",
			content:  "Hello world",
			expected: false,
		},
		{
			name: "meta content about memory agent",
			content: `This is the memory extraction agent role definition.
The system expects you to analyze tool executions and extract meaningful observations.
No work has been completed yet. Awaiting tool results from the user's session.`,
			expected: false,
		},
		{
			name: "legitimate code discussion",
			content: `I've updated the handler.go file to fix the authentication bug.
The function validateToken() was not checking token expiry correctly.
I've added a check for exp claim and implemented proper error handling.
The changes have been tested and the build passes.`,
			expected: true,
		},
		{
			name: "hook status messages",
			content: `SessionStart:Callback hook success: Success
The memory agent is waiting for user input.
System-reminder about available tools.
No substantive work performed yet.`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasMeaningfulContent(tt.content))
		})
	}
}
