package chromem

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/vector"
	"github.com/enzo-wego/claude-mem/pkg/models"
)

// Sync mirrors relational records into the vector index. Each semantic
// field becomes its own document so a single strong fact can match a query
// the full record would dilute.
type Sync struct {
	client vector.Client
}

// NewSync creates a new vector sync service.
func NewSync(client vector.Client) *Sync {
	return &Sync{client: client}
}

// SyncObservation mirrors a single observation into the index.
func (s *Sync) SyncObservation(ctx context.Context, obs *models.Observation) error {
	docs := s.formatObservationDocs(obs)
	if len(docs) == 0 {
		return nil
	}

	if err := s.client.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("add observation docs: %w", err)
	}

	log.Debug().
		Int64("observationId", obs.ID).
		Int("docCount", len(docs)).
		Msg("Synced observation to vector index")

	return nil
}

// formatObservationDocs splits an observation into index documents: one for
// the narrative, one per fact.
func (s *Sync) formatObservationDocs(obs *models.Observation) []vector.Document {
	docs := make([]vector.Document, 0, len(obs.Facts)+1)

	baseMetadata := map[string]string{
		"sqlite_id":         strconv.FormatInt(obs.ID, 10),
		"doc_type":          string(vector.DocTypeObservation),
		"memory_session_id": obs.MemorySessionID,
		"project":           obs.Project,
		"created_at_epoch":  strconv.FormatInt(obs.CreatedAtEpoch, 10),
		"type":              string(obs.Type),
	}

	if obs.Title.Valid {
		baseMetadata["title"] = obs.Title.String
	}
	if obs.Subtitle.Valid {
		baseMetadata["subtitle"] = obs.Subtitle.String
	}
	if len(obs.Concepts) > 0 {
		baseMetadata["concepts"] = strings.Join(obs.Concepts, ",")
	}
	if len(obs.FilesRead) > 0 {
		baseMetadata["files_read"] = strings.Join(obs.FilesRead, ",")
	}
	if len(obs.FilesModified) > 0 {
		baseMetadata["files_modified"] = strings.Join(obs.FilesModified, ",")
	}

	if obs.Narrative.Valid && obs.Narrative.String != "" {
		docs = append(docs, vector.Document{
			ID:       fmt.Sprintf("obs_%d_narrative", obs.ID),
			Content:  obs.Narrative.String,
			Metadata: copyMetadata(baseMetadata, "field_type", "narrative"),
		})
	}

	for i, fact := range obs.Facts {
		metadata := copyMetadata(baseMetadata, "field_type", "fact")
		metadata["fact_index"] = strconv.Itoa(i)
		docs = append(docs, vector.Document{
			ID:       fmt.Sprintf("obs_%d_fact_%d", obs.ID, i),
			Content:  fact,
			Metadata: metadata,
		})
	}

	return docs
}

// SyncSummary mirrors a single session summary into the index.
func (s *Sync) SyncSummary(ctx context.Context, summary *models.SessionSummary) error {
	docs := s.formatSummaryDocs(summary)
	if len(docs) == 0 {
		return nil
	}

	if err := s.client.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("add summary docs: %w", err)
	}

	log.Debug().
		Int64("summaryId", summary.ID).
		Int("docCount", len(docs)).
		Msg("Synced summary to vector index")

	return nil
}

// formatSummaryDocs splits a summary into index documents, one per
// populated field.
func (s *Sync) formatSummaryDocs(summary *models.SessionSummary) []vector.Document {
	docs := make([]vector.Document, 0, 6)

	baseMetadata := map[string]string{
		"sqlite_id":         strconv.FormatInt(summary.ID, 10),
		"doc_type":          string(vector.DocTypeSessionSummary),
		"memory_session_id": summary.MemorySessionID,
		"project":           summary.Project,
		"created_at_epoch":  strconv.FormatInt(summary.CreatedAtEpoch, 10),
	}

	if summary.PromptNumber.Valid {
		baseMetadata["prompt_number"] = strconv.FormatInt(summary.PromptNumber.Int64, 10)
	}

	fields := []struct {
		name  string
		value string
		valid bool
	}{
		{"request", summary.Request.String, summary.Request.Valid},
		{"investigated", summary.Investigated.String, summary.Investigated.Valid},
		{"learned", summary.Learned.String, summary.Learned.Valid},
		{"completed", summary.Completed.String, summary.Completed.Valid},
		{"next_steps", summary.NextSteps.String, summary.NextSteps.Valid},
		{"notes", summary.Notes.String, summary.Notes.Valid},
	}

	for _, field := range fields {
		if field.valid && field.value != "" {
			docs = append(docs, vector.Document{
				ID:       fmt.Sprintf("summary_%d_%s", summary.ID, field.name),
				Content:  field.value,
				Metadata: copyMetadata(baseMetadata, "field_type", field.name),
			})
		}
	}

	return docs
}

// SyncUserPrompt mirrors a single user prompt into the index.
func (s *Sync) SyncUserPrompt(ctx context.Context, prompt *models.UserPromptWithSession) error {
	doc := vector.Document{
		ID:      fmt.Sprintf("prompt_%d", prompt.ID),
		Content: prompt.PromptText,
		Metadata: map[string]string{
			"sqlite_id":         strconv.FormatInt(prompt.ID, 10),
			"doc_type":          string(vector.DocTypeUserPrompt),
			"memory_session_id": prompt.MemorySessionID,
			"project":           prompt.Project,
			"created_at_epoch":  strconv.FormatInt(prompt.CreatedAtEpoch, 10),
			"prompt_number":     strconv.Itoa(prompt.PromptNumber),
		},
	}

	if err := s.client.AddDocuments(ctx, []vector.Document{doc}); err != nil {
		return fmt.Errorf("add prompt doc: %w", err)
	}

	log.Debug().
		Int64("promptId", prompt.ID).
		Msg("Synced user prompt to vector index")

	return nil
}

func copyMetadata(base map[string]string, key, value string) map[string]string {
	result := make(map[string]string, len(base)+1)
	for k, v := range base {
		result[k] = v
	}
	result[key] = value
	return result
}
