package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/agent"
	gormdb "github.com/enzo-wego/claude-mem/internal/db/gorm"
	"github.com/enzo-wego/claude-mem/pkg/models"
)

// syncTimeout bounds detached vector index writes.
const syncTimeout = 30 * time.Second

// Syncer mirrors persisted records into the vector index.
type Syncer interface {
	SyncObservation(ctx context.Context, obs *models.Observation) error
	SyncSummary(ctx context.Context, summary *models.SessionSummary) error
}

// Notifier pushes live updates to subscribed observers.
type Notifier interface {
	Broadcast(data interface{})
}

// Event is the live-update payload emitted after a record is persisted.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Processor turns raw agent text into persisted state. Relational writes are
// transactional; the vector sync and the live notification run detached after
// commit and are never allowed to fail the message.
type Processor struct {
	observations *gormdb.ObservationStore
	summaries    *gormdb.SummaryStore
	syncer       Syncer
	notifier     Notifier
}

// NewProcessor builds a processor. syncer and notifier may be nil when the
// vector index or the SSE stream is not wired up.
func NewProcessor(observations *gormdb.ObservationStore, summaries *gormdb.SummaryStore, syncer Syncer, notifier Notifier) *Processor {
	return &Processor{
		observations: observations,
		summaries:    summaries,
		syncer:       syncer,
		notifier:     notifier,
	}
}

// ProcessInput is one agent response ready for persistence.
type ProcessInput struct {
	MemorySessionID string
	Project         string
	Kind            models.MessageKind
	PromptNumber    int
	Response        *agent.Result
}

// ProcessResult reports what was persisted.
type ProcessResult struct {
	Observations   []*models.Observation
	Summary        *models.SessionSummary
	SummarySkipped bool
}

// Process parses the response text and persists whatever it yields. A
// response with zero extractable records is a legitimate outcome, not an
// error; only a failed relational write returns one.
func (p *Processor) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	tokens := in.Response.TotalTokens()
	if tokens == 0 {
		tokens = agent.CountTokens(in.Response.Text)
	}

	switch in.Kind {
	case models.MessageKindSummarize:
		return p.processSummary(ctx, in, tokens)
	default:
		return p.processObservations(ctx, in, tokens)
	}
}

func (p *Processor) processObservations(ctx context.Context, in ProcessInput, tokens int64) (*ProcessResult, error) {
	parsed := agent.ParseObservations(in.Response.Text)
	if len(parsed) == 0 {
		log.Debug().
			Str("memory_session_id", in.MemorySessionID).
			Msg("no observations in agent response")
		return &ProcessResult{}, nil
	}

	stored, err := p.observations.StoreObservations(ctx, in.MemorySessionID, in.Project, parsed, in.PromptNumber, tokens)
	if err != nil {
		return nil, fmt.Errorf("store observations: %w", err)
	}

	log.Info().
		Str("memory_session_id", in.MemorySessionID).
		Str("project", in.Project).
		Int("count", len(stored)).
		Int64("discovery_tokens", tokens).
		Msg("observations persisted")

	for _, obs := range stored {
		p.detach(func(ctx context.Context) error {
			return p.syncer.SyncObservation(ctx, obs)
		})
		p.notify("observation", obs)
	}
	return &ProcessResult{Observations: stored}, nil
}

func (p *Processor) processSummary(ctx context.Context, in ProcessInput, tokens int64) (*ProcessResult, error) {
	parsed := agent.ParseSummary(in.Response.Text)
	if parsed == nil || parsed.IsEmpty() {
		log.Debug().
			Str("memory_session_id", in.MemorySessionID).
			Msg("no summary in agent response")
		return &ProcessResult{SummarySkipped: true}, nil
	}
	if agent.IsSelfReferentialSummary(parsed) {
		log.Info().
			Str("memory_session_id", in.MemorySessionID).
			Msg("self-referential summary rejected")
		return &ProcessResult{SummarySkipped: true}, nil
	}

	summary := models.NewSessionSummary(in.MemorySessionID, in.Project, parsed, in.PromptNumber, tokens)
	id, err := p.summaries.StoreSummary(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}
	summary.ID = id

	log.Info().
		Str("memory_session_id", in.MemorySessionID).
		Str("project", in.Project).
		Int64("summary_id", id).
		Msg("session summary persisted")

	p.detach(func(ctx context.Context) error {
		return p.syncer.SyncSummary(ctx, summary)
	})
	p.notify("summary", summary)
	return &ProcessResult{Summary: summary}, nil
}

// detach runs a vector sync after the relational commit. It gets its own
// context so neither cancellation nor failure can reach back into the
// committed transaction.
func (p *Processor) detach(fn func(ctx context.Context) error) {
	if p.syncer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Msg("vector sync failed, index will catch up later")
		}
	}()
}

func (p *Processor) notify(eventType string, data interface{}) {
	if p.notifier == nil {
		return
	}
	p.notifier.Broadcast(Event{Type: eventType, Data: data})
}
