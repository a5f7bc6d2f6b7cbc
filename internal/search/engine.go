// Package search serves reads over the relational store and the vector
// index: hybrid keyword+semantic retrieval, filter queries, and
// metadata-first re-ranking.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/config"
	gormdb "github.com/enzo-wego/claude-mem/internal/db/gorm"
	"github.com/enzo-wego/claude-mem/internal/vector"
	"github.com/enzo-wego/claude-mem/pkg/models"
	"github.com/enzo-wego/claude-mem/pkg/similarity"
)

// ErrSemanticUnavailable distinguishes "the index is unreachable" from "no
// matches". Free-text search returns it instead of a silently empty result;
// filter and metadata queries keep working without the index.
var ErrSemanticUnavailable = errors.New("semantic search unavailable")

// Result document types as exposed to callers.
const (
	DocObservation = "observation"
	DocSummary     = "summary"
	DocPrompt      = "prompt"
)

// Strategy names reported in responses.
const (
	StrategyVectorFirst   = "vector-first"
	StrategyFilterOnly    = "filter-only"
	StrategyMetadataFirst = "metadata-first"
)

// Query carries the search inputs. Text drives semantic retrieval; Types,
// Concepts, and Files are exact filters; Since/Until bound created_at_epoch.
type Query struct {
	Text     string
	Project  string
	Types    []models.ObservationType
	Concepts []string
	Files    []string
	Since    int64
	Until    int64
	Limit    int
}

// hasExactFilters reports whether any exact-match filter is set.
func (q *Query) hasExactFilters() bool {
	return len(q.Types) > 0 || len(q.Concepts) > 0 || len(q.Files) > 0
}

// Item is one ranked search hit. Exactly one of the record fields is set,
// matching DocType.
type Item struct {
	DocType     string                        `json:"doc_type"`
	Score       float64                       `json:"score,omitempty"`
	Observation *models.Observation           `json:"observation,omitempty"`
	Summary     *models.SessionSummary        `json:"summary,omitempty"`
	Prompt      *models.UserPromptWithSession `json:"prompt,omitempty"`
}

// Response is a ranked result set plus the strategy that produced it.
type Response struct {
	Strategy string `json:"strategy"`
	Items    []Item `json:"items"`
	Total    int    `json:"total"`
}

// Engine selects a retrieval strategy from the query shape and executes it.
type Engine struct {
	observations *gormdb.ObservationStore
	summaries    *gormdb.SummaryStore
	prompts      *gormdb.PromptStore
	vector       vector.Client

	recencyWindow    time.Duration
	overfetch        int
	defaultLimit     int
	maxLimit         int
	clusterThreshold float64
}

// NewEngine builds the retrieval engine. vectorClient may be nil when the
// index is not configured; semantic queries then degrade per contract.
func NewEngine(cfg *config.Config, observations *gormdb.ObservationStore, summaries *gormdb.SummaryStore, prompts *gormdb.PromptStore, vectorClient vector.Client) *Engine {
	return &Engine{
		observations:     observations,
		summaries:        summaries,
		prompts:          prompts,
		vector:           vectorClient,
		recencyWindow:    cfg.RecencyWindow(),
		overfetch:        cfg.VectorOverfetch,
		defaultLimit:     cfg.SearchDefaultLimit,
		maxLimit:         cfg.SearchMaxLimit,
		clusterThreshold: cfg.ClusterThreshold,
	}
}

// Search routes the query to a strategy: exact filters win, then free text,
// then plain filter listing.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if e.maxLimit > 0 && limit > e.maxLimit {
		limit = e.maxLimit
	}
	q.Limit = limit

	switch {
	case q.hasExactFilters():
		return e.metadataFirst(ctx, q)
	case q.Text != "":
		return e.vectorFirst(ctx, q)
	default:
		return e.filterOnly(ctx, q)
	}
}

// vectorFirst fuses semantic hits with FTS keyword hits, biases ranking
// toward the recency window, hydrates from the relational store, and
// deduplicates near-identical observations.
func (e *Engine) vectorFirst(ctx context.Context, q Query) (*Response, error) {
	if e.vector == nil || !e.vector.IsConnected() {
		return nil, ErrSemanticUnavailable
	}

	vres, err := e.vector.Query(ctx, q.Text, e.overfetch, vector.BuildWhereFilter("", q.Project))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSemanticUnavailable, err)
	}

	semantic := scoreVectorResults(vres)
	keyword := e.keywordLists(ctx, q)

	fused := RRF(append([][]ScoredID{semantic}, keyword...)...)

	items, err := e.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}

	items = e.biasRecent(items)
	items = e.clusterItems(items)
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}

	return &Response{Strategy: StrategyVectorFirst, Items: items, Total: len(items)}, nil
}

// filterOnly answers date/project listings straight from the relational
// store. The vector index is never consulted; it cannot filter by exact
// date.
func (e *Engine) filterOnly(ctx context.Context, q Query) (*Response, error) {
	observations, err := e.observations.FindObservations(ctx, gormdb.ObservationFilter{
		Project: q.Project,
		Since:   q.Since,
		Until:   q.Until,
	}, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("filter observations: %w", err)
	}

	summaries, err := e.summaries.GetRecentSummaries(ctx, q.Project, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("filter summaries: %w", err)
	}

	items := make([]Item, 0, len(observations)+len(summaries))
	for _, obs := range observations {
		items = append(items, Item{DocType: DocObservation, Observation: obs})
	}
	for _, summary := range summaries {
		if inEpochRange(summary.CreatedAtEpoch, q.Since, q.Until) {
			items = append(items, Item{DocType: DocSummary, Summary: summary})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return itemEpoch(items[i]) > itemEpoch(items[j])
	})
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}

	return &Response{Strategy: StrategyFilterOnly, Items: items, Total: len(items)}, nil
}

// metadataFirst queries the relational store by exact filters, then
// re-ranks the candidate set by vector similarity when both query text and
// the index are available. Without the index it falls back to relational
// order, never to an error.
func (e *Engine) metadataFirst(ctx context.Context, q Query) (*Response, error) {
	observations, err := e.observations.FindObservations(ctx, gormdb.ObservationFilter{
		Project:  q.Project,
		Types:    q.Types,
		Concepts: q.Concepts,
		Files:    q.Files,
		Since:    q.Since,
		Until:    q.Until,
	}, e.overfetch)
	if err != nil {
		return nil, fmt.Errorf("filter observations: %w", err)
	}

	if q.Text != "" && e.vector != nil && e.vector.IsConnected() {
		if sims, simErr := e.similarityByID(ctx, q); simErr == nil {
			sort.SliceStable(observations, func(i, j int) bool {
				return sims[observations[i].ID] > sims[observations[j].ID]
			})
		} else {
			log.Debug().Err(simErr).Msg("similarity re-rank skipped, using relational order")
		}
	}

	if len(observations) > q.Limit {
		observations = observations[:q.Limit]
	}

	items := make([]Item, len(observations))
	for i, obs := range observations {
		items[i] = Item{DocType: DocObservation, Observation: obs}
	}
	return &Response{Strategy: StrategyMetadataFirst, Items: items, Total: len(items)}, nil
}

// similarityByID queries the index for observation documents matching the
// text and returns the best similarity seen per relational id.
func (e *Engine) similarityByID(ctx context.Context, q Query) (map[int64]float64, error) {
	vres, err := e.vector.Query(ctx, q.Text, e.overfetch,
		vector.BuildWhereFilter(vector.DocTypeObservation, q.Project))
	if err != nil {
		return nil, err
	}
	sims := make(map[int64]float64, len(vres))
	for _, res := range vres {
		id, parseErr := strconv.ParseInt(res.Metadata["sqlite_id"], 10, 64)
		if parseErr != nil {
			continue
		}
		if float64(res.Similarity) > sims[id] {
			sims[id] = float64(res.Similarity)
		}
	}
	return sims, nil
}

// keywordLists runs the FTS queries that feed the fusion. Failures degrade
// to a missing list; the semantic side still ranks.
func (e *Engine) keywordLists(ctx context.Context, q Query) [][]ScoredID {
	var lists [][]ScoredID

	if observations, err := e.observations.SearchObservationsFTS(ctx, q.Text, gormdb.ObservationFilter{Project: q.Project}, e.overfetch); err == nil {
		list := make([]ScoredID, len(observations))
		for i, obs := range observations {
			list[i] = ScoredID{DocType: DocObservation, ID: obs.ID}
		}
		lists = append(lists, list)
	} else {
		log.Warn().Err(err).Msg("observation keyword search failed")
	}

	if summaries, err := e.summaries.SearchSummariesFTS(ctx, q.Text, q.Project, e.overfetch); err == nil {
		list := make([]ScoredID, len(summaries))
		for i, summary := range summaries {
			list[i] = ScoredID{DocType: DocSummary, ID: summary.ID}
		}
		lists = append(lists, list)
	} else {
		log.Warn().Err(err).Msg("summary keyword search failed")
	}

	if prompts, err := e.prompts.SearchPromptsFTS(ctx, q.Text, q.Project, e.overfetch); err == nil {
		list := make([]ScoredID, len(prompts))
		for i, prompt := range prompts {
			list[i] = ScoredID{DocType: DocPrompt, ID: prompt.ID}
		}
		lists = append(lists, list)
	} else {
		log.Warn().Err(err).Msg("prompt keyword search failed")
	}

	return lists
}

// scoreVectorResults converts index hits to a rank-ordered scored list,
// deduplicated per relational record (an observation contributes one entry
// even when several of its fact documents match).
func scoreVectorResults(results []vector.QueryResult) []ScoredID {
	seen := make(map[ScoredID]bool)
	list := make([]ScoredID, 0, len(results))
	for _, res := range results {
		id, err := strconv.ParseInt(res.Metadata["sqlite_id"], 10, 64)
		if err != nil {
			continue
		}
		var docType string
		switch vector.DocType(res.Metadata["doc_type"]) {
		case vector.DocTypeObservation:
			docType = DocObservation
		case vector.DocTypeSessionSummary:
			docType = DocSummary
		case vector.DocTypeUserPrompt:
			docType = DocPrompt
		default:
			continue
		}
		key := ScoredID{DocType: docType, ID: id}
		if seen[key] {
			continue
		}
		seen[key] = true
		key.Score = float64(res.Similarity)
		list = append(list, key)
	}
	return list
}

// hydrate loads full records for the fused candidates, preserving fused
// order and dropping candidates whose relational row no longer exists.
func (e *Engine) hydrate(ctx context.Context, fused []ScoredID) ([]Item, error) {
	var obsIDs, summaryIDs, promptIDs []int64
	for _, cand := range fused {
		switch cand.DocType {
		case DocObservation:
			obsIDs = append(obsIDs, cand.ID)
		case DocSummary:
			summaryIDs = append(summaryIDs, cand.ID)
		case DocPrompt:
			promptIDs = append(promptIDs, cand.ID)
		}
	}

	observations, err := e.observations.GetObservationsByIDs(ctx, obsIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate observations: %w", err)
	}
	summaries, err := e.summaries.GetSummariesByIDs(ctx, summaryIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate summaries: %w", err)
	}
	prompts, err := e.prompts.GetPromptsByIDs(ctx, promptIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate prompts: %w", err)
	}

	obsByID := make(map[int64]*models.Observation, len(observations))
	for _, obs := range observations {
		obsByID[obs.ID] = obs
	}
	summaryByID := make(map[int64]*models.SessionSummary, len(summaries))
	for _, summary := range summaries {
		summaryByID[summary.ID] = summary
	}
	promptByID := make(map[int64]*models.UserPromptWithSession, len(prompts))
	for _, prompt := range prompts {
		promptByID[prompt.ID] = prompt
	}

	items := make([]Item, 0, len(fused))
	for _, cand := range fused {
		switch cand.DocType {
		case DocObservation:
			if obs, ok := obsByID[cand.ID]; ok {
				items = append(items, Item{DocType: DocObservation, Score: cand.Score, Observation: obs})
			}
		case DocSummary:
			if summary, ok := summaryByID[cand.ID]; ok {
				items = append(items, Item{DocType: DocSummary, Score: cand.Score, Summary: summary})
			}
		case DocPrompt:
			if prompt, ok := promptByID[cand.ID]; ok {
				items = append(items, Item{DocType: DocPrompt, Score: cand.Score, Prompt: prompt})
			}
		}
	}
	return items, nil
}

// biasRecent moves candidates inside the recency window ahead of older
// ones, preserving fused order within each group. A ranking bias only:
// older matches stay in the result set.
func (e *Engine) biasRecent(items []Item) []Item {
	if e.recencyWindow <= 0 {
		return items
	}
	cutoff := time.Now().Add(-e.recencyWindow).UnixMilli()

	recent := make([]Item, 0, len(items))
	older := make([]Item, 0)
	for _, item := range items {
		if itemEpoch(item) >= cutoff {
			recent = append(recent, item)
		} else {
			older = append(older, item)
		}
	}
	return append(recent, older...)
}

// clusterItems collapses near-duplicate observations via Jaccard term
// similarity, keeping the best-ranked representative. Summaries and
// prompts pass through untouched.
func (e *Engine) clusterItems(items []Item) []Item {
	if e.clusterThreshold <= 0 {
		return items
	}

	var observations []*models.Observation
	for _, item := range items {
		if item.DocType == DocObservation {
			observations = append(observations, item.Observation)
		}
	}
	kept := similarity.ClusterObservations(observations, e.clusterThreshold)
	keptIDs := make(map[int64]bool, len(kept))
	for _, obs := range kept {
		keptIDs[obs.ID] = true
	}

	out := items[:0]
	for _, item := range items {
		if item.DocType == DocObservation && !keptIDs[item.Observation.ID] {
			continue
		}
		out = append(out, item)
	}
	return out
}

func itemEpoch(item Item) int64 {
	switch item.DocType {
	case DocObservation:
		return item.Observation.CreatedAtEpoch
	case DocSummary:
		return item.Summary.CreatedAtEpoch
	case DocPrompt:
		return item.Prompt.CreatedAtEpoch
	}
	return 0
}

func inEpochRange(epoch, since, until int64) bool {
	if since > 0 && epoch < since {
		return false
	}
	if until > 0 && epoch > until {
		return false
	}
	return true
}
