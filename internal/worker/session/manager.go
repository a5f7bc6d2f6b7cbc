// Package session owns the lifecycle of in-flight extraction runs: one
// drain loop per session, sequential processing within a session, bounded
// concurrency across sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/enzo-wego/claude-mem/internal/agent"
	"github.com/enzo-wego/claude-mem/internal/config"
	gormdb "github.com/enzo-wego/claude-mem/internal/db/gorm"
	"github.com/enzo-wego/claude-mem/pkg/models"
)

// Generator is the provider chain seen by the drain loop.
type Generator interface {
	Generate(ctx context.Context, conv agent.Conversation) (*agent.Result, error)
}

// activeSession is the in-memory runtime of one drain loop. The durable
// truth lives in the sessions table; this only carries the accumulated
// conversation and token counters that die with the loop.
type activeSession struct {
	contentSessionID string
	sessionDBID      int64
	memorySessionID  string
	project          string
	conversation     agent.Conversation
	inputTokens      int64
	outputTokens     int64
	cancel           context.CancelFunc
}

// Manager starts, tracks, and stops drain loops. At most one loop runs per
// session at any time; a second start request is a no-op.
type Manager struct {
	cfg       *config.Config
	sessions  *gormdb.SessionStore
	queue     *gormdb.QueueStore
	chain     Generator
	processor *Processor
	sem       *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*activeSession

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager wires the orchestrator. Outbound LLM calls across all loops
// are bounded by cfg.MaxConcurrentCalls.
func NewManager(cfg *config.Config, sessions *gormdb.SessionStore, queue *gormdb.QueueStore, chain Generator, processor *Processor) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	maxCalls := cfg.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = 1
	}
	return &Manager{
		cfg:       cfg,
		sessions:  sessions,
		queue:     queue,
		chain:     chain,
		processor: processor,
		sem:       semaphore.NewWeighted(maxCalls),
		active:    make(map[string]*activeSession),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Resume recovers messages orphaned by a crash and restarts drain loops for
// every session that still has pending work. Called once at startup.
func (m *Manager) Resume(ctx context.Context) (recovered int64, started int, err error) {
	recovered, err = m.queue.RecoverOnStartup(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("recover queue: %w", err)
	}
	if recovered > 0 {
		log.Info().Int64("messages", recovered).Msg("recovered in-flight messages from previous run")
	}

	pending, err := m.queue.SessionsWithPending(ctx)
	if err != nil {
		return recovered, 0, fmt.Errorf("list sessions with pending work: %w", err)
	}
	for _, contentSessionID := range pending {
		ok, startErr := m.StartProcessing(contentSessionID)
		if startErr != nil {
			log.Warn().Err(startErr).Str("content_session_id", contentSessionID).
				Msg("could not resume session")
			continue
		}
		if ok {
			started++
		}
	}
	return recovered, started, nil
}

// StartProcessing launches a drain loop for the session unless one is
// already running. Returns false when the session is already active.
func (m *Manager) StartProcessing(contentSessionID string) (bool, error) {
	m.mu.Lock()
	if _, running := m.active[contentSessionID]; running {
		m.mu.Unlock()
		return false, nil
	}

	sess, err := m.sessions.GetSessionByContentID(m.ctx, contentSessionID)
	if err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		m.mu.Unlock()
		return false, fmt.Errorf("session %s has queued work but no session row", contentSessionID)
	}

	as := &activeSession{
		contentSessionID: contentSessionID,
		sessionDBID:      sess.ID,
		project:          sess.Project,
		conversation: agent.Conversation{
			System: agent.SystemPrompt(),
			Turns: []agent.Turn{
				{Role: agent.RoleUser, Content: agent.BuildInitPrompt(sess.Project, sess.UserPrompt.String)},
			},
		},
	}
	if sess.MemorySessionID.Valid {
		as.memorySessionID = sess.MemorySessionID.String
	}

	loopCtx, cancel := context.WithCancel(m.ctx)
	as.cancel = cancel
	m.active[contentSessionID] = as
	m.mu.Unlock()

	if err := m.sessions.SetStatus(m.ctx, contentSessionID, models.SessionStatusActive); err != nil {
		log.Warn().Err(err).Str("content_session_id", contentSessionID).
			Msg("could not mark session active")
	}

	log.Info().
		Str("content_session_id", contentSessionID).
		Str("project", sess.Project).
		Msg("drain loop started")

	m.wg.Add(1)
	go m.drain(loopCtx, as)
	return true, nil
}

// TriggerProcessing starts drain loops for up to limit sessions that have
// pending work. Sessions already running count as skipped.
func (m *Manager) TriggerProcessing(ctx context.Context, limit int) (started, skipped int, err error) {
	pending, err := m.queue.SessionsWithPending(ctx)
	if err != nil {
		return 0, 0, err
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	for _, contentSessionID := range pending {
		ok, startErr := m.StartProcessing(contentSessionID)
		switch {
		case startErr != nil:
			log.Warn().Err(startErr).Str("content_session_id", contentSessionID).
				Msg("could not start drain loop")
			skipped++
		case ok:
			started++
		default:
			skipped++
		}
	}
	return started, skipped, nil
}

// drain is the per-session loop: claim, generate, persist, repeat. Strictly
// sequential within the session so conversation history stays ordered.
func (m *Manager) drain(ctx context.Context, as *activeSession) {
	defer func() {
		m.mu.Lock()
		delete(m.active, as.contentSessionID)
		m.mu.Unlock()
		as.cancel()
		m.wg.Done()
	}()

	for {
		if ctx.Err() != nil {
			log.Info().Str("content_session_id", as.contentSessionID).
				Msg("drain loop cancelled, session resumable")
			return
		}

		msg, err := m.queue.ClaimNext(ctx, as.contentSessionID)
		if errors.Is(err, gormdb.ErrQueueEmpty) {
			m.finish(as, models.SessionStatusCompleted)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("content_session_id", as.contentSessionID).
				Msg("claim failed, drain loop exiting")
			return
		}

		if !m.handleMessage(ctx, as, msg) {
			return
		}
	}
}

// handleMessage runs one claimed message end to end. Returns false when the
// loop must stop.
func (m *Manager) handleMessage(ctx context.Context, as *activeSession, msg *models.PendingMessage) bool {
	switch msg.Kind {
	case models.MessageKindObservation, models.MessageKindSummarize:
	default:
		// A kind no handler understands will never succeed, however often
		// it is retried. Park it as failed instead of deleting the evidence.
		log.Warn().Str("kind", string(msg.Kind)).Int64("message_id", msg.ID).
			Msg("unknown message kind, discarding")
		if err := m.queue.Discard(context.Background(), msg.ID); err != nil {
			log.Warn().Err(err).Int64("message_id", msg.ID).Msg("could not discard message")
		}
		return true
	}

	prompt, ok := m.buildPrompt(msg)
	if !ok {
		// Nothing worth extracting; consume the message and move on.
		if err := m.queue.Complete(context.Background(), msg.ID); err != nil {
			log.Warn().Err(err).Int64("message_id", msg.ID).Msg("could not complete skipped message")
		}
		return true
	}

	as.conversation.Turns = append(as.conversation.Turns, agent.Turn{Role: agent.RoleUser, Content: prompt})

	if err := m.sem.Acquire(ctx, 1); err != nil {
		as.conversation.Turns = as.conversation.Turns[:len(as.conversation.Turns)-1]
		m.release(msg.ID)
		return false
	}
	res, err := m.chain.Generate(ctx, as.conversation)
	m.sem.Release(1)

	if err != nil {
		as.conversation.Turns = as.conversation.Turns[:len(as.conversation.Turns)-1]
		if ctx.Err() != nil {
			// Cancelled mid-call: put the message back untouched.
			m.release(msg.ID)
			return false
		}
		log.Error().Err(err).
			Str("content_session_id", as.contentSessionID).
			Int64("message_id", msg.ID).
			Msg("extraction failed")
		if failErr := m.queue.Fail(context.Background(), msg.ID, m.cfg.MaxMessageRetries); failErr != nil {
			log.Warn().Err(failErr).Int64("message_id", msg.ID).Msg("could not record message failure")
		}
		m.finish(as, models.SessionStatusFailed)
		return false
	}

	as.conversation.Turns = append(as.conversation.Turns, agent.Turn{Role: agent.RoleAssistant, Content: res.Text})
	as.inputTokens += res.InputTokens
	as.outputTokens += res.OutputTokens

	if as.memorySessionID == "" {
		assigned, assignErr := m.sessions.AssignMemorySessionID(ctx, as.contentSessionID, uuid.NewString())
		if assignErr != nil {
			log.Error().Err(assignErr).Str("content_session_id", as.contentSessionID).
				Msg("could not assign memory session id")
			m.release(msg.ID)
			return false
		}
		as.memorySessionID = assigned
	}

	_, err = m.processor.Process(ctx, ProcessInput{
		MemorySessionID: as.memorySessionID,
		Project:         as.project,
		Kind:            msg.Kind,
		PromptNumber:    msg.PromptNumber,
		Response:        res,
	})
	if err != nil {
		if ctx.Err() != nil {
			m.release(msg.ID)
			return false
		}
		log.Error().Err(err).Int64("message_id", msg.ID).Msg("persistence failed")
		if failErr := m.queue.Fail(context.Background(), msg.ID, m.cfg.MaxMessageRetries); failErr != nil {
			log.Warn().Err(failErr).Int64("message_id", msg.ID).Msg("could not record message failure")
		}
		return true
	}

	if err := m.queue.Complete(context.Background(), msg.ID); err != nil {
		log.Warn().Err(err).Int64("message_id", msg.ID).Msg("could not complete message")
	}
	return true
}

// buildPrompt renders the claimed message as the next user turn. The second
// return is false when the message carries nothing worth sending.
func (m *Manager) buildPrompt(msg *models.PendingMessage) (string, bool) {
	switch msg.Kind {
	case models.MessageKindSummarize:
		content := msg.LastAssistantMessage
		if !agent.HasMeaningfulContent(content) && content != "" {
			log.Debug().Int64("message_id", msg.ID).
				Msg("assistant message has no substance, summary skipped")
			return "", false
		}
		return agent.BuildSummaryPrompt(content), true
	case models.MessageKindObservation:
		return agent.BuildObservationPrompt(msg), true
	default:
		return "", false
	}
}

// finish records a terminal status for the session.
func (m *Manager) finish(as *activeSession, status models.SessionStatus) {
	if err := m.sessions.SetStatus(context.Background(), as.contentSessionID, status); err != nil {
		log.Warn().Err(err).Str("content_session_id", as.contentSessionID).
			Msg("could not record session status")
		return
	}
	log.Info().
		Str("content_session_id", as.contentSessionID).
		Str("status", string(status)).
		Int64("input_tokens", as.inputTokens).
		Int64("output_tokens", as.outputTokens).
		Msg("drain loop finished")
}

// release puts a claimed message back to pending after a cancellation.
func (m *Manager) release(messageID int64) {
	if err := m.queue.Release(context.Background(), messageID); err != nil {
		log.Warn().Err(err).Int64("message_id", messageID).
			Msg("could not release claimed message; startup recovery will reclaim it")
	}
}

// ActiveSessionCount returns the number of running drain loops.
func (m *Manager) ActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ActiveSessions lists the content session ids with a running drain loop.
func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// IsProcessing reports whether a drain loop is running for the session.
func (m *Manager) IsProcessing(contentSessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[contentSessionID]
	return running
}

// Shutdown cancels every drain loop and waits for them to exit, bounded by
// ctx. In-flight claims are released by the loops on their way out.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
