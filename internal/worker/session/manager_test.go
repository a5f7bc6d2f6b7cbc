//go:build fts5

package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enzo-wego/claude-mem/internal/agent"
	"github.com/enzo-wego/claude-mem/internal/config"
	gormdb "github.com/enzo-wego/claude-mem/internal/db/gorm"
	"github.com/enzo-wego/claude-mem/pkg/models"
)

const observationResponse = `<observation>
  <type>bugfix</type>
  <title>Fixed off-by-one in pager</title>
  <narrative>The pager skipped the last row because the limit was exclusive.</narrative>
  <facts>
    <fact>limit was applied before the boundary row</fact>
  </facts>
</observation>`

const summaryResponse = `<summary>
  <request>Fix the pager bug</request>
  <investigated>Traced the limit handling in the list endpoint.</investigated>
  <learned>The SQL limit was exclusive of the boundary row.</learned>
  <completed>Patched the pager and added a regression test.</completed>
  <next_steps>Audit other list endpoints for the same pattern.</next_steps>
  <notes></notes>
</summary>`

// scriptedGenerator stands in for the provider chain. It records every
// conversation it sees and tracks call concurrency.
type scriptedGenerator struct {
	mu          sync.Mutex
	responses   []string
	calls       []agent.Conversation
	err         error
	inFlight    int32
	maxInFlight int32
	block       chan struct{}
}

func (g *scriptedGenerator) Generate(ctx context.Context, conv agent.Conversation) (*agent.Result, error) {
	cur := atomic.AddInt32(&g.inFlight, 1)
	defer atomic.AddInt32(&g.inFlight, -1)
	for {
		max := atomic.LoadInt32(&g.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&g.maxInFlight, max, cur) {
			break
		}
	}

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	idx := len(g.calls)
	g.calls = append(g.calls, conv)
	g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}

	text := observationResponse
	if len(g.responses) > 0 {
		if idx >= len(g.responses) {
			idx = len(g.responses) - 1
		}
		text = g.responses[idx]
	}
	return &agent.Result{Text: text, InputTokens: 100, OutputTokens: 40}, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type testEnv struct {
	manager      *Manager
	sessions     *gormdb.SessionStore
	queue        *gormdb.QueueStore
	observations *gormdb.ObservationStore
	summaries    *gormdb.SummaryStore
}

func newTestEnv(t *testing.T, gen Generator) *testEnv {
	t.Helper()

	store, err := gormdb.NewStore(gormdb.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.MaxConcurrentCalls = 4
	cfg.MaxMessageRetries = 2

	sessions := gormdb.NewSessionStore(store)
	queue := gormdb.NewQueueStore(store, cfg.StuckAfter)
	observations := gormdb.NewObservationStore(store)
	summaries := gormdb.NewSummaryStore(store)
	processor := NewProcessor(observations, summaries, nil, nil)

	env := &testEnv{
		manager:      NewManager(cfg, sessions, queue, gen, processor),
		sessions:     sessions,
		queue:        queue,
		observations: observations,
		summaries:    summaries,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.manager.Shutdown(ctx)
	})
	return env
}

func (e *testEnv) initSession(t *testing.T, contentSessionID, project, prompt string) {
	t.Helper()
	_, _, err := e.sessions.InitOrUpsertSession(context.Background(), contentSessionID, project, prompt)
	require.NoError(t, err)
}

func (e *testEnv) enqueueObservation(t *testing.T, contentSessionID, toolName string) {
	t.Helper()
	_, err := e.queue.Enqueue(context.Background(), &models.PendingMessage{
		ContentSessionID: contentSessionID,
		Kind:             models.MessageKindObservation,
		ToolName:         toolName,
		ToolInput:        `{"file_path":"pager.go"}`,
		ToolOutput:       `{"success":true}`,
		CWD:              "/work",
		PromptNumber:     1,
	})
	require.NoError(t, err)
}

func (e *testEnv) enqueueSummarize(t *testing.T, contentSessionID, lastAssistant string) {
	t.Helper()
	_, err := e.queue.Enqueue(context.Background(), &models.PendingMessage{
		ContentSessionID:     contentSessionID,
		Kind:                 models.MessageKindSummarize,
		LastAssistantMessage: lastAssistant,
		PromptNumber:         1,
	})
	require.NoError(t, err)
}

func (e *testEnv) waitDrained(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.manager.ActiveSessionCount() == 0
	}, 5*time.Second, 10*time.Millisecond, "drain loops did not finish")
}

// Scenario: one captured Edit leads to exactly one persisted observation
// attributed to the right session and project.
func TestManager_ObservationFlowEndToEnd(t *testing.T) {
	gen := &scriptedGenerator{}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "myproject", "fix the pager")
	env.enqueueObservation(t, "claude-1", "Edit")

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	assert.True(t, started)

	env.waitDrained(t)

	sess, err := env.sessions.GetSessionByContentID(ctx, "claude-1")
	require.NoError(t, err)
	require.True(t, sess.MemorySessionID.Valid, "memory session id assigned on first response")
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)

	observations, err := env.observations.GetObservationsBySession(ctx, sess.MemorySessionID.String)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, models.ObsTypeBugfix, observations[0].Type)
	assert.Equal(t, "myproject", observations[0].Project)
	assert.NotZero(t, observations[0].DiscoveryTokens)

	stats, err := env.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Processing)
}

// Scenario: two enqueued messages for one session are processed one after
// the other by a single drain loop, never concurrently.
func TestManager_SequentialProcessingWithinSession(t *testing.T) {
	gen := &scriptedGenerator{}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "p", "prompt")
	env.enqueueObservation(t, "claude-1", "Edit")
	env.enqueueObservation(t, "claude-1", "Bash")

	started, skipped, err := env.manager.TriggerProcessing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Zero(t, skipped)

	env.waitDrained(t)

	assert.Equal(t, 2, gen.callCount())
	assert.Equal(t, int32(1), gen.maxInFlight, "messages of one session must not overlap")

	// Conversation history accumulates across the two calls.
	gen.mu.Lock()
	first, second := gen.calls[0], gen.calls[1]
	gen.mu.Unlock()
	assert.Greater(t, len(second.Turns), len(first.Turns))

	stats, err := env.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestManager_SecondStartIsNoOp(t *testing.T) {
	gen := &scriptedGenerator{block: make(chan struct{})}
	env := newTestEnv(t, gen)

	env.initSession(t, "claude-1", "p", "prompt")
	env.enqueueObservation(t, "claude-1", "Edit")

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool {
		return env.manager.IsProcessing("claude-1")
	}, time.Second, 5*time.Millisecond)

	again, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	assert.False(t, again, "second start while active must be a no-op")

	close(gen.block)
	env.waitDrained(t)
}

func TestManager_SummaryFlow(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{summaryResponse}}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "p", "fix the pager")
	env.enqueueSummarize(t, "claude-1",
		"I patched the pager limit handling and added a regression test covering the boundary row.")

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	require.True(t, started)
	env.waitDrained(t)

	sess, err := env.sessions.GetSessionByContentID(ctx, "claude-1")
	require.NoError(t, err)
	require.True(t, sess.MemorySessionID.Valid)

	summary, err := env.summaries.GetSummaryBySession(ctx, sess.MemorySessionID.String)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "Fix the pager bug", summary.Request.String)
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
}

func TestManager_HollowAssistantMessageSkipsSummary(t *testing.T) {
	gen := &scriptedGenerator{}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "p", "prompt")
	env.enqueueSummarize(t, "claude-1", "SessionStart:Callback hook success: Success and nothing else happened here at all.")

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	require.True(t, started)
	env.waitDrained(t)

	// No provider call was worth making.
	assert.Zero(t, gen.callCount())

	stats, err := env.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

// Cancellation mid-call leaves the session resumable: the claimed message
// returns to pending and the session is not marked failed.
func TestManager_CancellationIsResumable(t *testing.T) {
	gen := &scriptedGenerator{block: make(chan struct{})}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "p", "prompt")
	env.enqueueObservation(t, "claude-1", "Edit")

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&gen.inFlight) == 1
	}, time.Second, 5*time.Millisecond, "provider call never started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.manager.Shutdown(shutdownCtx))

	sess, err := env.sessions.GetSessionByContentID(ctx, "claude-1")
	require.NoError(t, err)
	assert.NotEqual(t, models.SessionStatusFailed, sess.Status)

	stats, err := env.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "claimed message must return to pending")
	assert.Zero(t, stats.Processing)
}

// An unrecoverable provider error marks the session failed and charges the
// message a retry.
func TestManager_UnrecoverableErrorFailsSession(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model rejected the request")}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "p", "prompt")
	env.enqueueObservation(t, "claude-1", "Edit")

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	require.True(t, started)
	env.waitDrained(t)

	sess, err := env.sessions.GetSessionByContentID(ctx, "claude-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, sess.Status)

	stats, err := env.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending+stats.Failed)
}

func TestManager_ResumeRestartsPendingSessions(t *testing.T) {
	gen := &scriptedGenerator{}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-a", "p", "one")
	env.initSession(t, "claude-b", "p", "two")
	env.enqueueObservation(t, "claude-a", "Edit")
	env.enqueueObservation(t, "claude-b", "Write")

	recovered, started, err := env.manager.Resume(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
	assert.Equal(t, 2, started)

	env.waitDrained(t)
	assert.GreaterOrEqual(t, gen.callCount(), 2)
}

func TestManager_TriggerProcessingHonorsLimit(t *testing.T) {
	gen := &scriptedGenerator{block: make(chan struct{})}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	for _, id := range []string{"claude-a", "claude-b", "claude-c"} {
		env.initSession(t, id, "p", "prompt")
		env.enqueueObservation(t, id, "Edit")
	}

	started, skipped, err := env.manager.TriggerProcessing(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	assert.Zero(t, skipped)
	assert.Equal(t, 2, env.manager.ActiveSessionCount())

	close(gen.block)
	env.waitDrained(t)
}

// A message kind this binary does not know is parked as failed, never
// deleted and never retried forever.
func TestManager_DiscardsUnknownMessageKind(t *testing.T) {
	gen := &scriptedGenerator{}
	env := newTestEnv(t, gen)
	ctx := context.Background()

	env.initSession(t, "claude-1", "p", "prompt")

	// A kind only a newer schema version understands.
	_, err := env.queue.Enqueue(ctx, &models.PendingMessage{
		ContentSessionID: "claude-1",
		Kind:             models.MessageKind("compact"),
	})
	require.NoError(t, err)

	started, err := env.manager.StartProcessing("claude-1")
	require.NoError(t, err)
	assert.True(t, started)
	env.waitDrained(t)

	assert.Zero(t, gen.callCount(), "unknown kinds must not reach a provider")

	stats, err := env.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Processing)
	assert.Equal(t, int64(1), stats.Failed, "discarded row stays inspectable")
}
