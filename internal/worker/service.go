// Package worker wires the capture daemon together: the relational store,
// the vector index, the extraction chain, the per-session drain loops, and
// the HTTP surface the hooks and readers talk to.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/agent"
	"github.com/enzo-wego/claude-mem/internal/config"
	gormdb "github.com/enzo-wego/claude-mem/internal/db/gorm"
	"github.com/enzo-wego/claude-mem/internal/search"
	"github.com/enzo-wego/claude-mem/internal/vector"
	"github.com/enzo-wego/claude-mem/internal/vector/chromem"
	"github.com/enzo-wego/claude-mem/internal/watcher"
	"github.com/enzo-wego/claude-mem/internal/worker/session"
	"github.com/enzo-wego/claude-mem/internal/worker/sse"
)

// Service is the daemon: it owns the stores, the session manager, the
// search engine, and the HTTP server.
type Service struct {
	version string
	cfg     *config.Config

	store        *gormdb.Store
	sessions     *gormdb.SessionStore
	observations *gormdb.ObservationStore
	summaries    *gormdb.SummaryStore
	prompts      *gormdb.PromptStore
	queue        *gormdb.QueueStore

	vec         vector.Client
	syncer      *chromem.Sync
	manager     *session.Manager
	engine      *search.Engine
	broadcaster *sse.Broadcaster
	dbWatcher   *watcher.Watcher

	router    chi.Router
	server    *http.Server
	ready     atomic.Bool
	startTime time.Time
}

// New assembles a Service from configuration. The vector index and the
// provider chain are optional at startup: capture and filter search keep
// working without them, and the degraded pieces log what they are missing.
func New(cfg *config.Config, version string) (*Service, error) {
	store, err := gormdb.NewStore(gormdb.Config{Path: cfg.DBPath, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	svc := &Service{
		version:      version,
		cfg:          cfg,
		store:        store,
		sessions:     gormdb.NewSessionStore(store),
		observations: gormdb.NewObservationStore(store),
		summaries:    gormdb.NewSummaryStore(store),
		prompts:      gormdb.NewPromptStore(store),
		queue:        gormdb.NewQueueStore(store, cfg.StuckAfter),
		broadcaster:  sse.NewBroadcaster(),
		startTime:    time.Now(),
	}

	svc.vec = openVectorIndex(cfg)

	chain, err := agent.NewChain(cfg)
	if err != nil {
		return nil, fmt.Errorf("build provider chain: %w", err)
	}

	var syncer session.Syncer
	if svc.vec != nil {
		svc.syncer = chromem.NewSync(svc.vec)
		syncer = svc.syncer
	}
	processor := session.NewProcessor(svc.observations, svc.summaries, syncer, svc.broadcaster)
	svc.manager = session.NewManager(cfg, svc.sessions, svc.queue, chain, processor)
	svc.engine = search.NewEngine(cfg, svc.observations, svc.summaries, svc.prompts, svc.vec)

	svc.router = chi.NewRouter()
	svc.router.Use(middleware.Recoverer)
	svc.setupRoutes()

	return svc, nil
}

// openVectorIndex opens the chromem index, degrading to nil when it cannot.
func openVectorIndex(cfg *config.Config) vector.Client {
	client, err := chromem.NewClient(chromem.Config{
		Path:             cfg.VectorDir,
		EmbeddingBaseURL: cfg.EmbeddingBaseURL,
		EmbeddingModel:   cfg.EmbeddingModel,
		EmbeddingAPIKey:  cfg.EmbeddingAPIKey,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Vector index unavailable, semantic search disabled")
		return nil
	}
	return client
}

// Run starts the daemon and blocks until ctx is cancelled or the listener
// fails. Pending work left over from a previous run resumes before the
// listener opens.
func (s *Service) Run(ctx context.Context) error {
	recovered, started, err := s.manager.Resume(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Startup recovery incomplete")
	}
	if recovered > 0 || started > 0 {
		log.Info().
			Int64("recovered_messages", recovered).
			Int("resumed_sessions", started).
			Msg("Resumed pending work")
	}

	s.startDBWatcher(ctx)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.WorkerPort))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		s.ready.Store(false)
		return fmt.Errorf("http server: %w", err)
	}
}

// startDBWatcher arranges a clean exit when the database file is deleted
// underneath the daemon. The supervisor (or the next hook invocation)
// restarts it against a fresh database.
func (s *Service) startDBWatcher(ctx context.Context) {
	w, err := watcher.New(s.cfg.DBPath, func() {
		log.Warn().Str("path", s.cfg.DBPath).Msg("Database file deleted, shutting down for reinit")
		s.ready.Store(false)
		if s.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.server.Shutdown(shutdownCtx)
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Database watcher unavailable")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Database watcher failed to start")
		return
	}
	s.dbWatcher = w
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
}

// shutdown stops accepting requests, waits for in-flight drain loops, and
// closes the stores.
func (s *Service) shutdown() error {
	s.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
	}
	if err := s.manager.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Session manager shutdown incomplete")
	}
	if s.vec != nil {
		s.vec.Close()
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	log.Info().Msg("Worker stopped")
	return nil
}

// setupRoutes registers the HTTP surface.
// syncPromptDetached mirrors a freshly recorded prompt into the vector
// index. Like the post-commit observation sync, it runs detached with its
// own context; a failure only costs the prompt its semantic hit.
func (s *Service) syncPromptDetached(contentSessionID string, promptNumber int) {
	if s.syncer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		prompt, err := s.prompts.GetPromptByNumber(ctx, contentSessionID, promptNumber)
		if err != nil || prompt == nil {
			log.Warn().Err(err).
				Str("content_session_id", contentSessionID).
				Int("prompt_number", promptNumber).
				Msg("prompt sync lookup failed")
			return
		}
		if err := s.syncer.SyncUserPrompt(ctx, prompt); err != nil {
			log.Warn().Err(err).Msg("prompt vector sync failed")
		}
	}()
}

func (s *Service) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/readiness", s.handleReadiness)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Post("/api/sessions/init", s.handleInitSession)
		r.Post("/api/sessions/observations", s.handleEnqueueObservation)
		r.Post("/api/sessions/summarize", s.handleEnqueueSummarize)

		r.Get("/api/queue/status", s.handleQueueStatus)
		r.Post("/api/queue/process", s.handleQueueProcess)

		r.Get("/api/search", s.handleSearch)
		r.Get("/api/stream", s.broadcaster.HandleSSE)
	})
}

// requireReady rejects requests until startup recovery has finished.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service is starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}
