package worker

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/privacy"
	"github.com/enzo-wego/claude-mem/internal/search"
	"github.com/enzo-wego/claude-mem/pkg/models"
)

type initSessionRequest struct {
	ContentSessionID string `json:"content_session_id"`
	Project          string `json:"project"`
	Prompt           string `json:"prompt"`
}

type initSessionResponse struct {
	SessionDBID  int64 `json:"session_db_id"`
	PromptNumber int   `json:"prompt_number"`
}

// handleInitSession registers (or re-registers) a content session and
// records the latest user prompt, bumping the session's prompt counter.
// An init without a prompt reports the counter unchanged.
func (s *Service) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req initSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentSessionID == "" || req.Project == "" {
		writeError(w, http.StatusBadRequest, "content_session_id and project are required")
		return
	}

	prompt := privacy.Clean(req.Prompt)

	dbID, promptNumber, err := s.sessions.InitOrUpsertSession(r.Context(), req.ContentSessionID, req.Project, prompt)
	if err != nil {
		log.Error().Err(err).Str("content_session_id", req.ContentSessionID).Msg("session init failed")
		writeError(w, http.StatusInternalServerError, "could not initialize session")
		return
	}

	if prompt != "" && promptNumber > 0 {
		s.syncPromptDetached(req.ContentSessionID, promptNumber)
	}

	writeJSON(w, http.StatusOK, initSessionResponse{SessionDBID: dbID, PromptNumber: promptNumber})
}

type enqueueObservationRequest struct {
	ContentSessionID string `json:"content_session_id"`
	ToolName         string `json:"tool_name"`
	ToolInput        string `json:"tool_input"`
	ToolOutput       string `json:"tool_output"`
	CWD              string `json:"cwd"`
}

// handleEnqueueObservation queues raw tool activity for extraction and
// wakes the session's drain loop. The write is durable before the 202.
func (s *Service) handleEnqueueObservation(w http.ResponseWriter, r *http.Request) {
	var req enqueueObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentSessionID == "" || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "content_session_id and tool_name are required")
		return
	}

	msg := &models.PendingMessage{
		ContentSessionID: req.ContentSessionID,
		Kind:             models.MessageKindObservation,
		ToolName:         req.ToolName,
		ToolInput:        req.ToolInput,
		ToolOutput:       req.ToolOutput,
		CWD:              req.CWD,
	}
	s.enqueue(w, r, msg)
}

type enqueueSummarizeRequest struct {
	ContentSessionID     string `json:"content_session_id"`
	LastAssistantMessage string `json:"last_assistant_message"`
}

// handleEnqueueSummarize queues an end-of-turn summarization checkpoint.
func (s *Service) handleEnqueueSummarize(w http.ResponseWriter, r *http.Request) {
	var req enqueueSummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentSessionID == "" {
		writeError(w, http.StatusBadRequest, "content_session_id is required")
		return
	}

	msg := &models.PendingMessage{
		ContentSessionID:     req.ContentSessionID,
		Kind:                 models.MessageKindSummarize,
		LastAssistantMessage: privacy.Clean(req.LastAssistantMessage),
	}
	s.enqueue(w, r, msg)
}

func (s *Service) enqueue(w http.ResponseWriter, r *http.Request, msg *models.PendingMessage) {
	// The prompt number comes from the session's own counter, never from the
	// request, so attribution cannot drift from what init recorded.
	sess, err := s.sessions.GetSessionByContentID(r.Context(), msg.ContentSessionID)
	if err != nil {
		log.Error().Err(err).Str("content_session_id", msg.ContentSessionID).Msg("session lookup failed")
		writeError(w, http.StatusInternalServerError, "could not queue message")
		return
	}
	if sess != nil {
		msg.PromptNumber = int(sess.PromptCounter)
	}

	if _, err := s.queue.Enqueue(r.Context(), msg); err != nil {
		log.Error().Err(err).Str("content_session_id", msg.ContentSessionID).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "could not queue message")
		return
	}

	if _, err := s.manager.StartProcessing(msg.ContentSessionID); err != nil {
		// The message is durable; a later trigger or restart picks it up.
		log.Warn().Err(err).Str("content_session_id", msg.ContentSessionID).
			Msg("drain loop did not start")
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

type queueStatusResponse struct {
	*models.QueueStats
	ActiveSessions []string `json:"active_sessions"`
}

// handleQueueStatus reports queue depth by status plus the sessions with a
// running drain loop.
func (s *Service) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, queueStatusResponse{
		QueueStats:     stats,
		ActiveSessions: s.manager.ActiveSessions(),
	})
}

type queueProcessRequest struct {
	Limit int `json:"limit"`
}

// handleQueueProcess starts drain loops for sessions with pending work.
// Limit 0 means all of them.
func (s *Service) handleQueueProcess(w http.ResponseWriter, r *http.Request) {
	var req queueProcessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	started, skipped, err := s.manager.TriggerProcessing(r.Context(), req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not trigger processing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"started": started, "skipped": skipped})
}

// handleSearch runs a retrieval query. Free-text search without a working
// vector index answers 503 with a distinct body so callers can retry with
// filters instead.
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, search.ErrSemanticUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":  "semantic_unavailable",
				"detail": "vector index unreachable; retry with filters or without query text",
			})
			return
		}
		log.Error().Err(err).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseSearchQuery(r *http.Request) (search.Query, error) {
	params := r.URL.Query()
	q := search.Query{
		Text:     strings.TrimSpace(params.Get("query")),
		Project:  params.Get("project"),
		Concepts: splitParam(params.Get("concepts")),
		Files:    splitParam(params.Get("files")),
	}

	for _, raw := range splitParam(params.Get("types")) {
		t := models.ObservationType(raw)
		if !models.ValidObservationType(t) {
			return q, errors.New("unknown observation type: " + raw)
		}
		q.Types = append(q.Types, t)
	}

	var err error
	if q.Since, err = parseEpoch(params.Get("since")); err != nil {
		return q, errors.New("invalid since: " + params.Get("since"))
	}
	if q.Until, err = parseEpoch(params.Get("until")); err != nil {
		return q, errors.New("invalid until: " + params.Get("until"))
	}

	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, errors.New("invalid limit: " + raw)
		}
		q.Limit = limit
	}

	if q.Text == "" && q.Project == "" && len(q.Types) == 0 &&
		len(q.Concepts) == 0 && len(q.Files) == 0 && q.Since == 0 && q.Until == 0 {
		return q, errors.New("at least one of query, project, types, concepts, files, since, until is required")
	}
	return q, nil
}

// parseEpoch accepts epoch milliseconds or an RFC3339 timestamp.
func parseEpoch(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
	VectorIndex    string `json:"vector_index"`
}

// handleHealth reports liveness plus a coarse view of the daemon's state.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	vectorState := "disabled"
	if s.vec != nil {
		vectorState = "disconnected"
		if s.vec.IsConnected() {
			vectorState = "connected"
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         status,
		Version:        s.version,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		ActiveSessions: s.manager.ActiveSessionCount(),
		VectorIndex:    vectorState,
	})
}

// handleReadiness answers 200 only when startup finished and the database
// responds.
func (s *Service) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service is starting")
		return
	}
	if err := s.store.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
