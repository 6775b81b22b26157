package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/scenario"
)

// QueryRequest is the body of POST /api/v1/query
type QueryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// QueryResponse reports the answer and how it was routed
type QueryResponse struct {
	ID            string `json:"id"`
	Response      string `json:"response"`
	Mode          string `json:"mode"`
	RequestedMode string `json:"requested_mode"`
	ScenarioType  string `json:"scenario_type,omitempty"`
	Corrected     bool   `json:"corrected"`
	DurationMs    int64  `json:"duration_ms"`
}

// ScenarioInfo describes one simulatable scenario
type ScenarioInfo struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

// ResetRequest is the optional body of POST /api/v1/reset
type ResetRequest struct {
	KeepSystem *bool `json:"keep_system,omitempty"`
}

// MessageView is one turn of GET /api/v1/history
type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		errorResponse(w, http.StatusBadRequest, "query is required")
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.beforeQuery != nil {
		s.beforeQuery(r.Context())
	}
	reply := s.bot.Process(r.Context(), req.Query, mode)

	successResponse(w, QueryResponse{
		ID:            reply.ID,
		Response:      reply.Text,
		Mode:          string(reply.Mode),
		RequestedMode: string(mode),
		ScenarioType:  reply.ScenarioType,
		Corrected:     reply.Corrected,
		DurationMs:    reply.Duration.Milliseconds(),
	})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	available := s.bot.AvailableScenarios()
	s.mu.Unlock()

	out := make([]ScenarioInfo, len(available))
	for i, t := range available {
		out[i] = ScenarioInfo{Type: t, Title: scenario.DisplayName(t)}
	}
	successResponse(w, map[string]any{"scenarios": out})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	successResponse(w, s.bot.EventPlanning())
}

func (s *Server) handlePutEvent(w http.ResponseWriter, r *http.Request) {
	values, ok := decodeParameters(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bot.SetEventPlanningParameters(values); err != nil {
		parameterError(w, err)
		return
	}
	successResponse(w, s.bot.EventPlanning())
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	successResponse(w, s.bot.SimulationParameters())
}

func (s *Server) handlePutSimulation(w http.ResponseWriter, r *http.Request) {
	values, ok := decodeParameters(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bot.SetSimulationParameters(values); err != nil {
		parameterError(w, err)
		return
	}
	successResponse(w, s.bot.SimulationParameters())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	keepSystem := true
	if req.KeepSystem != nil {
		keepSystem = *req.KeepSystem
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bot.ResetConversation(keepSystem)
	successResponse(w, map[string]any{"status": "reset", "messages": s.bot.Memory().Len()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	msgs := s.bot.Memory().Messages(r.URL.Query().Get("system") == "true")
	s.mu.Unlock()

	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = MessageView{Role: string(m.Role), Content: m.Content, Timestamp: m.Time().UTC()}
	}
	successResponse(w, map[string]any{"messages": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		errorResponse(w, http.StatusNotFound, "audit log is not enabled")
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errorResponse(w, http.StatusBadRequest, "invalid since format, use RFC 3339")
			return
		}
		since = parsed
	}

	stats, err := s.stats.Stats(r.Context(), since)
	if err != nil {
		s.logger.Warn("stats query failed", "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to read stats: "+err.Error())
		return
	}
	successResponse(w, map[string]any{
		"total_queries":       stats.TotalQueries,
		"successful":          stats.Successful,
		"corrected":           stats.Corrected,
		"error_rate":          stats.ErrorRate,
		"correction_rate":     stats.CorrectionRate,
		"average_duration_ms": stats.AverageDuration.Milliseconds(),
		"by_mode":             stats.ByMode,
	})
}

func decodeParameters(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	return values, true
}

func parameterError(w http.ResponseWriter, err error) {
	if faults.Is(err, faults.CategoryInvalidInput) {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	errorResponse(w, http.StatusInternalServerError, err.Error())
}
