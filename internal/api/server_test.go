package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safecities/safecities/internal/audit"
	"github.com/safecities/safecities/internal/chatbot"
	"github.com/safecities/safecities/internal/documents"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/logging"
	"github.com/safecities/safecities/internal/memory"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/scenario"
	"github.com/safecities/safecities/internal/simulation"
	"github.com/safecities/safecities/internal/tokenizer"
)

const answer = "Keep the marked exits clear and brief the stewards."

func newTestServer(t *testing.T, opts Options) (*Server, *chatbot.Orchestrator) {
	t.Helper()

	completer := inference.CompleterFunc(func(ctx context.Context, messages []models.ChatMessage, o inference.CompletionOptions) (string, error) {
		return answer, nil
	})
	counter := tokenizer.NewCounter(tokenizer.Runes{})
	store := documents.NewStore(inference.NewHashEmbedder(32), counter, documents.WithLogger(logging.Discard()))
	registry := scenario.NewRegistry(
		scenario.Template{Type: "fire", Body: "Fire at {location}."},
		scenario.Template{Type: "weather", Body: "Storm over {location}."},
	)
	engine := simulation.NewEngine(completer, registry, logging.Discard())

	cfg := chatbot.DefaultConfig()
	cfg.Counter = counter
	cfg.Logger = logging.Discard()
	cfg.Prompts.SystemMessage = "You are a safety assistant."

	bot := chatbot.NewOrchestrator(store, memory.NewConversation(20), engine, completer, cfg)
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return NewServer(bot, opts), bot
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, bot := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "healthy" || body["session"] != bot.SessionID() {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestQuery(t *testing.T) {
	calls := 0
	s, bot := newTestServer(t, Options{BeforeQuery: func(ctx context.Context) { calls++ }})

	rec := do(t, s, http.MethodPost, "/api/v1/query", QueryRequest{
		Query: "how should stewards be positioned near exits",
		Mode:  "conversational",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != answer {
		t.Errorf("unexpected response %q", resp.Response)
	}
	if resp.Mode != string(models.ModeConversational) || resp.RequestedMode != string(models.ModeConversational) {
		t.Errorf("unexpected modes: %+v", resp)
	}
	if resp.ID == "" {
		t.Error("expected a query id")
	}
	if calls != 1 {
		t.Errorf("expected BeforeQuery once, got %d", calls)
	}
	if bot.Memory().Len() != 3 {
		t.Errorf("expected system, user and assistant turns, got %d", bot.Memory().Len())
	}
}

func TestQueryValidation(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	tests := []struct {
		name string
		body any
	}{
		{"empty query", QueryRequest{Query: "  "}},
		{"unknown mode", QueryRequest{Query: "tell me about exits", Mode: "poetry"}},
		{"not json", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/query", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestScenarios(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/api/v1/scenarios", nil)
	var body struct {
		Scenarios []ScenarioInfo `json:"scenarios"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Scenarios) != 3 {
		t.Fatalf("expected fire, weather and generic, got %+v", body.Scenarios)
	}
	for _, sc := range body.Scenarios {
		if sc.Title == "" {
			t.Errorf("scenario %q has no title", sc.Type)
		}
	}
}

func TestParameters(t *testing.T) {
	s, bot := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPut, "/api/v1/parameters/event", map[string]any{
		"location":   "Piazza Transalpina",
		"attendance": 5000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ev := bot.EventPlanning(); ev.Location != "Piazza Transalpina" || ev.Attendance != 5000 {
		t.Fatalf("parameters not applied: %+v", ev)
	}

	rec = do(t, s, http.MethodPut, "/api/v1/parameters/simulation", map[string]any{"severity": 9})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range severity, got %d", rec.Code)
	}
	if bot.SimulationParameters().Severity != 3 {
		t.Fatal("rejected update must leave parameters unchanged")
	}

	rec = do(t, s, http.MethodPut, "/api/v1/parameters/simulation", map[string]any{"severity": 4, "scenario_type": "fire"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/v1/parameters/simulation", nil)
	var sim map[string]any
	json.NewDecoder(rec.Body).Decode(&sim)
	if sim["scenario_type"] != "fire" || sim["severity"] != float64(4) {
		t.Fatalf("unexpected simulation parameters: %v", sim)
	}
}

func TestResetAndHistory(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	do(t, s, http.MethodPost, "/api/v1/query", QueryRequest{Query: "how wide should the exits be", Mode: "conversational"})

	rec := do(t, s, http.MethodGet, "/api/v1/history", nil)
	var hist struct {
		Messages []MessageView `json:"messages"`
	}
	json.NewDecoder(rec.Body).Decode(&hist)
	if len(hist.Messages) != 2 || hist.Messages[0].Role != "user" {
		t.Fatalf("unexpected history: %+v", hist.Messages)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reset map[string]any
	json.NewDecoder(rec.Body).Decode(&reset)
	if reset["messages"] != float64(1) {
		t.Fatalf("reset must keep only the system message, got %v", reset)
	}

	keep := false
	do(t, s, http.MethodPost, "/api/v1/reset", ResetRequest{KeepSystem: &keep})
	rec = do(t, s, http.MethodGet, "/api/v1/history?system=true", nil)
	json.NewDecoder(rec.Body).Decode(&hist)
	if len(hist.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", hist.Messages)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	if rec := do(t, s, http.MethodGet, "/api/v1/stats", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without an audit log, got %d", rec.Code)
	}

	db, err := audit.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.Log(context.Background(), &audit.Entry{ID: "q1", SessionID: "s", RequestedMode: "auto", ResolvedMode: "simulation", Success: true})

	s, _ = newTestServer(t, Options{Stats: db})
	rec := do(t, s, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats map[string]any
	json.NewDecoder(rec.Body).Decode(&stats)
	if stats["total_queries"] != float64(1) {
		t.Fatalf("unexpected stats: %v", stats)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/stats?since=yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", rec.Code)
	}
}
