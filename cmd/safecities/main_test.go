package main

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/safecities/safecities/internal/chatbot"
	"github.com/safecities/safecities/internal/config"
	"github.com/safecities/safecities/internal/documents"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/logging"
	"github.com/safecities/safecities/internal/memory"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/scenario"
	"github.com/safecities/safecities/internal/simulation"
	"github.com/safecities/safecities/internal/tokenizer"
)

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "ints and strings",
			args: []string{"attendance=5000", "event_type=concert"},
			want: map[string]any{"attendance": 5000, "event_type": "concert"},
		},
		{
			name: "multi word value",
			args: []string{"location=Piazza", "Transalpina", "severity=4"},
			want: map[string]any{"location": "Piazza Transalpina", "severity": 4},
		},
		{
			name: "none clears",
			args: []string{"scenario_type=none"},
			want: map[string]any{"scenario_type": nil},
		},
		{
			name: "quotes stripped",
			args: []string{`event_type="street"`, `festival"`},
			want: map[string]any{"event_type": "street festival"},
		},
		{name: "no args", args: nil, wantErr: true},
		{name: "leading bare word", args: []string{"Transalpina"}, wantErr: true},
		{name: "empty key", args: []string{"=3"}, wantErr: true},
		{name: "word after number", args: []string{"severity=3", "high"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenCacheBackends(t *testing.T) {
	cfg := config.Default()

	cfg.Cache.Backend = "none"
	if store, err := openCache(cfg); err != nil || store != nil {
		t.Fatalf("expected no cache, got %v, %v", store, err)
	}

	cfg.Cache.Backend = "memory"
	store, err := openCache(cfg)
	if err != nil || store == nil {
		t.Fatalf("expected memory cache, got %v", err)
	}
	store.Close()

	cfg.Cache.Backend = "badger"
	cfg.Paths.CacheDir = filepath.Join(t.TempDir(), "cache")
	store, err = openCache(cfg)
	if err != nil {
		t.Fatalf("expected badger cache, got %v", err)
	}
	store.Close()

	cfg.Cache.Backend = "etcd"
	if _, err := openCache(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()

	completer := inference.CompleterFunc(func(ctx context.Context, messages []models.ChatMessage, o inference.CompletionOptions) (string, error) {
		return "Keep exits clear.", nil
	})
	counter := tokenizer.NewCounter(tokenizer.Runes{})
	store := documents.NewStore(inference.NewHashEmbedder(16), counter, documents.WithLogger(logging.Discard()))
	engine := simulation.NewEngine(completer, scenario.NewRegistry(), logging.Discard())

	cfg := chatbot.DefaultConfig()
	cfg.Counter = counter
	cfg.Logger = logging.Discard()

	return &app{
		cfg:    config.Default(),
		bot:    chatbot.NewOrchestrator(store, memory.NewConversation(10), engine, completer, cfg),
		store:  store,
		logger: logging.Discard(),
	}
}

func TestReplCommands(t *testing.T) {
	a := newTestApp(t)
	saved := filepath.Join(t.TempDir(), "chat.json")

	input := strings.Join([]string{
		"/mode conversational",
		"/event location=Piazza Transalpina attendance=1200",
		"/sim severity=9",
		"what should stewards check before the gates open",
		"/save " + saved,
		"/clear",
		"/load " + saved,
		"/summary",
		"/bogus",
		"/exit",
		"never processed",
	}, "\n")

	var out bytes.Buffer
	if err := a.repl(context.Background(), strings.NewReader(input), &out, false); err != nil {
		t.Fatalf("repl failed: %v", err)
	}

	ev := a.bot.EventPlanning()
	if ev.Location != "Piazza Transalpina" || ev.Attendance != 1200 {
		t.Errorf("event parameters not applied: %+v", ev)
	}
	if a.bot.SimulationParameters().Severity != config.DefaultSeverity {
		t.Error("invalid severity must be rejected")
	}

	text := out.String()
	for _, want := range []string{
		"Mode set to conversational",
		"Keep exits clear.",
		"Conversation with 1 user messages and 1 assistant responses.",
		"Unknown command /bogus",
		"Goodbye!",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if a.bot.Memory().Len() != 2 {
		t.Errorf("loaded history should hold 2 turns, got %d", a.bot.Memory().Len())
	}
}
