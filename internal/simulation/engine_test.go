package simulation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/logging"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/policy"
	"github.com/safecities/safecities/internal/scenario"
)

type recorder struct {
	messages []models.ChatMessage
	opts     inference.CompletionOptions
	reply    string
	err      error
}

func (r *recorder) Complete(ctx context.Context, messages []models.ChatMessage, opts inference.CompletionOptions) (string, error) {
	r.messages = messages
	r.opts = opts
	return r.reply, r.err
}

func newEngine(c inference.Completer) *Engine {
	registry := scenario.NewRegistry(
		scenario.Template{Type: "fire", Body: "FIRE TEMPLATE"},
		scenario.Template{Type: "terrorism", Body: "TERROR TEMPLATE"},
	)
	return NewEngine(c, registry, logging.Discard())
}

func TestGenerateWrapsCompletion(t *testing.T) {
	rec := &recorder{reply: "  The fire spread quickly.  "}
	e := newEngine(rec)

	res := e.Generate(context.Background(), Request{
		Query:           "Simulate a fire during a concert",
		EventContext:    "A concert.",
		LocationContext: "A square.",
		Params: []Param{
			{Key: ParamParticipants, Value: 3000},
			{Key: ParamSeverity, Value: 4},
			{Key: ParamScenarioType, Value: ""},
			{Key: "weather", Value: "rain"},
			{Key: ParamEventRequested, Value: false},
		},
	})

	if res.Err != nil || res.ScenarioType != "fire" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.HasPrefix(res.Text, "# Simulation: Fire Emergency\n\nThe fire spread quickly.\n\n---\n") {
		t.Fatalf("unexpected banner: %q", res.Text)
	}
	if !strings.Contains(res.Text, "artificially generated simulation") {
		t.Fatal("missing disclaimer")
	}

	if len(rec.messages) != 2 || rec.messages[0].Role != models.RoleSystem || rec.messages[1].Role != models.RoleUser {
		t.Fatalf("expected system and user turns, got %+v", rec.messages)
	}
	if rec.opts.Temperature == nil || *rec.opts.Temperature != Temperature {
		t.Fatal("simulation must run at its fixed temperature")
	}

	prompt := rec.messages[1].Content
	for _, want := range []string{
		"## Query details\nSimulate a fire during a concert",
		"Number of participants: 3000\n",
		"Severity level (1-5): 4\n",
		"weather: rain\n",
		"## Simulation template instructions\nFIRE TEMPLATE",
		policy.Instruction,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	for _, unwanted := range []string{"is_gogorizia", "scenario_type"} {
		if strings.Contains(prompt, unwanted) {
			t.Errorf("prompt must not render %q", unwanted)
		}
	}
}

func TestPolicyInstructionGating(t *testing.T) {
	rec := &recorder{reply: "ok"}
	e := newEngine(rec)

	e.Generate(context.Background(), Request{Query: "Simulate a fire at GO!2025"})
	if strings.Contains(rec.messages[1].Content, policy.Instruction) {
		t.Fatal("requested event must not be forbidden")
	}

	e.Generate(context.Background(), Request{
		Query:  "Simulate a fire at the event",
		Params: []Param{{Key: ParamEventRequested, Value: true}},
	})
	if strings.Contains(rec.messages[1].Content, policy.Instruction) {
		t.Fatal("flagged event must not be forbidden")
	}
}

func TestGenerateUsesExplicitScenario(t *testing.T) {
	rec := &recorder{reply: "ok"}
	e := newEngine(rec)

	res := e.Generate(context.Background(), Request{Query: "Simulate a fire", ScenarioType: "terrorism"})
	if res.ScenarioType != "terrorism" || !strings.Contains(rec.messages[1].Content, "TERROR TEMPLATE") {
		t.Fatalf("explicit scenario type must win: %+v", res)
	}

	res = e.Generate(context.Background(), Request{Query: "Simulate a flash mob", ScenarioType: "flash_mob"})
	if !strings.HasPrefix(res.Text, "# Simulation: Scenario: flash_mob") {
		t.Fatalf("unexpected title: %q", res.Text)
	}
	if !strings.Contains(rec.messages[1].Content, "Generic Template for Emergency Simulation") {
		t.Fatal("unknown scenario must use the generic template")
	}
}

func TestGenerateApologizesOnFailure(t *testing.T) {
	e := newEngine(&recorder{err: errors.New("provider down")})

	res := e.Generate(context.Background(), Request{Query: "Simulate a fire during a concert"})
	if res.Err == nil {
		t.Fatal("expected the error to be recorded")
	}
	if res.Text != "Sorry, there was an error generating the simulation: provider down" {
		t.Fatalf("unexpected apology: %q", res.Text)
	}
}

func TestList(t *testing.T) {
	e := newEngine(&recorder{})
	got := e.List()
	if strings.Join(got, ",") != "fire,terrorism,generic" {
		t.Fatalf("unexpected scenarios: %v", got)
	}
}
