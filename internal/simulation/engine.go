package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/policy"
	"github.com/safecities/safecities/internal/scenario"
)

// Temperature is the creativity level used for every simulation
const Temperature = 0.7

// Parameter keys with dedicated labels in the prompt
const (
	ParamParticipants   = "participants"
	ParamSeverity       = "severity"
	ParamLocation       = "location"
	ParamEventType      = "event_type"
	ParamScenarioType   = "scenario_type"
	ParamEventRequested = "is_gogorizia"
)

const systemPrompt = "You are an expert in emergency management and security planning for public events. " +
	"Your task is to create detailed and realistic simulations of emergency scenarios based on specific templates " +
	"and the exact parameters provided."

var paramLabels = map[string]string{
	ParamParticipants: "Number of participants",
	ParamSeverity:     "Severity level (1-5)",
	ParamLocation:     "Location",
	ParamEventType:    "Event type",
}

// Param is one entry of the additional context, rendered in order
type Param struct {
	Key   string
	Value any
}

// Request describes one simulation
type Request struct {
	Query           string
	EventContext    string
	LocationContext string
	Params          []Param

	// ScenarioType is detected from Query when empty
	ScenarioType string
	Instructions string
}

// Result is a finished simulation. Text is always presentable; Err records
// a completion failure already folded into Text.
type Result struct {
	Text         string
	ScenarioType string
	Duration     time.Duration
	Err          error
}

// Engine renders scenario templates into prompts and asks the model for a
// narrative.
type Engine struct {
	completer inference.Completer
	registry  *scenario.Registry
	logger    *slog.Logger
}

// NewEngine creates an engine over the given templates
func NewEngine(completer inference.Completer, registry *scenario.Registry, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = scenario.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		completer: completer,
		registry:  registry,
		logger:    logger,
	}
}

// List returns the available scenario types in load order
func (e *Engine) List() []string {
	return e.registry.List()
}

// Detect classifies a query into a scenario type with a loaded template
func (e *Engine) Detect(query string) string {
	return e.registry.Detect(query)
}

// Generate produces a simulation. It never fails: a completion error is
// turned into an apology.
func (e *Engine) Generate(ctx context.Context, req Request) Result {
	start := time.Now()

	scenarioType := req.ScenarioType
	if scenarioType == "" {
		scenarioType = e.registry.Detect(req.Query)
	}

	prompt := e.BuildPrompt(req, scenarioType)
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: systemPrompt},
		{Role: models.RoleUser, Content: prompt},
	}

	raw, err := e.completer.Complete(ctx, messages, inference.CompletionOptions{
		Temperature: inference.Temperature(Temperature),
	})
	if err != nil {
		e.logger.Warn("simulation failed", "component", "simulation", "op", "generate", "scenario", scenarioType, "err", err)
		return Result{
			Text:         fmt.Sprintf("Sorry, there was an error generating the simulation: %v", err),
			ScenarioType: scenarioType,
			Duration:     time.Since(start),
			Err:          err,
		}
	}

	text := fmt.Sprintf("# Simulation: %s\n\n%s\n\n---\n"+
		"*Note: This is an artificially generated simulation for planning purposes.\n"+
		"The information is based on the SVA framework principles for security planning.*",
		scenario.DisplayName(scenarioType), strings.TrimSpace(raw))

	return Result{
		Text:         text,
		ScenarioType: scenarioType,
		Duration:     time.Since(start),
	}
}

// BuildPrompt renders the user turn sent for a simulation
func (e *Engine) BuildPrompt(req Request, scenarioType string) string {
	var params strings.Builder
	eventRequested := false
	for _, p := range req.Params {
		switch p.Key {
		case ParamEventRequested:
			eventRequested, _ = p.Value.(bool)
			continue
		case ParamScenarioType:
			if p.Value == nil || fmt.Sprint(p.Value) == "" {
				continue
			}
		}
		label, ok := paramLabels[p.Key]
		if !ok {
			label = p.Key
		}
		fmt.Fprintf(&params, "%s: %v\n", label, p.Value)
	}

	instructions := req.Instructions
	if !eventRequested && !policy.RequestedIn(req.Query) {
		instructions += "\n" + policy.Instruction
	}

	var b strings.Builder
	b.WriteString("# Simulation Request\n\n")
	section(&b, "Query details", req.Query)
	section(&b, "Event information", req.EventContext)
	section(&b, "Location information", req.LocationContext)
	section(&b, "Additional context", params.String())
	section(&b, "Simulation template instructions", e.registry.Template(scenarioType))
	section(&b, "Additional guidance", instructions)
	b.WriteString("Use the exact parameters provided (number of participants, severity level, location, etc.) in your simulation.\n")
	b.WriteString("Make the simulation realistic and detailed, incorporating the specific context provided.")
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "## %s\n%s\n\n", title, strings.TrimSpace(body))
}
