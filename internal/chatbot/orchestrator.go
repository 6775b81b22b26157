package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safecities/safecities/internal/audit"
	"github.com/safecities/safecities/internal/config"
	"github.com/safecities/safecities/internal/documents"
	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/memory"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/simulation"
	"github.com/safecities/safecities/internal/tokenizer"
)

// minSimulationWords is the shortest query treated as a simulation request
const minSimulationWords = 4

// DocumentStore is the retrieval surface the orchestrator needs
type DocumentStore interface {
	Search(ctx context.Context, query string, topK int) []models.Document
	ContextForQuery(ctx context.Context, query string, maxTokens int) string
	SaveToFile(path string) error
	Len() int
}

var _ DocumentStore = (*documents.Store)(nil)

// Outcome is what a mode handler produced
type Outcome struct {
	Text         string
	ScenarioType string
	Corrected    bool
	Err          error
}

// Handler answers a query in one mode
type Handler func(ctx context.Context, query string) Outcome

// Reply describes one processed query
type Reply struct {
	ID            string
	Text          string
	RequestedMode models.Mode
	Mode          models.Mode
	ScenarioType  string
	Corrected     bool
	Duration      time.Duration
}

// Config carries the static settings of an orchestrator
type Config struct {
	Prompts       config.Prompts
	EventPlanning config.EventPlanning
	Simulation    config.SimulationParams

	// ContextLimit bounds the tokens sent with one completion
	ContextLimit int
	// ContextTokens bounds the retrieved context
	ContextTokens int

	Counter   *tokenizer.Counter
	Auditor   audit.Logger
	SessionID string
	Logger    *slog.Logger
}

// DefaultConfig returns the settings used when none are given
func DefaultConfig() *Config {
	return &Config{
		Simulation:    config.DefaultSimulationParams(),
		ContextLimit:  tokenizer.DefaultContextLimit,
		ContextTokens: documents.DefaultContextTokens,
	}
}

// Orchestrator routes each query to a mode handler and keeps the
// conversation. It serves one session and is not safe for concurrent use.
type Orchestrator struct {
	store     DocumentStore
	memory    *memory.Conversation
	engine    *simulation.Engine
	completer inference.Completer
	counter   *tokenizer.Counter
	auditor   audit.Logger

	prompts config.Prompts
	event   config.EventPlanning
	sim     config.SimulationParams

	contextLimit  int
	contextTokens int

	handlers  map[models.Mode]Handler
	sessionID string
	logger    *slog.Logger
}

// NewOrchestrator wires the collaborators of one chat session
func NewOrchestrator(
	store DocumentStore,
	conversation *memory.Conversation,
	engine *simulation.Engine,
	completer inference.Completer,
	cfg *Config,
) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if conversation == nil {
		conversation = memory.NewConversation(memory.DefaultMaxMessages)
	}

	o := &Orchestrator{
		store:         store,
		memory:        conversation,
		engine:        engine,
		completer:     completer,
		counter:       cfg.Counter,
		auditor:       cfg.Auditor,
		prompts:       cfg.Prompts,
		event:         cfg.EventPlanning,
		sim:           cfg.Simulation,
		contextLimit:  cfg.ContextLimit,
		contextTokens: cfg.ContextTokens,
		handlers:      make(map[models.Mode]Handler),
		sessionID:     cfg.SessionID,
		logger:        cfg.Logger,
	}

	if o.counter == nil {
		o.counter = tokenizer.NewCounter(nil)
	}
	if o.contextLimit <= 0 {
		o.contextLimit = tokenizer.DefaultContextLimit
	}
	if o.contextTokens <= 0 {
		o.contextTokens = documents.DefaultContextTokens
	}
	if o.sim.Severity == 0 {
		o.sim.Severity = config.DefaultSeverity
	}
	if o.sim.Participants == 0 {
		o.sim.Participants = config.DefaultParticipants
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "chatbot", "session", o.sessionID)

	if o.prompts.SystemMessage != "" {
		o.memory.SetSystemMessage(o.prompts.SystemMessage)
	}

	o.handlers[models.ModeConversational] = o.handleConversational
	o.handlers[models.ModeSVAFramework] = func(ctx context.Context, query string) Outcome {
		return o.handleInformation(ctx, query, models.ModeSVAFramework)
	}
	o.handlers[models.ModeEventPlanning] = func(ctx context.Context, query string) Outcome {
		return o.handleInformation(ctx, query, models.ModeEventPlanning)
	}
	o.handlers[models.ModeSimulation] = o.handleSimulation

	return o
}

// RegisterHandler replaces the handler for a concrete mode
func (o *Orchestrator) RegisterHandler(mode models.Mode, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("cannot register nil handler")
	}
	if mode == models.ModeAuto {
		return fmt.Errorf("auto mode is resolved per query and cannot have a handler")
	}
	if _, err := models.ParseMode(string(mode)); err != nil {
		return err
	}
	o.handlers[mode] = handler
	return nil
}

// SessionID identifies this conversation in the audit log
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// ProcessQuery answers query in mode and records both turns in memory
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, mode models.Mode) string {
	return o.Process(ctx, query, mode).Text
}

// Process is ProcessQuery with the routing details kept
func (o *Orchestrator) Process(ctx context.Context, query string, mode models.Mode) Reply {
	start := time.Now()
	reply := Reply{ID: uuid.NewString(), RequestedMode: mode}

	o.memory.AddMessage(models.RoleUser, query)

	resolved := mode
	if resolved == "" || resolved == models.ModeAuto {
		var rule string
		resolved, rule = detectQueryMode(query)
		o.logger.Debug("mode resolved", "mode", resolved, "rule", rule)
	}

	if resolved == models.ModeSimulation && isAvailabilityQuestion(query) {
		resolved = models.ModeConversational
	}
	if resolved == models.ModeSimulation && len(strings.Fields(query)) < minSimulationWords {
		o.logger.Debug("query too short for simulation", "words", len(strings.Fields(query)))
		resolved = models.ModeConversational
	}

	handler, ok := o.handlers[resolved]
	if !ok {
		handler = o.handleConversational
	}
	outcome := handler(ctx, query)

	o.memory.AddMessage(models.RoleAssistant, outcome.Text)

	reply.Text = outcome.Text
	reply.Mode = resolved
	reply.ScenarioType = outcome.ScenarioType
	reply.Corrected = outcome.Corrected
	reply.Duration = time.Since(start)

	o.record(ctx, query, reply, outcome.Err)
	return reply
}

func (o *Orchestrator) record(ctx context.Context, query string, reply Reply, err error) {
	if o.auditor == nil {
		return
	}
	requested := reply.RequestedMode
	if requested == "" {
		requested = models.ModeAuto
	}
	entry := &audit.Entry{
		ID:            reply.ID,
		SessionID:     o.sessionID,
		Timestamp:     time.Now(),
		RequestedMode: string(requested),
		ResolvedMode:  string(reply.Mode),
		ScenarioType:  reply.ScenarioType,
		QueryLength:   len([]rune(query)),
		ResponseChars: len([]rune(reply.Text)),
		Duration:      reply.Duration,
		Corrected:     reply.Corrected,
		Success:       err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
		entry.Metadata = map[string]string{
			"category": string(faults.CategoryOf(err)),
			"code":     faults.CodeOf(err),
		}
	}
	if logErr := o.auditor.Log(ctx, entry); logErr != nil {
		o.logger.Warn("audit write failed", "op", "audit", "err", logErr)
	}
}

// EventPlanning returns the current event planning parameters
func (o *Orchestrator) EventPlanning() config.EventPlanning {
	return o.event
}

// SimulationParameters returns the current simulation parameters
func (o *Orchestrator) SimulationParameters() config.SimulationParams {
	return o.sim
}

// SetEventPlanningParameters merges values into the event planning overlay
func (o *Orchestrator) SetEventPlanningParameters(values map[string]any) error {
	return o.event.Merge(values)
}

// SetSimulationParameters merges values into the simulation overlay
func (o *Orchestrator) SetSimulationParameters(values map[string]any) error {
	return o.sim.Merge(values)
}

// AvailableScenarios lists the scenario types that can be simulated
func (o *Orchestrator) AvailableScenarios() []string {
	return o.engine.List()
}

// Memory exposes the conversation for display
func (o *Orchestrator) Memory() *memory.Conversation {
	return o.memory
}

// ResetConversation clears the history, optionally keeping the system message
func (o *Orchestrator) ResetConversation(keepSystem bool) {
	o.memory.Clear(keepSystem)
}

// SaveConversation writes the history to path
func (o *Orchestrator) SaveConversation(path string) error {
	return o.memory.Save(path)
}

// LoadConversation replaces the history with the one saved at path
func (o *Orchestrator) LoadConversation(path string) error {
	if err := o.memory.Load(path); err != nil {
		o.logger.Warn("conversation not loaded", "op", "load_conversation", "path", path, "err", err)
		return err
	}
	return nil
}

// SaveDocuments snapshots the document store to path
func (o *Orchestrator) SaveDocuments(path string) error {
	return o.store.SaveToFile(path)
}
