package chatbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/safecities/safecities/internal/config"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/policy"
	"github.com/safecities/safecities/internal/scenario"
	"github.com/safecities/safecities/internal/simulation"
)

// conversationalTemperature applies to chat answers; information answers use the client default
const conversationalTemperature = 0.7

func (o *Orchestrator) handleConversational(ctx context.Context, query string) Outcome {
	if isListingRequest(query) {
		return Outcome{Text: o.scenarioListing()}
	}

	template := o.prompts.ConversationalPrompt
	if template == "" {
		template = defaultConversationalPrompt
	}
	prompt := render(template, query, "", "")

	history := o.memory.ProviderMessages(true)
	if !hasSystem(history) {
		system := o.prompts.SystemMessage
		if system == "" {
			system = defaultSystemMessage
		}
		history = append([]models.ChatMessage{{Role: models.RoleSystem, Content: system}}, history...)
	}
	history = append(history, models.ChatMessage{Role: models.RoleUser, Content: prompt})
	history = o.counter.FitMessages(history, o.contextLimit)

	response, err := o.completer.Complete(ctx, history, inference.CompletionOptions{
		Temperature: inference.Temperature(conversationalTemperature),
	})
	if err != nil {
		return o.apology("conversational", err)
	}

	text, corrected := o.enforcePolicy(ctx, query, response, policy.ConversationalCorrection)
	return Outcome{Text: text, Corrected: corrected}
}

// scenarioListing answers "what can I simulate" without the model
func (o *Orchestrator) scenarioListing() string {
	available := o.engine.List()
	names := make([]string, len(available))
	for i, s := range available {
		names[i] = scenario.HumanName(s)
	}

	var b strings.Builder
	b.WriteString("I can simulate the following emergency scenarios for events:\n\n")
	fmt.Fprintf(&b, "- %s\n\n", strings.Join(names, ", "))
	if len(available) > 0 {
		first := strings.ReplaceAll(available[0], "_", " ")
		fmt.Fprintf(&b, "To run a simulation, you can ask something like \"Simulate a %s scenario during a concert in Piazza Transalpina\"", first)
		if len(available) > 1 {
			second := strings.ReplaceAll(available[1], "_", " ")
			fmt.Fprintf(&b, " or \"What would happen if there was a %s during an event with 3000 people?\"", second)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("You can specify parameters like the location, event type, number of attendees, and severity level.")
	return b.String()
}

func (o *Orchestrator) handleInformation(ctx context.Context, query string, mode models.Mode) Outcome {
	template := o.promptFor(mode)
	searchQuery := query

	var parameters string
	if mode == models.ModeEventPlanning {
		var extra string
		parameters, extra = eventParameters(o.event)
		searchQuery += extra
	}

	requested := policy.RequestedIn(query)
	if requested {
		searchQuery = policy.SearchQuery(searchQuery)
	}
	retrieved := o.store.ContextForQuery(ctx, searchQuery, o.contextTokens)

	if mode == models.ModeEventPlanning && isTransalpina(o.event.Location) {
		square := joinTexts(o.store.Search(ctx, searchTransalpinaSafety, 2))
		if square == "" {
			square = transalpinaFacts
		}
		retrieved = strings.TrimSpace(retrieved + "\n\n" + transalpinaHeading + "\n" + square)
	}

	if retrieved == "" {
		switch mode {
		case models.ModeSVAFramework:
			retrieved = noContextSVA
		case models.ModeEventPlanning:
			retrieved = noContextEventPlanning
		default:
			retrieved = noContextGeneral
		}
	}
	if !requested {
		retrieved += "\n\n" + policy.ContextNotice
	}

	prompt := render(template, query, retrieved, parameters)

	history := o.memory.ProviderMessages(true)
	injected := false
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			history[i].Content = prompt
			injected = true
			break
		}
	}
	if !injected {
		history = append(history, models.ChatMessage{Role: models.RoleUser, Content: prompt})
	}
	history = o.counter.FitMessages(history, o.contextLimit)

	response, err := o.completer.Complete(ctx, history, inference.CompletionOptions{})
	if err != nil {
		return o.apology(string(mode), err)
	}

	if mode != models.ModeEventPlanning {
		return Outcome{Text: response}
	}
	text, corrected := o.enforcePolicy(ctx, query, response, policy.EventPlanningCorrection)
	return Outcome{Text: text, Corrected: corrected}
}

func (o *Orchestrator) promptFor(mode models.Mode) string {
	if mode == models.ModeEventPlanning {
		if o.prompts.EventPlanningPrompt != "" {
			return o.prompts.EventPlanningPrompt
		}
		return defaultEventPlanningPrompt
	}
	if o.prompts.SVAFrameworkPrompt != "" {
		return o.prompts.SVAFrameworkPrompt
	}
	return defaultSVAPrompt
}

// eventParameters renders the labelled parameter block and the words that
// bias retrieval toward the chosen values.
func eventParameters(event config.EventPlanning) (block, search string) {
	var b, s strings.Builder

	b.WriteString("Location: ")
	if event.HasLocation() {
		b.WriteString(event.Location + "\n")
		s.WriteString(" " + event.Location)
	} else {
		b.WriteString("Not specified\n")
	}

	b.WriteString("Event type: ")
	if event.HasEventType() {
		b.WriteString(event.EventType + "\n")
		s.WriteString(" " + event.EventType)
	} else {
		b.WriteString("Not specified\n")
	}

	b.WriteString("Estimated attendance: ")
	if event.Attendance > 0 {
		fmt.Fprintf(&b, "%d people\n", event.Attendance)
		fmt.Fprintf(&s, " %d attendees", event.Attendance)
	} else {
		b.WriteString("Not specified\n")
	}

	return b.String(), s.String()
}

func (o *Orchestrator) handleSimulation(ctx context.Context, query string) Outcome {
	participants := o.sim.Participants
	if o.event.Attendance > 0 {
		participants = o.event.Attendance
	}
	severity := o.sim.Severity

	location := o.event.Location
	if !o.event.HasLocation() {
		location = TransalpinaName
	}
	eventType := o.event.EventType
	if !o.event.HasEventType() {
		eventType = defaultEventType
	}

	requested := policy.RequestedIn(query)

	var eventContext string
	if requested {
		eventContext = joinTexts(o.store.Search(ctx, searchEvent, 2))
		if eventContext == "" {
			eventContext = fmt.Sprintf(eventFallbackFormat, participants)
		}
	} else {
		eventContext = fmt.Sprintf(genericEventFormat, eventType, location, participants, severity)
		if isTransalpina(location) {
			if docs := o.store.Search(ctx, searchTransalpinaLayout, 1); len(docs) > 0 {
				eventContext += "\n\n" + docs[0].Text
			}
		}
	}

	locationContext := joinTexts(o.store.Search(ctx, location+locationSearchSuffix, 2))
	if locationContext == "" {
		if isTransalpina(location) {
			locationContext = transalpinaLocation
		} else {
			locationContext = fmt.Sprintf(genericLocationFormat, location)
		}
	}

	scenarioType := o.sim.ScenarioType
	if scenarioType == "" {
		scenarioType = o.engine.Detect(query)
	}

	var instructions string
	if !requested {
		instructions = policy.SimulationGuidance
	}

	result := o.engine.Generate(ctx, simulation.Request{
		Query:           query,
		EventContext:    eventContext,
		LocationContext: locationContext,
		Params: []simulation.Param{
			{Key: simulation.ParamParticipants, Value: participants},
			{Key: simulation.ParamSeverity, Value: severity},
			{Key: simulation.ParamScenarioType, Value: o.sim.ScenarioType},
			{Key: simulation.ParamLocation, Value: location},
			{Key: simulation.ParamEventType, Value: eventType},
			{Key: simulation.ParamEventRequested, Value: requested},
		},
		ScenarioType: scenarioType,
		Instructions: instructions,
	})

	return Outcome{Text: result.Text, ScenarioType: result.ScenarioType, Err: result.Err}
}

// enforcePolicy makes one corrective round trip when response names the
// event unprompted. A response that still names it is redacted.
func (o *Orchestrator) enforcePolicy(ctx context.Context, query, response, correction string) (string, bool) {
	if !policy.Violates(query, response) {
		return response, false
	}

	o.logger.Info("unsolicited event reference, requesting correction", "op", "policy_correction")
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: policy.CorrectionSystem},
		{Role: models.RoleUser, Content: query},
		{Role: models.RoleAssistant, Content: response},
		{Role: models.RoleUser, Content: correction},
	}
	corrected, err := o.completer.Complete(ctx, messages, inference.CompletionOptions{})
	if err != nil {
		o.logger.Warn("policy correction failed, redacting", "op", "policy_correction", "err", err)
		return policy.Redact(response), true
	}
	if policy.MentionedIn(corrected) {
		corrected = policy.Redact(corrected)
	}
	return corrected, true
}

func (o *Orchestrator) apology(op string, err error) Outcome {
	o.logger.Warn("completion failed", "op", op, "err", err)
	return Outcome{
		Text: fmt.Sprintf("Sorry, there was an error generating the response: %v", err),
		Err:  err,
	}
}

func hasSystem(messages []models.ChatMessage) bool {
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			return true
		}
	}
	return false
}

func joinTexts(docs []models.Document) string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return strings.Join(texts, "\n\n")
}
