package chatbot

import (
	"strings"

	"github.com/safecities/safecities/internal/models"
)

var (
	availabilityPhrases = []string{
		"what can i simulate", "what scenarios", "what simulations",
		"what type of simulations", "what kind of scenarios",
	}

	// listingPhrases also catches statements that name the listing directly
	listingPhrases = append(append([]string{}, availabilityPhrases...), "available simulations")

	simulationPhrases = []string{
		"simulate a", "simulate an", "create a simulation", "run a simulation",
		"simulate what happens", "create a scenario",
	}

	emergencyKeywords = []string{
		"emergency", "attack", "disaster", "incident", "security event",
	}

	whatHappensPhrases = []string{"what happens", "what would happen"}

	eventPlanningPhrases = []string{
		"organize an event", "plan an event", "event security", "event safety",
		"organize a concert", "plan a festival", "event planning", "security measures for event",
	}

	transalpinaKeywords = []string{
		"piazza transalpina", "transalpina square", "gorizia", "nova gorica", "cross-border",
	}

	svaKeywords = []string{
		"sva framework", "structural vulnerability", "vulnerability assessment",
		"security assessment", "sva methodology", "threat assessment",
	}
)

// ModeRule maps a predicate on the lower-cased query to a mode
type ModeRule struct {
	Name  string
	Mode  models.Mode
	Match func(lower string) bool
}

// ModeRules is evaluated in order; the first match wins and anything
// unmatched is conversational.
var ModeRules = []ModeRule{
	{
		Name:  "availability_question",
		Mode:  models.ModeConversational,
		Match: func(q string) bool { return containsAny(q, availabilityPhrases) },
	},
	{
		Name:  "simulation_request",
		Mode:  models.ModeSimulation,
		Match: func(q string) bool { return containsAny(q, simulationPhrases) },
	},
	{
		Name: "event_planning_at_transalpina",
		Mode: models.ModeEventPlanning,
		Match: func(q string) bool {
			return containsAny(q, eventPlanningPhrases) && containsAny(q, transalpinaKeywords)
		},
	},
	{
		Name:  "event_planning",
		Mode:  models.ModeEventPlanning,
		Match: func(q string) bool { return containsAny(q, eventPlanningPhrases) },
	},
	{
		Name:  "transalpina",
		Mode:  models.ModeEventPlanning,
		Match: func(q string) bool { return containsAny(q, transalpinaKeywords) },
	},
	{
		Name:  "sva_framework",
		Mode:  models.ModeSVAFramework,
		Match: func(q string) bool { return containsAny(q, svaKeywords) },
	},
	{
		Name: "emergency_what_if",
		Mode: models.ModeSimulation,
		Match: func(q string) bool {
			return containsAny(q, emergencyKeywords) && containsAny(q, whatHappensPhrases)
		},
	},
}

// DetectQueryMode resolves auto mode for a query
func DetectQueryMode(query string) models.Mode {
	mode, _ := detectQueryMode(query)
	return mode
}

func detectQueryMode(query string) (models.Mode, string) {
	lower := strings.ToLower(query)
	for _, rule := range ModeRules {
		if rule.Match(lower) {
			return rule.Mode, rule.Name
		}
	}
	return models.ModeConversational, "default"
}

// isAvailabilityQuestion is the check used to keep listing questions out of simulation
func isAvailabilityQuestion(query string) bool {
	return containsAny(strings.ToLower(query), availabilityPhrases)
}

func isListingRequest(query string) bool {
	return containsAny(strings.ToLower(query), listingPhrases)
}

func isTransalpina(location string) bool {
	return location == TransalpinaName || strings.Contains(strings.ToLower(location), "transalpina")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
