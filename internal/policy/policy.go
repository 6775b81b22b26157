// Package policy gates references to the GO!2025 cultural event. The event
// may only appear in answers when the user asked about it.
package policy

import "strings"

// Formal names are matched case-sensitively, the casual alias is not
var (
	formalNames  = []string{"GO!2025", "GO! 2025"}
	casualAlias  = "gogorizia"
	searchSuffix = " GO!2025"
)

const (
	// Instruction is appended to simulation guidance
	Instruction = "Do not refer to GO!2025 or GO!Gorizia unless specifically mentioned in the query."

	// ContextNotice is appended to retrieved context
	ContextNotice = "IMPORTANT: Do not mention GO!2025 or GO!Gorizia in your response unless specifically asked about it."

	// SimulationGuidance steers the simulation away from the event
	SimulationGuidance = "Do not mention GO!2025 or GO!Gorizia unless specifically asked about it. " +
		"Focus on the generic event described with the parameters provided."

	// CorrectionSystem is the system turn of a corrective exchange
	CorrectionSystem = "You are an assistant for safe cities and emergency planning. Do not mention GO!2025 or GO!Gorizia unless specifically asked about it."

	// ConversationalCorrection asks for a general rewrite of a chat answer
	ConversationalCorrection = "Your response contains references to GO!2025 or GO!Gorizia, which wasn't mentioned in my query. Please provide a general response without mentioning GO!2025."

	// EventPlanningCorrection asks for a general rewrite of planning advice
	EventPlanningCorrection = "Your response contains references to GO!2025 or GO!Gorizia, which wasn't mentioned in my query. Please revise your response to provide general event planning advice without mentioning GO!2025 specifically."
)

// RequestedIn reports whether the user explicitly asked about the event
func RequestedIn(query string) bool {
	for _, name := range formalNames {
		if strings.Contains(query, name) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(query), casualAlias)
}

// MentionedIn reports whether a response names the event
func MentionedIn(response string) bool {
	for _, name := range formalNames {
		if strings.Contains(response, name) {
			return true
		}
	}
	return false
}

// Violates reports an unsolicited mention of the event
func Violates(query, response string) bool {
	return !RequestedIn(query) && MentionedIn(response)
}

// SearchQuery biases a retrieval query toward the event
func SearchQuery(query string) string {
	return query + searchSuffix
}

// Redact replaces every formal name with a neutral phrase
func Redact(response string) string {
	for _, name := range formalNames {
		response = strings.ReplaceAll(response, name, "the event")
	}
	return response
}
