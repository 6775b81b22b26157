package chatbot

import "strings"

// TransalpinaName is the square's full bilingual name
const TransalpinaName = "Piazza Transalpina/Trg Evrope"

const defaultSystemMessage = "You are an assistant for safe cities and emergency planning."

const defaultConversationalPrompt = `You are an assistant specialized in safe cities, security planning, and emergency management.
You can help with:
1. Providing information about the SVA (Structural Vulnerability Assessment) framework
2. Offering advice on event planning and security in different locations, including Piazza Transalpina
3. Generating simulations of various emergency scenarios

Respond in a helpful and concise manner, directly addressing the user's question.
Do not mention GO!2025 or GO!Gorizia unless specifically asked about it.

User query: {query}`

const defaultSVAPrompt = `You are an expert in the SVA (Structural Vulnerability Assessment) framework for safe cities.
Provide accurate, detailed information based on the context provided.

User query: {query}

Relevant context:
{context}

Respond in a clear, structured manner. If some information is not available in the context,
mention this explicitly.`

const defaultEventPlanningPrompt = `You are a security consultant specialized in organizing events using the SVA framework principles.
Provide practical advice and specific security measures for events.

User query: {query}

Relevant context:
{context}

Parameters:
{parameters}

Your response should be practical, actionable, and focused on security planning.
Specifically incorporate the provided parameters in your response.

DO NOT mention GO!2025 or GO!Gorizia unless specifically asked about it in the query.`

const (
	noContextSVA           = "No specific information available in the documents. Providing general knowledge about the SVA framework."
	noContextEventPlanning = "No specific information available in the documents. Providing general advice for event security planning."
	noContextGeneral       = "No specific information available in the documents. Providing general knowledge response."
)

const transalpinaHeading = "Specific information about Piazza Transalpina:"

const transalpinaFacts = `Piazza Transalpina/Trg Evrope is a square located at the border between Italy (Gorizia) and Slovenia (Nova Gorica).
It has a symbolic importance as it represents European unity. The square has an irregular shape of approximately 5000 square meters,
with three main access points. It can accommodate up to 5000 people and is bordered by buildings on two sides.
Any event here requires coordination between Italian and Slovenian authorities for security, emergency response, and logistics.`

const transalpinaLocation = "Piazza Transalpina/Trg Evrope is located at the border between Italy (Gorizia) and Slovenia (Nova Gorica). " +
	"It has an irregular shape of approximately 5000 square meters. " +
	"It has three main access routes and can accommodate up to 5000 people. " +
	"The square is bordered by buildings on two sides and open on the other two."

const eventFallbackFormat = "The GO!2025 event is a major cultural event taking place in Gorizia and Nova Gorica, " +
	"with Piazza Transalpina/Trg Evrope serving as a focal point for cross-border activities. " +
	"The event attracts approximately %d attendees to the square."

const genericEventFormat = "A %s is taking place in %s with approximately %d attendees. " +
	"The event has been planned with a security level appropriate for a severity level %d/5."

const genericLocationFormat = "%s is the venue for this event. " +
	"Standard security protocols for a public space of this nature apply."

const defaultEventType = "public event"

// Retrieval queries used to pull location and event material
const (
	searchTransalpinaSafety = "piazza transalpina layout safety"
	searchTransalpinaLayout = "piazza transalpina layout"
	searchEvent             = "GO!2025 event gorizia"
	locationSearchSuffix    = " layout security"
)

// render fills {query}, {context} and {parameters}. Unknown braces are left alone.
func render(template, query, context, parameters string) string {
	return strings.NewReplacer(
		"{query}", query,
		"{context}", context,
		"{parameters}", parameters,
	).Replace(template)
}
