package scenario

import "strings"

// Rule maps a scenario type to the keywords that select it
type Rule struct {
	Type     string
	Keywords []string
}

// Matches reports whether any keyword occurs in the lower-cased query
func (r Rule) Matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Rules is evaluated in order and the first match wins
var Rules = []Rule{
	{Type: "terrorism", Keywords: []string{"terrorism", "attack", "bomb", "explosive", "terrorist", "terror"}},
	{Type: "weather", Keywords: []string{"weather", "storm", "rain", "tempest", "flood", "flooding", "meteorological"}},
	{Type: "fire", Keywords: []string{"fire", "flames", "blaze", "combustion", "burning"}},
	{Type: "medical_emergency", Keywords: []string{"medical", "health", "injury", "illness", "epidemic", "outbreak"}},
	{Type: "violence", Keywords: []string{"knife", "weapon", "violence", "aggression", "stab", "armed"}},
	{Type: "public_disorder", Keywords: []string{"disorder", "riot", "clash", "panic", "crowd", "stampede", "protest"}},
}

var displayNames = map[string]string{
	"terrorism":         "Terrorist Attack",
	"weather":           "Extreme Weather Event",
	"fire":              "Fire Emergency",
	"medical_emergency": "Medical Emergency",
	"violence":          "Armed Attack",
	"public_disorder":   "Public Disorder",
	Generic:             "Generic Emergency Scenario",
}
