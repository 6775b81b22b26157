package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/safecities/safecities/internal/faults"
)

const (
	DefaultParticipants = 2000
	DefaultSeverity     = 3

	// Sentinels the UI uses for "no preference"
	AnyLocation = "Any location"
	AnyEvent    = "Any event"
)

// EventPlanning holds the session's event parameters. Zero values mean unset.
type EventPlanning struct {
	Location   string `yaml:"location" json:"location"`
	EventType  string `yaml:"event_type" json:"event_type"`
	Attendance int    `yaml:"attendance" json:"attendance"`
}

// SimulationParams holds the session's simulation parameters. Participants
// is a static default; sessions set attendance through EventPlanning.
type SimulationParams struct {
	ScenarioType string `yaml:"scenario_type" json:"scenario_type"`
	Severity     int    `yaml:"severity" json:"severity"`
	Participants int    `yaml:"participants" json:"participants"`
}

func DefaultSimulationParams() SimulationParams {
	return SimulationParams{
		Severity:     DefaultSeverity,
		Participants: DefaultParticipants,
	}
}

// HasLocation reports whether a concrete location was chosen
func (e EventPlanning) HasLocation() bool {
	return e.Location != "" && e.Location != AnyLocation
}

// HasEventType reports whether a concrete event type was chosen
func (e EventPlanning) HasEventType() bool {
	return e.EventType != "" && e.EventType != AnyEvent
}

// Merge applies caller-supplied values. Unknown keys or values of the
// wrong type are rejected and leave the receiver unchanged.
func (e *EventPlanning) Merge(values map[string]any) error {
	next := *e
	for _, key := range sortedKeys(values) {
		value := values[key]
		switch key {
		case "location":
			next.Location = textValue(value)
		case "event_type":
			next.EventType = textValue(value)
		case "attendance":
			n, ok := toInt(value)
			if !ok || n < 0 {
				return invalidValue(key, value)
			}
			next.Attendance = n
		default:
			return faults.New(faults.CategoryInvalidInput, "unknown_parameter", fmt.Sprintf("unknown event planning parameter %q", key))
		}
	}
	*e = next
	return nil
}

// Merge applies caller-supplied values. Participants is not settable here.
func (s *SimulationParams) Merge(values map[string]any) error {
	next := *s
	for _, key := range sortedKeys(values) {
		value := values[key]
		switch key {
		case "scenario_type":
			if value == nil {
				next.ScenarioType = ""
				continue
			}
			next.ScenarioType = strings.TrimSpace(fmt.Sprint(value))
		case "severity":
			n, ok := toInt(value)
			if !ok || n < 1 || n > 5 {
				return invalidValue(key, value)
			}
			next.Severity = n
		default:
			return faults.New(faults.CategoryInvalidInput, "unknown_parameter", fmt.Sprintf("unknown simulation parameter %q", key))
		}
	}
	*s = next
	return nil
}

// textValue renders a scalar; nil clears
func textValue(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func invalidValue(key string, value any) error {
	return faults.New(faults.CategoryInvalidInput, "invalid_parameter", fmt.Sprintf("invalid value %v for %s", value, key))
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toInt accepts the shapes an int arrives in from JSON, YAML and CLI input
func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}
