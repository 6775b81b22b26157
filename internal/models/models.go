package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	Role      Role    `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"` // Unix seconds
}

// NewMessage stamps a message with the given time
func NewMessage(role Role, content string, at time.Time) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: float64(at.UnixNano()) / 1e9,
	}
}

// Time returns the message timestamp as a time.Time
func (m Message) Time() time.Time {
	sec := int64(m.Timestamp)
	nsec := int64((m.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// ChatMessage is the provider-facing shape of a message
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode is the response strategy selected for a query
type Mode string

const (
	ModeAuto           Mode = "auto"
	ModeSVAFramework   Mode = "sva_framework"
	ModeEventPlanning  Mode = "event_planning"
	ModeSimulation     Mode = "simulation"
	ModeConversational Mode = "conversational"
)

// Modes lists every mode a caller may request
var Modes = []Mode{ModeAuto, ModeSVAFramework, ModeEventPlanning, ModeSimulation, ModeConversational}

// ParseMode converts user input to a Mode
func ParseMode(s string) (Mode, error) {
	normalized := Mode(strings.ToLower(strings.TrimSpace(s)))
	if normalized == "" {
		return ModeAuto, nil
	}
	for _, m := range Modes {
		if m == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// SourceType tags the corpus a document chunk came from
type SourceType string

const (
	SourceSVAFramework SourceType = "sva_framework"
	SourceGoriziaEvent SourceType = "gorizia_event"
	SourceUnknown      SourceType = "unknown"
)

// Metadata describes where a document chunk came from
type Metadata struct {
	Source     string     `json:"source"`
	SourceType SourceType `json:"source_type"`
	ChunkID    int        `json:"chunk_id"`
}

// Document is a chunk of corpus text together with its embedding.
// Embedding is nil until the chunk has been embedded.
type Document struct {
	Text      string    `json:"text"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding"`
}

// SourceLabel returns the metadata source or a placeholder
func (d Document) SourceLabel() string {
	if d.Metadata.Source == "" {
		return "Unknown"
	}
	return d.Metadata.Source
}
