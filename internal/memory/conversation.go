package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/models"
)

// DefaultMaxMessages caps the history when no limit is configured
const DefaultMaxMessages = 50

// DefaultSummaryLength bounds the excerpts quoted by Summary
const DefaultSummaryLength = 200

// Conversation holds the ordered history of one chat session. At most one
// system message exists and it always sits first.
type Conversation struct {
	mu          sync.RWMutex
	messages    []models.Message
	maxMessages int
	now         func() time.Time
}

// NewConversation creates an empty history capped at maxMessages
func NewConversation(maxMessages int) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Conversation{
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// MaxMessages returns the configured cap
func (c *Conversation) MaxMessages() int {
	return c.maxMessages
}

// AddMessage appends a message and evicts the oldest non-system messages
// once the cap is exceeded.
func (c *Conversation) AddMessage(role models.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, models.NewMessage(role, content, c.now()))
	c.enforceCap()
}

func (c *Conversation) enforceCap() {
	if len(c.messages) <= c.maxMessages {
		return
	}

	var system, others []models.Message
	for _, m := range c.messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			others = append(others, m)
		}
	}

	keep := c.maxMessages - len(system)
	if keep < 0 {
		keep = 0
	}
	if len(others) > keep {
		others = others[len(others)-keep:]
	}
	c.messages = append(system, others...)
}

// SetSystemMessage replaces any system message with content, placed first
func (c *Conversation) SetSystemMessage(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rest := make([]models.Message, 0, len(c.messages)+1)
	rest = append(rest, models.NewMessage(models.RoleSystem, content, c.now()))
	for _, m := range c.messages {
		if m.Role != models.RoleSystem {
			rest = append(rest, m)
		}
	}
	c.messages = rest
	c.enforceCap()
}

// SystemMessage returns the pinned system message, if any
func (c *Conversation) SystemMessage() (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.messages {
		if m.Role == models.RoleSystem {
			return m, true
		}
	}
	return models.Message{}, false
}

// Messages returns a copy of the history
func (c *Conversation) Messages(includeSystem bool) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Message, 0, len(c.messages))
	for _, m := range c.messages {
		if includeSystem || m.Role != models.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// LastN returns up to n of the most recent messages
func (c *Conversation) LastN(n int, includeSystem bool) []models.Message {
	msgs := c.Messages(includeSystem)
	if n < 0 {
		n = 0
	}
	if n < len(msgs) {
		return msgs[len(msgs)-n:]
	}
	return msgs
}

// ProviderMessages returns the history in the shape sent to a completion provider
func (c *Conversation) ProviderMessages(includeSystem bool) []models.ChatMessage {
	msgs := c.Messages(includeSystem)
	out := make([]models.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = models.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Len returns the number of stored messages, system included
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear drops the non-system messages, and the system message too unless keepSystem
func (c *Conversation) Clear(keepSystem bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !keepSystem {
		c.messages = nil
		return
	}
	var system []models.Message
	for _, m := range c.messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		}
	}
	c.messages = system
}

type snapshot struct {
	Messages []snapshotMessage `json:"messages"`
}

// snapshotMessage keeps timestamp optional on load
type snapshotMessage struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp *float64    `json:"timestamp,omitempty"`
}

// Save writes the history as {"messages": [...]}
func (c *Conversation) Save(path string) error {
	msgs := c.Messages(true)
	snap := snapshot{Messages: make([]snapshotMessage, len(msgs))}
	for i, m := range msgs {
		ts := m.Timestamp
		snap.Messages[i] = snapshotMessage{Role: m.Role, Content: m.Content, Timestamp: &ts}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return faults.Wrap(fmt.Errorf("marshal conversation: %w", err), faults.CategoryInternal, "conversation_encode", false)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return faults.Wrap(fmt.Errorf("create conversation dir: %w", err), faults.CategoryInternal, "conversation_write", false)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return faults.Wrap(fmt.Errorf("write conversation: %w", err), faults.CategoryInternal, "conversation_write", false)
	}
	return nil
}

// Load replaces the history with a saved conversation. The current history
// is kept when the file is missing or malformed. If the file holds several
// system messages only the last one survives, moved to the front.
func (c *Conversation) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return faults.Wrap(err, faults.CategoryMissingResource, "conversation_not_found", false)
		}
		return faults.Wrap(fmt.Errorf("read conversation: %w", err), faults.CategoryInternal, "conversation_read", false)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return faults.Wrap(fmt.Errorf("decode conversation: %w", err), faults.CategoryMalformedState, "conversation_decode", false)
	}

	now := c.now()
	var system *models.Message
	others := make([]models.Message, 0, len(snap.Messages))
	for i, sm := range snap.Messages {
		switch sm.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
		default:
			return faults.New(faults.CategoryMalformedState, "conversation_decode",
				fmt.Sprintf("message %d has unknown role %q", i, sm.Role))
		}
		m := models.NewMessage(sm.Role, sm.Content, now)
		if sm.Timestamp != nil {
			m.Timestamp = *sm.Timestamp
		}
		if m.Role == models.RoleSystem {
			system = &m
			continue
		}
		others = append(others, m)
	}

	loaded := others
	if system != nil {
		loaded = append([]models.Message{*system}, others...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = loaded
	c.enforceCap()
	return nil
}

// Summary describes the history in a few lines, quoting the last user and
// assistant turns cut to maxLen characters.
func (c *Conversation) Summary(maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSummaryLength
	}

	msgs := c.Messages(true)
	if len(msgs) == 0 {
		return "No conversation history."
	}

	var users, assistants int
	var lastUser, lastAssistant string
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			users++
			lastUser = m.Content
		case models.RoleAssistant:
			assistants++
			lastAssistant = m.Content
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation with %d user messages and %d assistant responses.\n", users, assistants)
	fmt.Fprintf(&b, "Last user: \"%s\"\n", excerpt(lastUser, maxLen))
	fmt.Fprintf(&b, "Last assistant: \"%s\"", excerpt(lastAssistant, maxLen))
	return b.String()
}

func excerpt(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
