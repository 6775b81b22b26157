package tokenizer

import (
	"github.com/safecities/safecities/internal/models"
)

const (
	// DefaultChunkSize and DefaultChunkOverlap are measured in tokens
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// DefaultContextLimit bounds the messages sent with one completion
	DefaultContextLimit = 4000

	messageOverhead = 4
	requestOverhead = 2
	truncatedSuffix = " [truncated]"
	minShrinkLength = 10
)

// Counter measures and cuts text in tokens of one Tokenizer
type Counter struct {
	tok Tokenizer
}

// NewCounter creates a counter; a nil tokenizer falls back to Runes
func NewCounter(tok Tokenizer) *Counter {
	if tok == nil {
		tok = Runes{}
	}
	return &Counter{tok: tok}
}

// Count returns the number of tokens in text
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tok.Encode(text))
}

// Truncate keeps the leading maxTokens tokens of text
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.tok.Encode(text)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.tok.Decode(tokens[:maxTokens])
}

// Split cuts text into windows of size tokens, each starting size-overlap
// tokens after the previous one. The last window may be shorter.
func (c *Counter) Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := size - overlap
	if overlap < 0 || step <= 0 {
		step = size
	}

	tokens := c.tok.Encode(text)
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.tok.Decode(tokens[start:end]))
	}
	return chunks
}

// CountMessages estimates the tokens a provider charges for messages
func (c *Counter) CountMessages(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Content) + messageOverhead
	}
	return total + requestOverhead
}

// FitMessages trims messages to at most maxTokens. System messages are
// kept and shrunk only when they alone overflow. Other messages are walked
// newest first and kept when they fit in what is left; when the newest
// message is a user turn that does not fit, it is shrunk and marked as
// truncated instead of dropped.
func (c *Counter) FitMessages(messages []models.ChatMessage, maxTokens int) []models.ChatMessage {
	if maxTokens <= 0 || c.CountMessages(messages) <= maxTokens {
		return messages
	}

	var system, others []models.ChatMessage
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			others = append(others, m)
		}
	}

	systemTokens := 0
	for _, m := range system {
		systemTokens += c.Count(m.Content) + messageOverhead
	}

	if systemTokens > maxTokens-requestOverhead {
		for i := range system {
			content := []rune(system[i].Content)
			for systemTokens > maxTokens-requestOverhead && len(content) > 0 {
				before := c.Count(string(content))
				content = content[:int(float64(len(content))*0.8)]
				system[i].Content = string(content)
				systemTokens -= before - c.Count(system[i].Content)
			}
		}
	}

	remaining := maxTokens - systemTokens - requestOverhead
	var kept []models.ChatMessage
	for i := len(others) - 1; i >= 0; i-- {
		m := others[i]
		cost := c.Count(m.Content) + messageOverhead
		if cost <= remaining {
			kept = append([]models.ChatMessage{m}, kept...)
			remaining -= cost
			continue
		}
		if m.Role == models.RoleUser && len(kept) == 0 {
			content := []rune(m.Content)
			for cost > remaining && len(content) > minShrinkLength {
				content = content[:int(float64(len(content))*0.8)]
				cost = c.Count(string(content)+truncatedSuffix) + messageOverhead
			}
			if cost <= remaining {
				m.Content = string(content) + truncatedSuffix
				kept = append(kept, m)
				remaining -= cost
			}
		}
		if remaining <= 0 {
			break
		}
	}

	return append(system, kept...)
}
