package inference

import (
	"context"

	"github.com/safecities/safecities/internal/models"
)

// Embedder maps text to a dense vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer produces a chat completion for a message list
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage, opts CompletionOptions) (string, error)
}

// CompletionOptions tunes a single completion. A nil Temperature uses the
// client default; MaxTokens of zero leaves the limit to the provider.
type CompletionOptions struct {
	Temperature *float64
	MaxTokens   int
}

// Temperature is a helper for filling CompletionOptions.Temperature
func Temperature(t float64) *float64 {
	return &t
}

// EmbedderFunc adapts a function to the Embedder interface
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// CompleterFunc adapts a function to the Completer interface
type CompleterFunc func(ctx context.Context, messages []models.ChatMessage, opts CompletionOptions) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []models.ChatMessage, opts CompletionOptions) (string, error) {
	return f(ctx, messages, opts)
}
