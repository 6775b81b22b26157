package cache

import (
	"context"
	"log/slog"

	"github.com/safecities/safecities/internal/inference"
)

// Embedder serves vectors from a Store and only calls through on a miss.
// Cache failures are logged and never fail the embedding.
type Embedder struct {
	next   inference.Embedder
	store  Store
	model  string
	logger *slog.Logger
}

// NewEmbedder wraps next with store; model namespaces the keys
func NewEmbedder(next inference.Embedder, store Store, model string, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		next:   next,
		store:  store,
		model:  model,
		logger: logger,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(e.model, text)

	vector, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
	} else if ok {
		return vector, nil
	}

	vector, err = e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.store.Set(ctx, key, vector); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
	return vector, nil
}
