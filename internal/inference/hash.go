package inference

import (
	"context"
	"math"
	"strings"
)

// HashEmbedder is an offline embedder built from word hashing. Vectors are
// deterministic and unit length, so cosine ranking still favours texts
// that share words with the query.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash-based embedder
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes each word into the vector with weight decaying by position
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	embedding := make([]float32, e.dimensions)

	for i, word := range words {
		idx := wordHash(word) % uint32(e.dimensions)
		position := float32(i) / float32(len(words))
		embedding[idx] += 1.0 / (1.0 + position)
	}

	var magnitude float64
	for _, val := range embedding {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude > 0 {
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / magnitude)
		}
	}

	return embedding, nil
}

// Dimensions returns the embedding vector dimensionality
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

func wordHash(s string) uint32 {
	hash := uint32(0)
	for _, c := range s {
		hash = hash*31 + uint32(c)
	}
	return hash
}
