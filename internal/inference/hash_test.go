package inference

import (
	"context"
	"math"
	"testing"

	"github.com/safecities/safecities/internal/models"
)

func TestHashEmbedderDeterministicUnitVectors(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Piazza Transalpina evacuation routes")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, _ := e.Embed(ctx, "piazza transalpina evacuation routes")
	if len(a) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(a))
	}

	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding must be case-insensitive and deterministic")
		}
		norm += float64(a[i]) * float64(a[i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}

	empty, _ := e.Embed(ctx, "")
	for _, v := range empty {
		if v != 0 {
			t.Fatal("empty text must embed to the zero vector")
		}
	}
}

func TestLimitedPassesThrough(t *testing.T) {
	limiter := NewRateLimiter()
	limiter.RegisterService(ServiceCompletion, 600, 1)

	calls := 0
	completer := CompleterFunc(func(ctx context.Context, messages []models.ChatMessage, opts CompletionOptions) (string, error) {
		calls++
		return "ok", nil
	})

	limited := NewLimited(NewHashEmbedder(8), completer, limiter)
	for i := 0; i < 2; i++ {
		if _, err := limited.Complete(context.Background(), nil, CompletionOptions{}); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if _, err := limited.Embed(context.Background(), "unlimited"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
}

func TestLimitedHonoursCancellation(t *testing.T) {
	limiter := NewRateLimiter()
	limiter.RegisterService(ServiceEmbedding, 1, 1)
	if !limiter.Allow(ServiceEmbedding) {
		t.Fatal("first request should be allowed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limited := NewLimited(NewHashEmbedder(8), nil, limiter)
	if _, err := limited.Embed(ctx, "x"); err == nil {
		t.Fatal("expected cancelled wait to fail")
	}
	if _, err := limited.Complete(context.Background(), nil, CompletionOptions{}); err == nil {
		t.Fatal("expected missing completer to fail")
	}
}
