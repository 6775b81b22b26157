package inference

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/models"
)

// Rate-limited services
const (
	ServiceCompletion = "completion"
	ServiceEmbedding  = "embedding"
)

// RateLimiter keeps one token bucket per provider service
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewRateLimiter creates a limiter with no services registered
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// RegisterService limits service to requestsPerMinute. A non-positive
// rate leaves the service unlimited.
func (r *RateLimiter) RegisterService(service string, requestsPerMinute, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestsPerMinute <= 0 {
		delete(r.limiters, service)
		return
	}
	if burst <= 0 {
		burst = max(1, requestsPerMinute/6) // ~10s worth
	}

	rps := float64(requestsPerMinute) / 60.0
	r.limiters[service] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Allow reports whether a request may go out immediately
func (r *RateLimiter) Allow(service string) bool {
	limiter := r.getLimiter(service)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

// Wait blocks until a request is allowed
func (r *RateLimiter) Wait(ctx context.Context, service string) error {
	limiter := r.getLimiter(service)
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return faults.Wrap(err, faults.CategoryProvider, "rate_limited", true)
	}
	return nil
}

func (r *RateLimiter) getLimiter(service string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[service]
}

// Limited gates an embedder and a completer behind a RateLimiter
type Limited struct {
	embedder  Embedder
	completer Completer
	limiter   *RateLimiter
}

// NewLimited wraps either side; a nil side is not callable
func NewLimited(embedder Embedder, completer Completer, limiter *RateLimiter) *Limited {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	return &Limited{
		embedder:  embedder,
		completer: completer,
		limiter:   limiter,
	}
}

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if l.embedder == nil {
		return nil, faults.New(faults.CategoryInternal, "no_embedder", "no embedder configured")
	}
	if err := l.limiter.Wait(ctx, ServiceEmbedding); err != nil {
		return nil, err
	}
	return l.embedder.Embed(ctx, text)
}

func (l *Limited) Complete(ctx context.Context, messages []models.ChatMessage, opts CompletionOptions) (string, error) {
	if l.completer == nil {
		return "", faults.New(faults.CategoryInternal, "no_completer", "no completer configured")
	}
	if err := l.limiter.Wait(ctx, ServiceCompletion); err != nil {
		return "", err
	}
	return l.completer.Complete(ctx, messages, opts)
}
