package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ErrPoolClosed is returned when submitting to a pool after Shutdown
var ErrPoolClosed = errors.New("embedding pool is shut down")

// EmbedRequest is a single text waiting to be embedded
type EmbedRequest struct {
	Index    int
	Text     string
	Callback func(EmbedResult) // Called when completed
	Context  context.Context
}

// EmbedResult carries the vector for the request at Index
type EmbedResult struct {
	Index   int
	Vector  []float32
	Latency time.Duration
	Err     error
}

// Pool fans embedding requests out to a fixed set of workers
type Pool struct {
	embedder  Embedder
	workers   int
	queue     chan *EmbedRequest
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	semaphore chan struct{} // Limits concurrent requests
	metrics   *PoolMetrics
	mu        sync.RWMutex
	closed    bool
}

// PoolMetrics tracks pool performance
type PoolMetrics struct {
	TotalRequests   int64
	CompletedOK     int64
	CompletedError  int64
	AverageLatency  time.Duration
	TotalLatency    time.Duration
	CurrentInflight int
	mu              sync.RWMutex
}

// PoolConfig holds pool configuration
type PoolConfig struct {
	Workers       int // Number of worker goroutines
	QueueSize     int // Size of request queue
	MaxConcurrent int // Maximum concurrent provider calls
}

// DefaultPoolConfig returns default pool configuration
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:       runtime.NumCPU(),
		QueueSize:     256,
		MaxConcurrent: 4,
	}
}

// NewPool creates a new embedding pool
func NewPool(embedder Embedder, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = config.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		embedder:  embedder,
		workers:   config.Workers,
		queue:     make(chan *EmbedRequest, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		metrics:   &PoolMetrics{},
	}

	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case req, ok := <-p.queue:
			if !ok {
				return
			}
			p.processRequest(req)
		}
	}
}

func (p *Pool) processRequest(req *EmbedRequest) {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-req.Context.Done():
		// Request cancelled while waiting for a slot
		if req.Callback != nil {
			req.Callback(EmbedResult{Index: req.Index, Err: req.Context.Err()})
		}
		return
	}

	p.metrics.mu.Lock()
	p.metrics.CurrentInflight++
	p.metrics.mu.Unlock()

	defer func() {
		p.metrics.mu.Lock()
		p.metrics.CurrentInflight--
		p.metrics.mu.Unlock()
	}()

	startTime := time.Now()
	vector, err := p.embedder.Embed(req.Context, req.Text)
	latency := time.Since(startTime)

	p.updateMetrics(latency, err == nil)

	if req.Callback != nil {
		req.Callback(EmbedResult{
			Index:   req.Index,
			Vector:  vector,
			Latency: latency,
			Err:     err,
		})
	}
}

func (p *Pool) updateMetrics(latency time.Duration, success bool) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	p.metrics.TotalRequests++
	if success {
		p.metrics.CompletedOK++
	} else {
		p.metrics.CompletedError++
	}

	p.metrics.TotalLatency += latency
	if p.metrics.TotalRequests > 0 {
		p.metrics.AverageLatency = p.metrics.TotalLatency / time.Duration(p.metrics.TotalRequests)
	}
}

// Submit queues a request, blocking while the queue is full
func (p *Pool) Submit(req *EmbedRequest) error {
	if req.Context == nil {
		req.Context = p.ctx
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- req:
		return nil
	case <-req.Context.Done():
		return req.Context.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// EmbedAll embeds every text and returns results aligned with the input
// order, whatever order the workers finish in.
func (p *Pool) EmbedAll(ctx context.Context, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		req := &EmbedRequest{
			Index:   i,
			Text:    text,
			Context: ctx,
			Callback: func(result EmbedResult) {
				results[result.Index] = result
				wg.Done()
			},
		}
		if err := p.Submit(req); err != nil {
			results[i] = EmbedResult{Index: i, Err: fmt.Errorf("failed to submit embedding request: %w", err)}
			wg.Done()
		}
	}

	wg.Wait()
	return results
}

// GetMetrics returns current pool metrics
func (p *Pool) GetMetrics() PoolMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return PoolMetrics{
		TotalRequests:   p.metrics.TotalRequests,
		CompletedOK:     p.metrics.CompletedOK,
		CompletedError:  p.metrics.CompletedError,
		AverageLatency:  p.metrics.AverageLatency,
		TotalLatency:    p.metrics.TotalLatency,
		CurrentInflight: p.metrics.CurrentInflight,
	}
}

// Shutdown stops accepting requests and waits for workers to drain
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
