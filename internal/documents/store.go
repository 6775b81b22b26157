// Package documents holds the chunked corpus and answers similarity
// searches against it.
package documents

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/tokenizer"
)

const (
	DefaultTopK           = 5
	DefaultContextTokens  = 3000
	DefaultMaxEmbedTokens = 8191
)

// Store keeps documents in insertion order. A document carries its own
// embedding, so there is no parallel vector list to keep aligned.
type Store struct {
	mu             sync.RWMutex
	docs           []models.Document
	embedder       inference.Embedder
	counter        *tokenizer.Counter
	pool           *inference.Pool
	loaders        map[string]Loader
	chunkSize      int
	chunkOverlap   int
	maxEmbedTokens int
	logger         *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPool embeds directory loads through a worker pool
func WithPool(pool *inference.Pool) Option {
	return func(s *Store) { s.pool = pool }
}

// WithChunking overrides the token window used when splitting files
func WithChunking(size, overlap int) Option {
	return func(s *Store) {
		s.chunkSize = size
		s.chunkOverlap = overlap
	}
}

// WithMaxEmbedTokens caps the text sent to the embedder
func WithMaxEmbedTokens(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEmbedTokens = n
		}
	}
}

// WithLoader registers a loader for a file extension such as ".docx"
func WithLoader(ext string, loader Loader) Option {
	return func(s *Store) { s.loaders[strings.ToLower(ext)] = loader }
}

// NewStore creates an empty document store
func NewStore(embedder inference.Embedder, counter *tokenizer.Counter, opts ...Option) *Store {
	if counter == nil {
		counter = tokenizer.NewCounter(nil)
	}
	s := &Store{
		embedder:       embedder,
		counter:        counter,
		loaders:        DefaultLoaders(),
		chunkSize:      tokenizer.DefaultChunkSize,
		chunkOverlap:   tokenizer.DefaultChunkOverlap,
		maxEmbedTokens: DefaultMaxEmbedTokens,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "documents")
	return s
}

// Len returns the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Documents returns a copy of the stored documents in insertion order
func (s *Store) Documents() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Document(nil), s.docs...)
}

// AddDocument embeds doc and appends it. An embedding failure is logged
// and the document is dropped; the return value reports whether it was added.
func (s *Store) AddDocument(ctx context.Context, doc models.Document) bool {
	embedding, err := s.embed(ctx, doc.Text)
	if err != nil {
		s.logger.Warn("embedding failed, document skipped",
			"op", "add_document", "source", doc.SourceLabel(), "chunk", doc.Metadata.ChunkID, "err", err)
		return false
	}
	doc.Embedding = embedding
	s.append(doc)
	return true
}

func (s *Store) append(docs ...models.Document) {
	s.mu.Lock()
	s.docs = append(s.docs, docs...)
	s.mu.Unlock()
}

// embed truncates text to the embedder's input ceiling before calling it
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, s.counter.Truncate(text, s.maxEmbedTokens))
}

// Search returns the topK documents most similar to query, best first.
// Equal scores keep insertion order. Documents without an embedding are
// skipped. A failed query embedding yields no results.
func (s *Store) Search(ctx context.Context, query string, topK int) []models.Document {
	if topK <= 0 {
		topK = DefaultTopK
	}

	s.mu.RLock()
	docs := s.docs
	s.mu.RUnlock()

	if len(docs) == 0 {
		s.logger.Debug("search on empty store")
		return nil
	}

	queryEmbedding, err := s.embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed", "op", "search", "err", err)
		return nil
	}

	type scored struct {
		doc   models.Document
		score float64
	}

	results := make([]scored, 0, len(docs))
	for _, doc := range docs {
		score, ok := CosineSimilarity(queryEmbedding, doc.Embedding)
		if !ok {
			continue
		}
		results = append(results, scored{doc: doc, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]models.Document, len(results))
	for i, r := range results {
		out[i] = r.doc
	}
	return out
}

// ContextForQuery concatenates the best matches for query, each under a
// source label, skipping any that would push the total past maxTokens.
func (s *Store) ContextForQuery(ctx context.Context, query string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}

	var b strings.Builder
	total := 0
	for _, doc := range s.Search(ctx, query, DefaultTopK) {
		label := "\nSource: " + doc.SourceLabel() + "\n"
		cost := s.counter.Count(doc.Text) + s.counter.Count(label)
		if total+cost > maxTokens {
			continue
		}
		b.WriteString(label)
		b.WriteString(doc.Text)
		b.WriteString("\n\n")
		total += cost
	}
	return strings.TrimSpace(b.String())
}

// Reset drops every document
func (s *Store) Reset() {
	s.mu.Lock()
	s.docs = nil
	s.mu.Unlock()
}

// RemoveSource drops every chunk read from source and returns how many went
func (s *Store) RemoveSource(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.docs[:0]
	for _, doc := range s.docs {
		if doc.Metadata.Source != source {
			kept = append(kept, doc)
		}
	}
	removed := len(s.docs) - len(kept)
	s.docs = kept
	return removed
}
