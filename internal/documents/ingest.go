package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/models"
)

// extensionOrder fixes the order directory loads visit file types in
var extensionOrder = []string{".pdf", ".txt", ".md"}

// Supports reports whether path has a registered loader
func (s *Store) Supports(path string) bool {
	_, ok := s.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions, in load order
func (s *Store) Extensions() []string {
	seen := make(map[string]bool, len(s.loaders))
	var exts []string
	for _, ext := range extensionOrder {
		if _, ok := s.loaders[ext]; ok {
			exts = append(exts, ext)
			seen[ext] = true
		}
	}
	var extra []string
	for ext := range s.loaders {
		if !seen[ext] {
			extra = append(extra, ext)
		}
	}
	sort.Strings(extra)
	return append(exts, extra...)
}

// LoadFromDirectory ingests every supported file directly inside dir and
// returns how many chunks were added. A missing directory is reported as
// a missing_resource error with nothing loaded; unreadable files are
// logged and skipped.
func (s *Store) LoadFromDirectory(ctx context.Context, dir string, sourceType models.SourceType) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		s.logger.Warn("document directory not found", "op", "load_directory", "dir", dir)
		return 0, faults.New(faults.CategoryMissingResource, "directory_not_found", fmt.Sprintf("document directory %s not found", dir))
	}

	added := 0
	for _, ext := range s.Extensions() {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return added, faults.Wrap(err, faults.CategoryInternal, "glob", false)
		}
		sort.Strings(matches)
		for _, path := range matches {
			n, err := s.LoadFile(ctx, path, sourceType)
			if err != nil {
				s.logger.Warn("file skipped", "op", "load_directory", "path", path, "err", err)
				continue
			}
			added += n
		}
	}

	s.logger.Info("documents loaded", "dir", dir, "source_type", sourceType, "added", added, "total", s.Len())
	return added, nil
}

// LoadFile extracts, chunks and embeds one file
func (s *Store) LoadFile(ctx context.Context, path string, sourceType models.SourceType) (int, error) {
	loader, ok := s.loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return 0, faults.New(faults.CategoryInvalidInput, "unsupported_file", fmt.Sprintf("no loader for %s", path))
	}

	text, err := loader.Extract(ctx, path)
	if err != nil {
		return 0, faults.Wrap(fmt.Errorf("extract %s: %w", path, err), faults.CategoryMissingResource, "extract_failed", false)
	}

	docs := s.Chunk(text, filepath.Base(path), sourceType)
	if s.pool != nil {
		return s.addBatch(ctx, docs), nil
	}

	added := 0
	for _, doc := range docs {
		if s.AddDocument(ctx, doc) {
			added++
		}
	}
	return added, nil
}

// Chunk splits text into overlapping token windows tagged with their index
func (s *Store) Chunk(text, source string, sourceType models.SourceType) []models.Document {
	if sourceType == "" {
		sourceType = models.SourceUnknown
	}
	chunks := s.counter.Split(text, s.chunkSize, s.chunkOverlap)
	docs := make([]models.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = models.Document{
			Text: chunk,
			Metadata: models.Metadata{
				Source:     source,
				SourceType: sourceType,
				ChunkID:    i,
			},
		}
	}
	return docs
}

// addBatch embeds docs through the pool and appends the successes in
// their original order.
func (s *Store) addBatch(ctx context.Context, docs []models.Document) int {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = s.counter.Truncate(doc.Text, s.maxEmbedTokens)
	}

	var embedded []models.Document
	for _, result := range s.pool.EmbedAll(ctx, texts) {
		doc := docs[result.Index]
		if result.Err != nil {
			s.logger.Warn("embedding failed, document skipped",
				"op", "add_document", "source", doc.SourceLabel(), "chunk", doc.Metadata.ChunkID, "err", result.Err)
			continue
		}
		doc.Embedding = result.Vector
		embedded = append(embedded, doc)
	}

	s.append(embedded...)
	return len(embedded)
}
