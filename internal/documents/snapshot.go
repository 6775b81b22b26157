package documents

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/models"
)

// SaveToFile writes every document, embedding included, as a JSON array
func (s *Store) SaveToFile(path string) error {
	docs := s.Documents()
	if docs == nil {
		docs = []models.Document{}
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return faults.Wrap(fmt.Errorf("marshal snapshot: %w", err), faults.CategoryInternal, "snapshot_encode", false)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return faults.Wrap(fmt.Errorf("create snapshot dir: %w", err), faults.CategoryInternal, "snapshot_write", false)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return faults.Wrap(fmt.Errorf("write snapshot: %w", err), faults.CategoryInternal, "snapshot_write", false)
	}

	s.logger.Info("documents saved", "path", path, "count", len(docs))
	return nil
}

// LoadFromFile replaces the store contents with a snapshot. On any error
// the current contents are kept.
func (s *Store) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("snapshot not found", "op", "load_snapshot", "path", path)
			return faults.Wrap(err, faults.CategoryMissingResource, "snapshot_not_found", false)
		}
		return faults.Wrap(fmt.Errorf("read snapshot: %w", err), faults.CategoryInternal, "snapshot_read", false)
	}

	var docs []models.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		s.logger.Warn("snapshot is malformed", "op", "load_snapshot", "path", path, "err", err)
		return faults.Wrap(fmt.Errorf("decode snapshot: %w", err), faults.CategoryMalformedState, "snapshot_decode", false)
	}

	missing := 0
	for i := range docs {
		if docs[i].Metadata.SourceType == "" {
			docs[i].Metadata.SourceType = models.SourceUnknown
		}
		if len(docs[i].Embedding) == 0 {
			docs[i].Embedding = nil
			missing++
		}
	}

	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()

	s.logger.Info("documents loaded from snapshot", "path", path, "count", len(docs), "without_embedding", missing)
	return nil
}
