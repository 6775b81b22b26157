// Package watcher queues changes to the document directories so they can
// be ingested between queries.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/safecities/safecities/internal/models"
)

// Operation is the kind of change seen on a file
type Operation string

const (
	Created  Operation = "created"
	Modified Operation = "modified"
	Removed  Operation = "removed"
)

// Event is a pending change to one document file
type Event struct {
	Path       string
	SourceType models.SourceType
	Op         Operation
}

// Ingester is the part of the document store the watcher feeds
type Ingester interface {
	LoadFile(ctx context.Context, path string, sourceType models.SourceType) (int, error)
	RemoveSource(source string) int
}

// Dir watches document directories and collects changes until drained
type Dir struct {
	watcher    *fsnotify.Watcher
	extensions []string
	logger     *slog.Logger

	mu      sync.Mutex
	sources map[string]models.SourceType
	pending map[string]Event
}

// NewDir creates a watcher for files with the given extensions
func NewDir(extensions []string, logger *slog.Logger) (*Dir, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".pdf", ".txt", ".md"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{
		watcher:    w,
		extensions: extensions,
		logger:     logger.With("component", "watcher"),
		sources:    make(map[string]models.SourceType),
		pending:    make(map[string]Event),
	}, nil
}

// Add starts watching dir; its files are tagged with sourceType
func (d *Dir) Add(dir string, sourceType models.SourceType) error {
	if err := d.watcher.Add(dir); err != nil {
		return err
	}
	d.mu.Lock()
	d.sources[filepath.Clean(dir)] = sourceType
	d.mu.Unlock()
	return nil
}

// Run collects events until ctx is done or the watcher is closed
func (d *Dir) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handle(event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watch error", "err", err)
		}
	}
}

func (d *Dir) handle(event fsnotify.Event) {
	if !d.isWatchedExtension(event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		op = Created
	case event.Op&fsnotify.Write == fsnotify.Write:
		op = Modified
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = Removed
	default:
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sourceType, ok := d.sources[filepath.Dir(event.Name)]
	if !ok {
		sourceType = models.SourceUnknown
	}
	// a write right after a create is still a new file
	if prev, seen := d.pending[event.Name]; seen && prev.Op == Created && op == Modified {
		op = Created
	}
	d.pending[event.Name] = Event{Path: event.Name, SourceType: sourceType, Op: op}
	d.logger.Debug("change queued", "path", event.Name, "op", op)
}

// Drain returns the queued changes ordered by path and clears the queue
func (d *Dir) Drain() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := make([]Event, 0, len(d.pending))
	for _, e := range d.pending {
		events = append(events, e)
	}
	d.pending = make(map[string]Event)

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// Close stops the watcher
func (d *Dir) Close() error {
	return d.watcher.Close()
}

func (d *Dir) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range d.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Apply replays events against the store: changed files are re-chunked
// and removed files dropped. It returns the number of chunks added.
func Apply(ctx context.Context, events []Event, store Ingester, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	added := 0
	for _, e := range events {
		source := filepath.Base(e.Path)
		removed := store.RemoveSource(source)
		if e.Op == Removed {
			logger.Info("document removed", "component", "watcher", "source", source, "chunks", removed)
			continue
		}

		n, err := store.LoadFile(ctx, e.Path, e.SourceType)
		if err != nil {
			logger.Warn("document not ingested", "component", "watcher", "path", e.Path, "err", err)
			continue
		}
		added += n
		logger.Info("document ingested", "component", "watcher", "source", source, "chunks", n, "replaced", removed)
	}
	return added
}
