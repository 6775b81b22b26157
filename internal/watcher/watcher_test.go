package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/safecities/safecities/internal/documents"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/logging"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/tokenizer"
)

func TestDirDefaultExtensions(t *testing.T) {
	d, err := NewDir(nil, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer d.Close()

	if len(d.extensions) != 3 {
		t.Errorf("expected 3 default extensions, got %d", len(d.extensions))
	}
}

func TestHandleQueuesAndCoalesces(t *testing.T) {
	d, err := NewDir([]string{".md"}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	dir := t.TempDir()
	if err := d.Add(dir, models.SourceSVAFramework); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	a := filepath.Join(dir, "a.md")
	b := filepath.Join(dir, "b.md")
	d.handle(fsnotify.Event{Name: b, Op: fsnotify.Write})
	d.handle(fsnotify.Event{Name: a, Op: fsnotify.Create})
	d.handle(fsnotify.Event{Name: a, Op: fsnotify.Write})
	d.handle(fsnotify.Event{Name: filepath.Join(dir, "c.json"), Op: fsnotify.Create})
	d.handle(fsnotify.Event{Name: filepath.Join(dir, "d.md"), Op: fsnotify.Chmod})

	events := d.Drain()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Path != a || events[0].Op != Created || events[0].SourceType != models.SourceSVAFramework {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Path != b || events[1].Op != Modified {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if len(d.Drain()) != 0 {
		t.Fatal("drain must clear the queue")
	}
}

func TestWatchAndApply(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDir([]string{".txt"}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.Add(dir, models.SourceGoriziaEvent); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go d.Run(ctx)

	path := filepath.Join(dir, "program.txt")
	if err := os.WriteFile(path, []byte("opening concert in the square"), 0o644); err != nil {
		t.Fatal(err)
	}

	var events []Event
	for len(events) == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("timeout waiting for event")
		case <-time.After(50 * time.Millisecond):
			events = d.Drain()
		}
	}

	store := documents.NewStore(inference.NewHashEmbedder(16), tokenizer.NewCounter(tokenizer.Runes{}),
		documents.WithLogger(logging.Discard()))
	if added := Apply(context.Background(), events, store, logging.Discard()); added != 1 {
		t.Fatalf("expected 1 chunk, got %d", added)
	}
	doc := store.Documents()[0]
	if doc.Metadata.Source != "program.txt" || doc.Metadata.SourceType != models.SourceGoriziaEvent {
		t.Fatalf("unexpected metadata: %+v", doc.Metadata)
	}

	// a second change replaces the earlier chunks
	Apply(context.Background(), []Event{{Path: path, SourceType: models.SourceGoriziaEvent, Op: Modified}}, store, logging.Discard())
	if store.Len() != 1 {
		t.Fatalf("modified file must replace its chunks, got %d", store.Len())
	}

	Apply(context.Background(), []Event{{Path: path, Op: Removed}}, store, logging.Discard())
	if store.Len() != 0 {
		t.Fatalf("removed file must drop its chunks, got %d", store.Len())
	}
}
