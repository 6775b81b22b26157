package documents

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/logging"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/tokenizer"
)

var vocabulary = []string{"fire", "flood", "crowd", "square"}

// keywordEmbedder counts vocabulary words, giving predictable cosine scores
func keywordEmbedder() inference.Embedder {
	return inference.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		vector := make([]float32, len(vocabulary))
		for _, word := range strings.Fields(strings.ToLower(text)) {
			for i, v := range vocabulary {
				if word == v {
					vector[i]++
				}
			}
		}
		return vector, nil
	})
}

func failingEmbedder() inference.Embedder {
	return inference.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, faults.Wrap(errors.New("provider down"), faults.CategoryProvider, "request_failed", true)
	})
}

func newTestStore(embedder inference.Embedder, opts ...Option) *Store {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewStore(embedder, tokenizer.NewCounter(tokenizer.Runes{}), opts...)
}

func doc(text, source string) models.Document {
	return models.Document{Text: text, Metadata: models.Metadata{Source: source, SourceType: models.SourceSVAFramework}}
}

func TestSearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(keywordEmbedder())

	for _, d := range []models.Document{
		doc("crowd square", "d0"),
		doc("fire flood", "d1"),
		doc("fire fire", "d2"),
		doc("flood", "d3"),
	} {
		if !s.AddDocument(ctx, d) {
			t.Fatalf("AddDocument(%s) failed", d.Metadata.Source)
		}
	}

	got := s.Search(ctx, "fire", 2)
	if len(got) != 2 || got[0].Metadata.Source != "d2" || got[1].Metadata.Source != "d1" {
		t.Fatalf("unexpected top 2: %v", sources(got))
	}

	all := s.Search(ctx, "fire", 10)
	want := []string{"d2", "d1", "d0", "d3"} // zero scores keep insertion order
	if strings.Join(sources(all), ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, sources(all))
	}
	if all[0].Embedding == nil {
		t.Fatal("stored documents must carry their embedding")
	}
}

func sources(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Metadata.Source
	}
	return out
}

func TestSearchEmptyAndFailures(t *testing.T) {
	ctx := context.Background()

	if got := newTestStore(keywordEmbedder()).Search(ctx, "fire", 5); len(got) != 0 {
		t.Fatalf("empty store must return nothing, got %d", len(got))
	}

	s := newTestStore(failingEmbedder())
	if s.AddDocument(ctx, doc("fire", "x")) {
		t.Fatal("AddDocument must report failure when embedding fails")
	}
	if s.Len() != 0 {
		t.Fatal("failed document must not be stored")
	}

	// query embedding fails against a populated store
	s.docs = []models.Document{{Text: "fire", Embedding: []float32{1, 0, 0, 0}}}
	if got := s.Search(ctx, "fire", 5); len(got) != 0 {
		t.Fatalf("failed query embedding must return nothing, got %d", len(got))
	}
}

func TestSearchSkipsMissingEmbeddings(t *testing.T) {
	s := newTestStore(keywordEmbedder())
	s.docs = []models.Document{
		{Text: "fire", Metadata: models.Metadata{Source: "no-vector"}},
		{Text: "fire", Metadata: models.Metadata{Source: "vector"}, Embedding: []float32{1, 0, 0, 0}},
	}
	got := s.Search(context.Background(), "fire", 5)
	if len(got) != 1 || got[0].Metadata.Source != "vector" {
		t.Fatalf("expected only embedded document, got %v", sources(got))
	}
}

func TestEmbedInputIsTruncated(t *testing.T) {
	var seen string
	embedder := inference.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		seen = text
		return []float32{1}, nil
	})
	s := newTestStore(embedder, WithMaxEmbedTokens(5))
	s.AddDocument(context.Background(), doc("abcdefghij", "x"))
	if seen != "abcde" {
		t.Fatalf("expected leading 5 tokens, got %q", seen)
	}
	if got := s.Documents()[0].Text; got != "abcdefghij" {
		t.Fatalf("stored text must stay whole, got %q", got)
	}
}

func TestContextForQuerySkipsOversized(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(keywordEmbedder())
	s.AddDocument(ctx, doc(strings.TrimSpace(strings.Repeat("fire ", 20)), "big"))
	s.AddDocument(ctx, doc("fire flood", "small"))

	got := s.ContextForQuery(ctx, "fire", 40)
	if got != "Source: small\nfire flood" {
		t.Fatalf("unexpected context: %q", got)
	}

	full := s.ContextForQuery(ctx, "fire", 0)
	if !strings.HasPrefix(full, "Source: big\n") || !strings.Contains(full, "\nSource: small\nfire flood") {
		t.Fatalf("unexpected default-budget context: %q", full)
	}

	if got := s.ContextForQuery(ctx, "fire", 5); got != "" {
		t.Fatalf("expected empty context when nothing fits, got %q", got)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	for _, withPool := range []bool{false, true} {
		name := "sequential"
		if withPool {
			name = "pooled"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "b.md", "flood plan")
			writeFile(t, dir, "a.txt", strings.Repeat("x", 2500))
			writeFile(t, dir, "notes.csv", "ignored")

			var opts []Option
			if withPool {
				pool := inference.NewPool(inference.NewHashEmbedder(16), &inference.PoolConfig{Workers: 3, QueueSize: 2})
				defer pool.Shutdown(5 * time.Second)
				opts = append(opts, WithPool(pool))
			}
			s := newTestStore(inference.NewHashEmbedder(16), opts...)

			added, err := s.LoadFromDirectory(context.Background(), dir, models.SourceGoriziaEvent)
			if err != nil {
				t.Fatalf("LoadFromDirectory failed: %v", err)
			}
			if added != 5 {
				t.Fatalf("expected 5 chunks (4 + 1), got %d", added)
			}

			docs := s.Documents()
			for i := 0; i < 4; i++ {
				m := docs[i].Metadata
				if m.Source != "a.txt" || m.ChunkID != i || m.SourceType != models.SourceGoriziaEvent {
					t.Fatalf("chunk %d has unexpected metadata %+v", i, m)
				}
			}
			if docs[4].Metadata.Source != "b.md" || docs[4].Text != "flood plan" {
				t.Fatalf("expected markdown after text files, got %+v", docs[4].Metadata)
			}
			if len([]rune(docs[3].Text)) != 100 {
				t.Fatalf("expected short final chunk, got %d runes", len([]rune(docs[3].Text)))
			}
		})
	}
}

func TestLoadFromMissingDirectory(t *testing.T) {
	s := newTestStore(inference.NewHashEmbedder(8))
	added, err := s.LoadFromDirectory(context.Background(), filepath.Join(t.TempDir(), "absent"), models.SourceSVAFramework)
	if added != 0 || !faults.Is(err, faults.CategoryMissingResource) {
		t.Fatalf("expected missing resource, got added=%d err=%v", added, err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "embeddings.json")

	s := newTestStore(keywordEmbedder())
	s.AddDocument(ctx, doc("fire square", "a"))
	s.AddDocument(ctx, doc("crowd", "b"))
	if err := s.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded := newTestStore(keywordEmbedder())
	loaded.AddDocument(ctx, doc("stale", "old"))
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	want, got := s.Documents(), loaded.Documents()
	if len(got) != len(want) {
		t.Fatalf("expected %d documents, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Text != want[i].Text || got[i].Metadata != want[i].Metadata {
			t.Fatalf("document %d differs: %+v vs %+v", i, got[i], want[i])
		}
		for j := range want[i].Embedding {
			if math.Abs(float64(got[i].Embedding[j]-want[i].Embedding[j])) > 1e-6 {
				t.Fatalf("embedding %d/%d differs", i, j)
			}
		}
	}
}

func TestSnapshotNullEmbedding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	content := `[{"text":"no vector","metadata":{"source":"a","source_type":"sva_framework","chunk_id":0},"embedding":null}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(keywordEmbedder())
	if err := s.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if s.Len() != 1 || s.Documents()[0].Embedding != nil {
		t.Fatal("expected one document without embedding")
	}
	if got := s.Search(context.Background(), "fire", 5); len(got) != 0 {
		t.Fatal("documents without embeddings must not be returned")
	}
}

func TestSnapshotFailuresKeepState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(keywordEmbedder())
	s.AddDocument(ctx, doc("fire", "keep"))

	err := s.LoadFromFile(filepath.Join(dir, "absent.json"))
	if !faults.Is(err, faults.CategoryMissingResource) {
		t.Fatalf("expected missing resource, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, dir, "bad.json", "{not json")
	err = s.LoadFromFile(bad)
	if !faults.Is(err, faults.CategoryMalformedState) {
		t.Fatalf("expected malformed state, got %v", err)
	}

	if s.Len() != 1 || s.Documents()[0].Metadata.Source != "keep" {
		t.Fatal("failed loads must leave the store untouched")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
		ok   bool
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, true},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1, true},
		{"absent", nil, []float32{1}, 0, false},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, 0, false},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CosineSimilarity(tt.a, tt.b)
			if ok != tt.ok || math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got (%v, %v), want (%v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRemoveSource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(keywordEmbedder())
	s.AddDocument(ctx, doc("fire", "a.md"))
	s.AddDocument(ctx, doc("flood", "b.md"))
	s.AddDocument(ctx, doc("crowd", "a.md"))

	if n := s.RemoveSource("a.md"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if got := sources(s.Documents()); len(got) != 1 || got[0] != "b.md" {
		t.Fatalf("unexpected remaining documents: %v", got)
	}
}
