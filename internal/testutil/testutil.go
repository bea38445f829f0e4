// Package testutil provides shared test helpers: temporary manifests
// and document dirs, plus in-memory fakes for the embedding model, the
// vector index, and the chat model.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/ollama"
	"github.com/starford/ansuz/internal/qdrant"
)

// TestManifest creates a temporary SQLite manifest that is
// automatically cleaned up.
func TestManifest(t *testing.T) *manifest.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := manifest.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDocs creates a temporary documents directory populated with the
// given relative path → content entries.
func TestDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// TestDocsUpdate rewrites one file inside a TestDocs directory.
func TestDocsUpdate(t *testing.T, root, rel, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestDocsRemove deletes one file inside a TestDocs directory.
func TestDocsRemove(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

// FakeEmbedder produces deterministic vectors derived from text length,
// so equal inputs embed equally. Calls counts embed requests.
type FakeEmbedder struct {
	Dim   int
	Calls int
}

func (f *FakeEmbedder) dim() int {
	if f.Dim == 0 {
		return 4
	}
	return f.Dim
}

func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.Calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dim())
		for j := range vec {
			vec[j] = float32(len(text)%13) + float32(j)
		}
		out[i] = vec
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// MemoryIndex is an in-memory stand-in for the vector index. Search
// matches on payload text containment rather than vector math, which is
// enough to exercise retrieval plumbing.
type MemoryIndex struct {
	Collections map[string]int
	Points      map[string]qdrant.Point
	Upserts     int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		Collections: map[string]int{},
		Points:      map[string]qdrant.Point{},
	}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	if _, ok := m.Collections[name]; !ok {
		m.Collections[name] = dim
	}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, _ string, points []qdrant.Point) error {
	m.Upserts++
	for _, p := range points {
		m.Points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, _ string, _ []float32, limit int, _ bool) ([]qdrant.ScoredPoint, error) {
	ids := make([]string, 0, len(m.Points))
	for id := range m.Points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]qdrant.ScoredPoint, 0, limit)
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		p := m.Points[id]
		out = append(out, qdrant.ScoredPoint{ID: p.ID, Score: 0.9, Payload: p.Payload})
	}
	return out, nil
}

// FakeChat replays scripted responses in order; after the script runs
// out, it echoes the last message content. Prompts records the full
// message content of every call for assertions.
type FakeChat struct {
	Responses []string
	Err       error
	Prompts   []string
	next      int
}

func (f *FakeChat) Chat(_ context.Context, _ string, messages []ollama.Message) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	f.Prompts = append(f.Prompts, strings.Join(contents, "\n"))

	if f.next < len(f.Responses) {
		r := f.Responses[f.next]
		f.next++
		return r, nil
	}
	if len(contents) == 0 {
		return "", nil
	}
	return contents[len(contents)-1], nil
}
