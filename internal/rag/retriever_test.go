package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/qdrant"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type stubIndex struct {
	points    []qdrant.ScoredPoint
	err       error
	lastLimit int
}

func (s *stubIndex) Search(_ context.Context, _ string, _ []float32, limit int, _ bool) ([]qdrant.ScoredPoint, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

func TestRetrieve_TopKBounds(t *testing.T) {
	e := &stubEmbedder{vec: []float32{1}}
	r := NewRetriever(e, &stubIndex{}, "docs")
	for _, topK := range []int{0, -1, 11} {
		_, _, err := r.Retrieve(context.Background(), "q", topK)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("topK=%d err = %v, want ErrValidation", topK, err)
		}
	}
	if e.calls != 0 {
		t.Error("embedder must not run for invalid topK")
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	r := NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubIndex{}, "docs")
	if _, _, err := r.Retrieve(context.Background(), "   ", 5); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestRetrieve_MapsPayloads(t *testing.T) {
	idx := &stubIndex{points: []qdrant.ScoredPoint{
		{ID: "p1", Score: 0.9, Payload: map[string]any{
			"file": "a.md", "chunk_id": float64(2), "text": "alpha body", "snippet": "alpha body",
		}},
		{ID: "p2", Score: 0.5, Payload: nil},
	}}
	r := NewRetriever(&stubEmbedder{vec: []float32{1}}, idx, "docs")

	hits, stats, err := r.Retrieve(context.Background(), "alpha", 3)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if idx.lastLimit != 3 {
		t.Errorf("limit = %d, want 3", idx.lastLimit)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits", len(hits))
	}
	if hits[0].File != "a.md" || hits[0].ChunkID != 2 {
		t.Errorf("hit 0 = %+v", hits[0])
	}
	// Missing payload falls back to placeholders rather than erroring.
	if hits[1].File != "unknown" || hits[1].ChunkID != -1 {
		t.Errorf("hit 1 = %+v", hits[1])
	}
	if stats.TopK != 3 || stats.Hits != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRetrieve_SnippetFallsBackToText(t *testing.T) {
	longText := strings.Repeat("line one\n", 60)
	idx := &stubIndex{points: []qdrant.ScoredPoint{
		{ID: "p1", Score: 0.9, Payload: map[string]any{"file": "a.md", "chunk_id": float64(0), "text": longText}},
	}}
	r := NewRetriever(&stubEmbedder{vec: []float32{1}}, idx, "docs")

	hits, _, err := r.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatal(err)
	}
	snippet := hits[0].Snippet
	if len(snippet) > 240 {
		t.Errorf("snippet length = %d, want <= 240", len(snippet))
	}
	if strings.Contains(snippet, "\n") {
		t.Error("snippet must be single-line")
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	wantErr := apperr.RemoteWrap("ollama", errors.New("down"))
	r := NewRetriever(&stubEmbedder{err: wantErr}, &stubIndex{}, "docs")
	if _, _, err := r.Retrieve(context.Background(), "q", 5); !apperr.IsRemote(err) {
		t.Errorf("err = %v, want remote error", err)
	}
}

func TestCitationsOf(t *testing.T) {
	hits := []Hit{
		{File: "a.md", ChunkID: 0, Snippet: "sa"},
		{File: "b.md", ChunkID: 4, Snippet: "sb"},
	}
	cits := CitationsOf(hits)
	if len(cits) != 2 || cits[1].File != "b.md" || cits[1].ChunkID != 4 {
		t.Errorf("citations = %+v", cits)
	}
}

func TestSourcesBlock(t *testing.T) {
	hits := []Hit{
		{File: "a.md", ChunkID: 0, Text: "first chunk"},
		{File: "b.md", ChunkID: 2, Text: "second chunk"},
	}
	block := SourcesBlock(hits)

	want := "<<SOURCE file=a.md chunk_id=0>>\nfirst chunk\n<<END>>\n\n<<SOURCE file=b.md chunk_id=2>>\nsecond chunk\n<<END>>"
	if block != want {
		t.Errorf("SourcesBlock =\n%s\nwant\n%s", block, want)
	}
}

func TestSourcesBlock_Empty(t *testing.T) {
	if got := SourcesBlock(nil); got != "" {
		t.Errorf("SourcesBlock(nil) = %q", got)
	}
}

func TestMakeSnippet(t *testing.T) {
	got := MakeSnippet("a\nb\nc")
	if got != "a b c" {
		t.Errorf("MakeSnippet = %q", got)
	}
	long := MakeSnippet(strings.Repeat("x", 500))
	if len(long) != 240 {
		t.Errorf("len = %d, want 240", len(long))
	}
}

func TestMakeSnippet_NeverSplitsRunes(t *testing.T) {
	// The leading byte offsets every two-byte rune so the 240-byte cut
	// lands mid-sequence; the snippet must back off to a boundary
	// instead of emitting invalid UTF-8.
	long := MakeSnippet("x" + strings.Repeat("é", 200))
	if len(long) != 239 {
		t.Errorf("len = %d, want 239 (backed off one byte)", len(long))
	}
	if !utf8.ValidString(long) {
		t.Errorf("snippet is not valid UTF-8: %q", long)
	}
}
