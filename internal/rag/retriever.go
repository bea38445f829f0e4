// Package rag implements retrieval over the vector index: embed the
// query, search for the nearest chunks, and shape the hits into
// citations and source-delimited context for the model.
package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/qdrant"
)

const snippetMaxChars = 240

// Embedder produces a query vector for a single text.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Index performs similarity search over a collection.
type Index interface {
	Search(ctx context.Context, name string, vector []float32, limit int, withPayload bool) ([]qdrant.ScoredPoint, error)
}

// Hit is one retrieved chunk with its provenance and score.
type Hit struct {
	File    string  `json:"file"`
	ChunkID int     `json:"chunk_id"`
	Text    string  `json:"text"`
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}

// Citation points a reader at the chunk an answer drew from.
type Citation struct {
	File    string `json:"file"`
	ChunkID int    `json:"chunk_id"`
	Snippet string `json:"snippet"`
}

// Stats carries per-request retrieval timings in milliseconds.
type Stats struct {
	TopK    int     `json:"top_k"`
	Hits    int     `json:"hits"`
	EmbedMs float64 `json:"embed_ms"`
	IndexMs float64 `json:"index_ms"`
	TotalMs float64 `json:"total_ms"`
}

// Retriever wires an embedder and an index to a fixed collection.
type Retriever struct {
	embedder   Embedder
	index      Index
	collection string
}

// NewRetriever creates a retriever bound to one collection.
func NewRetriever(embedder Embedder, index Index, collection string) *Retriever {
	return &Retriever{embedder: embedder, index: index, collection: collection}
}

// Retrieve embeds the query and returns up to topK hits ranked by
// decreasing similarity. topK must be within [1, 10].
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, Stats, error) {
	if topK < 1 || topK > 10 {
		return nil, Stats{}, fmt.Errorf("%w: top_k must be between 1 and 10, got %d", apperr.ErrValidation, topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, Stats{}, fmt.Errorf("%w: query must not be empty", apperr.ErrValidation)
	}

	start := time.Now()

	vector, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, Stats{}, err
	}
	embedDone := time.Now()

	points, err := r.index.Search(ctx, r.collection, vector, topK, true)
	if err != nil {
		return nil, Stats{}, err
	}
	indexDone := time.Now()

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPoint(p))
	}

	stats := Stats{
		TopK:    topK,
		Hits:    len(hits),
		EmbedMs: roundMs(embedDone.Sub(start)),
		IndexMs: roundMs(indexDone.Sub(embedDone)),
		TotalMs: roundMs(indexDone.Sub(start)),
	}
	return hits, stats, nil
}

// hitFromPoint maps a scored point's payload to a Hit, tolerating
// missing or oddly typed payload fields from older index entries.
func hitFromPoint(p qdrant.ScoredPoint) Hit {
	hit := Hit{
		File:    "unknown",
		ChunkID: -1,
		Score:   p.Score,
	}
	if p.Payload == nil {
		return hit
	}
	if file, ok := p.Payload["file"].(string); ok && file != "" {
		hit.File = file
	}
	if id, ok := payloadInt(p.Payload["chunk_id"]); ok {
		hit.ChunkID = id
	}
	if text, ok := p.Payload["text"].(string); ok {
		hit.Text = text
	}
	if snippet, ok := p.Payload["snippet"].(string); ok && snippet != "" {
		hit.Snippet = snippet
	} else {
		hit.Snippet = MakeSnippet(hit.Text)
	}
	return hit
}

// payloadInt extracts an int from a JSON payload value, which decodes
// as float64 through encoding/json.
func payloadInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// MakeSnippet shortens text to a single-line preview, backing off to a
// rune boundary so the cut never leaves invalid UTF-8 in a payload.
func MakeSnippet(text string) string {
	s := strings.ReplaceAll(text, "\n", " ")
	if len(s) > snippetMaxChars {
		cut := snippetMaxChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// CitationsOf projects hits into citations, preserving order.
func CitationsOf(hits []Hit) []Citation {
	out := make([]Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, Citation{File: h.File, ChunkID: h.ChunkID, Snippet: h.Snippet})
	}
	return out
}

func roundMs(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*100) / 100
}
