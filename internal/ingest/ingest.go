// Package ingest turns document files into indexed vector points:
// normalize, chunk, embed, upsert. The full pipeline always re-embeds
// and re-upserts every file it sees; checksum-based skipping is the
// business of the incremental sync and the watcher.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/manifest"
	"github.com/starford/ansuz/internal/pointid"
	"github.com/starford/ansuz/internal/qdrant"
	"github.com/starford/ansuz/internal/rag"
	"github.com/starford/ansuz/internal/textproc"
)

// dimensionProbeText is embedded once per run to discover the model's
// vector dimension before the collection is created.
const dimensionProbeText = "dimension probe"

// Embedder produces vectors for document chunks.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Index receives points and owns the collection lifecycle.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, name string, points []qdrant.Point) error
}

// Result summarizes one ingestion run.
type Result struct {
	FilesProcessed int `json:"files_processed"`
	PointsUpserted int `json:"points_upserted"`
}

// Notifier publishes ingestion events. May be nil.
type Notifier interface {
	PublishIngest(kind, path string)
}

// Pipeline wires the embedding model, the vector index, and the
// manifest into one ingestion unit.
type Pipeline struct {
	embedder   Embedder
	index      Index
	manifest   *manifest.DB
	collection string
	notifier   Notifier
	log        *slog.Logger
}

// NewPipeline creates a pipeline. notifier may be nil; a nil logger
// falls back to the default.
func NewPipeline(embedder Embedder, index Index, mf *manifest.DB, collection string, notifier Notifier, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		embedder:   embedder,
		index:      index,
		manifest:   mf,
		collection: collection,
		notifier:   notifier,
		log:        log,
	}
}

// IngestDirectory embeds and upserts every .txt and .md file under
// root. Every file is processed unconditionally, so repeat runs over
// the same directory report identical counts. An empty directory
// returns zero counts without touching the network.
func (p *Pipeline) IngestDirectory(ctx context.Context, root string) (Result, error) {
	files, err := listDocFiles(root)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, nil
	}

	dim, err := p.probeDimension(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := p.index.EnsureCollection(ctx, p.collection, dim); err != nil {
		return Result{}, err
	}

	var res Result
	for _, rel := range files {
		points, err := p.ingestFile(ctx, root, rel)
		if err != nil {
			return res, fmt.Errorf("ingest %s: %w", rel, err)
		}
		// Files that normalize to nothing contribute no points and do
		// not count as processed.
		if points > 0 {
			res.FilesProcessed++
			res.PointsUpserted += points
		}
	}
	p.log.Info("ingest complete",
		slog.Int("files", res.FilesProcessed),
		slog.Int("points", res.PointsUpserted))
	return res, nil
}

// probeDimension embeds a fixed probe text and returns the vector length.
func (p *Pipeline) probeDimension(ctx context.Context) (int, error) {
	vec, err := p.embedder.EmbedSingle(ctx, dimensionProbeText)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	return len(vec), nil
}

// ingestFile processes a single file and returns the number of points
// upserted. Files that normalize to nothing contribute zero points;
// the manifest still records them so sync does not revisit unchanged
// empties.
func (p *Pipeline) ingestFile(ctx context.Context, root, rel string) (int, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return 0, err
	}

	chunks := textproc.Split(textproc.Normalize(string(data)), textproc.DefaultMaxChars, textproc.DefaultOverlap)
	if len(chunks) == 0 {
		if err := p.recordFile(rel, data, 0, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]qdrant.Point, len(chunks))
	for i, ch := range chunks {
		points[i] = qdrant.Point{
			ID:     pointid.For(rel, ch.Index),
			Vector: vectors[i],
			Payload: map[string]any{
				"file":     rel,
				"chunk_id": ch.Index,
				"start":    ch.Start,
				"end":      ch.End,
				"text":     ch.Text,
				"snippet":  rag.MakeSnippet(ch.Text),
			},
		}
	}
	if err := p.index.Upsert(ctx, p.collection, points); err != nil {
		return 0, err
	}
	if err := p.recordFile(rel, data, len(chunks), len(points)); err != nil {
		return 0, err
	}

	if p.notifier != nil {
		p.notifier.PublishIngest("ingested", rel)
	}
	p.log.Debug("file ingested", slog.String("path", rel), slog.Int("points", len(points)))
	return len(points), nil
}

func (p *Pipeline) recordFile(rel string, data []byte, chunks, points int) error {
	if p.manifest == nil {
		return nil
	}
	return p.manifest.UpsertFile(manifest.FileRow{
		Path:      rel,
		Checksum:  checksum.Sum(data),
		Chunks:    chunks,
		Points:    points,
		IndexedAt: time.Now().UTC(),
	})
}

// listDocFiles returns sorted forward-slash relative paths for every
// .txt and .md file under root.
func listDocFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !eligibleDoc(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func eligibleDoc(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}
