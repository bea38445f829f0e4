package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/pointid"
	"github.com/starford/ansuz/internal/testutil"
)

func testPipeline(t *testing.T) (*Pipeline, *testutil.FakeEmbedder, *testutil.MemoryIndex) {
	t.Helper()
	embedder := &testutil.FakeEmbedder{Dim: 4}
	index := testutil.NewMemoryIndex()
	mf := testutil.TestManifest(t)
	return NewPipeline(embedder, index, mf, "docs", nil, nil), embedder, index
}

func TestIngestDirectory_Empty(t *testing.T) {
	p, embedder, index := testPipeline(t)
	root := testutil.TestDocs(t, nil)

	res, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestDirectory failed: %v", err)
	}
	if res.FilesProcessed != 0 || res.PointsUpserted != 0 {
		t.Errorf("result = %+v, want zeros", res)
	}
	// No probe, no collection, no upserts for an empty directory.
	if embedder.Calls != 0 || index.Upserts != 0 || len(index.Collections) != 0 {
		t.Error("empty directory must not touch the embedding model or index")
	}
}

func TestIngestDirectory_SingleSmallFile(t *testing.T) {
	p, _, index := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{"note.txt": "hello world"})

	res, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestDirectory failed: %v", err)
	}
	if res.FilesProcessed != 1 || res.PointsUpserted != 1 {
		t.Errorf("result = %+v, want 1 file 1 point", res)
	}
	if dim := index.Collections["docs"]; dim != 4 {
		t.Errorf("collection dim = %d, want probe dimension 4", dim)
	}

	wantID := pointid.For("note.txt", 0)
	point, ok := index.Points[wantID]
	if !ok {
		t.Fatalf("point %s missing; have %v", wantID, index.Points)
	}
	if point.Payload["file"] != "note.txt" || point.Payload["chunk_id"] != 0 {
		t.Errorf("payload = %v", point.Payload)
	}
	if point.Payload["text"] != "hello world" {
		t.Errorf("payload text = %v", point.Payload["text"])
	}
}

func TestIngestDirectory_SkipsIneligibleFiles(t *testing.T) {
	p, _, _ := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{
		"keep.md":    "kept",
		"UPPER.MD":   "extension case does not matter",
		"skip.pdf":   "binary",
		"skip.json":  "{}",
		"sub/ok.txt": "nested kept",
	})

	res, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesProcessed != 3 {
		t.Errorf("files = %d, want 3 (.md and .txt in any case)", res.FilesProcessed)
	}
}

func TestIngestDirectory_RepeatRunsMatch(t *testing.T) {
	p, _, index := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{
		"a.md":  strings.Repeat("alpha content. ", 100),
		"b.txt": "short",
	})

	first, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	pointsAfterFirst := len(index.Points)

	second, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("repeat run differs: first %+v second %+v", first, second)
	}
	// Deterministic ids make the second run an overwrite, not a duplicate.
	if len(index.Points) != pointsAfterFirst {
		t.Errorf("point count grew from %d to %d on repeat run", pointsAfterFirst, len(index.Points))
	}
}

func TestIngestDirectory_ChunksLargeFile(t *testing.T) {
	p, _, index := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{
		"big.md": strings.Repeat("some sentence of filler text. ", 200),
	})

	res, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if res.PointsUpserted < 2 {
		t.Errorf("points = %d, want multiple chunks for a large file", res.PointsUpserted)
	}
	for _, point := range index.Points {
		text, _ := point.Payload["text"].(string)
		if len(text) > 900 {
			t.Errorf("chunk text length = %d, want <= 900", len(text))
		}
		snippet, _ := point.Payload["snippet"].(string)
		if len(snippet) > 240 {
			t.Errorf("snippet length = %d, want <= 240", len(snippet))
		}
	}
}

func TestIngestDirectory_EmptyFileProducesNoPoints(t *testing.T) {
	p, _, _ := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{
		"blank.md": "   \n\t\n",
		"real.md":  "content",
	})

	res, err := p.IngestDirectory(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesProcessed != 1 || res.PointsUpserted != 1 {
		t.Errorf("result = %+v, want empty file excluded from counts", res)
	}
}

func TestSync_SkipsUnchangedFiles(t *testing.T) {
	p, embedder, _ := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{"a.md": "stable content"})

	if _, err := p.IngestDirectory(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	callsAfterIngest := embedder.Calls

	res, err := p.Sync(context.Background(), root)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.FilesProcessed != 0 {
		t.Errorf("sync reprocessed %d unchanged files", res.FilesProcessed)
	}
	if embedder.Calls != callsAfterIngest {
		t.Error("no-op sync must not call the embedding model")
	}
}

func TestSync_ReingestsChangedFile(t *testing.T) {
	p, _, _ := testPipeline(t)
	root := testutil.TestDocs(t, map[string]string{"a.md": "version one"})

	if _, err := p.IngestDirectory(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	testutil.TestDocsUpdate(t, root, "a.md", "version two, now different")

	res, err := p.Sync(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesProcessed != 1 {
		t.Errorf("sync processed %d files, want 1 changed", res.FilesProcessed)
	}
}

func TestSync_DropsRowsForDeletedFiles(t *testing.T) {
	embedder := &testutil.FakeEmbedder{Dim: 4}
	index := testutil.NewMemoryIndex()
	mf := testutil.TestManifest(t)
	p := NewPipeline(embedder, index, mf, "docs", nil, nil)

	root := testutil.TestDocs(t, map[string]string{"gone.md": "to be removed", "stay.md": "stays"})
	if _, err := p.IngestDirectory(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	testutil.TestDocsRemove(t, root, "gone.md")

	if _, err := p.Sync(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	row, err := mf.Get("gone.md")
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Error("manifest row for deleted file survived sync")
	}
	if row, _ := mf.Get("stay.md"); row == nil {
		t.Error("manifest row for surviving file was dropped")
	}
}
