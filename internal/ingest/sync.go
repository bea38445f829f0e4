package ingest

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/starford/ansuz/internal/checksum"
)

// Sync reconciles the manifest with the documents on disk: changed or
// new files are re-ingested, rows for files gone from disk are dropped.
// Files whose checksum matches the manifest are skipped entirely, so a
// no-op sync makes no embedding or index calls.
func (p *Pipeline) Sync(ctx context.Context, root string) (Result, error) {
	files, err := listDocFiles(root)
	if err != nil {
		return Result{}, err
	}

	known := map[string]string{}
	if p.manifest != nil {
		known, err = p.manifest.AllChecksums()
		if err != nil {
			return Result{}, err
		}
	}

	// The dimension probe and collection check run lazily, only once
	// something actually needs embedding.
	ensured := false
	ensure := func() error {
		if ensured {
			return nil
		}
		dim, err := p.probeDimension(ctx)
		if err != nil {
			return err
		}
		if err := p.index.EnsureCollection(ctx, p.collection, dim); err != nil {
			return err
		}
		ensured = true
		return nil
	}

	var res Result
	onDisk := make(map[string]struct{}, len(files))
	for _, rel := range files {
		onDisk[rel] = struct{}{}

		sum, err := checksum.SumFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			p.log.Warn("sync: checksum failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		if known[rel] == sum {
			continue
		}
		if err := ensure(); err != nil {
			return res, err
		}
		points, err := p.ingestFile(ctx, root, rel)
		if err != nil {
			p.log.Warn("sync: ingest failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		if points > 0 {
			res.FilesProcessed++
			res.PointsUpserted += points
		}
	}

	// Drop rows for files removed from disk.
	for rel := range known {
		if _, ok := onDisk[rel]; ok {
			continue
		}
		if p.manifest != nil {
			if err := p.manifest.DeleteFile(rel); err != nil {
				p.log.Warn("sync: delete stale row failed", slog.String("path", rel), slog.String("error", err.Error()))
				continue
			}
		}
		if p.notifier != nil {
			p.notifier.PublishIngest("removed", rel)
		}
		p.log.Debug("sync: removed stale", slog.String("path", rel))
	}

	p.log.Info("sync complete",
		slog.Int("files", res.FilesProcessed),
		slog.Int("points", res.PointsUpserted))
	return res, nil
}
