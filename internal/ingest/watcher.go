package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the documents root and keeps the
// index in step with file changes until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and
// scanned. Rename events fire on the old path only, so they trigger a
// debounced sync pass that removes stale manifest rows and picks up the
// renamed file at its new location.
func (p *Pipeline) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	p.log.Info("watcher: started", slog.String("root", root))

	// syncTimer debounces rename reconciliation.
	var syncTimer *time.Timer
	var syncCh <-chan time.Time

	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(200 * time.Millisecond)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			p.log.Info("watcher: stopped")
			return nil

		case <-syncCh:
			if _, err := p.Sync(ctx, root); err != nil {
				p.log.Warn("watcher: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						p.log.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						p.log.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Pick up any documents already inside the new directory.
					scheduleSync()
					continue
				}
			}

			if !eligibleDoc(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				// Write events can arrive mid-copy; the debounced sync
				// path re-checks checksums, so going through Sync keeps
				// a rapid save burst from embedding the same file
				// repeatedly.
				scheduleSync()

			case ev.Op&fsnotify.Remove != 0:
				if p.manifest != nil {
					if delErr := p.manifest.DeleteFile(rel); delErr != nil {
						p.log.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
						continue
					}
				}
				p.log.Debug("watcher: removed", slog.String("path", rel))
				if p.notifier != nil {
					p.notifier.PublishIngest("removed", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				if p.manifest != nil {
					if delErr := p.manifest.DeleteFile(rel); delErr != nil {
						p.log.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					}
				}
				scheduleSync()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
