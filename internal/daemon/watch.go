package daemon

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchLoop watches CanonicalRoot for changes and triggers one debounced
// sync per burst (spec §4.12: "debounces bursts of file-change
// notifications (drain within 250ms of the first event), then invokes
// one ingest"). Grounded on the teacher's internal/watcher.HybridWatcher
// fsnotify usage, simplified: the sync pipeline re-diffs the whole tree
// against stored metadata on every call, so the watcher only needs to
// know *that* something changed, not *what*, unlike the teacher's
// per-path event coalescing.
func (d *Daemon) watchLoop(ctx context.Context, trigger func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("watch disabled: fsnotify unavailable", slog.String("error", err.Error()))
		return
	}
	defer w.Close()

	if err := addRecursive(w, d.cfg.CanonicalRoot); err != nil {
		d.logger.Warn("watch disabled: failed to watch root", slog.String("error", err.Error()))
		return
	}

	debounce := time.Duration(d.cfg.Engine.SyncDebounceMs) * time.Millisecond
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watch error", slog.String("error", err.Error()))
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				_ = addRecursive(w, ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			}
		case <-fire:
			timer = nil
			fire = nil
			trigger()
		}
	}
}

// addRecursive adds root and every directory beneath it to w, mirroring
// the teacher's HybridWatcher.addRecursive. Errors walking an individual
// subdirectory are tolerated (permission-denied subtrees are skipped, not
// fatal to the whole watch).
func addRecursive(w *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(dir string) {
		_ = w.Add(dir)
	})
}

func walkDirs(root string, visit func(dir string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == ".git" || name == "node_modules" {
			return fs.SkipDir
		}
		visit(path)
		return nil
	})
}
