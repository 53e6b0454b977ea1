package seed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-runs a callback when the seed file changes on disk.
//
// The parent directory is watched rather than the file, because editors
// usually save by writing a temp file and renaming it over the original,
// which drops a watch held on the old inode.
type Watcher struct {
	path     string
	onChange func(ctx context.Context) error
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path's directory. Call Run to process events.
func NewWatcher(path string, onChange func(ctx context.Context) error, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("seed: resolving %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("seed: creating watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("seed: watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		onChange: onChange,
		logger:   logger,
		debounce: defaultDebounce,
		watcher:  fw,
	}, nil
}

// Run blocks until ctx is cancelled, calling onChange once per burst of
// writes to the file. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	// Stopped until the first relevant event.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("seed watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			w.logger.Info("seed file changed, re-applying", slog.String("path", w.path))
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("re-applying seed file failed",
					slog.String("path", w.path),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
