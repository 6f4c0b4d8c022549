package fields

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// debounceDelay collapses editor write bursts into a single reload.
const debounceDelay = 500 * time.Millisecond

// Watch reloads the fields file on change and invokes onReload with the
// freshly parsed tags. Parse failures are logged and the previous tags kept.
// It blocks until the context is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onReload func([]labeling.Tag)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file via rename, which
	// drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				if timer == nil {
					timer = time.NewTimer(debounceDelay)
					timerC = timer.C
				} else {
					timer.Reset(debounceDelay)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("fields watcher error", "error", err)
		case <-timerC:
			tags, err := Load(path)
			if err != nil {
				logger.Error("fields reload failed, keeping previous definitions",
					"path", path, "error", err)
				continue
			}
			logger.Info("fields reloaded", "path", path, "tags", len(tags))
			onReload(tags)
		}
	}
}
