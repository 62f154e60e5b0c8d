package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the time to wait after the last change before notifying.
const DefaultDebounceInterval = 200 * time.Millisecond

// Watch calls onChange whenever the settings document is created, rewritten or removed,
// until ctx is cancelled. Bursts of filesystem events are collapsed into one call.
//
// The parent directory is watched rather than the file, since every write replaces
// the file through a rename.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	slog.DebugContext(ctx, "watching settings", "path", s.path)

	name := filepath.Clean(s.path)
	debounce := time.NewTimer(DefaultDebounceInterval)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				debounce.Reset(DefaultDebounceInterval)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "settings watcher error", "error", err)

		case <-debounce.C:
			onChange()
		}
	}
}
