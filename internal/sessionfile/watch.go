package sessionfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

// Watcher timing. Editors and Save itself produce bursts of events for one
// logical write, so loads are debounced.
const (
	watchDebounce         = 100 * time.Millisecond
	watchErrInitBackoff   = 1 * time.Second
	watchErrMaxBackoff    = 30 * time.Second
	watchErrBackoffFactor = 2
)

// Watch calls onChange with every valid session written to path until ctx
// is canceled. It watches the parent directory, since Save replaces the
// file by rename. Removal of the file is ignored; invalid or unreadable
// contents are logged and skipped. Returns nil on cancellation.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*salesforce.Session)) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("sessionfile: creating directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sessionfile: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("sessionfile: watching %s: %w", dir, err)
	}

	logger.Info("watching session file", slog.String("path", path))

	return watchLoop(ctx, watcher, path, logger, onChange)
}

// watchLoop is the select loop for Watch. It processes fsnotify events,
// watcher errors, the debounce timer, and context cancellation.
func watchLoop(
	ctx context.Context, watcher *fsnotify.Watcher, path string, logger *slog.Logger,
	onChange func(*salesforce.Session),
) error {
	target := filepath.Clean(path)

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			debounce.Reset(watchDebounce)
			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("session file watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff = min(errBackoff*watchErrBackoffFactor, watchErrMaxBackoff)

		case <-debounce.C:
			deliver(path, logger, onChange)
		}
	}
}

func deliver(path string, logger *slog.Logger, onChange func(*salesforce.Session)) {
	f, err := Load(path)
	if err != nil {
		logger.Warn("ignoring unreadable session file", slog.String("error", err.Error()))
		return
	}

	if f == nil || !f.Session.Valid() {
		logger.Debug("session file changed but holds no valid session", slog.String("path", path))
		return
	}

	logger.Info("session file updated", slog.String("instance_url", f.Session.InstanceURL))
	onChange(f.Session)
}
