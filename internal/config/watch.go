package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/assetscore/assetscore/pkg/types"
)

// WatchPolicy monitors the policy file at path and calls onChange with the
// newly loaded policy each time it is written. It runs until ctx is cancelled.
//
// If a reload fails (invalid JSON, unknown field types) the error is logged,
// onChange is not called and the previous policy remains active. onChange
// may itself reject the policy (a formula that does not compile); that is
// the caller's concern.
func WatchPolicy(ctx context.Context, path string, onChange func(*types.ScoringConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	// The directory survives rename-based saves; the file inode does not.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	slog.Info("config: watching policy", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			policy, err := LoadPolicy(target)
			if err != nil {
				slog.Error("config: policy reload failed, keeping previous policy",
					"path", target, "err", err)
				continue
			}

			slog.Info("config: policy reloaded", "path", target)
			onChange(policy)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
