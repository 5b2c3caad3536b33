package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vowser/controlhub/internal/logging"
)

// Watch re-reads the config file at path whenever it changes and hands the
// merged result (base overlaid with the file) to onChange. It blocks until
// ctx is done.
func Watch(ctx context.Context, base Config, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	name := filepath.Clean(path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

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
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				next := base
				if err := next.MergeFile(path); err != nil {
					logging.Warnf("[Config] reload of %s failed: %v", path, err)
					return
				}
				logging.Infof("[Config] %s changed, reloaded", path)
				onChange(next)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warnf("[Config] watcher error: %v", err)
		}
	}
}
