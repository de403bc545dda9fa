package feed

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// WatchFileConfig reloads the config at path whenever it changes and calls
// onChange with the result. Reloads that produce the same config are not
// reported. The watch is registered before returning and ends with ctx.
func WatchFileConfig(ctx context.Context, path string, onChange func(FileConfig, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	// the directory is watched so that atomic replaces are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	last, lastErr := LoadFileConfig(path)

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Warnf("failed to close config watcher: %v", err)
			}
		}()

		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}

				cfg, err := LoadFileConfig(path)
				if err == nil && lastErr == nil && cfg == last {
					continue
				}
				last, lastErr = cfg, err

				log.Infof("update config %s changed", path)
				onChange(cfg, err)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config watcher error: %v", err)
			}
		}
	}()

	return nil
}
