package installer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/util"
)

const resultFileName = "result.json"

var errWatcherClosed = errors.New("result watcher closed")

// Result records the last staging attempt. The process that installs on quit
// reads it from the stage directory.
type Result struct {
	Staged        bool      `json:"staged"`
	Version       string    `json:"version"`
	Path          string    `json:"path,omitempty"`
	InstallOnQuit bool      `json:"installOnQuit,omitempty"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// ResultHandler owns result.json inside a stage directory
type ResultHandler struct {
	path string
}

func NewResultHandler(stageDir string) *ResultHandler {
	return &ResultHandler{path: filepath.Join(stageDir, resultFileName)}
}

func (rh *ResultHandler) Path() string {
	return rh.path
}

// Write replaces result.json atomically
func (rh *ResultHandler) Write(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode staging result: %w", err)
	}
	return util.WriteBytesWithRestrictedPermission(ctx, rh.path, data)
}

func (rh *ResultHandler) Read() (Result, error) {
	var r Result
	data, err := os.ReadFile(rh.path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", rh.path, err)
	}
	return r, nil
}

// Cleanup removes result.json, a missing file is not an error
func (rh *ResultHandler) Cleanup() error {
	err := os.Remove(rh.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Watch blocks until a readable result exists and returns it. A result that
// is already present is returned immediately.
func (rh *ResultHandler) Watch(ctx context.Context) (Result, error) {
	dir := filepath.Dir(rh.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("create stage directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Result{}, fmt.Errorf("create result watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warnf("failed to close result watcher: %v", err)
		}
	}()

	// result.json may not exist yet, so its directory is watched
	if err := watcher.Add(dir); err != nil {
		return Result{}, fmt.Errorf("watch %s: %w", dir, err)
	}
	if r, err := rh.Read(); err == nil {
		return r, nil
	}

	log.Debugf("waiting for staging result in %s", rh.path)
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return Result{}, errWatcherClosed
			}
			return Result{}, fmt.Errorf("result watcher: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return Result{}, errWatcherClosed
			}
			if !rh.written(ev) {
				continue
			}
			r, err := rh.Read()
			if err != nil {
				// partially visible on some platforms, wait for the next write
				log.Debugf("staging result not readable yet: %v", err)
				continue
			}
			return r, nil
		}
	}
}

func (rh *ResultHandler) written(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(rh.path) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}
