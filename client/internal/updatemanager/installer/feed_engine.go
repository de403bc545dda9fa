package installer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/client/internal/updatemanager/downloader"
	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
)

const (
	maxManifestSize = 1 << 20
	// DefaultMaxArtifactSize bounds a single installer download
	DefaultMaxArtifactSize = 1 << 30
	partialSuffix          = ".partial"
)

var (
	// ErrCheckInProgress is returned when CheckForUpdates is called while a check runs
	ErrCheckInProgress = errors.New("update check already in progress")
	errNoHooks         = errors.New("no verification hooks configured")
)

// FeedEngine is the reference Engine. It reads manifest.json from the feed,
// downloads the artifact chosen by the hooks and stages it under stageDir.
type FeedEngine struct {
	stageDir        string
	retryDelay      time.Duration
	maxArtifactSize int64
	results         *ResultHandler

	mu                   sync.Mutex
	feedURL              string
	autoDownload         bool
	autoInstallOnAppQuit bool
	allowPrerelease      bool
	hooks                Hooks

	checking atomic.Bool

	subsMu  sync.Mutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

// NewFeedEngine creates an engine staging downloads in stageDir
func NewFeedEngine(stageDir string) *FeedEngine {
	return &FeedEngine{
		stageDir:        stageDir,
		retryDelay:      downloader.DefaultRetryDelay,
		maxArtifactSize: DefaultMaxArtifactSize,
		results:         NewResultHandler(stageDir),
		subs:            make(map[uint64]func(Event)),
	}
}

// SetRetryDelay sets the initial download retry delay, 0 disables retries
func (e *FeedEngine) SetRetryDelay(d time.Duration) {
	e.retryDelay = d
}

// SetMaxArtifactSize overrides DefaultMaxArtifactSize
func (e *FeedEngine) SetMaxArtifactSize(n int64) {
	e.maxArtifactSize = n
}

// Results gives access to the staging result file
func (e *FeedEngine) Results() *ResultHandler {
	return e.results
}

func (e *FeedEngine) SetFeedURL(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feedURL = url
}

func (e *FeedEngine) SetAutoDownload(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoDownload = enabled
}

func (e *FeedEngine) SetAutoInstallOnAppQuit(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoInstallOnAppQuit = enabled
}

func (e *FeedEngine) SetAllowPrerelease(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowPrerelease = enabled
}

func (e *FeedEngine) SetHooks(hooks Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = hooks
}

// Subscribe registers fn for all future events
func (e *FeedEngine) Subscribe(fn func(Event)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn

	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *FeedEngine) emit(ev Event) {
	e.subsMu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subsMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

type checkSettings struct {
	feedURL              string
	autoDownload         bool
	autoInstallOnAppQuit bool
	allowPrerelease      bool
	hooks                Hooks
}

func (e *FeedEngine) settings() checkSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return checkSettings{
		feedURL:              e.feedURL,
		autoDownload:         e.autoDownload,
		autoInstallOnAppQuit: e.autoInstallOnAppQuit,
		allowPrerelease:      e.allowPrerelease,
		hooks:                e.hooks,
	}
}

// CheckForUpdates runs one check. Failures are reported as a failed event and returned.
func (e *FeedEngine) CheckForUpdates(ctx context.Context) error {
	if !e.checking.CompareAndSwap(false, true) {
		return ErrCheckInProgress
	}
	defer e.checking.Store(false)

	s := e.settings()
	e.emit(Event{Phase: PhaseChecking})

	version, err := e.check(ctx, s)
	if errors.Is(err, ErrNoUpdate) {
		log.Debugf("no update: %v", err)
		e.emit(Event{Phase: PhaseIdle, Detail: UpToDateDetail})
		return nil
	}
	if err != nil {
		e.emit(Event{Phase: PhaseFailed, Version: version, Detail: err.Error()})
		return err
	}
	return nil
}

func (e *FeedEngine) check(ctx context.Context, s checkSettings) (string, error) {
	if s.hooks == nil {
		return "", errNoHooks
	}
	if s.feedURL == "" {
		return "", errors.New("no update feed configured")
	}

	manifestURL, err := feedFileURL(s.feedURL, reposign.ManifestFileName)
	if err != nil {
		return "", err
	}

	data, err := downloader.DownloadToMemory(ctx, e.retryDelay, manifestURL, maxManifestSize)
	if err != nil {
		return "", fmt.Errorf("fetch manifest: %w", err)
	}

	manifest, artifact, err := s.hooks.VerifyManifest(ctx, data)
	if err != nil {
		return "", err
	}
	if err := checkPrerelease(manifest.Version, s.allowPrerelease); err != nil {
		return manifest.Version, err
	}

	e.emit(Event{Phase: PhaseAvailable, Version: manifest.Version, Detail: artifact.URL})
	if !s.autoDownload {
		return manifest.Version, nil
	}

	path, size, err := e.stage(ctx, s, manifest.Version, artifact)
	if err != nil {
		e.writeResult(ctx, Result{Error: err.Error(), Version: manifest.Version})
		return manifest.Version, err
	}

	e.writeResult(ctx, Result{
		Staged:        true,
		Version:       manifest.Version,
		Path:          path,
		InstallOnQuit: s.autoInstallOnAppQuit,
	})
	e.emit(Event{Phase: PhaseReady, Version: manifest.Version, Detail: path, Bytes: size})
	return manifest.Version, nil
}

func (e *FeedEngine) stage(ctx context.Context, s checkSettings, version string, artifact reposign.ArtifactDescriptor) (string, int64, error) {
	name := filepath.Base(artifact.URL)
	if name != artifact.URL || name == "." || name == ".." {
		return "", 0, fmt.Errorf("artifact name %q is not a plain file name", artifact.URL)
	}

	artifactURL, err := feedFileURL(s.feedURL, name)
	if err != nil {
		return "", 0, err
	}

	dst := filepath.Join(e.stageDir, version, name)
	partial := dst + partialSuffix
	defer func() {
		if err := os.Remove(partial); err != nil && !os.IsNotExist(err) {
			log.Warnf("failed to remove partial download %s: %v", partial, err)
		}
	}()

	e.emit(Event{Phase: PhaseDownloading, Version: version, Detail: name})
	if err := downloader.DownloadToFile(ctx, e.retryDelay, artifactURL, partial, e.maxArtifactSize); err != nil {
		return "", 0, fmt.Errorf("download artifact: %w", err)
	}

	data, err := os.ReadFile(partial)
	if err != nil {
		return "", 0, fmt.Errorf("read downloaded artifact: %w", err)
	}

	size := int64(len(data))
	e.emit(Event{Phase: PhaseVerifying, Version: version, Detail: name, Bytes: size})
	if err := s.hooks.VerifyArtifact(ctx, data, artifact); err != nil {
		return "", 0, err
	}

	if err := os.Rename(partial, dst); err != nil {
		return "", 0, fmt.Errorf("stage artifact: %w", err)
	}
	log.Infof("staged update %s at %s", version, dst)
	return dst, size, nil
}

func (e *FeedEngine) writeResult(ctx context.Context, r Result) {
	r.FinishedAt = time.Now().UTC()
	if err := e.results.Write(ctx, r); err != nil {
		log.Warnf("failed to write staging result: %v", err)
	}
}

func checkPrerelease(version string, allowed bool) error {
	if allowed {
		return nil
	}
	v, err := goversion.NewVersion(version)
	if err != nil {
		return fmt.Errorf("manifest version %q: %w", version, err)
	}
	if v.Prerelease() != "" {
		return fmt.Errorf("pre-release %s offered while pre-releases are disabled", version)
	}
	return nil
}

// feedFileURL appends a file name to the feed base URL
func feedFileURL(feedURL, name string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil {
		return "", fmt.Errorf("parse feed URL: %w", err)
	}
	return u.JoinPath(name).String(), nil
}
