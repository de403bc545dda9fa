// Package updatemanager drives update checks for the client: it resolves the
// feed, hands the engine its trust hooks and turns engine events into the
// phase state the UI renders.
package updatemanager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/client/internal/metrics"
	"github.com/parleyhq/parley/client/internal/updatemanager/feed"
	"github.com/parleyhq/parley/client/internal/updatemanager/installer"
	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

const (
	// StartupCheckDelay is how long Start waits before the automatic check
	StartupCheckDelay = 5 * time.Second

	triggerStartup = "startup"
	triggerManual  = "manual"
	triggerConfig  = "config"

	eventBuffer = 64
)

var (
	errNotStarted    = errors.New("update manager is not started")
	errNotConfigured = errors.New("update manager is not configured")
)

// State is what the UI shows about the current update check
type State struct {
	Phase   installer.Phase
	Version string
	Detail  string
	Bytes   int64
	CheckID string
}

// Options configures an UpdateManager
type Options struct {
	CurrentVersion string
	Platform       reposign.Platform
	PreferredTypes []reposign.ArtifactType
	// StartupCheckDelay of zero uses StartupCheckDelay, a negative value disables the startup check
	StartupCheckDelay time.Duration
	Metrics           *metrics.UpdateMetrics
}

type checkDone struct {
	err   error
	flush chan struct{}
}

// item is one entry of the consumer queue. Exactly one field is set.
type item struct {
	begin string
	event *installer.Event
	done  *checkDone
}

// UpdateManager owns the update phase state. Engine events are applied by a
// single consumer goroutine; the mutex is never held across engine calls.
type UpdateManager struct {
	engine   installer.Engine
	verifier *reposign.Verifier
	opts     Options

	events   chan item
	checking atomic.Bool
	wg       sync.WaitGroup

	mu          sync.Mutex
	state       State
	listeners   []func(State)
	policy      reposign.Policy
	configured  bool
	autoUpdate  bool
	runCtx      context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	checkStart  time.Time
}

// NewUpdateManager creates a manager around engine. verifier holds the embedded
// public key; its policy is replaced on every Setup.
func NewUpdateManager(engine installer.Engine, verifier *reposign.Verifier, opts Options) *UpdateManager {
	if opts.Platform == "" {
		opts.Platform = reposign.CurrentPlatform()
	}
	if opts.StartupCheckDelay == 0 {
		opts.StartupCheckDelay = StartupCheckDelay
	}

	return &UpdateManager{
		engine:   engine,
		verifier: verifier,
		opts:     opts,
		events:   make(chan item, eventBuffer),
		state:    State{Phase: installer.PhaseIdle},
		policy:   verifier.Policy(),
	}
}

// Setup resolves the feed and configures the engine with it
func (u *UpdateManager) Setup(dev feed.DevConfig, file feed.FileConfig) (feed.FeedConfiguration, error) {
	cfg, err := feed.Resolve(dev, file, u.opts.CurrentVersion)
	if err != nil {
		return feed.FeedConfiguration{}, err
	}

	u.mu.Lock()
	u.policy = reposign.Policy{
		AllowReinstall:  cfg.ForceDevUpdateConfig,
		AllowPrerelease: cfg.AllowPrerelease,
	}
	u.configured = true
	u.autoUpdate = cfg.AutoUpdate
	u.mu.Unlock()

	u.engine.SetHooks(u)
	u.engine.SetFeedURL(cfg.FeedURL)
	u.engine.SetAutoDownload(cfg.AutoUpdate)
	u.engine.SetAutoInstallOnAppQuit(cfg.AutoUpdate)
	u.engine.SetAllowPrerelease(cfg.AllowPrerelease)

	u.opts.Metrics.SetChannel(metrics.DetermineChannel(cfg.DevModeActive, cfg.AllowPrerelease))

	if cfg.DevModeActive {
		log.Warnf("update dev mode is active, feed %s", cfg.FeedURL)
	} else {
		log.Infof("update feed %s", cfg.FeedURL)
	}
	return cfg, nil
}

// Reload applies a changed config file and, when auto update is on, checks again
func (u *UpdateManager) Reload(ctx context.Context, dev feed.DevConfig, file feed.FileConfig) (feed.FeedConfiguration, error) {
	cfg, err := u.Setup(dev, file)
	if err != nil {
		return cfg, err
	}
	if !cfg.AutoUpdate {
		return cfg, nil
	}

	if err := u.runCheck(ctx, triggerConfig); err != nil && !errors.Is(err, installer.ErrCheckInProgress) {
		log.Debugf("update check after config reload: %v", err)
	}
	return cfg, nil
}

// Start subscribes to the engine and schedules the startup check
func (u *UpdateManager) Start(ctx context.Context) {
	u.mu.Lock()
	if u.cancel != nil {
		u.mu.Unlock()
		log.Errorf("UpdateManager already started")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	u.runCtx = ctx
	u.cancel = cancel
	u.mu.Unlock()

	unsubscribe := u.engine.Subscribe(func(ev installer.Event) {
		u.enqueue(ctx, item{event: &ev})
	})

	u.mu.Lock()
	u.unsubscribe = unsubscribe
	u.mu.Unlock()

	u.wg.Add(1)
	go u.consume(ctx)

	if u.opts.StartupCheckDelay > 0 {
		u.wg.Add(1)
		go u.startupCheck(ctx, u.opts.StartupCheckDelay)
	}
}

// Stop cancels the startup check and stops applying events
func (u *UpdateManager) Stop() {
	u.mu.Lock()
	cancel := u.cancel
	unsubscribe := u.unsubscribe
	u.cancel = nil
	u.unsubscribe = nil
	u.runCtx = nil
	u.mu.Unlock()

	if cancel == nil {
		return
	}

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	u.wg.Wait()
}

// CheckNow runs a manual check and returns once its events have been applied.
// A failed check is also reflected in State.
func (u *UpdateManager) CheckNow(ctx context.Context) error {
	return u.runCheck(ctx, triggerManual)
}

// State returns a copy of the current state
func (u *UpdateManager) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// AddListener registers fn for every applied state change. fn is called from
// the consumer goroutine and must not block.
func (u *UpdateManager) AddListener(fn func(State)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.listeners = append(u.listeners, fn)
}

// VerifyManifest is the engine hook that decides whether a fetched manifest is trusted
func (u *UpdateManager) VerifyManifest(ctx context.Context, data []byte) (*reposign.SignedManifest, reposign.ArtifactDescriptor, error) {
	policy := u.currentPolicy()
	m, artifact, err := u.verifier.WithPolicy(policy).VerifyManifestBytes(data, u.verifyContext())
	if err == nil {
		return m, artifact, nil
	}

	if status.Is(err, status.VersionDowngrade) {
		if reason, ok := u.notAnUpdate(data, policy); ok {
			return nil, reposign.ArtifactDescriptor{}, fmt.Errorf("%w: %s", installer.ErrNoUpdate, reason)
		}
	}

	u.rejected(ctx, "manifest", err)
	return nil, reposign.ArtifactDescriptor{}, publicError(err)
}

// VerifyArtifact is the engine hook that checks a downloaded artifact against the manifest digest
func (u *UpdateManager) VerifyArtifact(ctx context.Context, data []byte, artifact reposign.ArtifactDescriptor) error {
	if err := u.verifier.VerifyArtifact(data, artifact); err != nil {
		u.rejected(ctx, "artifact", err)
		return publicError(err)
	}
	log.Debugf("artifact %s matches the signed digest", artifact.URL)
	return nil
}

func (u *UpdateManager) rejected(ctx context.Context, what string, err error) {
	kind := "unknown"
	if s, ok := status.FromError(err); ok && s != nil {
		kind = s.Type().String()
	}
	log.Warnf("rejected update %s (%s): %v", what, kind, err)
	u.opts.Metrics.RecordVerificationFailure(ctx, kind)
}

// notAnUpdate tells a correctly signed manifest that is merely not newer, or
// is a pre-release while those are off, apart from one that goes backwards
func (u *UpdateManager) notAnUpdate(data []byte, policy reposign.Policy) (string, bool) {
	m, err := reposign.ParseManifest(data)
	if err != nil {
		return "", false
	}
	offered, err := goversion.NewSemver(m.Version)
	if err != nil {
		return "", false
	}
	installed, err := goversion.NewVersion(u.opts.CurrentVersion)
	if err != nil {
		installed = goversion.Must(goversion.NewVersion("0.0.0"))
	}

	switch cmp := offered.Compare(installed); {
	case cmp == 0:
		return fmt.Sprintf("version %s is already installed", offered), true
	case cmp > 0 && offered.Prerelease() != "" && !policy.AllowPrerelease:
		return fmt.Sprintf("pre-release %s skipped", offered), true
	default:
		return "", false
	}
}

func (u *UpdateManager) currentPolicy() reposign.Policy {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.policy
}

func (u *UpdateManager) verifyContext() reposign.Context {
	return reposign.Context{
		CurrentVersion: u.opts.CurrentVersion,
		Platform:       u.opts.Platform,
		PreferredTypes: u.opts.PreferredTypes,
	}
}

func (u *UpdateManager) startupCheck(ctx context.Context, delay time.Duration) {
	defer u.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	u.mu.Lock()
	run := u.configured && u.autoUpdate
	u.mu.Unlock()
	if !run {
		log.Debugf("skipping startup update check, auto update is off or not configured")
		return
	}

	if err := u.runCheck(ctx, triggerStartup); err != nil {
		log.Debugf("startup update check: %v", err)
	}
}

func (u *UpdateManager) runCheck(ctx context.Context, trigger string) error {
	u.mu.Lock()
	runCtx := u.runCtx
	configured := u.configured
	u.mu.Unlock()

	if runCtx == nil {
		return errNotStarted
	}
	if !configured {
		return errNotConfigured
	}
	if !u.checking.CompareAndSwap(false, true) {
		return installer.ErrCheckInProgress
	}
	defer u.checking.Store(false)

	id := uuid.NewString()
	logger := log.WithField("check", id)
	logger.Infof("checking for updates (%s)", trigger)
	u.opts.Metrics.RecordCheck(ctx, trigger)

	if !u.enqueue(runCtx, item{begin: id}) {
		return runCtx.Err()
	}

	err := u.engine.CheckForUpdates(ctx)
	if err != nil {
		logger.Warnf("update check failed: %v", err)
	}

	done := &checkDone{err: err, flush: make(chan struct{})}
	if !u.enqueue(runCtx, item{done: done}) {
		return runCtx.Err()
	}

	select {
	case <-done.flush:
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return runCtx.Err()
	}
	return err
}

func (u *UpdateManager) enqueue(ctx context.Context, it item) bool {
	select {
	case u.events <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

func (u *UpdateManager) consume(ctx context.Context) {
	defer u.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case it := <-u.events:
			u.handle(ctx, it)
		}
	}
}

func (u *UpdateManager) handle(ctx context.Context, it item) {
	switch {
	case it.begin != "":
		u.mu.Lock()
		u.state.CheckID = it.begin
		u.checkStart = time.Now()
		u.mu.Unlock()
	case it.event != nil:
		u.apply(ctx, *it.event)
	case it.done != nil:
		u.finish(ctx, it.done)
	}
}

func (u *UpdateManager) finish(ctx context.Context, done *checkDone) {
	defer close(done.flush)

	// engines are expected to emit failed themselves, this covers those that only return
	if done.err != nil && u.State().Phase != installer.PhaseFailed {
		u.apply(ctx, installer.Event{Phase: installer.PhaseFailed, Detail: done.err.Error()})
	}

	u.mu.Lock()
	outcome := string(u.state.Phase)
	started := u.checkStart
	u.mu.Unlock()

	if !started.IsZero() {
		u.opts.Metrics.RecordCheckDuration(ctx, outcome, time.Since(started))
	}
}

// apply moves the state to ev. Re-applying the current state is a no-op.
func (u *UpdateManager) apply(ctx context.Context, ev installer.Event) {
	if ev.Phase == installer.PhaseFailed {
		ev.Detail = sanitizeDetail(ev.Detail)
	}

	u.mu.Lock()
	if u.state.Phase == ev.Phase && u.state.Version == ev.Version && u.state.Detail == ev.Detail && u.state.Bytes == ev.Bytes {
		u.mu.Unlock()
		return
	}
	u.state.Phase = ev.Phase
	u.state.Version = ev.Version
	u.state.Detail = ev.Detail
	u.state.Bytes = ev.Bytes
	snapshot := u.state
	listeners := slices.Clone(u.listeners)
	u.mu.Unlock()

	logger := log.WithField("check", snapshot.CheckID)
	switch snapshot.Phase {
	case installer.PhaseFailed:
		logger.Warnf("update %s: %s", snapshot.Phase, snapshot.Detail)
	case installer.PhaseDownloading, installer.PhaseVerifying:
		logger.Debugf("update %s %s", snapshot.Phase, snapshot.Version)
	default:
		logger.Infof("update %s %s %s", snapshot.Phase, snapshot.Version, snapshot.Detail)
	}
	u.opts.Metrics.RecordPhase(ctx, string(snapshot.Phase))

	for _, fn := range listeners {
		fn(snapshot)
	}
}
