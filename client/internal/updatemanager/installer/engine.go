// Package installer holds the contract between the update manager and the
// engine that fetches and stages releases, plus a reference engine that reads
// a signed feed over HTTPS.
package installer

import (
	"context"
	"errors"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
)

// Phase is a step of an update check as reported by the engine
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseChecking    Phase = "checking"
	PhaseDownloading Phase = "downloading"
	PhaseVerifying   Phase = "verifying"
	PhaseAvailable   Phase = "available"
	PhaseReady       Phase = "ready"
	PhaseFailed      Phase = "failed"
)

// UpToDateDetail is the idle detail after a check that found nothing to install
const UpToDateDetail = "Up to date"

// ErrNoUpdate is returned by Hooks.VerifyManifest, possibly wrapped, when the
// feed holds a valid manifest that is simply not an update for this client
var ErrNoUpdate = errors.New("no update available")

// Event is a phase change emitted by an Engine
type Event struct {
	Phase   Phase
	Version string
	Detail  string
	// Bytes is the artifact size once it is known
	Bytes int64
}

// Hooks are the trust decisions the engine delegates. An engine must not stage
// an artifact unless both hooks accepted it.
type Hooks interface {
	VerifyManifest(ctx context.Context, data []byte) (*reposign.SignedManifest, reposign.ArtifactDescriptor, error)
	VerifyArtifact(ctx context.Context, data []byte, artifact reposign.ArtifactDescriptor) error
}

// Engine fetches releases from a feed and reports progress through events
type Engine interface {
	SetFeedURL(url string)
	SetAutoDownload(enabled bool)
	SetAutoInstallOnAppQuit(enabled bool)
	SetAllowPrerelease(enabled bool)
	SetHooks(hooks Hooks)
	CheckForUpdates(ctx context.Context) error
	// Subscribe registers fn for all future events and returns a function that removes it
	Subscribe(fn func(Event)) (unsubscribe func())
}
