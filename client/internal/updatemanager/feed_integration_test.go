package updatemanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/client/internal/updatemanager/feed"
	"github.com/parleyhq/parley/client/internal/updatemanager/installer"
	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
)

type releaseFeed struct {
	srv *httptest.Server

	mu        sync.Mutex
	manifest  []byte
	artifacts map[string][]byte
}

func newReleaseFeed(t *testing.T) *releaseFeed {
	t.Helper()
	f := &releaseFeed{artifacts: make(map[string][]byte)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.URL.Path == "/releases/manifest.json" && f.manifest != nil {
			_, _ = w.Write(f.manifest)
			return
		}
		for name, data := range f.artifacts {
			if r.URL.Path == "/releases/"+name {
				_, _ = w.Write(data)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// publish signs a manifest for data and serves both. served replaces the
// artifact bytes actually returned by the server when set.
func (f *releaseFeed) publish(t *testing.T, key reposign.PrivateKey, version string, data, served []byte) {
	t.Helper()
	name := "Parley Setup " + version + ".exe"
	signed, err := reposign.SignManifest(reposign.UnsignedManifest{
		Version: version,
		Artifacts: []reposign.ArtifactDescriptor{{
			URL:      name,
			SHA256:   reposign.SHA256Hex(data),
			Platform: reposign.PlatformWin32,
			Type:     reposign.TypeEXE,
		}},
		CreatedAt: "2024-06-01T12:00:00.000Z",
	}, key)
	require.NoError(t, err)
	manifest, err := signed.MarshalJSON()
	require.NoError(t, err)

	if served == nil {
		served = data
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifest = manifest
	f.artifacts[name] = served
}

func newFeedManager(t *testing.T, f *releaseFeed, currentVersion string) (*UpdateManager, reposign.PrivateKey) {
	t.Helper()
	engine := installer.NewFeedEngine(t.TempDir())
	engine.SetRetryDelay(0)

	m, key, _ := newTestManager(t, engine, Options{CurrentVersion: currentVersion})

	// plain http feeds need a dev build
	dev := feed.DevConfig{DevUpdateSource: f.srv.URL + "/releases"}
	_, err := m.Setup(dev, feed.FileConfig{AutoUpdate: true})
	require.NoError(t, err)

	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m, key
}

func TestFeed_StagesVerifiedUpdate(t *testing.T) {
	f := newReleaseFeed(t)
	m, key := newFeedManager(t, f, "1.0.0")
	payload := []byte("installer payload")
	f.publish(t, key, "1.2.0", payload, nil)

	require.NoError(t, m.CheckNow(context.Background()))

	s := m.State()
	require.Equal(t, installer.PhaseReady, s.Phase, s.Detail)
	assert.Equal(t, "1.2.0", s.Version)
	assert.Equal(t, int64(len(payload)), s.Bytes)

	staged, err := os.ReadFile(s.Detail)
	require.NoError(t, err)
	assert.Equal(t, payload, staged)
}

func TestFeed_CorruptedDownload(t *testing.T) {
	f := newReleaseFeed(t)
	m, key := newFeedManager(t, f, "1.0.0")
	f.publish(t, key, "1.2.0", []byte("installer payload"), []byte("installer pay1oad"))

	require.Error(t, m.CheckNow(context.Background()))

	s := m.State()
	assert.Equal(t, installer.PhaseFailed, s.Phase)
	assert.Equal(t, "Downloaded update is corrupted", s.Detail)
}

func TestFeed_ForeignSignature(t *testing.T) {
	f := newReleaseFeed(t)
	m, _ := newFeedManager(t, f, "1.0.0")
	_, foreign := testVerifier(t)
	f.publish(t, foreign, "1.2.0", []byte("installer payload"), nil)

	require.Error(t, m.CheckNow(context.Background()))

	s := m.State()
	assert.Equal(t, installer.PhaseFailed, s.Phase)
	assert.Equal(t, "Update signature verification failed", s.Detail)
}

func TestFeed_UpToDate(t *testing.T) {
	f := newReleaseFeed(t)
	m, key := newFeedManager(t, f, "1.2.0")
	f.publish(t, key, "1.2.0", []byte("installer payload"), nil)

	require.NoError(t, m.CheckNow(context.Background()))

	s := m.State()
	assert.Equal(t, installer.PhaseIdle, s.Phase)
	assert.Equal(t, installer.UpToDateDetail, s.Detail)
}

func TestFeed_Downgrade(t *testing.T) {
	f := newReleaseFeed(t)
	m, key := newFeedManager(t, f, "2.0.0")
	f.publish(t, key, "1.2.0", []byte("installer payload"), nil)

	require.Error(t, m.CheckNow(context.Background()))

	s := m.State()
	assert.Equal(t, installer.PhaseFailed, s.Phase)
	assert.Equal(t, "Update offers no newer version", s.Detail)
}

func TestFeed_Offline(t *testing.T) {
	f := newReleaseFeed(t)
	m, _ := newFeedManager(t, f, "1.0.0")
	f.srv.Close()

	require.Error(t, m.CheckNow(context.Background()))

	s := m.State()
	assert.Equal(t, installer.PhaseFailed, s.Phase)
	assert.Equal(t, NetworkOfflineDetail, s.Detail)
}
