package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
	"github.com/parleyhq/parley/version"
)

func TestResolve_ReleaseBuildIgnoresFileDevFlags(t *testing.T) {
	poisoned := FileConfig{
		AutoUpdate:           true,
		ForceDevUpdateConfig: true,
		AllowPrerelease:      true,
		DevUpdateSource:      "http://attacker.example/feed",
	}

	cfg, err := Resolve(DevConfig{}, poisoned, "1.0.0")
	require.NoError(t, err)

	assert.False(t, cfg.ForceDevUpdateConfig)
	assert.False(t, cfg.AllowPrerelease)
	assert.Empty(t, cfg.DevUpdateSource)
	assert.False(t, cfg.DevModeActive)
	assert.Equal(t, version.ReleaseFeedURL("1.0.0"), cfg.FeedURL)
}

func TestResolve_ReleaseBuildAllFileCombinations(t *testing.T) {
	for _, force := range []bool{false, true} {
		for _, pre := range []bool{false, true} {
			for _, src := range []string{"", "https://dev.example/feed"} {
				file := FileConfig{ForceDevUpdateConfig: force, AllowPrerelease: pre, DevUpdateSource: src}
				cfg, err := Resolve(DevConfig{}, file, "1.0.0")
				require.NoError(t, err)
				assert.False(t, cfg.ForceDevUpdateConfig, "%+v", file)
				assert.False(t, cfg.AllowPrerelease, "%+v", file)
				assert.Empty(t, cfg.DevUpdateSource, "%+v", file)
			}
		}
	}
}

func TestResolve_DevModeHonoursFileFlags(t *testing.T) {
	dev := DevConfig{ForceDevUpdateConfig: true}
	file := FileConfig{AllowPrerelease: true, DevUpdateSource: "http://localhost:8080/feed"}

	cfg, err := Resolve(dev, file, "1.0.0")
	require.NoError(t, err)

	assert.True(t, cfg.DevModeActive)
	assert.True(t, cfg.ForceDevUpdateConfig)
	assert.True(t, cfg.AllowPrerelease)
	assert.Equal(t, "http://localhost:8080/feed", cfg.DevUpdateSource)
	assert.Equal(t, "http://localhost:8080/feed", cfg.FeedURL)
}

func TestResolve_FeedPrecedence(t *testing.T) {
	tests := []struct {
		name string
		dev  DevConfig
		file FileConfig
		want string
	}{
		{
			name: "dev source wins",
			dev:  DevConfig{DevUpdateSource: "https://dev.example/feed"},
			file: FileConfig{ManifestURL: "https://cdn.example/releases/manifest.json", DevUpdateSource: "https://other.example"},
			want: "https://dev.example/feed",
		},
		{
			name: "file dev source in dev mode",
			dev:  DevConfig{AllowPrerelease: true},
			file: FileConfig{ManifestURL: "https://cdn.example/releases/manifest.json", DevUpdateSource: "https://other.example"},
			want: "https://other.example",
		},
		{
			name: "manifest url with suffix stripped",
			file: FileConfig{ManifestURL: "https://cdn.example/releases/manifest.json"},
			want: "https://cdn.example/releases",
		},
		{
			name: "manifest url without suffix",
			file: FileConfig{ManifestURL: "https://cdn.example/releases"},
			want: "https://cdn.example/releases",
		},
		{
			name: "default release feed",
			want: version.ReleaseFeedURL("2.3.4"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(tt.dev, tt.file, "2.3.4")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.FeedURL)
		})
	}
}

func TestResolve_ProtocolDependsOnDevMode(t *testing.T) {
	httpFeed := FileConfig{ManifestURL: "http://cdn.example/releases/manifest.json"}
	fileFeed := FileConfig{ManifestURL: "file:///srv/releases/manifest.json"}

	_, err := Resolve(DevConfig{}, httpFeed, "1.0.0")
	require.Error(t, err)
	assert.True(t, status.Is(err, status.InsecureProtocol), err.Error())

	_, err = Resolve(DevConfig{}, fileFeed, "1.0.0")
	require.Error(t, err)
	assert.True(t, status.Is(err, status.InsecureProtocol), err.Error())

	dev := DevConfig{ForceDevUpdateConfig: true}

	cfg, err := Resolve(dev, httpFeed, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example/releases", cfg.FeedURL)

	cfg, err = Resolve(dev, fileFeed, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/releases", cfg.FeedURL)

	_, err = Resolve(dev, FileConfig{ManifestURL: "ftp://cdn.example/manifest.json"}, "1.0.0")
	require.Error(t, err)
	assert.True(t, status.Is(err, status.UnsupportedProtocol), err.Error())
}

func TestResolve_AutoUpdatePassthrough(t *testing.T) {
	cfg, err := Resolve(DevConfig{}, FileConfig{AutoUpdate: false}, "1.0.0")
	require.NoError(t, err)
	assert.False(t, cfg.AutoUpdate)

	cfg, err = Resolve(DevConfig{}, DefaultFileConfig(), "1.0.0")
	require.NoError(t, err)
	assert.True(t, cfg.AutoUpdate)
}

func TestDevConfig_Active(t *testing.T) {
	assert.False(t, DevConfig{}.Active())
	assert.False(t, DevConfig{DevUpdateSource: "   "}.Active())
	assert.True(t, DevConfig{ForceDevUpdateConfig: true}.Active())
	assert.True(t, DevConfig{DevUpdateSource: "https://dev.example"}.Active())
	assert.True(t, DevConfig{AllowPrerelease: true}.Active())
}
