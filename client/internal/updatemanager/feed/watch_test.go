package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFileConfig(t *testing.T) {
	path := writeConfig(t, `{"autoUpdate": true}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan FileConfig, 10)
	err := WatchFileConfig(ctx, path, func(cfg FileConfig, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"autoUpdate": false}`), 0o600))

	select {
	case cfg := <-changes:
		assert.False(t, cfg.AutoUpdate)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not reported")
	}
}

func TestWatchFileConfig_MissingDirectory(t *testing.T) {
	err := WatchFileConfig(context.Background(), filepath.Join(t.TempDir(), "missing", ConfigFileName), func(FileConfig, error) {})
	require.Error(t, err)
}
