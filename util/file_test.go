package util

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	SomeMap   map[string]string
	SomeArray []string
	SomeField int
}

func TestWriteAndReadJson(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "config.json")
	written := &testConfig{
		SomeMap:   map[string]string{"key1": "value1", "key2": "value2"},
		SomeArray: []string{"value1", "value2"},
		SomeField: 99,
	}

	data, err := json.Marshal(written)
	require.NoError(t, err)
	require.NoError(t, WriteBytesWithRestrictedPermission(context.Background(), file, data))

	read, err := ReadJson(file, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, written, read)
}

func TestReadJson_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadJson(filepath.Join(dir, "missing.json"), &testConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o600))
	_, err = ReadJson(broken, &testConfig{})
	require.Error(t, err)

	large := filepath.Join(dir, "large.json")
	require.NoError(t, os.WriteFile(large, make([]byte, maxJsonFileSize+1), 0o600))
	_, err = ReadJson(large, &testConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than")
}

func TestWriteBytesWithRestrictedPermission(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest.json")

	require.NoError(t, WriteBytesWithRestrictedPermission(context.Background(), file, []byte("first")))
	require.NoError(t, WriteBytesWithRestrictedPermission(context.Background(), file, []byte("second")))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(file)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestWriteBytes_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	file := filepath.Join(t.TempDir(), "state.json")
	err := WriteBytesWithRestrictedPermission(ctx, file, []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, FileExists(file))
}
