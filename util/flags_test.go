package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagsCmd() (*cobra.Command, *string, *string) {
	var key, level string
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	cmd.PersistentFlags().StringVar(&level, "log-level", "info", "")
	cmd.Flags().StringVar(&key, "private-key", "", "")
	return cmd, &key, &level
}

func TestFlagNameToUpper(t *testing.T) {
	assert.Equal(t, "PRIVATE_KEY", flagNameToUpper("private-key"))
	assert.Equal(t, "LOG_LEVEL", flagNameToUpper("log-level"))
}

func TestSetFlagsFromEnvVars(t *testing.T) {
	t.Setenv("PARLEY_LOG_LEVEL", "debug")
	t.Setenv("PARLEY_PRIVATE_KEY", "pem-from-env")

	cmd, key, level := newFlagsCmd()
	SetFlagsFromEnvVars(cmd)

	assert.Equal(t, "debug", *level)
	assert.Equal(t, "pem-from-env", *key)
}

func TestSetFlagsFromEnvVars_CommandLineWins(t *testing.T) {
	t.Setenv("PARLEY_LOG_LEVEL", "debug")

	cmd, _, level := newFlagsCmd()
	require.NoError(t, cmd.PersistentFlags().Set("log-level", "warn"))
	SetFlagsFromEnvVars(cmd)

	assert.Equal(t, "warn", *level)
}

func TestSetFlagsFromEnvVars_CredentialsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PRIVATE_KEY"), []byte("pem-from-creds\n"), 0o600))
	t.Setenv("CREDENTIALS_DIRECTORY", dir)
	t.Setenv("PARLEY_PRIVATE_KEY", "pem-from-env")

	cmd, key, _ := newFlagsCmd()
	SetFlagsFromEnvVars(cmd)

	assert.Equal(t, "pem-from-creds", *key)
}
