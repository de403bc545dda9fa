package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/client/internal/metrics"
	"github.com/parleyhq/parley/version"
)

func TestInitCommands(t *testing.T) {
	helpFlag := "-h"
	commandArgs := [][]string{{"root", helpFlag}}
	for _, command := range rootCmd.Commands() {
		commandArgs = append(commandArgs, []string{command.Name(), command.Name(), helpFlag})
		for _, subcommand := range command.Commands() {
			commandArgs = append(commandArgs, []string{command.Name() + " " + subcommand.Name(), command.Name(), subcommand.Name(), helpFlag})
		}
	}

	for _, args := range commandArgs {
		t.Run(fmt.Sprintf("Testing Command %s", args[0]), func(t *testing.T) {
			defer func() {
				err := recover()
				if err != nil {
					t.Fatalf("got an panic error while running the command: %s -h. Error: %s", args[0], err)
				}
			}()

			rootCmd.SetArgs(args[1:])
			rootCmd.SetOut(io.Discard)
			if err := rootCmd.Execute(); err != nil {
				t.Errorf("expected no error while running %s command, got %v", args[0], err)
				return
			}
		})
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version()+"\n", out)
}

func writeUpdateConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app-update.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUpdateCheck_InsecureFeed(t *testing.T) {
	cfg := writeUpdateConfig(t, `{"autoUpdate": true, "manifestUrl": "http://updates.example.com/manifest.json"}`)

	out, err := execute(t, "update", "check", "--config", cfg, "--stage-dir", t.TempDir(), "--retry-delay", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must use HTTPS protocol", out)
}

func TestUpdateCheck_Offline(t *testing.T) {
	cfg := writeUpdateConfig(t, `{"autoUpdate": true, "manifestUrl": "https://127.0.0.1:1/manifest.json"}`)

	out, err := execute(t, "update", "check", "--config", cfg, "--stage-dir", t.TempDir(), "--retry-delay", "0", "--metrics")
	require.Error(t, err)
	assert.Contains(t, out, "Update feed: https://127.0.0.1:1")
	assert.Contains(t, out, "Checking for updates...")
	assert.Contains(t, out, "Update failed: Network is offline")
	assert.Contains(t, out, `parley_update_phase_transitions_total{channel="stable",phase="failed"} 1`)
	assert.Contains(t, err.Error(), "Network is offline")
}

func TestUpdateCheck_StructuredOutput(t *testing.T) {
	cfg := writeUpdateConfig(t, `{"autoUpdate": false, "manifestUrl": "https://127.0.0.1:1/manifest.json"}`)

	out, err := execute(t, "update", "check", "--config", cfg, "--stage-dir", t.TempDir(), "--retry-delay", "0", "--metrics=false", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, out, "feedUrl: ")
	assert.Contains(t, out, "phase: failed\n")
	assert.Contains(t, out, "detail: Network is offline\n")
	assert.NotContains(t, out, "Checking for updates")

	_, err = execute(t, "update", "check", "--config", cfg, "--stage-dir", t.TempDir(), "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestMetricsRouter(t *testing.T) {
	m := metrics.NewUpdateMetrics(true)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	m.RecordCheck(context.Background(), "manual")

	srv := httptest.NewServer(metricsRouter(m))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `parley_update_checks_total{channel="unknown",trigger="manual"} 1`)

	resp, err = http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
