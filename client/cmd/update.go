package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/client/internal/metrics"
	"github.com/parleyhq/parley/client/internal/updatemanager"
	"github.com/parleyhq/parley/client/internal/updatemanager/downloader"
	"github.com/parleyhq/parley/client/internal/updatemanager/feed"
	"github.com/parleyhq/parley/client/internal/updatemanager/installer"
	"github.com/parleyhq/parley/client/internal/updatemanager/updatekey"
	"github.com/parleyhq/parley/version"
)

var (
	updateConfigPath string
	updateStageDir   string
	updateRetryDelay time.Duration
	maxArtifactSize  int64
	watchUpdateCfg   bool
	printMetrics     bool
	metricsAddr      string
	updateOutput     string

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Manage Parley updates",
	}

	updateCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Check the update feed and stage a verified update",
		Long: `Resolve the update feed from the build and the update config file, fetch the
signed manifest, verify it against the embedded release key and, when auto
update is enabled, download and verify the installer for this platform.

With --watch the command keeps running and checks again whenever the config
file changes.`,
		RunE: runUpdateCheck,
	}
)

func init() {
	updateCheckCmd.Flags().StringVarP(&updateConfigPath, "config", "c", defaultConfigPathDir+feed.ConfigFileName, "Update config file location")
	updateCheckCmd.Flags().StringVar(&updateStageDir, "stage-dir", filepath.Join(os.TempDir(), "parley-updates"), "Directory verified installers are staged in")
	updateCheckCmd.Flags().DurationVar(&updateRetryDelay, "retry-delay", downloader.DefaultRetryDelay, "Initial delay between download retries, 0 disables retries")
	updateCheckCmd.Flags().Int64Var(&maxArtifactSize, "max-artifact-size", installer.DefaultMaxArtifactSize, "Largest installer download accepted, in bytes")
	updateCheckCmd.Flags().BoolVar(&watchUpdateCfg, "watch", false, "Keep running and check again when the config file changes")
	updateCheckCmd.Flags().BoolVar(&printMetrics, "metrics", false, "Print update metrics in Prometheus text format when done")
	updateCheckCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve update metrics on this address at /metrics while the command runs, e.g. 127.0.0.1:9091")
	updateCheckCmd.Flags().StringVarP(&updateOutput, "output", "o", outputText, "Output format: text, json or yaml")
}

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// updateCheckOutput is the final check state in json and yaml output
type updateCheckOutput struct {
	FeedURL string `json:"feedUrl" yaml:"feedUrl"`
	Phase   string `json:"phase" yaml:"phase"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Bytes   int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Size    string `json:"size,omitempty" yaml:"size,omitempty"`
	CheckID string `json:"checkId,omitempty" yaml:"checkId,omitempty"`
}

func writeUpdateCheckOutput(w io.Writer, format string, out updateCheckOutput) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func runUpdateCheck(cmd *cobra.Command, args []string) error {
	structured := updateOutput != outputText
	if structured && updateOutput != outputJSON && updateOutput != outputYAML {
		return fmt.Errorf("unknown output format: %s", updateOutput)
	}
	if structured && watchUpdateCfg {
		return fmt.Errorf("--output %s cannot be combined with --watch", updateOutput)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	file, err := feed.LoadFileConfig(updateConfigPath)
	if err != nil {
		log.Warnf("ignoring update config %s: %v", updateConfigPath, err)
		cmd.PrintErrf("Ignoring invalid update config, using defaults: %v\n", err)
		file = feed.DefaultFileConfig()
	}

	verifier, err := updatekey.Verifier()
	if err != nil {
		return fmt.Errorf("load release key: %w", err)
	}

	updateMetrics := metrics.NewUpdateMetrics(printMetrics || metricsAddr != "")
	defer func() {
		if err := updateMetrics.Shutdown(context.Background()); err != nil {
			log.Debugf("failed to shut down update metrics: %v", err)
		}
	}()
	if metricsAddr != "" {
		stopServer := serveMetrics(metricsAddr, updateMetrics)
		defer stopServer()
	}

	engine := installer.NewFeedEngine(updateStageDir)
	engine.SetRetryDelay(updateRetryDelay)
	if maxArtifactSize > 0 {
		engine.SetMaxArtifactSize(maxArtifactSize)
	}

	if version.IsDevelopment() {
		log.Warnf("development build, any published release is treated as newer")
	}

	manager := updatemanager.NewUpdateManager(engine, verifier, updatemanager.Options{
		CurrentVersion:    version.Version(),
		StartupCheckDelay: -1,
		Metrics:           updateMetrics,
	})
	if !structured {
		manager.AddListener(func(s updatemanager.State) {
			printUpdateState(cmd, s)
		})
	}

	dev := feed.DevConfigFromBuild()
	cfg, err := manager.Setup(dev, file)
	if err != nil {
		return fmt.Errorf("configure update feed: %w", err)
	}
	if !structured {
		cmd.Printf("Update feed: %s\n", cfg.FeedURL)
	}

	manager.Start(ctx)
	checkErr := manager.CheckNow(ctx)

	if watchUpdateCfg {
		SetupCloseHandler(ctx, cancel)
		err := feed.WatchFileConfig(ctx, updateConfigPath, func(file feed.FileConfig, err error) {
			if err != nil {
				log.Warnf("update config changed but is invalid: %v", err)
				return
			}
			if _, err := manager.Reload(ctx, dev, file); err != nil {
				log.Warnf("failed to apply update config: %v", err)
			}
		})
		if err != nil {
			manager.Stop()
			return err
		}
		<-ctx.Done()
		checkErr = nil
	}
	manager.Stop()

	if structured {
		s := manager.State()
		out := updateCheckOutput{
			FeedURL: cfg.FeedURL,
			Phase:   string(s.Phase),
			Version: s.Version,
			Detail:  s.Detail,
			Bytes:   s.Bytes,
			CheckID: s.CheckID,
		}
		if s.Bytes > 0 {
			out.Size = updatemanager.FormatBytes(float64(s.Bytes))
		}
		if err := writeUpdateCheckOutput(cmd.OutOrStdout(), updateOutput, out); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	if printMetrics {
		if err := updateMetrics.Export(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("export metrics: %w", err)
		}
	}

	if checkErr != nil {
		return fmt.Errorf("update check failed: %s", manager.State().Detail)
	}
	return nil
}

func metricsRouter(m *metrics.UpdateMetrics) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	return router
}

// serveMetrics exposes m at /metrics on addr until the returned func is called
func serveMetrics(addr string, m *metrics.UpdateMetrics) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           metricsRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("serving update metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warnf("failed to stop metrics server: %v", err)
		}
	}
}

func printUpdateState(cmd *cobra.Command, s updatemanager.State) {
	switch s.Phase {
	case installer.PhaseChecking:
		cmd.Println("Checking for updates...")
	case installer.PhaseAvailable:
		cmd.Printf("Update %s available\n", s.Version)
	case installer.PhaseDownloading:
		cmd.Printf("Downloading %s...\n", s.Detail)
	case installer.PhaseVerifying:
		cmd.Printf("Verifying %s (%s)\n", s.Detail, updatemanager.FormatBytes(float64(s.Bytes)))
	case installer.PhaseReady:
		cmd.Printf("Update %s ready to install: %s (%s)\n", s.Version, s.Detail, updatemanager.FormatBytes(float64(s.Bytes)))
	case installer.PhaseFailed:
		cmd.Printf("Update failed: %s\n", s.Detail)
	case installer.PhaseIdle:
		if s.Detail != "" {
			cmd.Println(s.Detail)
		}
	}
}
