package cmd

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/util"
)

var (
	defaultConfigPathDir = configDir()
	logLevel             string
	logFile              string
	rootCmd              = &cobra.Command{
		Use:          "parley",
		Short:        "Parley client",
		Long:         "",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.SetFlagsFromEnvVars(cmd.Root())
			util.SetFlagsFromEnvVars(cmd)
			return util.InitLog(logLevel, logFile)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "sets Parley log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", util.LogConsole, "sets Parley log path. If console is specified the log will be output to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)

	updateCmd.AddCommand(updateCheckCmd)
}

func configDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("PROGRAMDATA") + "\\Parley\\"
	}
	return "/etc/parley/"
}

// SetupCloseHandler handles SIGTERM signal and exits with success
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(termCh)
		select {
		case <-ctx.Done():
		case <-termCh:
			log.Info("shutdown signal received")
		}
		cancel()
	}()
}
