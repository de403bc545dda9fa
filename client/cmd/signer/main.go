package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/util"
)

type rootOptions struct {
	logLevel string
	logFile  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "signer",
		Short: "Sign and verify Parley release manifests",
		Long: `Create release signing keys, sign the installers of a release directory into
manifest.json, verify manifests and artifacts and publish releases to S3.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.SetFlagsFromEnvVars(cmd.Root())
			util.SetFlagsFromEnvVars(cmd)
			return util.InitLog(opts.logLevel, opts.logFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "sets log level")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", util.LogConsole, "sets log path. If console is specified the log will be output to stderr")

	cmd.AddCommand(newCreateKeyCmd())
	cmd.AddCommand(newGenerateManifestCmd())
	cmd.AddCommand(newVerifyManifestCmd())
	cmd.AddCommand(newVerifyArtifactCmd())
	cmd.AddCommand(newPublishCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
