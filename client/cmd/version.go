package cmd

import (
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/version"
)

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "prints Parley version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Version())
		},
	}
)
