package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/util"
)

func newCreateKeyCmd() *cobra.Command {
	var privKeyFile, pubKeyFile string

	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create a new release signing key pair",
		Long: `Generate an ECDSA P-256 key pair. The private key signs release manifests in CI,
the public key is embedded into the client.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handleCreateKey(cmd, privKeyFile, pubKeyFile); err != nil {
				return fmt.Errorf("failed to create key: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&privKeyFile, "priv-key-file", "", "Path to output private key file")
	cmd.Flags().StringVar(&pubKeyFile, "pub-key-file", "", "Path to output public key file")

	if err := cmd.MarkFlagRequired("priv-key-file"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("pub-key-file"); err != nil {
		panic(err)
	}
	return cmd
}

func handleCreateKey(cmd *cobra.Command, privKeyFile, pubKeyFile string) error {
	if util.FileExists(privKeyFile) {
		return fmt.Errorf("private key file %s already exists", privKeyFile)
	}

	key, privPEM, pubPEM, err := reposign.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	if err := util.WriteBytesWithRestrictedPermission(cmd.Context(), privKeyFile, privPEM); err != nil {
		return fmt.Errorf("write private key file (%s): %w", privKeyFile, err)
	}

	if err := os.WriteFile(pubKeyFile, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key file (%s): %w", pubKeyFile, err)
	}

	cmd.Printf("key id: %s\n\n", key.ID)
	cmd.Printf("✅ Signing key pair generated successfully.\n")
	return nil
}
