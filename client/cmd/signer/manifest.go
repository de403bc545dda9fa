package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/client/internal/updatemanager"
	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
)

type generateOptions struct {
	dir            string
	version        string
	privateKey     string
	privateKeyFile string
	dryRun         bool
}

func newGenerateManifestCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate-manifest",
		Short: "Sign the installers of a release directory into manifest.json",
		Long: `Hash every recognized installer (.dmg, .zip, .AppImage, .exe) in --dir, sign the
result with the release private key and write manifest.json next to the artifacts.

The private key is read from --private-key (PEM contents, usually supplied as
PARLEY_PRIVATE_KEY or through the systemd credentials directory) or from
--private-key-file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handleGenerateManifest(cmd, opts); err != nil {
				return fmt.Errorf("failed to generate manifest: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Release directory holding the installers")
	cmd.Flags().StringVar(&opts.version, "version", "", "Release version, e.g. 1.4.0 or 1.5.0-beta.1")
	cmd.Flags().StringVar(&opts.privateKey, "private-key", "", "PEM encoded private key contents")
	cmd.Flags().StringVar(&opts.privateKeyFile, "private-key-file", "", "Path to the PEM encoded private key")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the manifest instead of writing it")

	if err := cmd.MarkFlagRequired("dir"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("version"); err != nil {
		panic(err)
	}
	return cmd
}

func (o *generateOptions) keyPEM() ([]byte, error) {
	switch {
	case o.privateKey != "" && o.privateKeyFile != "":
		return nil, errors.New("--private-key and --private-key-file are mutually exclusive")
	case o.privateKey != "":
		return []byte(o.privateKey), nil
	case o.privateKeyFile != "":
		data, err := os.ReadFile(o.privateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("one of --private-key or --private-key-file is required")
	}
}

func handleGenerateManifest(cmd *cobra.Command, opts *generateOptions) error {
	keyPEM, err := opts.keyPEM()
	if err != nil {
		return err
	}

	manifest, err := reposign.Generate(opts.dir, strings.TrimPrefix(opts.version, "v"), keyPEM, nil)
	if err != nil {
		return err
	}

	if opts.dryRun {
		data, err := manifest.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	path, err := reposign.WriteManifest(cmd.Context(), opts.dir, manifest)
	if err != nil {
		return err
	}

	cmd.Printf("Signed %d artifacts for version %s:\n", len(manifest.Artifacts), manifest.Version)
	for _, a := range manifest.Artifacts {
		cmd.Printf("  %-8s %-8s %10s  %s\n", a.Platform, a.Type, artifactSize(opts.dir, a.URL), a.URL)
	}
	cmd.Printf("✅ Manifest written to %s\n", path)
	return nil
}

func artifactSize(dir, name string) string {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		log.Debugf("stat %s: %v", name, err)
		return "?"
	}
	return updatemanager.FormatBytes(float64(info.Size()))
}
