package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/client/internal/updatemanager/publish"
	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

// newPublisher is replaced in tests
var newPublisher = publish.NewS3

type publishOptions struct {
	dir           string
	bucket        string
	prefix        string
	region        string
	endpoint      string
	publicKeyFile string
}

func newPublishCmd() *cobra.Command {
	opts := &publishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a signed release directory to S3",
		Long: `Upload the artifacts listed in <dir>/manifest.json and then the manifest itself
to an S3 compatible bucket. The manifest signature must verify against the
release public key and every artifact must still match its signed hash.

Credentials and region come from the standard AWS environment.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlePublish(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Release directory containing manifest.json and the artifacts")
	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "Destination bucket")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Key prefix, e.g. releases/stable")
	cmd.Flags().StringVar(&opts.region, "region", "", "AWS region (default: from the environment)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Custom S3 endpoint, enables path style addressing")
	cmd.Flags().StringVar(&opts.publicKeyFile, "public-key-file", "", "Path to the PEM public key (default: the key embedded in the client)")
	for _, name := range []string{"dir", "bucket"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func handlePublish(cmd *cobra.Command, opts *publishOptions) error {
	vo := &verifyOptions{
		manifestFile:  filepath.Join(opts.dir, reposign.ManifestFileName),
		publicKeyFile: opts.publicKeyFile,
	}
	v, m, err := vo.load()
	if err != nil {
		if status.Is(err, status.SignatureInvalid) {
			return fmt.Errorf("refusing to publish: %w", err)
		}
		return err
	}

	ctx := cmd.Context()
	p, err := newPublisher(ctx, opts.bucket, opts.prefix, opts.region, opts.endpoint)
	if err != nil {
		return err
	}

	keys, err := p.Publish(ctx, opts.dir, m)
	if err != nil {
		return err
	}

	for _, key := range keys {
		cmd.Printf("  s3://%s/%s\n", opts.bucket, key)
	}
	cmd.Printf("✅ Published %s signed by %s\n", m.Version, v.KeyID())
	return nil
}
