package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/client/internal/updatemanager/status"
	"github.com/parleyhq/parley/client/internal/updatemanager/updatekey"
)

type verifyOptions struct {
	manifestFile    string
	publicKeyFile   string
	currentVersion  string
	platform        string
	allowPrerelease bool
	artifactFile    string
}

func newVerifyManifestCmd() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify-manifest",
		Short: "Verify a manifest signature and, with --platform, select its artifact",
		Long: `Verify manifest.json against the release public key. Without --platform only the
signature is checked. With --platform the version policy is applied against
--current-version and the artifact the client would download is printed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleVerifyManifest(cmd, opts)
		},
	}

	opts.addManifestFlags(cmd)
	cmd.Flags().StringVar(&opts.currentVersion, "current-version", "0.0.0", "Installed version the manifest is compared with")
	cmd.Flags().StringVar(&opts.platform, "platform", "", "Client platform (darwin, linux, win32)")
	cmd.Flags().BoolVar(&opts.allowPrerelease, "allow-prerelease", false, "Accept pre-release manifests")
	return cmd
}

func newVerifyArtifactCmd() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:          "verify-artifact",
		Short:        "Verify a downloaded artifact against a signed manifest",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleVerifyArtifact(cmd, opts)
		},
	}

	opts.addManifestFlags(cmd)
	cmd.Flags().StringVar(&opts.artifactFile, "artifact", "", "Path to the artifact, matched to the manifest by file name")
	if err := cmd.MarkFlagRequired("artifact"); err != nil {
		panic(err)
	}
	return cmd
}

func (o *verifyOptions) addManifestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.manifestFile, "manifest", "", "Path to manifest.json")
	cmd.Flags().StringVar(&o.publicKeyFile, "public-key-file", "", "Path to the PEM public key (default: the key embedded in the client)")
	if err := cmd.MarkFlagRequired("manifest"); err != nil {
		panic(err)
	}
}

func (o *verifyOptions) verifier() (*reposign.Verifier, error) {
	policy := reposign.Policy{AllowPrerelease: o.allowPrerelease}
	if o.publicKeyFile == "" {
		v, err := updatekey.Verifier()
		if err != nil {
			return nil, err
		}
		return v.WithPolicy(policy), nil
	}

	pubPEM, err := os.ReadFile(o.publicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}
	return reposign.NewVerifier(pubPEM, policy)
}

func (o *verifyOptions) load() (*reposign.Verifier, *reposign.SignedManifest, error) {
	v, err := o.verifier()
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(o.manifestFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := reposign.ParseManifest(data)
	if err != nil {
		return nil, nil, err
	}

	if !v.VerifySignature(*m) {
		return nil, nil, status.Errorf(status.SignatureInvalid, "manifest signature does not match key %s", v.KeyID())
	}
	return v, m, nil
}

func handleVerifyManifest(cmd *cobra.Command, opts *verifyOptions) error {
	v, m, err := opts.load()
	if err != nil {
		return err
	}
	cmd.Printf("Signature valid for key %s, version %s, created %s\n", v.KeyID(), m.Version, m.CreatedAt)

	if opts.platform == "" {
		for _, a := range m.Artifacts {
			cmd.Printf("  %-8s %-8s %s\n", a.Platform, a.Type, a.URL)
		}
		return nil
	}

	artifact, err := v.VerifyManifest(*m, reposign.Context{
		CurrentVersion: opts.currentVersion,
		Platform:       reposign.Platform(opts.platform),
	})
	if err != nil {
		return err
	}
	cmd.Printf("✅ %s would install %s (%s)\n", opts.platform, artifact.URL, artifact.Type)
	return nil
}

func handleVerifyArtifact(cmd *cobra.Command, opts *verifyOptions) error {
	v, m, err := opts.load()
	if err != nil {
		return err
	}

	name := filepath.Base(opts.artifactFile)
	var descriptor *reposign.ArtifactDescriptor
	for i := range m.Artifacts {
		if m.Artifacts[i].URL == name {
			descriptor = &m.Artifacts[i]
			break
		}
	}
	if descriptor == nil {
		return status.Errorf(status.NoMatchingArtifact, "manifest %s does not list %s", m.Version, name)
	}

	data, err := os.ReadFile(opts.artifactFile)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := v.VerifyArtifact(data, *descriptor); err != nil {
		return err
	}

	cmd.Printf("✅ %s matches manifest %s\n", name, m.Version)
	return nil
}
