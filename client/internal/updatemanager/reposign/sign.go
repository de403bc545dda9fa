package reposign

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
	"github.com/parleyhq/parley/util"
)

const maxParallelHashes = 4

var nowFunc = time.Now

// Generate scans dir for release artifacts, hashes them with hashFn (SHA256File
// when nil) and returns a manifest for version signed with privateKeyPEM.
func Generate(dir, version string, privateKeyPEM []byte, hashFn HashFunc) (*SignedManifest, error) {
	if hashFn == nil {
		hashFn = SHA256File
	}

	if _, err := goversion.NewSemver(version); err != nil {
		return nil, fmt.Errorf("invalid release version %q: %w", version, err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Debugf("stat release directory %s: %v", dir, err)
		}
		return nil, status.Errorf(status.DirectoryNotFound, "release directory not found: %s", dir)
	}

	artifacts, err := scanArtifacts(dir)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, status.Errorf(status.NoArtifactsFound, "no release artifacts found in %s", dir)
	}

	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	if err := hashArtifacts(dir, artifacts, hashFn); err != nil {
		return nil, err
	}

	unsigned := UnsignedManifest{
		Version:   version,
		Artifacts: artifacts,
		CreatedAt: nowFunc().UTC().Format(CreatedAtLayout),
	}

	signed, err := SignManifest(unsigned, key)
	if err != nil {
		return nil, err
	}

	log.Debugf("generated manifest for %s with %d artifacts, key %s", version, len(artifacts), key.ID)
	return signed, nil
}

// SignManifest signs the canonical form of m
func SignManifest(m UnsignedManifest, key PrivateKey) (*SignedManifest, error) {
	payload, err := m.CanonicalJSON()
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key.Key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}

	return &SignedManifest{
		UnsignedManifest: m,
		Signature:        base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// WriteManifest atomically writes m as manifest.json into dir and returns its path
func WriteManifest(ctx context.Context, dir string, m *SignedManifest) (string, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestFileName)
	if err := util.WriteBytesWithRestrictedPermission(ctx, path, data); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// scanArtifacts lists dir and returns one descriptor per recognized regular
// file, in listing order, with empty digests
func scanArtifacts(dir string) ([]ArtifactDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read release directory: %w", err)
	}

	var artifacts []ArtifactDescriptor
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		kind, ok := DetectArtifact(entry.Name())
		if !ok {
			log.Tracef("skipping non-artifact %s", entry.Name())
			continue
		}
		artifacts = append(artifacts, ArtifactDescriptor{
			URL:      entry.Name(),
			Platform: kind.Platform,
			Type:     kind.Type,
		})
	}
	return artifacts, nil
}

// hashArtifacts fills in the digests. Each worker writes only its own slot,
// so completion order never changes the artifact order.
func hashArtifacts(dir string, artifacts []ArtifactDescriptor, hashFn HashFunc) error {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(min(maxParallelHashes, runtime.GOMAXPROCS(0)))

	for i := range artifacts {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			name := artifacts[i].URL
			digest, err := hashFn(filepath.Join(dir, name))
			if err != nil {
				return fmt.Errorf("hash %s: %w", name, err)
			}

			digest = strings.ToLower(strings.TrimSpace(digest))
			if !isSHA256Hex(digest) {
				return fmt.Errorf("hash %s: digest %q is not a SHA-256 hex string", name, digest)
			}
			artifacts[i].SHA256 = digest
			return nil
		})
	}

	return g.Wait()
}
