// Package publish uploads a signed release directory to an S3 compatible bucket.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

const (
	maxParallelUploads = 4

	artifactContentType  = "application/octet-stream"
	manifestContentType  = "application/json"
	manifestCacheControl = "no-cache"
)

// ObjectPutter is the subset of the S3 client used for publishing
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher writes artifacts and their manifest under prefix in bucket
type Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
}

func New(client ObjectPutter, bucket, prefix string) (*Publisher, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// NewS3 builds a Publisher from the default AWS configuration chain. A non
// empty endpoint switches to path style addressing for S3 compatible stores.
func NewS3(ctx context.Context, bucket, prefix, region, endpoint string) (*Publisher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, bucket, prefix)
}

// Key returns the object key name is stored under
func (p *Publisher) Key(name string) string {
	return path.Join(p.prefix, name)
}

// Publish uploads the artifacts of m found in dir, then manifest.json.
// Artifacts are checked against the manifest hashes before anything is
// uploaded and the manifest is only written once every artifact is stored.
func (p *Publisher) Publish(ctx context.Context, dir string, m *reposign.SignedManifest) ([]string, error) {
	if len(m.Artifacts) == 0 {
		return nil, status.Errorf(status.NoArtifactsFound, "manifest %s lists no artifacts", m.Version)
	}

	for _, a := range m.Artifacts {
		if err := checkArtifact(dir, a); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for _, a := range m.Artifacts {
		g.Go(func() error {
			return p.putFile(gctx, a.URL, filepath.Join(dir, a.URL))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data, err := m.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	manifestKey := p.Key(reposign.ManifestFileName)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(manifestKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(manifestContentType),
		CacheControl:  aws.String(manifestCacheControl),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", manifestKey, err)
	}
	log.Infof("published manifest %s to s3://%s/%s", m.Version, p.bucket, manifestKey)

	keys := make([]string, 0, len(m.Artifacts)+1)
	for _, a := range m.Artifacts {
		keys = append(keys, p.Key(a.URL))
	}
	return append(keys, manifestKey), nil
}

func (p *Publisher) putFile(ctx context.Context, name, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Debugf("failed to close %s: %v", file, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	key := p.Key(name)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(artifactContentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	log.Debugf("uploaded %s (%d bytes)", key, info.Size())
	return nil
}

func checkArtifact(dir string, a reposign.ArtifactDescriptor) error {
	if filepath.Base(a.URL) != a.URL {
		return status.Errorf(status.MalformedManifest, "artifact %q is not a plain file name", a.URL)
	}

	sum, err := reposign.SHA256File(filepath.Join(dir, a.URL))
	if err != nil {
		return fmt.Errorf("hash %s: %w", a.URL, err)
	}
	if !strings.EqualFold(sum, a.SHA256) {
		return status.Errorf(status.HashMismatch, "artifact %s changed after signing", a.URL)
	}
	return nil
}
