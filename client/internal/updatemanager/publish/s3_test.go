package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

type storedObject struct {
	body         []byte
	contentType  string
	cacheControl string
}

type fakeBucket struct {
	mu      sync.Mutex
	order   []string
	objects map[string]storedObject
	failKey string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string]storedObject)}
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == b.failKey {
		return nil, errors.New("access denied")
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = append(b.order, key)
	b.objects[aws.ToString(in.Bucket)+"/"+key] = storedObject{
		body:         body,
		contentType:  aws.ToString(in.ContentType),
		cacheControl: aws.ToString(in.CacheControl),
	}
	return &s3.PutObjectOutput{}, nil
}

func signedRelease(t *testing.T) (string, *reposign.SignedManifest) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"Parley-2.0.0.dmg":       "dmg bytes",
		"Parley-2.0.0.AppImage":  "appimage bytes",
		"Parley Setup 2.0.0.exe": "exe bytes",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	_, privPEM, _, err := reposign.GenerateKey()
	require.NoError(t, err)
	m, err := reposign.Generate(dir, "2.0.0", privPEM, nil)
	require.NoError(t, err)
	return dir, m
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(newFakeBucket(), "", "releases")
	require.Error(t, err)
}

func TestPublisher_Key(t *testing.T) {
	p, err := New(newFakeBucket(), "downloads", "/releases/2.0.0/")
	require.NoError(t, err)
	assert.Equal(t, "releases/2.0.0/manifest.json", p.Key("manifest.json"))

	p, err = New(newFakeBucket(), "downloads", "")
	require.NoError(t, err)
	assert.Equal(t, "manifest.json", p.Key("manifest.json"))
}

func TestPublish_ManifestLast(t *testing.T) {
	dir, m := signedRelease(t)
	bucket := newFakeBucket()
	p, err := New(bucket, "downloads", "stable")
	require.NoError(t, err)

	keys, err := p.Publish(context.Background(), dir, m)
	require.NoError(t, err)
	require.Len(t, keys, 4)
	assert.Equal(t, "stable/manifest.json", keys[3])

	require.Len(t, bucket.order, 4)
	assert.Equal(t, "stable/manifest.json", bucket.order[3], "manifest must be uploaded after the artifacts")

	exe := bucket.objects["downloads/stable/Parley Setup 2.0.0.exe"]
	assert.Equal(t, "exe bytes", string(exe.body))
	assert.Equal(t, artifactContentType, exe.contentType)

	stored := bucket.objects["downloads/stable/manifest.json"]
	assert.Equal(t, manifestContentType, stored.contentType)
	assert.Equal(t, manifestCacheControl, stored.cacheControl)

	parsed, err := reposign.ParseManifest(stored.body)
	require.NoError(t, err)
	assert.Equal(t, m.Signature, parsed.Signature)
	assert.Equal(t, m.Artifacts, parsed.Artifacts)
}

func TestPublish_ArtifactChangedAfterSigning(t *testing.T) {
	dir, m := signedRelease(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Parley-2.0.0.dmg"), []byte("rebuilt"), 0o644))

	bucket := newFakeBucket()
	p, err := New(bucket, "downloads", "")
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), dir, m)
	require.Error(t, err)
	assert.True(t, status.Is(err, status.HashMismatch), err.Error())
	assert.Empty(t, bucket.order, "nothing is uploaded when an artifact does not match")
}

func TestPublish_MissingArtifact(t *testing.T) {
	dir, m := signedRelease(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "Parley-2.0.0.AppImage")))

	bucket := newFakeBucket()
	p, err := New(bucket, "downloads", "")
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), dir, m)
	require.Error(t, err)
	assert.Empty(t, bucket.order)
}

func TestPublish_UploadFailureSkipsManifest(t *testing.T) {
	dir, m := signedRelease(t)

	bucket := newFakeBucket()
	bucket.failKey = "Parley-2.0.0.dmg"
	p, err := New(bucket, "downloads", "")
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), dir, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.NotContains(t, bucket.order, reposign.ManifestFileName)
}

func TestPublish_RejectsPathInArtifactName(t *testing.T) {
	dir, m := signedRelease(t)
	m.Artifacts[0].URL = "../" + m.Artifacts[0].URL

	p, err := New(newFakeBucket(), "downloads", "")
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), dir, m)
	require.Error(t, err)
	assert.True(t, status.Is(err, status.MalformedManifest), err.Error())
}
