package reposign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

const (
	// ManifestFileName is the name of the manifest published next to the artifacts
	ManifestFileName = "manifest.json"

	// CreatedAtLayout is ISO-8601 UTC with millisecond precision
	CreatedAtLayout = "2006-01-02T15:04:05.000Z"

	sha256HexLen = 64
)

// ArtifactDescriptor describes one release file. URL is the file name relative to the feed.
// Field order defines the signed byte layout and must not change.
type ArtifactDescriptor struct {
	URL      string       `json:"url"`
	SHA256   string       `json:"sha256"`
	Platform Platform     `json:"platform"`
	Type     ArtifactType `json:"type"`
}

// UnsignedManifest holds the signed fields of a release manifest.
// Field order defines the signed byte layout and must not change.
type UnsignedManifest struct {
	Version   string               `json:"version"`
	Artifacts []ArtifactDescriptor `json:"artifacts"`
	CreatedAt string               `json:"createdAt"`
}

// SignedManifest is the manifest.json wire document
type SignedManifest struct {
	UnsignedManifest
	Signature string `json:"signature"`
}

// CanonicalJSON returns the exact bytes covered by the signature: keys in
// declaration order, no whitespace, no HTML escaping.
func (m UnsignedManifest) CanonicalJSON() ([]byte, error) {
	artifacts := m.Artifacts
	if artifacts == nil {
		artifacts = []ArtifactDescriptor{}
	}
	payload := UnsignedManifest{
		Version:   m.Version,
		Artifacts: artifacts,
		CreatedAt: m.CreatedAt,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode manifest payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CreatedTime parses CreatedAt
func (m UnsignedManifest) CreatedTime() (time.Time, error) {
	return time.Parse(CreatedAtLayout, m.CreatedAt)
}

// MarshalJSON renders the wire document with the signature appended after the signed fields
func (m SignedManifest) MarshalJSON() ([]byte, error) {
	type wire struct {
		Version   string               `json:"version"`
		Artifacts []ArtifactDescriptor `json:"artifacts"`
		CreatedAt string               `json:"createdAt"`
		Signature string               `json:"signature"`
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire{
		Version:   m.Version,
		Artifacts: m.Artifacts,
		CreatedAt: m.CreatedAt,
		Signature: m.Signature,
	}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseManifest decodes a manifest.json document. It does not verify anything
// beyond the presence of the required fields.
func ParseManifest(data []byte) (*SignedManifest, error) {
	var m SignedManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(status.MalformedManifest, "failed to decode manifest: %v", err)
	}

	switch {
	case m.Version == "":
		return nil, status.Errorf(status.MalformedManifest, "manifest has no version")
	case m.CreatedAt == "":
		return nil, status.Errorf(status.MalformedManifest, "manifest has no createdAt")
	case m.Signature == "":
		return nil, status.Errorf(status.MalformedManifest, "manifest is not signed")
	case m.Artifacts == nil:
		return nil, status.Errorf(status.MalformedManifest, "manifest has no artifacts")
	}

	return &m, nil
}
