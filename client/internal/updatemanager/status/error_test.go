package status

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorf(t *testing.T) {
	err := Errorf(HashMismatch, "artifact %s: hash mismatch", "app.dmg")

	s, ok := FromError(err)
	require.True(t, ok)
	assert.Equal(t, HashMismatch, s.Type())
	assert.Equal(t, "artifact app.dmg: hash mismatch", s.Error())
}

func TestFromError_Wrapped(t *testing.T) {
	err := fmt.Errorf("verify: %w", Errorf(SignatureInvalid, "bad signature"))

	s, ok := FromError(err)
	require.True(t, ok)
	assert.Equal(t, SignatureInvalid, s.Type())
	assert.True(t, Is(err, SignatureInvalid))
	assert.False(t, Is(err, HashMismatch))
}

func TestFromError_Foreign(t *testing.T) {
	s, ok := FromError(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.Nil(t, s)

	s, ok = FromError(nil)
	assert.True(t, ok)
	assert.Nil(t, s)
}

func TestType_IsTrustFailure(t *testing.T) {
	trust := []Type{MalformedManifest, SignatureInvalid, VersionDowngrade, NoMatchingArtifact, HashMismatch}
	for _, tt := range trust {
		assert.True(t, tt.IsTrustFailure(), tt.String())
	}

	input := []Type{EmptyURL, MalformedURL, InsecureProtocol, UnsupportedProtocol, DirectoryNotFound, NoArtifactsFound, InvalidPrivateKey, InvalidPublicKey}
	for _, tt := range input {
		assert.False(t, tt.IsTrustFailure(), tt.String())
	}
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "version_downgrade", VersionDowngrade.String())
	assert.Equal(t, "unknown", Type(99).String())
}
