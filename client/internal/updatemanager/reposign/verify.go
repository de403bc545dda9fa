package reposign

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

// Policy controls which signed manifests are acceptable beyond the signature itself
type Policy struct {
	// AllowReinstall accepts a manifest whose version equals the installed one.
	// Older versions are always refused.
	AllowReinstall bool
	// AllowPrerelease accepts manifests with a pre-release version
	AllowPrerelease bool
}

// Context describes the running installation a manifest is checked against
type Context struct {
	CurrentVersion string
	Platform       Platform
	// PreferredTypes orders artifact types when several match the platform.
	// Empty selects the platform default.
	PreferredTypes []ArtifactType
}

// Verifier makes trust decisions about received manifests and artifacts
type Verifier struct {
	publicKey PublicKey
	policy    Policy
}

// NewVerifier creates a Verifier for the embedded PEM public key
func NewVerifier(publicKeyPEM []byte, policy Policy) (*Verifier, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Verifier{publicKey: pub, policy: policy}, nil
}

// KeyID returns the id of the verification key
func (v *Verifier) KeyID() KeyID {
	return v.publicKey.ID
}

// Policy returns the verification policy
func (v *Verifier) Policy() Policy {
	return v.policy
}

// WithPolicy returns a copy of the Verifier using policy
func (v *Verifier) WithPolicy(policy Policy) *Verifier {
	return &Verifier{publicKey: v.publicKey, policy: policy}
}

// VerifySignature re-derives the canonical payload from the manifest fields and
// checks the signature against it
func (v *Verifier) VerifySignature(m SignedManifest) bool {
	return verifySignature(v.publicKey, m)
}

func verifySignature(pub PublicKey, m SignedManifest) bool {
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		log.Debugf("manifest signature is not valid base64: %v", err)
		return false
	}

	payload, err := m.UnsignedManifest.CanonicalJSON()
	if err != nil {
		log.Debugf("failed to rebuild manifest payload: %v", err)
		return false
	}

	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub.Key, digest[:], sig)
}

// VerifyManifest checks signature, version policy and platform match, in that
// order, and returns the artifact to download
func (v *Verifier) VerifyManifest(m SignedManifest, ctx Context) (ArtifactDescriptor, error) {
	if !v.VerifySignature(m) {
		return ArtifactDescriptor{}, status.Errorf(status.SignatureInvalid, "manifest signature verification failed for key %s", v.publicKey.ID)
	}

	if err := v.checkVersion(m.Version, ctx.CurrentVersion); err != nil {
		return ArtifactDescriptor{}, err
	}

	artifact, ok := selectArtifact(m.Artifacts, ctx)
	if !ok {
		return ArtifactDescriptor{}, status.Errorf(status.NoMatchingArtifact, "manifest %s has no artifact for platform %s", m.Version, ctx.Platform)
	}

	log.Debugf("manifest %s verified, selected artifact %s", m.Version, artifact.URL)
	return artifact, nil
}

// VerifyManifestBytes parses and verifies a manifest.json document
func (v *Verifier) VerifyManifestBytes(data []byte, ctx Context) (*SignedManifest, ArtifactDescriptor, error) {
	m, err := ParseManifest(data)
	if err != nil {
		return nil, ArtifactDescriptor{}, err
	}

	artifact, err := v.VerifyManifest(*m, ctx)
	if err != nil {
		return nil, ArtifactDescriptor{}, err
	}
	return m, artifact, nil
}

// VerifyArtifact compares the SHA-256 of data with the descriptor digest
func (v *Verifier) VerifyArtifact(data []byte, d ArtifactDescriptor) error {
	return VerifyArtifact(data, d)
}

// VerifyArtifact compares the SHA-256 of data with the descriptor digest
func VerifyArtifact(data []byte, d ArtifactDescriptor) error {
	expected, err := hex.DecodeString(strings.ToLower(d.SHA256))
	if err != nil || len(expected) != sha256.Size {
		return status.Errorf(status.HashMismatch, "artifact %s: manifest digest is not a SHA-256 hex string", d.URL)
	}

	sum := sha256.Sum256(data)
	if string(sum[:]) != string(expected) {
		log.Debugf("artifact %s: expected %s, got %x", d.URL, d.SHA256, sum)
		return status.Errorf(status.HashMismatch, "artifact %s: hash mismatch", d.URL)
	}

	return nil
}

func (v *Verifier) checkVersion(manifestVersion, currentVersion string) error {
	offered, err := goversion.NewSemver(manifestVersion)
	if err != nil {
		return status.Errorf(status.VersionDowngrade, "manifest version %q is not a semantic version", manifestVersion)
	}

	if offered.Prerelease() != "" && !v.policy.AllowPrerelease {
		return status.Errorf(status.VersionDowngrade, "manifest version %s is a pre-release and pre-releases are disabled", offered)
	}

	installed, err := goversion.NewVersion(currentVersion)
	if err != nil {
		log.Debugf("installed version %q is not comparable, treating it as 0.0.0", currentVersion)
		installed = goversion.Must(goversion.NewVersion("0.0.0"))
	}

	cmp := offered.Compare(installed)
	if cmp > 0 || (cmp == 0 && v.policy.AllowReinstall) {
		return nil
	}

	return status.Errorf(status.VersionDowngrade, "manifest version %s is not newer than installed version %s", offered, installed)
}

func selectArtifact(artifacts []ArtifactDescriptor, ctx Context) (ArtifactDescriptor, bool) {
	var candidates []ArtifactDescriptor
	for _, a := range artifacts {
		if a.Platform == ctx.Platform {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return ArtifactDescriptor{}, false
	}

	prefs := ctx.PreferredTypes
	if len(prefs) == 0 {
		prefs = preferredTypes(ctx.Platform)
	}
	for _, t := range prefs {
		for _, c := range candidates {
			if c.Type == t {
				return c, true
			}
		}
	}

	return candidates[0], true
}
