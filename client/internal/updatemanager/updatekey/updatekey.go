// Package updatekey holds the public key release manifests are verified with.
package updatekey

import (
	_ "embed"
	"sync"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
)

// Key type: ECDSA P-256
// Key id: 8253f031212bb7ee
//
//go:embed release-key.pem
var releaseKeyPEM []byte

var (
	once     sync.Once
	verifier *reposign.Verifier
	err      error
)

// PEM returns a copy of the embedded release public key
func PEM() []byte {
	return append([]byte(nil), releaseKeyPEM...)
}

// Verifier returns a verifier for the embedded key with a default policy.
// The update manager replaces the policy on setup.
func Verifier() (*reposign.Verifier, error) {
	once.Do(func() {
		verifier, err = reposign.NewVerifier(releaseKeyPEM, reposign.Policy{})
	})
	return verifier, err
}
