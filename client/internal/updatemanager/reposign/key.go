package reposign

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

const (
	tagPrivatePKCS8 = "PRIVATE KEY"
	tagPrivateSEC1  = "EC PRIVATE KEY"
	tagPublic       = "PUBLIC KEY"
)

// KeyID is a unique identifier for a Key (first 8 bytes of SHA-256 of the PKIX public key)
type KeyID [8]byte

func (k KeyID) String() string {
	return fmt.Sprintf("%x", k[:])
}

// MarshalJSON implements json.Marshaler
func (k KeyID) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// computeKeyID generates a unique ID from a public Key
func computeKeyID(pub *ecdsa.PublicKey) KeyID {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return KeyID{}
	}
	h := sha256.Sum256(der)
	var id KeyID
	copy(id[:], h[:8])
	return id
}

// PrivateKey is a manifest signing key
type PrivateKey struct {
	Key *ecdsa.PrivateKey
	ID  KeyID
}

// PublicKey is a manifest verification key
type PublicKey struct {
	Key *ecdsa.PublicKey
	ID  KeyID
}

func (k PrivateKey) Public() PublicKey {
	return PublicKey{Key: &k.Key.PublicKey, ID: k.ID}
}

// ParsePrivateKey parses a PEM armored P-256 ECDSA key in PKCS#8 or SEC 1 form.
// Any other key material yields an InvalidPrivateKey error.
func ParsePrivateKey(data []byte) (PrivateKey, error) {
	b, _ := pem.Decode(data)
	if b == nil {
		return PrivateKey{}, status.Errorf(status.InvalidPrivateKey, "failed to decode PEM data")
	}

	var key *ecdsa.PrivateKey
	switch b.Type {
	case tagPrivatePKCS8:
		parsed, err := x509.ParsePKCS8PrivateKey(b.Bytes)
		if err != nil {
			return PrivateKey{}, status.Errorf(status.InvalidPrivateKey, "failed to parse private key: %v", err)
		}
		ec, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return PrivateKey{}, status.Errorf(status.InvalidPrivateKey, "private key is %T, want ECDSA P-256", parsed)
		}
		key = ec
	case tagPrivateSEC1:
		ec, err := x509.ParseECPrivateKey(b.Bytes)
		if err != nil {
			return PrivateKey{}, status.Errorf(status.InvalidPrivateKey, "failed to parse private key: %v", err)
		}
		key = ec
	default:
		return PrivateKey{}, status.Errorf(status.InvalidPrivateKey, "PEM type is %q, want %q", b.Type, tagPrivatePKCS8)
	}

	if key.Curve != elliptic.P256() {
		return PrivateKey{}, status.Errorf(status.InvalidPrivateKey, "private key curve is %s, want P-256", key.Curve.Params().Name)
	}

	return PrivateKey{Key: key, ID: computeKeyID(&key.PublicKey)}, nil
}

// ParsePublicKey parses a PEM armored PKIX P-256 ECDSA public key
func ParsePublicKey(data []byte) (PublicKey, error) {
	b, _ := pem.Decode(data)
	if b == nil {
		return PublicKey{}, status.Errorf(status.InvalidPublicKey, "failed to decode PEM data")
	}
	if b.Type != tagPublic {
		return PublicKey{}, status.Errorf(status.InvalidPublicKey, "PEM type is %q, want %q", b.Type, tagPublic)
	}

	parsed, err := x509.ParsePKIXPublicKey(b.Bytes)
	if err != nil {
		return PublicKey{}, status.Errorf(status.InvalidPublicKey, "failed to parse public key: %v", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return PublicKey{}, status.Errorf(status.InvalidPublicKey, "public key is %T, want ECDSA P-256", parsed)
	}
	if pub.Curve != elliptic.P256() {
		return PublicKey{}, status.Errorf(status.InvalidPublicKey, "public key curve is %s, want P-256", pub.Curve.Params().Name)
	}

	return PublicKey{Key: pub, ID: computeKeyID(pub)}, nil
}

// GenerateKey creates a new signing key pair and returns it PEM encoded
func GenerateKey() (PrivateKey, []byte, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return PrivateKey{}, nil, nil, fmt.Errorf("generate ecdsa key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return PrivateKey{}, nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return PrivateKey{}, nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: tagPrivatePKCS8, Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: tagPublic, Bytes: pubDER})

	return PrivateKey{Key: key, ID: computeKeyID(&key.PublicKey)}, privPEM, pubPEM, nil
}
