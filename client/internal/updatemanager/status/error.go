package status

import (
	"errors"
	"fmt"
)

const (
	// EmptyURL indicates that an update source URL was blank after trimming
	EmptyURL Type = 1

	// MalformedURL indicates that an update source URL could not be parsed
	MalformedURL Type = 2

	// InsecureProtocol indicates an http: or file: URL used without the matching permission
	InsecureProtocol Type = 3

	// UnsupportedProtocol indicates a scheme outside of https/http/file
	UnsupportedProtocol Type = 4

	// DirectoryNotFound indicates that the release directory does not exist
	DirectoryNotFound Type = 5

	// NoArtifactsFound indicates that the release directory holds no recognized artifact
	NoArtifactsFound Type = 6

	// InvalidPrivateKey indicates unusable signing key material
	InvalidPrivateKey Type = 7

	// InvalidPublicKey indicates unusable verification key material
	InvalidPublicKey Type = 8

	// MalformedManifest indicates a manifest document that could not be decoded
	MalformedManifest Type = 9

	// SignatureInvalid indicates that the manifest signature did not verify
	SignatureInvalid Type = 10

	// VersionDowngrade indicates a manifest that is not newer than the installed version
	VersionDowngrade Type = 11

	// NoMatchingArtifact indicates a manifest without an artifact for the running platform
	NoMatchingArtifact Type = 12

	// HashMismatch indicates a downloaded artifact whose digest differs from the manifest
	HashMismatch Type = 13
)

// Type is a type of the Error
type Type int32

func (t Type) String() string {
	switch t {
	case EmptyURL:
		return "empty_url"
	case MalformedURL:
		return "malformed_url"
	case InsecureProtocol:
		return "insecure_protocol"
	case UnsupportedProtocol:
		return "unsupported_protocol"
	case DirectoryNotFound:
		return "directory_not_found"
	case NoArtifactsFound:
		return "no_artifacts_found"
	case InvalidPrivateKey:
		return "invalid_private_key"
	case InvalidPublicKey:
		return "invalid_public_key"
	case MalformedManifest:
		return "malformed_manifest"
	case SignatureInvalid:
		return "signature_invalid"
	case VersionDowngrade:
		return "version_downgrade"
	case NoMatchingArtifact:
		return "no_matching_artifact"
	case HashMismatch:
		return "hash_mismatch"
	default:
		return "unknown"
	}
}

// IsTrustFailure reports whether the type is a security verdict on received update data
func (t Type) IsTrustFailure() bool {
	switch t {
	case MalformedManifest, SignatureInvalid, VersionDowngrade, NoMatchingArtifact, HashMismatch:
		return true
	default:
		return false
	}
}

// Error is an update pipeline error
type Error struct {
	ErrorType Type
	Message   string
}

// Type returns the Type of the error
func (e *Error) Type() Type {
	return e.ErrorType
}

// Error is an error string
func (e *Error) Error() string {
	return e.Message
}

// Errorf returns Error(ErrorType, fmt.Sprintf(format, a...)).
func Errorf(errorType Type, format string, a ...interface{}) error {
	return &Error{
		ErrorType: errorType,
		Message:   fmt.Sprintf(format, a...),
	}
}

// FromError returns Error, true if the provided error is of type of Error. nil, false otherwise
func FromError(err error) (s *Error, ok bool) {
	if err == nil {
		return nil, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given Type anywhere in its chain
func Is(err error, t Type) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.ErrorType == t
}
