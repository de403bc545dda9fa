package updatemanager

import (
	"strings"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

// NetworkOfflineDetail replaces every network level failure shown to the user
const NetworkOfflineDetail = "Network is offline"

const maxDetailLen = 200

// networkMarkers are matched case-insensitively against failure details. The
// first group is what Chromium and Node based engines report, the second what
// the net package produces.
var networkMarkers = []string{
	"enotfound",
	"econnrefused",
	"econnreset",
	"etimedout",
	"eai_again",
	"net::err_",

	"no such host",
	"connection refused",
	"connection reset",
	"network is unreachable",
	"i/o timeout",
	"tls handshake timeout",
	"server misbehaving",
}

var trustDetails = map[status.Type]string{
	status.MalformedManifest:  "Update manifest is malformed",
	status.SignatureInvalid:   "Update signature verification failed",
	status.VersionDowngrade:   "Update offers no newer version",
	status.NoMatchingArtifact: "No update available for this platform",
	status.HashMismatch:       "Downloaded update is corrupted",
}

// sanitizeDetail turns a raw failure detail into the text shown to the user
func sanitizeDetail(detail string) string {
	lower := strings.ToLower(detail)
	for _, marker := range networkMarkers {
		if strings.Contains(lower, marker) {
			return NetworkOfflineDetail
		}
	}

	if i := strings.IndexByte(detail, '\n'); i >= 0 {
		detail = detail[:i]
	}
	detail = strings.TrimSpace(detail)
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen] + "..."
	}
	return detail
}

// publicError replaces the message of trust failures with a fixed one, so that
// nothing from the rejected manifest or artifact reaches the user
func publicError(err error) error {
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	if msg, ok := trustDetails[s.Type()]; ok {
		return status.Errorf(s.Type(), "%s", msg)
	}
	return err
}
