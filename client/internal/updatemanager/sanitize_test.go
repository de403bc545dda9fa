package updatemanager

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

func TestSanitizeDetail(t *testing.T) {
	offline := []string{
		"net::ERR_INTERNET_DISCONNECTED",
		"getaddrinfo ENOTFOUND updates.example.com",
		"connect ECONNREFUSED 127.0.0.1:443",
		"read ECONNRESET",
		"ETIMEDOUT",
		"getaddrinfo EAI_AGAIN updates.example.com",
		`Get "https://updates.example.com/manifest.json": dial tcp: lookup updates.example.com: no such host`,
		"dial tcp 127.0.0.1:443: connect: connection refused",
		"read tcp 10.0.0.2:51234->1.2.3.4:443: read: connection reset by peer",
		"dial tcp: connect: network is unreachable",
		"dial tcp 1.2.3.4:443: i/o timeout",
		"net/http: TLS handshake timeout",
	}
	for _, d := range offline {
		assert.Equal(t, NetworkOfflineDetail, sanitizeDetail(d), d)
	}

	assert.Equal(t, "Downloaded update is corrupted", sanitizeDetail("Downloaded update is corrupted"))
	assert.Equal(t, "first line", sanitizeDetail("  first line  \nsecond line"))

	long := strings.Repeat("x", maxDetailLen+50)
	assert.Equal(t, strings.Repeat("x", maxDetailLen)+"...", sanitizeDetail(long))
}

func TestPublicError(t *testing.T) {
	for typ, msg := range trustDetails {
		raw := status.Errorf(typ, "manifest 9.9.9 from https://evil.example.com: details")
		err := publicError(fmt.Errorf("wrapped: %w", raw))
		assert.Equal(t, msg, err.Error())
		assert.True(t, status.Is(err, typ))
	}

	input := status.Errorf(status.EmptyURL, "URL cannot be empty")
	assert.Same(t, input, publicError(input))

	plain := errors.New("disk full")
	assert.Same(t, plain, publicError(plain))
}
