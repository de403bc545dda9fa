// Package urlguard is the single gate every configurable update source passes
// through before it is handed to the installer engine or the downloader.
package urlguard

import (
	"errors"
	"net/url"
	"strings"

	"github.com/parleyhq/parley/client/internal/updatemanager/status"
)

const defaultContext = "URL"

// Options relax the https-only default. Schemes other than https, http and
// file are refused regardless of these flags.
type Options struct {
	AllowFileProtocol bool
	AllowHTTP         bool
	// Context names the value in error messages, e.g. "Update feed URL"
	Context string
}

// Validate checks raw and returns nil if it may be used as an update source.
// Errors are *status.Error values of type EmptyURL, MalformedURL,
// InsecureProtocol or UnsupportedProtocol.
func Validate(raw string, opts Options) error {
	_, err := Parse(raw, opts)
	return err
}

// Parse validates raw like Validate and returns the parsed URL on success.
func Parse(raw string, opts Options) (*url.URL, error) {
	name := opts.Context
	if name == "" {
		name = defaultContext
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, status.Errorf(status.EmptyURL, "%s cannot be empty", name)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, status.Errorf(status.MalformedURL, "Invalid %s: %s", name, parseDetail(err))
	}
	if u.Scheme == "" {
		return nil, status.Errorf(status.MalformedURL, "Invalid %s: missing protocol scheme", name)
	}

	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "https":
		if u.Host == "" {
			return nil, status.Errorf(status.MalformedURL, "Invalid %s: missing host", name)
		}
	case "http":
		if !opts.AllowHTTP {
			return nil, status.Errorf(status.InsecureProtocol, "%s must use HTTPS protocol", name)
		}
		if u.Host == "" {
			return nil, status.Errorf(status.MalformedURL, "Invalid %s: missing host", name)
		}
	case "file":
		if !opts.AllowFileProtocol {
			return nil, status.Errorf(status.InsecureProtocol, "%s must use HTTPS protocol", name)
		}
	default:
		return nil, status.Errorf(status.UnsupportedProtocol, "%s uses unsupported protocol %q", name, scheme+":")
	}

	return u, nil
}

func parseDetail(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}
	return err.Error()
}
