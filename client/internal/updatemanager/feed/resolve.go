// Package feed decides which update feed the client polls and which dev-only
// behavior is allowed while doing so.
package feed

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/client/internal/updatemanager/reposign"
	"github.com/parleyhq/parley/client/internal/updatemanager/urlguard"
	"github.com/parleyhq/parley/version"
)

const manifestSuffix = "/" + reposign.ManifestFileName

// FeedConfiguration is the validated result of Resolve
type FeedConfiguration struct {
	FeedURL              string
	ForceDevUpdateConfig bool
	AllowPrerelease      bool
	DevUpdateSource      string
	AutoUpdate           bool
	DevModeActive        bool
}

// Resolve combines the build-time dev switches with the shipped config file.
// File dev fields are never observed unless dev is active, so a tampered config
// file cannot enable pre-releases, custom sources or insecure schemes in a
// release build.
func Resolve(dev DevConfig, file FileConfig, appVersion string) (FeedConfiguration, error) {
	devMode := dev.Active()

	source := strings.TrimSpace(dev.DevUpdateSource)
	if source == "" && devMode {
		source = strings.TrimSpace(file.DevUpdateSource)
	}

	cfg := FeedConfiguration{
		ForceDevUpdateConfig: dev.ForceDevUpdateConfig || (devMode && file.ForceDevUpdateConfig),
		AllowPrerelease:      dev.AllowPrerelease || (devMode && file.AllowPrerelease),
		DevUpdateSource:      source,
		AutoUpdate:           file.AutoUpdate,
		DevModeActive:        devMode,
	}

	var feedURL string
	switch manifestURL := strings.TrimSpace(file.ManifestURL); {
	case source != "":
		feedURL = source
	case manifestURL != "":
		feedURL = strings.TrimSuffix(manifestURL, manifestSuffix)
	default:
		feedURL = version.ReleaseFeedURL(appVersion)
	}

	err := urlguard.Validate(feedURL, urlguard.Options{
		AllowHTTP:         devMode,
		AllowFileProtocol: devMode,
		Context:           "Update feed URL",
	})
	if err != nil {
		return FeedConfiguration{}, err
	}
	cfg.FeedURL = feedURL

	if devMode {
		log.Warnf("update dev mode is active, feed %s, prerelease %t", cfg.FeedURL, cfg.AllowPrerelease)
	} else if file.ForceDevUpdateConfig || file.AllowPrerelease || file.DevUpdateSource != "" {
		log.Warnf("ignoring dev-only settings from the update config file in a release build")
	}

	return cfg, nil
}
