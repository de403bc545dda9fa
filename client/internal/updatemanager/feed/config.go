package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	clienterrors "github.com/parleyhq/parley/client/errors"
	"github.com/parleyhq/parley/client/internal/updatemanager/urlguard"
	"github.com/parleyhq/parley/util"
)

// ConfigFileName is the name of the update config shipped next to the application
const ConfigFileName = "app-update.json"

// Build-time dev flags, set with
// -ldflags "-X github.com/parleyhq/parley/client/internal/updatemanager/feed.forceDevUpdateConfig=true"
var (
	forceDevUpdateConfig = "false"
	devUpdateSource      = ""
	allowPrerelease      = "false"
)

// DevConfig holds the developer switches compiled into the binary. It is the only
// input able to enable dev-only update behavior on its own.
type DevConfig struct {
	ForceDevUpdateConfig bool
	DevUpdateSource      string
	AllowPrerelease      bool
}

// Active reports whether any dev switch is set
func (d DevConfig) Active() bool {
	return d.ForceDevUpdateConfig || strings.TrimSpace(d.DevUpdateSource) != "" || d.AllowPrerelease
}

// FileConfig is the update config file shipped with the application. Its dev
// fields are only honoured when DevConfig is active.
type FileConfig struct {
	AutoUpdate           bool
	ManifestURL          string
	ForceDevUpdateConfig bool
	DevUpdateSource      string
	AllowPrerelease      bool
}

// DefaultFileConfig is used when no config file is present
func DefaultFileConfig() FileConfig {
	return FileConfig{AutoUpdate: true}
}

type fileConfigJSON struct {
	AutoUpdate           *bool  `json:"autoUpdate"`
	ManifestURL          string `json:"manifestUrl"`
	ForceDevUpdateConfig bool   `json:"forceDevUpdateConfig"`
	DevUpdateSource      string `json:"devUpdateSource"`
	AllowPrerelease      bool   `json:"allowPrerelease"`
}

// DevConfigFromBuild returns the dev switches set at link time
func DevConfigFromBuild() DevConfig {
	return DevConfig{
		ForceDevUpdateConfig: parseBuildFlag("forceDevUpdateConfig", forceDevUpdateConfig),
		DevUpdateSource:      strings.TrimSpace(devUpdateSource),
		AllowPrerelease:      parseBuildFlag("allowPrerelease", allowPrerelease),
	}
}

func parseBuildFlag(name, value string) bool {
	if value == "" {
		return false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warnf("ignoring build flag %s=%q: %v", name, value, err)
		return false
	}
	return b
}

// LoadFileConfig reads the update config at path. A missing file yields
// DefaultFileConfig. URL-shaped fields are checked for shape only; whether a
// scheme is acceptable is decided by Resolve once dev mode is known.
func LoadFileConfig(path string) (FileConfig, error) {
	var raw fileConfigJSON
	if _, err := util.ReadJson(path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("no update config at %s, using defaults", path)
			return DefaultFileConfig(), nil
		}
		return FileConfig{}, fmt.Errorf("read update config: %w", err)
	}

	cfg := FileConfig{
		AutoUpdate:           raw.AutoUpdate == nil || *raw.AutoUpdate,
		ManifestURL:          strings.TrimSpace(raw.ManifestURL),
		ForceDevUpdateConfig: raw.ForceDevUpdateConfig,
		DevUpdateSource:      strings.TrimSpace(raw.DevUpdateSource),
		AllowPrerelease:      raw.AllowPrerelease,
	}

	if err := cfg.validate(); err != nil {
		return FileConfig{}, fmt.Errorf("invalid update config %s: %w", path, err)
	}
	return cfg, nil
}

func (c FileConfig) validate() error {
	var merr *multierror.Error
	shapeOnly := urlguard.Options{AllowHTTP: true, AllowFileProtocol: true}

	if c.ManifestURL != "" {
		opts := shapeOnly
		opts.Context = "manifestUrl"
		if err := urlguard.Validate(c.ManifestURL, opts); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if c.DevUpdateSource != "" {
		opts := shapeOnly
		opts.Context = "devUpdateSource"
		if err := urlguard.Validate(c.DevUpdateSource, opts); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	return clienterrors.FormatErrorOrNil(merr)
}
