package version

import (
	"fmt"
	"strings"
)

const releaseDownloadURL = "https://github.com/parleyhq/parley/releases/download"

// ReleaseFeedURL returns the default update feed for appVersion. The feed holds
// manifest.json and the artifacts of the release published for that version.
func ReleaseFeedURL(appVersion string) string {
	v := strings.TrimPrefix(strings.TrimSpace(appVersion), "v")
	if v == "" || v == "development" {
		return releaseDownloadURL + "/latest"
	}
	return fmt.Sprintf("%s/v%s", releaseDownloadURL, v)
}
