package reposign

import (
	"runtime"
	"strings"
)

// Platform is the target operating system of an artifact, named the way release feeds name it
type Platform string

const (
	PlatformDarwin Platform = "darwin"
	PlatformLinux  Platform = "linux"
	PlatformWin32  Platform = "win32"
)

// ArtifactType is the installer format of an artifact
type ArtifactType string

const (
	TypeDMG      ArtifactType = "dmg"
	TypeZIP      ArtifactType = "zip"
	TypeAppImage ArtifactType = "AppImage"
	TypeEXE      ArtifactType = "exe"
)

// ArtifactKind is the platform/type pair recognized from a file name
type ArtifactKind struct {
	Platform Platform
	Type     ArtifactType
}

var suffixKinds = []struct {
	suffix string
	kind   ArtifactKind
}{
	{".dmg", ArtifactKind{PlatformDarwin, TypeDMG}},
	{".zip", ArtifactKind{PlatformDarwin, TypeZIP}},
	{".appimage", ArtifactKind{PlatformLinux, TypeAppImage}},
	{".exe", ArtifactKind{PlatformWin32, TypeEXE}},
}

// DetectArtifact maps a file name to the platform and artifact type it ships.
// The match is a case-insensitive suffix match; false means the file is not an artifact.
func DetectArtifact(filename string) (ArtifactKind, bool) {
	lower := strings.ToLower(filename)
	for _, sk := range suffixKinds {
		if strings.HasSuffix(lower, sk.suffix) {
			return sk.kind, true
		}
	}
	return ArtifactKind{}, false
}

// CurrentPlatform returns the Platform of the running client
func CurrentPlatform() Platform {
	return platformForGOOS(runtime.GOOS)
}

func platformForGOOS(goos string) Platform {
	switch goos {
	case "windows":
		return PlatformWin32
	case "darwin":
		return PlatformDarwin
	case "linux":
		return PlatformLinux
	default:
		// no feed ships artifacts for it, so nothing will match
		return Platform(goos)
	}
}

// preferredTypes is the order in which artifact types are chosen when a
// manifest ships more than one artifact for a platform
func preferredTypes(p Platform) []ArtifactType {
	switch p {
	case PlatformDarwin:
		return []ArtifactType{TypeZIP, TypeDMG}
	case PlatformWin32:
		return []ArtifactType{TypeEXE}
	case PlatformLinux:
		return []ArtifactType{TypeAppImage}
	default:
		return nil
	}
}
