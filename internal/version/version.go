package version

import "strings"

// Version is the current version of pilot.
const Version = "0.1.0"

// GitRef and ReleaseBuild are injected via -ldflags -X at build time.
var (
	GitRef       = "unknown"
	ReleaseBuild = "false"
)

// DisplayVersion returns the user-facing build version: v<semver> for
// release builds, v<semver>-<gitref> otherwise.
func DisplayVersion() string {
	if isReleaseBuild() {
		return "v" + Version
	}
	return "v" + Version + "-" + normalizeRef(GitRef)
}

func isReleaseBuild() bool {
	switch strings.ToLower(strings.TrimSpace(ReleaseBuild)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "unknown"
	}
	return ref
}
