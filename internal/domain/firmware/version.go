package firmware

import (
	"regexp"
	"strconv"
	"strings"
)

// versionPattern matches the dotted numeric triple inside a Tasmota version
// string, e.g. "12.5.0(tasmota)" or "v9.1.0".
var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// NeedsUpdate reports whether latest is newer than current.
//
// The comparison fails open: an unknown or unparseable current version means
// the device state cannot be trusted, so an update is assumed to be needed.
// The function is pure and total over any pair of strings.
func NeedsUpdate(current, latest string) bool {
	if current == UnknownVersion {
		return true
	}

	currentParts, ok := extractVersion(current)
	if !ok {
		return true
	}

	latestParts, ok := extractVersion(latest)
	if !ok {
		return true
	}

	for i := range currentParts {
		if latestParts[i] != currentParts[i] {
			return latestParts[i] > currentParts[i]
		}
	}

	return false
}

// IsMinimalBuild reports whether a version string names a tasmota-minimal build.
func IsMinimalBuild(version string) bool {
	if version == UnknownVersion {
		return false
	}

	return strings.Contains(strings.ToLower(version), "minimal")
}

// extractVersion pulls the first major.minor.patch triple out of a version string.
func extractVersion(s string) ([3]int, bool) {
	var parts [3]int

	match := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return parts, false
	}

	for i := range 3 {
		// The pattern guarantees digits only.
		value, err := strconv.Atoi(match[i+1])
		if err != nil {
			return parts, false
		}

		parts[i] = value
	}

	return parts, true
}
