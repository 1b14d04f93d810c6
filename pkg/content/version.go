package content

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	// DefaultFromVersion applies when an item declares no fromversion.
	DefaultFromVersion = "0.0.0"

	// DefaultToVersion applies when an item declares no toversion.
	DefaultToVersion = "99.99.99"

	// MinimumSupportedVersion is the lowest platform version the graph covers.
	// Items whose toversion is below it are excluded.
	MinimumSupportedVersion = "6.0.0"
)

// NormalizeVersion validates a dotted version and returns it in "X.Y.Z" form.
// An empty string yields def. Two-part versions ("6.5") are padded.
func NormalizeVersion(v, def string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	v = strings.TrimPrefix(v, "v")
	if strings.Count(v, ".") == 1 {
		v += ".0"
	}
	if !semver.IsValid("v" + v) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	return strings.TrimPrefix(semver.Canonical("v"+v), "v"), nil
}

// CompareVersions compares two dotted versions like semver.Compare.
// Callers must pass normalized versions.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// IsSupportedToVersion reports whether an item with the given toversion belongs in the graph.
func IsSupportedToVersion(to string) bool {
	return CompareVersions(to, MinimumSupportedVersion) >= 0
}
