package registry

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseVersion accepts semantic versions with or without a leading v, and
// the bare numbers runners often use ("3", "1.2").
func ParseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(v), "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", v, err)
	}
	return parsed, nil
}

// CompareVersions returns -1, 0 or 1 as a is older than, equal to or
// newer than b.
func CompareVersions(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsNewer reports whether candidate is newer than installed.
func IsNewer(installed, candidate string) (bool, error) {
	c, err := CompareVersions(installed, candidate)
	return c < 0, err
}

// AtLeast reports whether v is minimum or newer.
func AtLeast(v, minimum string) (bool, error) {
	c, err := CompareVersions(v, minimum)
	return c >= 0, err
}

// SameMajor reports whether a and b share a major version.
func SameMajor(a, b string) (bool, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return false, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return false, err
	}
	return va.Major() == vb.Major(), nil
}
