package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version, overridable at build time:
//
//	go build -ldflags "-X github.com/hrygo/geominder/internal/version.Version=1.2.0"
var Version = "0.1.0"

// DevVersion is reported in dev and demo modes.
var DevVersion = Version + "-dev"

// GitCommit is set via ldflags.
var GitCommit = "unknown"

// GetCurrentVersion returns the version reported for mode.
func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// IsValid reports whether v is a semantic version, with or without the v prefix.
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// Compare returns -1, 0 or +1 comparing a and b as semantic versions.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// IsVersionGreaterThan returns true if version is greater than target.
func IsVersionGreaterThan(version, target string) bool {
	return Compare(version, target) > 0
}

// SortVersion sorts version strings in ascending semantic order.
type SortVersion []string

func (s SortVersion) Len() int           { return len(s) }
func (s SortVersion) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s SortVersion) Less(i, j int) bool { return Compare(s[i], s[j]) < 0 }

// String returns the version with a short commit suffix when known.
func String() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return Version
	}
	commit := GitCommit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("%s-%s", Version, commit)
}
