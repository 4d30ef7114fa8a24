package version

import (
	"strconv"
	"sync"
)

const (
	appMajor uint64 = 0
	appMinor uint64 = 1
	appPatch uint64 = 0
)

// appBuild is appended to the version as build metadata. Set it at link time with
// -ldflags "-X github.com/pointdag/pointdagd/version.appBuild=foo".
var appBuild string

var (
	versionOnce sync.Once
	version     string
)

// Version returns the semantic version of pointdagd.
func Version() string {
	versionOnce.Do(func() {
		version = formatVersion(appMajor, appMinor, appPatch, appBuild)
	})
	return version
}

// formatVersion formats major.minor.patch, followed by -build if build is
// a valid semver identifier. Invalid build metadata is left out.
func formatVersion(major, minor, patch uint64, build string) string {
	formatted := strconv.FormatUint(major, 10) + "." +
		strconv.FormatUint(minor, 10) + "." +
		strconv.FormatUint(patch, 10)
	if build != "" && isBuildIdentifier(build) {
		formatted += "-" + build
	}
	return formatted
}

func isBuildIdentifier(build string) bool {
	for _, r := range build {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
		default:
			return false
		}
	}
	return true
}
