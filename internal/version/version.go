// Package version carries build metadata injected through -ldflags.
package version

import "fmt"

var (
	// Version is the release version, overridden at build time.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns the version, with the short commit SHA when one is known.
func String() string {
	if GitSHA == "unknown" || len(GitSHA) < 7 {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, GitSHA[:7])
}
