// Package version carries build metadata stamped in via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release tag, "dev" for unstamped builds.
	Version = "dev"

	// GitCommit is the short commit hash of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// GetVersion returns the bare version string.
func GetVersion() string {
	return Version
}

// GetFullVersion returns the user-facing build string shown by the
// version command and the admin status endpoint.
func GetFullVersion() string {
	v := fmt.Sprintf("chatrelay/%s", Version)
	if Version == "dev" {
		v = fmt.Sprintf("%s (commit %s, built %s, %s)", v, GitCommit, BuildTime, runtime.Version())
	}
	return v
}
