// Package version carries build metadata stamped via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build metadata on one line for logs and the CLI.
func String() string {
	return fmt.Sprintf("footscan %s (%s, built %s)", Version, GitSHA, BuildTime)
}
