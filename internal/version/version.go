// Package version holds build metadata injected at link time.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
)

// String renders the version with its commit for logs and health output.
func String() string {
	return Version + " (" + GitSHA + ")"
}
