// Package version holds build metadata.
package version

// Overridden at release time with -ldflags "-X .../internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
