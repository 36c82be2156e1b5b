// Package version carries build identification stamped at link time via
// -ldflags "-X".
package version

// Defaults identify a local, unstamped build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
