// Package version holds build-time version information, injected via
// -ldflags at release time.
package version

var (
	Version   = "dev"
	GitCommit = "unknown"
)
