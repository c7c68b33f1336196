// Package version contains build version information.
package version

// These are set at build time via -ldflags, e.g.
//
//	go build -ldflags "-X .../internal/version.Version=1.2.0"
var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
