// Package version exposes the build identity reported by the /version
// endpoint and the startup log line.
package version

// Version is the remediator release. Overridden at build time via
// -ldflags "-X .../internal/version.Version=...".
var Version = "dev"

// GitCommit is the commit the binary was built from. Set via ldflags.
var GitCommit = "unknown"

// BuildDate is the UTC build timestamp. Set via ldflags.
var BuildDate = "unknown"
