// Package version exposes build metadata stamped at link time.
package version

import "runtime"

// Set via -ldflags at build time; defaults identify a dev build.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns a map with all version information.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}
