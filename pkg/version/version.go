// Package version holds the release identifier reported by the API and CLI.
package version

// Version is overridden at build time with -ldflags "-X lesstraveled/pkg/version.Version=...".
var Version = "v0.3.0"

// String returns the program name and version.
func String() string {
	return "lesstraveled " + Version
}
