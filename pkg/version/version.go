// Package version holds the build information of devproxy, stamped through
// -ldflags and handed over by main with Set.
package version

import "fmt"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Set stores the build information. Empty values keep the defaults.
func Set(v, c, d string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
	if d != "" {
		buildDate = d
	}
}

// Version returns the build version string.
func Version() string { return version }

// Commit returns the build commit hash.
func Commit() string { return commit }

// BuildDate returns the build date string.
func BuildDate() string { return buildDate }

// String is the multi-line form printed by the version command.
func String() string {
	return fmt.Sprintf("devproxy %s\nCommit: %s\nBuild Date: %s", version, commit, buildDate)
}
