package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (set by ldflags during build)
	Version = "0.1.0"
	// Commit is the git commit hash (set by ldflags during build)
	Commit = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	commit := Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("taskline %s (%s) %s %s/%s", Version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
