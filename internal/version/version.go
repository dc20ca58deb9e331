// Package version holds build information for the docpack binary, set with
// -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/docpack-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/docpack-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/docpack-go/internal/version.BuildDate=2026-01-01"
package version

import "fmt"

// Version is the semantic version. "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA.
var Commit = "unknown"

// BuildDate is the UTC build date.
var BuildDate = "unknown"

// String renders all three fields on one line.
func String() string {
	return fmt.Sprintf("docpack %s (commit %s, built %s)", Version, Commit, BuildDate)
}
