// Package version holds build information, set at link time with
// -ldflags "-X github.com/alvmarrod/web-weaver/internal/version.Version=..."
package version

import "fmt"

var (
	Version    = "1.0.0"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// String returns the full version banner
func String() string {
	return fmt.Sprintf("web-weaver v%s (commit %s, built %s)", Version, CommitHash, BuildTime)
}
