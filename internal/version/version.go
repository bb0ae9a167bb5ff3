// Package version carries build metadata set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/bevandicjuraj/CamCorder/internal/version.Version=v0.3.0" ./cmd/camcorder
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for logs and the health endpoint.
func String() string {
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, sha, BuildTime)
}
