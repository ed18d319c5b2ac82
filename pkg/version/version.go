package version

import "runtime"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/starsdaisuki/stargate/pkg/version.Version=v0.3.0 \
//	  -X github.com/starsdaisuki/stargate/pkg/version.GitCommit=abc1234 \
//	  -X github.com/starsdaisuki/stargate/pkg/version.BuildDate=2024-06-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate + " " + runtime.GOOS + "/" + runtime.GOARCH
}
