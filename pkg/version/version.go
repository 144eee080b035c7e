package version

import "fmt"

// Version, GitCommit and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/aist-nrm/nrm/pkg/version.Version=v1.0.0 \
//	  -X github.com/aist-nrm/nrm/pkg/version.GitCommit=abc1234 \
//	  -X github.com/aist-nrm/nrm/pkg/version.BuildDate=2026-07-31"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a single-line human-readable version string.
func Info() string {
	return fmt.Sprintf("nrm %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
