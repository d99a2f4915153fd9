// Package buildinfo carries version metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/chandanyadavsde/vms-v2/internal/buildinfo.CommitHash=$(git rev-parse --short HEAD)"
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC()

// Info is the metadata reported by /health and `vmsctl version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	StartedAt string `json:"startedAt"`
	Uptime    string `json:"uptime"`
}

// Current returns the metadata of the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    CommitHash,
		BuildTime: BuildTime,
		StartedAt: StartTime.Format(time.RFC3339),
		Uptime:    time.Since(StartTime).Truncate(time.Second).String(),
	}
}
