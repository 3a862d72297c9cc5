// Package buildinfo holds version strings set at link time, e.g.
//
//	go build -ldflags "-X github.com/ZanzyTHEbar/people-network-go/internal/buildinfo.Version=v1.2.0"
package buildinfo

var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
