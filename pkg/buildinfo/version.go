// Package buildinfo holds version information stamped at build time.
//
//	go build -ldflags "-X github.com/zeromv/zeromv/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/zeromv/zeromv/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/zeromv/zeromv/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/zeromv
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the cobra version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (%s, %s)\n", Version, Commit, Date)
}

// UserAgent identifies zeromv in outgoing HTTP requests.
func UserAgent() string {
	return "zeromv/" + Version
}
