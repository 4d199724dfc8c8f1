// Package version carries build metadata set with -ldflags -X.
package version

var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)

// Info is returned by the daemon's /version endpoint.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}
