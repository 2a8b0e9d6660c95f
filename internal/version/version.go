// Package version holds build information stamped in with -ldflags, e.g.
//
//	-X github.com/leego972/sitewarden/internal/version.Version=1.4.0
package version

import "fmt"

// Build information. Defaults apply to development builds.
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build information served by /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
}

func (i Info) String() string {
	return fmt.Sprintf("sitewarden %s (commit %s, built %s)", i.Version, i.Commit, i.BuildDate)
}
