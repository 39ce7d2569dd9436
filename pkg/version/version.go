// pkg/version/version.go - build version information.

package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags at build time; left as "unknown" in dev builds.
var (
	version   = "unknown"
	revision  = "unknown"
	buildDate = "unknown"
)

const appName = "manageddeferral"

// Info is the version build information for the current binary.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"build_date"`
}

// Version returns the current build information, falling back to module
// build info when ldflags were not set.
func Version() Info {
	v := version
	if v == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
			v = bi.Main.Version
		}
	}
	return Info{
		Version:   v,
		Revision:  revision,
		BuildDate: buildDate,
	}
}

// Print outputs the application name and version string.
func Print() {
	v := Version()
	fmt.Printf("%s %s\n", appName, v.Version)
}
