// Package version holds the version of cdptab.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version represents a semantic version (http://semver.org/).
type Version struct {
	Major uint
	Minor uint
	Patch uint
}

// Current represents the current version and can be shared across packages
var Current = Version{Major: 0, Minor: 3, Patch: 0} //nolint:gochecknoglobals

// Full returns the full semantic version as a string major.minor.patch
func Full() string {
	return fmt.Sprintf("%d.%d.%d", Current.Major, Current.Minor, Current.Patch)
}

// Details returns the version and build information as a map, for JSON
// output.
func Details() map[string]string {
	details := map[string]string{
		"version":    "v" + Full(),
		"go_version": runtime.Version(),
		"go_os":      runtime.GOOS,
		"go_arch":    runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				details["commit"] = s.Value
			}
		}
	}
	return details
}
