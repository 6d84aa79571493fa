// Package version exposes the build metadata stamped in at link time.
package version

import (
	"fmt"
	"runtime"
)

// Overridden via -ldflags at release build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

// Info is a snapshot of the binary's identity.
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the stamped build metadata plus the runtime's own identity.
func Get() Info {
	return Info{
		Version:   Version,
		BuildTime: BuildTime,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("gofer %s (commit: %s, built: %s, %s %s/%s)",
		i.Version, i.Commit, i.BuildTime, i.GoVersion, i.OS, i.Arch)
}

// Short returns just the version number, for user agents and --version.
func Short() string {
	return Version
}

// Full returns the complete one-line description.
func Full() string {
	return Get().String()
}
