// Package version carries build metadata injected through ldflags, falling
// back to the Go build info of the main module for local builds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const devVersion = "1.2.2-dev"

var (
	AppName   = "ModSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// applyBuildInfo fills in whatever ldflags left at their defaults.
func applyBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 12 {
				rev = rev[:12]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	applyBuildInfo(info.Main.Version, settings)
}

// Short returns `1.2.2 (5e23a4)`.
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// ShortWithApp returns `ModSync 1.2.2 (5e23a4)`.
func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed returns `1.2.2 (5e23a4; go1.23.6; linux/amd64; 2025-01-01T00:00:00Z)`.
func Detailed() string {
	buildDate := BuildDate
	if buildDate == "" {
		buildDate = "unknown"
	}
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, buildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}
