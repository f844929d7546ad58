// Package rfversion prints build version information, grounded on the
// teacher's src/version.go (getBuildSettingOrDefault/printVersion):
// pull vcs.revision/vcs.time/vcs.modified out of runtime/debug.BuildInfo,
// alongside a Version string that can be set at link time.
package rfversion

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// Version is set at build time via `-ldflags "-X .../rfversion.Version=X"`.
var Version string

func settingOrDefault(bi *debug.BuildInfo, key, def string) string {
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return def
}

// Print writes a one-line (or, if verbose, full BuildInfo dump) version
// banner for progName to stdout.
func Print(progName string, verbose bool) {
	buildInfo, _ := debug.ReadBuildInfo()

	buildTime := settingOrDefault(buildInfo, "vcs.time", "UNKNOWN")
	commit := settingOrDefault(buildInfo, "vcs.revision", "UNKNOWN")
	dirtyStr := settingOrDefault(buildInfo, "vcs.modified", "INVALID")

	if dirty, err := strconv.ParseBool(dirtyStr); err == nil && dirty {
		commit += "-DIRTY"
	}

	version := Version
	if version == "" {
		version = "!UNKNOWN!"
	}

	fmt.Printf("%s - Version %s (revision %s, built at %s)\n", progName, version, commit, buildTime)

	if verbose && buildInfo != nil {
		fmt.Printf("\nBuildInfo: %+v\n", buildInfo)
	}
}
