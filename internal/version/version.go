// Package version reports the badgesync build version.
package version

import "runtime/debug"

// Version, Commit and Date are overridden at build time using ldflags.
var (
	Version = "development"
	Commit  = "unknown"
	Date    = ""
)

// String returns the version, with the commit appended when known.
func String() string {
	v := Version
	if v == "development" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	if Commit != "unknown" && Commit != "" {
		v += "+" + Commit
	}
	if Date != "" {
		v += " (" + Date + ")"
	}
	return v
}
