//go:build go1.18
// +build go1.18

package version

import "runtime/debug"

func init() {
	fixBuild = buildInfoFixBuild
}

func buildInfoFixBuild(v *Version) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, key := range []string{"vcs.revision", "gitrevision"} {
		for i := range info.Settings {
			if info.Settings[i].Key == key {
				v.Build = info.Settings[i].Value
				return
			}
		}
	}
}
