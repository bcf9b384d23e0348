package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Version represents the current version of ntodbg.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// NtodbgVersion is the current version of ntodbg.
var NtodbgVersion = Version{
	Major: "0", Minor: "3", Patch: "0", Metadata: "",
	Build: "$Id$",
}

func (v Version) String() string {
	// Fill v.Build from the build information unless it was set at link
	// time, a Git ident expansion still counts as unset.
	if strings.HasPrefix(v.Build, "$Id$") {
		fixBuild(&v)
	}
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, v.Build)
}

var buildInfo = func() string {
	return ""
}

var fixBuild = func(v *Version) {}

// BuildInfo returns the Go version and the module versions ntodbg was
// built with.
func BuildInfo() string {
	return fmt.Sprintf("%s\n%s", runtime.Version(), buildInfo())
}
