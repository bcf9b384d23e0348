package main

import (
	"os"

	"github.com/go-delve/ntotdep/cmd/ntodbg/cmds"
	"github.com/go-delve/ntotdep/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.NtodbgVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
