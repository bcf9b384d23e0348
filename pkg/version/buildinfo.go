package version

import (
	"bytes"
	"fmt"
	"runtime/debug"
)

func init() {
	buildInfo = dependencyList
}

// dependencyList lists the main module and every dependency linked into
// the binary, one per line.
func dependencyList() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "module %s %s\n", info.Main.Path, info.Main.Version)
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		fmt.Fprintf(buf, "  %s %s\n", dep.Path, dep.Version)
	}
	return buf.String()
}
