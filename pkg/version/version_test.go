package version

import (
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "abcdef"}
	if got := v.String(); got != "Version: 1.2.3-rc1\nBuild: abcdef" {
		t.Errorf("got %q", got)
	}
	if s := NtodbgVersion.String(); !strings.HasPrefix(s, "Version: 0.3.0\nBuild: ") {
		t.Errorf("got %q", s)
	}
	if !strings.Contains(BuildInfo(), "go") {
		t.Errorf("build info %q", BuildInfo())
	}
}
