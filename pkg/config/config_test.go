package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)
	c, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.DebugInfoDirectories, []string{"/usr/lib/debug/.build-id"}) {
		t.Errorf("debug info directories %v", c.DebugInfoDirectories)
	}
	if c.StackDepth() != DefaultMaxStackDepth || c.ShowFloatRegisters || c.Sysroot != "" {
		t.Errorf("unexpected defaults %#v", c)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Configuration file for the ntodbg debugger.") {
		t.Errorf("default config file not written")
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)
	depth := 10
	c := &Config{
		Aliases:         map[string][]string{"bt": {"where"}},
		Sysroot:         "/opt/qnx/target/qnx7/armle-v7",
		SolibSearchPath: []string{"/tmp/libs", "/home/user/lib dir"},
		MaxStackDepth:   &depth,

		// nil slices are read back as empty ones
		DebugInfoDirectories: []string{"/usr/lib/debug"},
	}
	if err := SaveConfigFile(c, path); err != nil {
		t.Fatal(err)
	}
	c2, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c, c2) {
		t.Errorf("loaded %#v, saved %#v", c2, c)
	}
	if c2.StackDepth() != 10 {
		t.Errorf("stack depth %d", c2.StackDepth())
	}
}

func TestConfigureSetSimple(t *testing.T) {
	c := &Config{}
	for _, tc := range []struct {
		name, arg string
		check     func() bool
	}{
		{"max-stack-depth", "12", func() bool { return c.MaxStackDepth != nil && *c.MaxStackDepth == 12 }},
		{"show-float-registers", "true", func() bool { return c.ShowFloatRegisters }},
		{"sysroot", `"/opt/qnx sdp/target"`, func() bool { return c.Sysroot == "/opt/qnx sdp/target" }},
		{"solib-search-path", `/a:/b "/c d"`, func() bool { return reflect.DeepEqual(c.SolibSearchPath, []string{"/a", "/b", "/c d"}) }},
	} {
		field := ConfigureFindFieldByName(c, tc.name, "yaml")
		if !field.CanAddr() {
			t.Fatalf("%s not found", tc.name)
		}
		if err := ConfigureSetSimple(tc.arg, tc.name, field); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !tc.check() {
			t.Errorf("%s not set: %#v", tc.name, c)
		}
	}

	if err := ConfigureSetSimple("-1", "max-stack-depth", ConfigureFindFieldByName(c, "max-stack-depth", "yaml")); err == nil {
		t.Errorf("negative stack depth accepted")
	}
	if err := ConfigureSetSimple("yes", "show-float-registers", ConfigureFindFieldByName(c, "show-float-registers", "yaml")); err == nil {
		t.Errorf("non boolean accepted")
	}
	if err := ConfigureSetSimple("x", "aliases", ConfigureFindFieldByName(c, "aliases", "yaml")); err == nil {
		t.Errorf("map set as a simple value")
	}
	if ConfigureFindFieldByName(c, "nonexistent", "yaml").CanAddr() {
		t.Errorf("nonexistent field found")
	}
	if got := ConfigureListByName(c, "max-stack-depth", "yaml"); got != "max-stack-depth\t12\n" {
		t.Errorf("list %q", got)
	}

	var buf strings.Builder
	ConfigureList(&buf, c, "yaml")
	found := false
	for _, line := range strings.Split(buf.String(), "\n") {
		if f := strings.Fields(line); len(f) == 2 && f[0] == "show-float-registers" && f[1] == "true" {
			found = true
		}
	}
	if !found {
		t.Errorf("list output:\n%s", buf.String())
	}
}

func TestSplitSearchPath(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"/lib:/usr/lib", []string{"/lib", "/usr/lib"}},
		{"/lib; /usr/lib  /opt/lib", []string{"/lib", "/usr/lib", "/opt/lib"}},
		{`"/a b:c":/d`, []string{"/a b:c", "/d"}},
		{"::/x::", []string{"/x"}},
	} {
		if got := SplitSearchPath(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitSearchPath(%q) = %#v, expected %#v", tc.in, got, tc.want)
		}
	}
}
