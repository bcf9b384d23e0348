package cmds

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/go-delve/ntotdep/pkg/config"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/core"
	"github.com/go-delve/ntotdep/pkg/regnum"
)

func TestCommandTree(t *testing.T) {
	root := New()
	for _, name := range []string{"core", "archs", "version", "log"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not found: %v", name, err)
		}
	}
	for _, flag := range []string{"log", "log-output", "log-dest", "init"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestListArchs(t *testing.T) {
	var buf bytes.Buffer
	if err := listArchs(&buf, proc.NewDefaultRegistry(), false); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "aarch64\narm\ni386\nx86_64\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	buf.Reset()
	if err := listArchs(&buf, proc.NewDefaultRegistry(), true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, s := range []string{"NAME", "EM_ARM", "EM_X86_64", "LittleEndian"} {
		if !strings.Contains(out, s) {
			t.Errorf("%q not found in output:\n%s", s, out)
		}
	}
}

func TestVersion(t *testing.T) {
	root := New()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Version: 0.3.0") {
		t.Errorf("unexpected version output %q", buf.String())
	}
}

func TestCoreArgumentCount(t *testing.T) {
	root := New()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"core", "onlyone"})
	err := root.Execute()
	if err == nil || err.Error() != "you must provide an executable and a core file" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLogOutputWithoutLog(t *testing.T) {
	root := New()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"archs", "--log-output", "unwind"})
	defer func() { logOutput = "" }()
	if err := root.Execute(); err == nil {
		t.Error("expected an error for --log-output without --log")
	}
}

func writeTestCore(t *testing.T) string {
	t.Helper()
	arch := proc.AMD64Arch()
	regs := arch.NewRegisterCache()
	regs.SupplyUint64(regnum.AMD64_Rip, 8, 0x401000)
	regs.SupplyUint64(regnum.AMD64_Rsp, 8, 0x7ffff000)

	path := filepath.Join(t.TempDir(), "core")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	err = core.WriteCore(f, &core.Snapshot{
		Arch:          arch,
		Pid:           7,
		CurrentThread: 1,
		Threads:       []core.ThreadSnapshot{{ID: 1, Regs: regs}},
		Segments:      []core.Segment{{Addr: 0x7ffff000, Data: make([]byte, 0x10), Flags: elf.PF_R}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecuteBatch(t *testing.T) {
	corePath := writeTestCore(t)
	defer func() { batchCommands = nil }()

	batchCommands = []string{"threads", "regs", "exit"}
	if status := execute("", corePath, &config.Config{}); status != 0 {
		t.Errorf("batch run failed with status %d", status)
	}

	batchCommands = []string{"threads", "nosuchcommand"}
	if status := execute("", corePath, &config.Config{}); status != 1 {
		t.Errorf("expected status 1 for a failing command, got %d", status)
	}

	if status := execute("", filepath.Join(t.TempDir(), "missing"), &config.Config{}); status != 1 {
		t.Errorf("expected status 1 for a missing core file, got %d", status)
	}
}

func TestSearchFlags(t *testing.T) {
	fs := pflag.NewFlagSet("core", pflag.ContinueOnError)
	addSearchFlags(fs)
	defer func() { sysroot, solibSearchPath = "", nil }()
	err := fs.Parse([]string{"--sysroot", "/opt/target", "--solib-search-path", "/a,/b"})
	if err != nil {
		t.Fatal(err)
	}
	if sysroot != "/opt/target" {
		t.Errorf("sysroot %q", sysroot)
	}
	if len(solibSearchPath) != 2 || solibSearchPath[0] != "/a" || solibSearchPath[1] != "/b" {
		t.Errorf("solib-search-path %q", solibSearchPath)
	}
}
