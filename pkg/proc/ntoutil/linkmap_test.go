package ntoutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/go-delve/ntotdep/pkg/logflags"
)

func testRecords() []LinkMapRecord {
	return []LinkMapRecord{
		{Addr: 0, Name: "EXE", Ld: 0x8049f00, Next: 0x2000, Prev: 0, Path: "/tmp/a.out"},
		{Addr: 0xb8000000, Name: "libc.so.5", Ld: 0xb8090000, Next: 0x3000, Prev: 0x1000, Path: "/usr/lib/ldqnx.so.2", BuildID: []byte{0xde, 0xad, 0xbe, 0xef, 0x01}},
		{Addr: 0xb8200000, Name: "libm.so.3", Ld: 0xb8210000, Next: 0, Prev: 0x2000, Path: "/lib/libm.so.3"},
	}
}

func TestReadLinkMapFiltersExecutable(t *testing.T) {
	for _, tc := range []struct {
		name    string
		bo      binary.ByteOrder
		ptrSize int
	}{
		{"32 bit little endian", binary.LittleEndian, 4},
		{"64 bit little endian", binary.LittleEndian, 8},
		{"32 bit big endian", binary.BigEndian, 4},
		{"64 bit big endian", binary.BigEndian, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data := EncodeLinkMap(testRecords(), tc.bo, tc.ptrSize)
			l, err := ReadLinkMap(data, tc.bo, tc.ptrSize)
			if err != nil {
				t.Fatal(err)
			}
			if len(l) != 2 {
				t.Fatalf("expected 2 modules, got %d: %#v", len(l), l)
			}
			libc := l[0]
			if libc.Name != "libc.so.5" || libc.Path != "/usr/lib/ldqnx.so.2" || libc.Addr != 0xb8000000 || libc.Ld != 0xb8090000 {
				t.Errorf("wrong libc entry %#v", libc)
			}
			if libc.PrevLink != 0x1000 || libc.NextLink != 0x3000 || libc.Index != 1 {
				t.Errorf("wrong libc links %#v", libc)
			}
			if libc.BuildIDString() != "deadbeef01" || libc.BuildIDType != BuildIDTypeGNU {
				t.Errorf("libc build id %s (%d)", libc.BuildIDString(), libc.BuildIDType)
			}
			if l[1].Name != "libm.so.3" || l[1].BuildID != nil {
				t.Errorf("wrong libm entry %#v", l[1])
			}
			if next, ok := l.Next(0); !ok || next.Name != "libm.so.3" {
				t.Errorf("Next(0) = %v", next)
			}
			if _, ok := l.Prev(0); ok {
				t.Errorf("Prev(0) exists")
			}
		})
	}
}

// A single module followed by the placeholder of the main executable.
func TestReadLinkMapTwoRecords(t *testing.T) {
	recs := []LinkMapRecord{
		{Addr: 0x100000, Name: "libfoo.so", Next: 0, Prev: 0x4000, Path: "/lib/libfoo.so"},
		{Name: "EXE", Prev: 0, Next: 0x5000},
	}
	data := EncodeLinkMap(recs, binary.LittleEndian, 4)
	hdr, err := ReadLinkMapHeader(data, binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.LinkMapSize != 2*24 || hdr.BuildIDTabSize != 0 {
		t.Errorf("header %#v", hdr)
	}
	l, err := ReadLinkMap(data, binary.LittleEndian, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 1 || l[0].Name != "libfoo.so" {
		t.Errorf("got %#v", l)
	}
}

func TestReadLinkMapFiltersBootstrap(t *testing.T) {
	recs := []LinkMapRecord{
		{Name: "libc.so.5", Prev: 1, Next: 1},
		{Name: "PIE", Prev: 0, Next: 1},
		{Name: "PIE", Prev: 0x1000, Next: 0}, // not the main executable
	}
	l, err := ReadLinkMap(EncodeLinkMap(recs, binary.BigEndian, 8), binary.BigEndian, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 1 || l[0].Index != 2 {
		t.Errorf("got %#v", l)
	}
}

func TestReadLinkMapIdempotent(t *testing.T) {
	data := EncodeLinkMap(testRecords(), binary.LittleEndian, 8)
	orig := append([]byte(nil), data...)
	a, err := ReadLinkMap(data, binary.LittleEndian, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ReadLinkMap(data, binary.LittleEndian, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("second read differs:\n%#v\n%#v", a, b)
	}
	if !bytes.Equal(data, orig) {
		t.Errorf("source data modified")
	}
	// returned build ids do not alias the source
	a[0].BuildID[0] = 0
	if data2, _ := ReadLinkMap(data, binary.LittleEndian, 8); data2[0].BuildID[0] != 0xde {
		t.Errorf("build id aliases the source data")
	}
}

func TestReadLinkMapMalformed(t *testing.T) {
	if l, err := ReadLinkMap(nil, binary.LittleEndian, 4); l != nil || err != nil {
		t.Errorf("empty data: %v %v", l, err)
	}
	if _, err := ReadLinkMap([]byte{1, 0, 0}, binary.LittleEndian, 4); !errors.Is(err, ErrMalformedLinkMap) {
		t.Errorf("short header: %v", err)
	}
	data := EncodeLinkMap(testRecords(), binary.LittleEndian, 4)
	if _, err := ReadLinkMap(data[:len(data)-1], binary.LittleEndian, 4); !errors.Is(err, ErrMalformedLinkMap) {
		t.Errorf("truncated tables: %v", err)
	}
	// the header must be decoded with the target byte order
	if _, err := ReadLinkMap(data, binary.BigEndian, 4); !errors.Is(err, ErrMalformedLinkMap) {
		t.Errorf("wrong byte order: %v", err)
	}
}

func TestReadLinkMapMalformedBuildID(t *testing.T) {
	recs := []LinkMapRecord{
		{Name: "liba.so", Prev: 0x10, BuildIDType: 7, BuildID: []byte{1, 2, 3, 4}},
		{Name: "libb.so", Prev: 0x20, BuildID: []byte{5, 6, 7, 8, 9, 10, 11, 12}},
		{Name: "libc.so", Prev: 0x30},
	}
	l, err := ReadLinkMap(EncodeLinkMap(recs, binary.LittleEndian, 4), binary.LittleEndian, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(l))
	}
	if l[0].BuildID != nil {
		t.Errorf("build id of unknown type attached: %x", l[0].BuildID)
	}
	if !bytes.Equal(l[1].BuildID, []byte{5, 6, 7, 8, 9, 10, 11, 12}) {
		t.Errorf("libb build id %x", l[1].BuildID)
	}
	if l[2].BuildID != nil {
		t.Errorf("libc build id %x", l[2].BuildID)
	}

	// a descriptor larger than the table ends it, the modules are still read
	data := EncodeLinkMap(recs[1:], binary.LittleEndian, 4)
	bidStart := 16 + 2*24 + int(binary.LittleEndian.Uint32(data[8:]))
	binary.LittleEndian.PutUint32(data[bidStart+4:], 1000)
	l, err = ReadLinkMap(data, binary.LittleEndian, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 || l[0].BuildID != nil {
		t.Errorf("got %#v", l)
	}
}

type fakeSource struct {
	sections map[string][]byte
}

func (s *fakeSource) SectionData(name string) ([]byte, bool, error) {
	d, ok := s.sections[name]
	return d, ok, nil
}

func (s *fakeSource) ByteOrder() binary.ByteOrder { return binary.LittleEndian }
func (s *fakeSource) PtrSize() int                { return 4 }

// warningRecorder keeps the warnings logged through it.
type warningRecorder struct {
	warnings *[]string
}

func (r warningRecorder) WithField(key string, value interface{}) logflags.Logger { return r }
func (r warningRecorder) WithFields(fields logflags.Fields) logflags.Logger      { return r }
func (r warningRecorder) WithError(err error) logflags.Logger                    { return r }
func (r warningRecorder) Debugf(format string, args ...interface{})             {}
func (r warningRecorder) Infof(format string, args ...interface{})              {}
func (r warningRecorder) Printf(format string, args ...interface{})             {}
func (r warningRecorder) Errorf(format string, args ...interface{})             {}
func (r warningRecorder) Debug(args ...interface{})                             {}
func (r warningRecorder) Info(args ...interface{})                              {}
func (r warningRecorder) Error(args ...interface{})                             {}

func (r warningRecorder) Warnf(format string, args ...interface{}) {
	*r.warnings = append(*r.warnings, fmt.Sprintf(format, args...))
}

func (r warningRecorder) Warn(args ...interface{}) {
	*r.warnings = append(*r.warnings, fmt.Sprint(args...))
}

func recordWarnings(t *testing.T) *[]string {
	warnings := new([]string)
	logflags.SetLoggerFactory(func(level logrus.Level, fields logflags.Fields, out io.Writer) logflags.Logger {
		return warningRecorder{warnings}
	})
	t.Cleanup(func() { logflags.SetLoggerFactory(nil) })
	return warnings
}

func TestReadModuleList(t *testing.T) {
	warnings := recordWarnings(t)
	if l := ReadModuleList(&fakeSource{}); len(l) != 0 {
		t.Errorf("modules without a link map: %v", l)
	}
	if len(*warnings) != 1 || !strings.Contains((*warnings)[0], "no "+LinkMapSection+" section") {
		t.Errorf("missing link map warnings: %q", *warnings)
	}
	*warnings = nil
	if l := ReadModuleList(&fakeSource{map[string][]byte{LinkMapSection: {1, 2}}}); len(l) != 0 {
		t.Errorf("modules from a malformed link map: %v", l)
	}
	if len(*warnings) != 1 {
		t.Errorf("malformed link map warnings: %q", *warnings)
	}
	*warnings = nil
	src := &fakeSource{map[string][]byte{LinkMapSection: EncodeLinkMap(testRecords(), binary.LittleEndian, 4)}}
	l := ReadModuleList(src)
	if len(l) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(l))
	}
	if e, ok := l.Find("/lib/libm.so.3"); !ok || e.Name != "libm.so.3" {
		t.Errorf("Find by path: %v", e)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	sysroot := filepath.Join(dir, "sysroot")
	search := filepath.Join(dir, "libs")
	for _, p := range []string{
		filepath.Join(sysroot, "usr/lib/libc.so.5"),
		filepath.Join(search, "libm.so.3"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &SearchConfig{Sysroot: sysroot, SearchPath: []string{search}}

	p, err := cfg.Resolve(&LinkMapEntry{Name: "libc.so.5", Path: "/usr/lib/libc.so.5"})
	if err != nil || p != filepath.Join(sysroot, "usr/lib/libc.so.5") {
		t.Errorf("libc: %q %v", p, err)
	}
	p, err = cfg.Resolve(&LinkMapEntry{Name: "libm.so.3", Path: "/lib/libm.so.3"})
	if err != nil || p != filepath.Join(search, "libm.so.3") {
		t.Errorf("libm: %q %v", p, err)
	}
	if _, err := cfg.Resolve(&LinkMapEntry{Name: "libnope.so"}); err == nil {
		t.Errorf("libnope resolved")
	}
}

func TestFindGNUBuildID(t *testing.T) {
	bo := binary.LittleEndian
	note := func(name string, typ uint32, desc []byte) []byte {
		var b []byte
		hdr := make([]byte, 12)
		bo.PutUint32(hdr[0:], uint32(len(name)+1))
		bo.PutUint32(hdr[4:], uint32(len(desc)))
		bo.PutUint32(hdr[8:], typ)
		b = append(b, hdr...)
		b = append(b, name...)
		b = append(b, 0)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		b = append(b, desc...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		return b
	}
	notes := append(note("QNX", 1, []byte{1, 2, 3}), note("GNU", BuildIDTypeGNU, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee})...)
	if id := findGNUBuildID(notes, bo); !bytes.Equal(id, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee}) {
		t.Errorf("build id %x", id)
	}
	if id := findGNUBuildID(notes[:20], bo); id != nil {
		t.Errorf("build id from truncated notes %x", id)
	}
}

func TestDebugFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "de", "adbeef01.debug")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEBUGINFOD_URLS", "")

	cfg := &SearchConfig{DebugInfoDirectories: []string{filepath.Join(dir, "missing"), dir}}
	got, err := cfg.DebugFile([]byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	if err != nil || got != p {
		t.Errorf("got %q %v", got, err)
	}
	if _, err := cfg.DebugFile([]byte{0xca, 0xfe}); err == nil {
		t.Error("found a debug file for an unknown build id")
	}
	if _, err := cfg.DebugFile(nil); err == nil {
		t.Error("found a debug file without a build id")
	}
}
