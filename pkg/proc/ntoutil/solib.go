package ntoutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-delve/ntotdep/pkg/logflags"
	"github.com/go-delve/ntotdep/pkg/proc/debuginfod"
)

// SectionSource gives access to the pseudo sections of a process image.
type SectionSource interface {
	// SectionData returns the contents of section name. It returns false
	// if the section does not exist.
	SectionData(name string) ([]byte, bool, error)
	ByteOrder() binary.ByteOrder
	PtrSize() int
}

// ReadModuleList returns the shared objects loaded in the process image
// src. A missing or malformed link map yields an empty list and a warning,
// debugging continues without shared library information.
func ReadModuleList(src SectionSource) ModuleList {
	logger := logflags.SolibLogger()
	data, ok, err := src.SectionData(LinkMapSection)
	if err != nil {
		logger.Warnf("could not read %s: %v", LinkMapSection, err)
		return nil
	}
	if !ok {
		logger.Warnf("no %s section, shared library information unavailable", LinkMapSection)
		return nil
	}
	l, err := ReadLinkMap(data, src.ByteOrder(), src.PtrSize())
	if err != nil {
		logger.Warnf("could not read shared library list: %v", err)
		return nil
	}
	return l
}

// ErrBuildIDMismatch is returned when the host copy of a shared object is
// not the one loaded by the target.
var ErrBuildIDMismatch = errors.New("build id mismatch")

// SearchConfig says where to look for host copies of target files.
type SearchConfig struct {
	Sysroot    string
	SearchPath []string
	// DebugInfoDirectories hold separate debug info files laid out by
	// build id, as in /usr/lib/debug/.build-id/ab/cdef.debug.
	DebugInfoDirectories []string
}

// Resolve returns the path of the host copy of the shared object e: its
// path under the sysroot, or a file with the same base name in one of the
// search path directories. When neither exists and a debuginfod server
// is configured the object is fetched by build id.
func (cfg *SearchConfig) Resolve(e *LinkMapEntry) (string, error) {
	var candidates []string
	for _, p := range []string{e.Path, e.Name} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			candidates = append(candidates, filepath.Join(cfg.Sysroot, p))
		}
	}
	for _, dir := range cfg.SearchPath {
		for _, p := range []string{e.Name, e.Path} {
			if p != "" {
				candidates = append(candidates, filepath.Join(dir, filepath.Base(p)))
			}
		}
	}
	for _, c := range candidates {
		if isFile(c) {
			return c, nil
		}
	}
	if len(e.BuildID) > 0 && debuginfod.Enabled() {
		if p, err := debuginfod.GetExecutable(hex.EncodeToString(e.BuildID)); err == nil && p != "" {
			logflags.SolibLogger().Debugf("%s fetched from debuginfod: %s", e.Name, p)
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find %s (tried %d locations)", e.Name, len(candidates))
}

// DebugFile returns the separate debug info file of the object with
// build id id, from the debug info directories or from debuginfod.
func (cfg *SearchConfig) DebugFile(id []byte) (string, error) {
	if len(id) < 2 {
		return "", errors.New("no build id")
	}
	h := hex.EncodeToString(id)
	for _, dir := range cfg.DebugInfoDirectories {
		p := filepath.Join(dir, h[:2], h[2:]+".debug")
		if isFile(p) {
			return p, nil
		}
	}
	if debuginfod.Enabled() {
		if p, err := debuginfod.GetDebuginfo(h); err == nil && p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("no debug info file for build id %s", h)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// ReadBuildID returns the GNU build id of the ELF file f, nil if it has none.
func ReadBuildID(f *elf.File) ([]byte, error) {
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_NOTE {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, err
		}
		if id := findGNUBuildID(data, f.ByteOrder); id != nil {
			return id, nil
		}
	}
	return nil, nil
}

func findGNUBuildID(notes []byte, bo binary.ByteOrder) []byte {
	for len(notes) >= 12 {
		namesz := int(bo.Uint32(notes[0:]))
		descsz := int(bo.Uint32(notes[4:]))
		typ := bo.Uint32(notes[8:])
		off := 12
		nameEnd := off + namesz
		descOff := off + (namesz+3)&^3
		descEnd := descOff + descsz
		if namesz < 0 || descsz < 0 || descEnd > len(notes) || nameEnd > len(notes) {
			return nil
		}
		name := bytes.TrimRight(notes[off:nameEnd], "\x00")
		if typ == BuildIDTypeGNU && string(name) == "GNU" {
			return append([]byte(nil), notes[descOff:descEnd]...)
		}
		next := descOff + (descsz+3)&^3
		if next > len(notes) {
			return nil
		}
		notes = notes[next:]
	}
	return nil
}

// ValidateBuildID checks that the file at path has the build id the
// target reported for e. Entries without a build id are always valid.
func ValidateBuildID(path string, e *LinkMapEntry) error {
	if len(e.BuildID) == 0 {
		return nil
	}
	f, err := elf.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	id, err := ReadBuildID(f)
	if err != nil {
		return err
	}
	if !bytes.Equal(id, e.BuildID) {
		return fmt.Errorf("%w: %s has build id %x, target loaded %x", ErrBuildIDMismatch, path, id, e.BuildID)
	}
	return nil
}
