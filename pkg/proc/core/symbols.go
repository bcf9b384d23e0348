package core

import (
	"debug/elf"
	"errors"
	"path/filepath"

	"github.com/go-delve/ntotdep/pkg/logflags"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/ntoutil"
)

// LoadSymbols returns the function symbols of the executable and of the
// host copies of the shared objects in the link map, each relocated by
// its load address. Shared objects that can not be found, or whose build
// id differs from the one recorded by the target, are skipped; the
// returned errors say why.
func (p *Process) LoadSymbols(search *ntoutil.SearchConfig) (*proc.SymbolTable, []error) {
	logger := logflags.SolibLogger()
	st := proc.NewSymbolTable()
	var errs []error

	if p.exe != nil {
		id, _ := ntoutil.ReadBuildID(p.exe)
		if err := addSymbols(st, search, p.exe, id, filepath.Base(p.exePath), 0); err != nil {
			errs = append(errs, err)
		}
	}

	mods := p.Modules()
	for i := range mods {
		m := &mods[i]
		path, err := search.Resolve(m)
		if err != nil {
			logger.Warnf("%v", err)
			errs = append(errs, err)
			continue
		}
		if err := ntoutil.ValidateBuildID(path, m); err != nil {
			if errors.Is(err, ntoutil.ErrBuildIDMismatch) {
				logger.Warnf("ignoring %s: %v", path, err)
			}
			errs = append(errs, err)
			continue
		}
		if err := addModuleSymbols(st, search, path, m); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Debugf("loaded %d symbols", st.Len())
	return st, errs
}

func addModuleSymbols(st *proc.SymbolTable, search *ntoutil.SearchConfig, path string, m *ntoutil.LinkMapEntry) error {
	f, err := elf.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return addSymbols(st, search, f, m.BuildID, m.Name, m.Addr)
}

// addSymbols adds the symbols of f, or those of its separate debug info
// file when f has been stripped of its symbol table.
func addSymbols(st *proc.SymbolTable, search *ntoutil.SearchConfig, f *elf.File, buildID []byte, module string, bias uint64) error {
	if f.Section(".symtab") == nil && len(buildID) > 0 {
		if path, err := search.DebugFile(buildID); err == nil {
			df, err := elf.Open(path)
			if err == nil {
				defer df.Close()
				logflags.SolibLogger().Debugf("symbols of %s read from %s", module, path)
				return st.AddELF(df, module, bias)
			}
			logflags.SolibLogger().Warnf("could not open debug info file %s: %v", path, err)
		}
	}
	return st.AddELF(f, module, bias)
}
