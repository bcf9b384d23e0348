package proc

import (
	"debug/elf"
	"fmt"
	"sort"

	"github.com/derekparker/trie"
)

// Function is a function symbol of the target.
type Function struct {
	Name   string
	Entry  uint64
	End    uint64
	Module string
}

// SymbolTable maps addresses to function symbols and names to functions.
// Symbols of several modules can be added, each relocated by its load
// bias.
type SymbolTable struct {
	funcs  []*Function // sorted by Entry
	sorted bool
	names  *trie.Trie
}

// NewSymbolTable returns an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{names: trie.New(), sorted: true}
}

// Add adds a function to the table.
func (st *SymbolTable) Add(fn *Function) {
	st.funcs = append(st.funcs, fn)
	st.sorted = false
	if _, dup := st.names.Find(fn.Name); !dup {
		st.names.Add(fn.Name, fn)
	}
}

// AddELF adds the function symbols of the ELF file f, relocated by bias,
// attributing them to module. Files without a symbol table only contribute
// their dynamic symbols.
func (st *SymbolTable) AddELF(f *elf.File, module string, bias uint64) error {
	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return fmt.Errorf("reading symbols of %s: %w", module, err)
	}
	dynsyms, err := f.DynamicSymbols()
	if err != nil && err != elf.ErrNoSymbols {
		return fmt.Errorf("reading dynamic symbols of %s: %w", module, err)
	}
	seen := make(map[string]bool)
	for _, s := range append(syms, dynsyms...) {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Section == elf.SHN_UNDEF || s.Value == 0 {
			continue
		}
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		entry := s.Value
		if f.Machine == elf.EM_ARM {
			// thumb bit
			entry &^= 1
		}
		st.Add(&Function{Name: s.Name, Entry: entry + bias, End: entry + bias + s.Size, Module: module})
	}
	return nil
}

func (st *SymbolTable) sort() {
	if st.sorted {
		return
	}
	sort.SliceStable(st.funcs, func(i, j int) bool { return st.funcs[i].Entry < st.funcs[j].Entry })
	st.sorted = true
}

// PCToFunc returns the function containing pc. Symbols without a size are
// assumed to extend up to the next symbol.
func (st *SymbolTable) PCToFunc(pc uint64) *Function {
	st.sort()
	i := sort.Search(len(st.funcs), func(i int) bool { return st.funcs[i].Entry > pc })
	if i == 0 {
		return nil
	}
	fn := st.funcs[i-1]
	if fn.End > fn.Entry && pc >= fn.End {
		return nil
	}
	return fn
}

// FunctionContaining implements SymbolLookup.
func (st *SymbolTable) FunctionContaining(pc uint64) (string, uint64, bool) {
	fn := st.PCToFunc(pc)
	if fn == nil {
		return "", 0, false
	}
	return fn.Name, fn.Entry, true
}

// LookupFunc returns the function called name.
func (st *SymbolTable) LookupFunc(name string) *Function {
	n, ok := st.names.Find(name)
	if !ok {
		return nil
	}
	return n.Meta().(*Function)
}

// FunctionsWithPrefix returns the names of all functions starting with
// prefix, sorted.
func (st *SymbolTable) FunctionsWithPrefix(prefix string) []string {
	var r []string
	if prefix == "" {
		r = st.names.Keys()
	} else {
		r = st.names.PrefixSearch(prefix)
	}
	sort.Strings(r)
	return r
}

// Len returns the number of functions in the table.
func (st *SymbolTable) Len() int {
	return len(st.funcs)
}
