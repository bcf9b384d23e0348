package proc

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Arch is the target dependent part of the debugger for one QNX Neutrino
// CPU architecture: how registers are laid out in the operating system's
// context structures, how signal trampolines look and how to walk frames
// when nothing better is known.
type Arch interface {
	Name() string
	Machine() elf.Machine
	PtrSize() int
	ByteOrder() binary.ByteOrder

	MaxRegNum() int
	RegisterName(reg int) string
	// RegisterNum returns the register number of the register called
	// name (case insensitive).
	RegisterNum(name string) (int, bool)
	PCRegNum() int
	SPRegNum() int
	BPRegNum() int
	PSRegNum() int
	// NewRegisterCache returns an empty register cache sized for this
	// architecture.
	NewRegisterCache() *RegisterCache

	// Regset returns the register set for category c, nil if the
	// architecture has none.
	Regset(c RegsetCategory) Regset
	// RegsetOf returns the category of reg, RegsetNone if reg is not
	// defined.
	RegsetOf(reg int) RegsetCategory
	// RegisterArea returns offset and size of reg inside the blob of
	// category c. For AllRegisters it returns the size of the whole blob.
	RegisterArea(reg int, c RegsetCategory) (offset, size int)

	// SigtrampDetectors returns the signal trampoline detectors, in the
	// order they should be tried.
	SigtrampDetectors() []SigtrampDetector
	// SigcontextLayout describes where registers are saved in the context
	// structure of a signal trampoline frame.
	SigcontextLayout() *RegisterLayout
	// FramePointerRule is used to unwind frames that are not signal
	// trampolines.
	FramePointerRule() FramePointerRule

	// Disassemble decodes the instruction at the beginning of code, which
	// is located at pc.
	Disassemble(code []byte, pc uint64) (*AsmInstruction, error)
}

// FramePointerRule describes a frame pointer chain: the caller's frame
// pointer is stored at FP+SavedFPOffset, the return address at
// FP+RetAddrOffset and the caller's stack pointer is FP+CFAOffset.
type FramePointerRule struct {
	FPReg         int
	SavedFPOffset int64
	RetAddrOffset int64
	CFAOffset     int64
}

// archBase implements the table driven part of Arch.
type archBase struct {
	name      string
	machine   elf.Machine
	ptrSize   int
	byteOrder binary.ByteOrder

	maxRegNum  int
	toName     func(int) string
	nameToNum  map[string]int
	pcRegNum   int
	spRegNum   int
	bpRegNum   int
	psRegNum   int
	regsets    []Regset
	detectors  []SigtrampDetector
	sigcontext *RegisterLayout
	fpRule     FramePointerRule
}

func (a *archBase) Name() string                { return a.name }
func (a *archBase) Machine() elf.Machine        { return a.machine }
func (a *archBase) PtrSize() int                { return a.ptrSize }
func (a *archBase) ByteOrder() binary.ByteOrder { return a.byteOrder }
func (a *archBase) MaxRegNum() int              { return a.maxRegNum }
func (a *archBase) PCRegNum() int               { return a.pcRegNum }
func (a *archBase) SPRegNum() int               { return a.spRegNum }
func (a *archBase) BPRegNum() int               { return a.bpRegNum }
func (a *archBase) PSRegNum() int               { return a.psRegNum }

func (a *archBase) RegisterName(reg int) string {
	return a.toName(reg)
}

func (a *archBase) RegisterNum(name string) (int, bool) {
	n, ok := a.nameToNum[strings.ToLower(name)]
	return n, ok
}

func (a *archBase) NewRegisterCache() *RegisterCache {
	return NewRegisterCache(a.maxRegNum+1, a.byteOrder, a.pcRegNum, a.spRegNum, a.bpRegNum, a.psRegNum)
}

func (a *archBase) Regset(c RegsetCategory) Regset {
	for _, rs := range a.regsets {
		if rs.Category() == c {
			return rs
		}
	}
	return nil
}

func (a *archBase) RegsetOf(reg int) RegsetCategory {
	if reg < 0 || reg > a.maxRegNum {
		return RegsetNone
	}
	for _, rs := range a.regsets {
		if regsetContains(rs, reg) {
			return rs.Category()
		}
	}
	return RegsetNone
}

func (a *archBase) RegisterArea(reg int, c RegsetCategory) (offset, size int) {
	rs := a.Regset(c)
	if rs == nil {
		return NoOffset, 0
	}
	if reg == AllRegisters {
		return 0, rs.Size()
	}
	return rs.LayoutFor(rs.Size()).Area(reg)
}

func (a *archBase) SigtrampDetectors() []SigtrampDetector {
	return a.detectors
}

func (a *archBase) SigcontextLayout() *RegisterLayout {
	return a.sigcontext
}

func (a *archBase) FramePointerRule() FramePointerRule {
	return a.fpRule
}

func regsetContains(rs Regset, reg int) bool {
	switch rs := rs.(type) {
	case *FixedRegset:
		return rs.Layout.Contains(reg)
	case *SizedRegset:
		return rs.Legacy.Contains(reg) || rs.Fixed.Contains(reg) || rs.Extended.Contains(reg)
	}
	return rs.LayoutFor(rs.Size()).Contains(reg)
}

// ErrUnsupportedArch is returned when looking up an architecture that is
// not registered.
var ErrUnsupportedArch = errors.New("unsupported architecture")

// ArchFactory returns a new instance of an architecture.
type ArchFactory func() Arch

// Registry maps architecture names, and ELF machine types, to the
// factories of their Arch implementation.
type Registry struct {
	factories map[string]ArchFactory
	aliases   map[string]string
	machines  map[elf.Machine]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ArchFactory),
		aliases:   make(map[string]string),
		machines:  make(map[elf.Machine]string),
	}
}

// NewDefaultRegistry returns a registry populated with every architecture
// implemented by this package.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register("arm", elf.EM_ARM, func() Arch { return ARMArch() }, "armle", "armv7"))
	must(r.Register("aarch64", elf.EM_AARCH64, func() Arch { return ARM64Arch() }, "arm64", "aarch64le"))
	must(r.Register("i386", elf.EM_386, func() Arch { return I386Arch() }, "x86", "386"))
	must(r.Register("x86_64", elf.EM_X86_64, func() Arch { return AMD64Arch() }, "amd64", "x86-64"))
	return r
}

// Register adds an architecture to the registry under name, its ELF
// machine type and any number of aliases.
func (r *Registry) Register(name string, machine elf.Machine, f ArchFactory, aliases ...string) error {
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("architecture %q already registered", name)
	}
	if other, dup := r.machines[machine]; dup {
		return fmt.Errorf("machine %v already registered for %q", machine, other)
	}
	for _, alias := range aliases {
		if _, dup := r.lookupName(alias); dup {
			return fmt.Errorf("alias %q already registered", alias)
		}
	}
	r.factories[name] = f
	r.machines[machine] = name
	for _, alias := range aliases {
		r.aliases[alias] = name
	}
	return nil
}

func (r *Registry) lookupName(name string) (string, bool) {
	if _, ok := r.factories[name]; ok {
		return name, true
	}
	if canon, ok := r.aliases[name]; ok {
		return canon, true
	}
	return "", false
}

// Lookup returns a new instance of the architecture called name.
func (r *Registry) Lookup(name string) (Arch, error) {
	canon, ok := r.lookupName(strings.ToLower(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, name)
	}
	return r.factories[canon](), nil
}

// LookupMachine returns a new instance of the architecture with ELF machine
// type m.
func (r *Registry) LookupMachine(m elf.Machine) (Arch, error) {
	name, ok := r.machines[m]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedArch, m)
	}
	return r.factories[name](), nil
}

// Names returns the sorted names of the registered architectures.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
