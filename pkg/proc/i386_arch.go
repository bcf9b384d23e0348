package proc

import (
	"debug/elf"
	"encoding/binary"

	"github.com/go-delve/ntotdep/pkg/regnum"
)

// X86_CPU_REGISTERS. The slot at offset 12 is the esp pushed by pusha,
// which is meaningless; the real esp is stored after efl.
const i386GregSize = 13 * 4

var i386GregLayout = MustRegisterLayout(RegsetGeneral, i386GregSize, concatEntries(
	[]LayoutEntry{
		{Reg: regnum.I386_Edi, Offset: 0, Width: 4},
		{Reg: regnum.I386_Esi, Offset: 4, Width: 4},
		{Reg: regnum.I386_Ebp, Offset: 8, Width: 4},
		{Reg: regnum.I386_Ebx, Offset: 16, Width: 4},
		{Reg: regnum.I386_Edx, Offset: 20, Width: 4},
		{Reg: regnum.I386_Ecx, Offset: 24, Width: 4},
		{Reg: regnum.I386_Eax, Offset: 28, Width: 4},
		{Reg: regnum.I386_Eip, Offset: 32, Width: 4},
		{Reg: regnum.I386_Cs, Offset: 36, Width: 4},
		{Reg: regnum.I386_Eflags, Offset: 40, Width: 4},
		{Reg: regnum.I386_Esp, Offset: 44, Width: 4},
		{Reg: regnum.I386_Ss, Offset: 48, Width: 4},
	},
	filler(regnum.I386_Ds, regnum.I386_Es, regnum.I386_Fs, regnum.I386_Gs),
)...)

var i386X87Regnums = x87Regnums{
	st0:   regnum.I386_ST0,
	fctrl: regnum.I386_FCTRL,
	fstat: regnum.I386_FSTAT,
	ftag:  regnum.I386_FTAG,
	fiseg: regnum.I386_FISEG,
	fioff: regnum.I386_FIOFF,
	foseg: regnum.I386_FOSEG,
	fooff: regnum.I386_FOOFF,
	fop:   regnum.I386_FOP,
	xmm0:  regnum.I386_XMM0,
	mxcsr: regnum.I386_MXCSR,
	ymm0h: regnum.I386_YMM0H,
	nxmm:  8,
}

// edi points to the ucontext while the signal stub runs.
var i386SigtrampSymbols = &SymbolTrampoline{
	Names:   []string{SignalStubSymbol, SignalReturnSymbol},
	Context: ContextRule{Reg: regnum.I386_Edi, Offset: 24},
}

type i386Arch struct {
	archBase
}

// I386Arch returns the 32 bit x86 architecture.
func I386Arch() Arch {
	return &i386Arch{archBase{
		name:      "i386",
		machine:   elf.EM_386,
		ptrSize:   4,
		byteOrder: binary.LittleEndian,
		maxRegNum: regnum.I386MaxRegNum(),
		toName:    regnum.I386ToName,
		nameToNum: regnum.I386NameToNum,
		pcRegNum:  regnum.I386_Eip,
		spRegNum:  regnum.I386_Esp,
		bpRegNum:  regnum.I386_Ebp,
		psRegNum:  regnum.I386_Eflags,
		regsets: []Regset{
			&FixedRegset{Layout: i386GregLayout},
			newX86FloatRegset(i386X87Regnums),
		},
		detectors:  []SigtrampDetector{i386SigtrampSymbols},
		sigcontext: i386GregLayout,
		fpRule:     FramePointerRule{FPReg: regnum.I386_Ebp, SavedFPOffset: 0, RetAddrOffset: 4, CFAOffset: 8},
	}}
}

func (a *i386Arch) Disassemble(code []byte, pc uint64) (*AsmInstruction, error) {
	return x86Disassemble(code, pc, 32)
}
