package proc

import (
	"debug/elf"
	"encoding/binary"

	"github.com/go-delve/ntotdep/pkg/regnum"
)

// X86_64_CPU_REGISTERS
const amd64GregSize = 20 * 8

var amd64GregLayout = MustRegisterLayout(RegsetGeneral, amd64GregSize, concatEntries(
	[]LayoutEntry{
		{Reg: regnum.AMD64_Rdi, Offset: 0, Width: 8},
		{Reg: regnum.AMD64_Rsi, Offset: 8, Width: 8},
		{Reg: regnum.AMD64_Rdx, Offset: 16, Width: 8},
		{Reg: regnum.AMD64_R8 + 2, Offset: 24, Width: 8}, // r10
		{Reg: regnum.AMD64_R8, Offset: 32, Width: 8},
		{Reg: regnum.AMD64_R8 + 1, Offset: 40, Width: 8}, // r9
		{Reg: regnum.AMD64_Rax, Offset: 48, Width: 8},
		{Reg: regnum.AMD64_Rbx, Offset: 56, Width: 8},
		{Reg: regnum.AMD64_Rbp, Offset: 64, Width: 8},
		{Reg: regnum.AMD64_Rcx, Offset: 72, Width: 8},
	},
	sequentialLayout(regnum.AMD64_R8+3, 5, 80, 8), // r11 through r15
	[]LayoutEntry{
		{Reg: regnum.AMD64_Rip, Offset: 120, Width: 8},
		{Reg: regnum.AMD64_Cs, Offset: 128, Width: 4},
		{Reg: regnum.AMD64_Rflags, Offset: 136, Width: 8},
		{Reg: regnum.AMD64_Rsp, Offset: 144, Width: 8},
		{Reg: regnum.AMD64_Ss, Offset: 152, Width: 4},
	},
	filler(regnum.AMD64_Ds, regnum.AMD64_Es, regnum.AMD64_Fs, regnum.AMD64_Gs),
)...)

var amd64X87Regnums = x87Regnums{
	st0:   regnum.AMD64_ST0,
	fctrl: regnum.AMD64_FCTRL,
	fstat: regnum.AMD64_FSTAT,
	ftag:  regnum.AMD64_FTAG,
	fiseg: regnum.AMD64_FISEG,
	fioff: regnum.AMD64_FIOFF,
	foseg: regnum.AMD64_FOSEG,
	fooff: regnum.AMD64_FOOFF,
	fop:   regnum.AMD64_FOP,
	xmm0:  regnum.AMD64_XMM0,
	mxcsr: regnum.AMD64_MXCSR,
	ymm0h: regnum.AMD64_YMM0H,
	nxmm:  16,
}

var amd64SigtrampSymbols = &SymbolTrampoline{
	Names:   []string{SignalStubSymbol, SignalReturnSymbol},
	Context: ContextRule{Reg: regnum.AMD64_Rdi, Offset: 48},
}

type amd64Arch struct {
	archBase
}

// AMD64Arch returns the x86_64 architecture.
func AMD64Arch() Arch {
	return &amd64Arch{archBase{
		name:      "x86_64",
		machine:   elf.EM_X86_64,
		ptrSize:   8,
		byteOrder: binary.LittleEndian,
		maxRegNum: regnum.AMD64MaxRegNum(),
		toName:    regnum.AMD64ToName,
		nameToNum: regnum.AMD64NameToNum,
		pcRegNum:  regnum.AMD64_Rip,
		spRegNum:  regnum.AMD64_Rsp,
		bpRegNum:  regnum.AMD64_Rbp,
		psRegNum:  regnum.AMD64_Rflags,
		regsets: []Regset{
			&FixedRegset{Layout: amd64GregLayout},
			newX86FloatRegset(amd64X87Regnums),
		},
		detectors:  []SigtrampDetector{amd64SigtrampSymbols},
		sigcontext: amd64GregLayout,
		fpRule:     FramePointerRule{FPReg: regnum.AMD64_Rbp, SavedFPOffset: 0, RetAddrOffset: 8, CFAOffset: 16},
	}}
}

func (a *amd64Arch) Disassemble(code []byte, pc uint64) (*AsmInstruction, error) {
	return x86Disassemble(code, pc, 64)
}
