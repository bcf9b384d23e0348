package proc

import (
	"debug/elf"
	"encoding/binary"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/go-delve/ntotdep/pkg/regnum"
)

// AARCH64_CPU_REGISTERS is X0 through X30, SP, ELR (the pc) and PSTATE;
// AARCH64_FPU_REGISTERS is V0 through V31 followed by FPSR and FPCR.
const (
	arm64GregSize  = 34 * 8
	arm64FpregSize = 32*16 + 2*4
)

var arm64GregLayout = MustRegisterLayout(RegsetGeneral, arm64GregSize, concatEntries(
	sequentialLayout(regnum.ARM64_X0, 31, 0, 8),
	[]LayoutEntry{
		{Reg: regnum.ARM64_SP, Offset: 31 * 8, Width: 8},
		{Reg: regnum.ARM64_PC, Offset: 32 * 8, Width: 8},
		{Reg: regnum.ARM64_CPSR, Offset: 33 * 8, Width: 4},
	},
)...)

var arm64FpregLayout = MustRegisterLayout(RegsetFloat, arm64FpregSize, concatEntries(
	sequentialLayout(regnum.ARM64_V0, 32, 0, 16),
	[]LayoutEntry{
		{Reg: regnum.ARM64_FPSR, Offset: 32 * 16, Width: 4},
		{Reg: regnum.ARM64_FPCR, Offset: 32*16 + 4, Width: 4},
	},
)...)

// The signal stub keeps a pointer to the ucontext in x19; the saved
// register context starts 48 bytes into it.
var arm64SigtrampSymbols = &SymbolTrampoline{
	Names:   []string{SignalStubSymbol, SignalReturnSymbol},
	Context: ContextRule{Reg: regnum.ARM64_X19, Offset: 48},
}

type arm64Arch struct {
	archBase
}

// ARM64Arch returns the little endian AArch64 architecture.
func ARM64Arch() Arch {
	return &arm64Arch{archBase{
		name:      "aarch64",
		machine:   elf.EM_AARCH64,
		ptrSize:   8,
		byteOrder: binary.LittleEndian,
		maxRegNum: regnum.ARM64MaxRegNum(),
		toName:    regnum.ARM64ToName,
		nameToNum: regnum.ARM64NameToNum,
		pcRegNum:  regnum.ARM64_PC,
		spRegNum:  regnum.ARM64_SP,
		bpRegNum:  regnum.ARM64_BP,
		psRegNum:  regnum.ARM64_CPSR,
		regsets: []Regset{
			&FixedRegset{Layout: arm64GregLayout},
			&FixedRegset{Layout: arm64FpregLayout},
		},
		detectors:  []SigtrampDetector{arm64SigtrampSymbols},
		sigcontext: arm64GregLayout,
		fpRule:     FramePointerRule{FPReg: regnum.ARM64_BP, SavedFPOffset: 0, RetAddrOffset: 8, CFAOffset: 16},
	}}
}

func (a *arm64Arch) Disassemble(code []byte, pc uint64) (*AsmInstruction, error) {
	if len(code) < 4 {
		return nil, ErrShortRead
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return nil, err
	}
	r := &AsmInstruction{PC: pc, Bytes: code[:4], Size: 4, Text: arm64asm.GNUSyntax(inst)}
	switch inst.Op {
	case arm64asm.BL, arm64asm.BLR:
		r.Kind = CallInstruction
	case arm64asm.RET, arm64asm.ERET:
		r.Kind = RetInstruction
	case arm64asm.B, arm64asm.BR:
		r.Kind = JmpInstruction
	}
	return r, nil
}
