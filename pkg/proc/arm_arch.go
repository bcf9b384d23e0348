package proc

import (
	"debug/elf"
	"encoding/binary"

	"golang.org/x/arch/arm/armasm"

	"github.com/go-delve/ntotdep/pkg/regnum"
)

// QNX Neutrino ARM_CPU_REGISTERS: R0 through R15 followed by SPSR, which
// holds the CPSR of the interrupted context. The legacy FPA registers are
// part of the register numbering but are never stored.
const (
	armGregSize  = 17 * 4
	armFpregSize = 32*8 + 2*4 + 8

	armPSOffset = 16 * 4
)

var armGregLayout = MustRegisterLayout(RegsetGeneral, armGregSize, concatEntries(
	sequentialLayout(regnum.ARM_R0, 16, 0, 4),
	[]LayoutEntry{{Reg: regnum.ARM_CPSR, Offset: armPSOffset, Width: 4}},
	filler(
		regnum.ARM_F0, regnum.ARM_F0+1, regnum.ARM_F0+2, regnum.ARM_F0+3,
		regnum.ARM_F0+4, regnum.ARM_F0+5, regnum.ARM_F0+6, regnum.ARM_F0+7,
		regnum.ARM_FPS),
)...)

// ARM_FPU_REGISTERS (VFP variant)
var armFpregLayout = MustRegisterLayout(RegsetFloat, armFpregSize, concatEntries(
	sequentialLayout(regnum.ARM_D0, 32, 0, 8),
	[]LayoutEntry{
		{Reg: regnum.ARM_FPSCR, Offset: 32 * 8, Width: 4},
		{Reg: regnum.ARM_FPEXC, Offset: 32*8 + 4, Width: 4},
	},
)...)

// armSigcontextLayout places the registers saved by the kernel before
// calling a signal handler: register i at ctx+4*i and the status register
// after the sixteen general registers.
func armSigcontextLayout() *RegisterLayout {
	entries := make([]LayoutEntry, 0, 17)
	for i := 0; i < 16; i++ {
		entries = append(entries, LayoutEntry{Reg: regnum.ARM_R0 + i, Offset: i * 4, Width: 4})
	}
	entries = append(entries, LayoutEntry{Reg: regnum.ARM_CPSR, Offset: armPSOffset, Width: 4})
	return MustRegisterLayout(RegsetGeneral, armGregSize, entries...)
}

// armSigtrampPattern matches the part of the signal delivery stub around
// the call to the handler:
//
//	mov	r5, sp
//	bic	sp, sp, #7
//	ldr	r3, [r5, #8]
//	blx	r3
//	mov	sp, r5		<- return address of the handler
//	b	SignalReturn
//
// r5 keeps the stack pointer of the stub, the context structure starts one
// word below it.
var armSigtrampPattern = &TrampolinePattern{
	Label:     "arm-signalstub",
	WordSize:  4,
	ByteOrder: binary.LittleEndian,
	Words: []TrampolineWord{
		{Insn: 0xe1a0500d, Mask: 0xffffffff},
		{Insn: 0xe3cdd007, Mask: 0xffffffff},
		{Insn: 0xe5953008, Mask: 0xffffffff},
		{Insn: 0xe12fff33, Mask: 0xffffffff},
		{Insn: 0xe1a0d005, Mask: 0xffffffff},
		{Insn: 0xea000000, Mask: 0xff000000},
	},
	BackOffset: 16,
	Context:    ContextRule{Reg: regnum.ARM_R5, Offset: -4},
}

var armSigtrampSymbols = &SymbolTrampoline{
	Names:   []string{SignalStubSymbol, SignalReturnSymbol},
	Context: ContextRule{Reg: regnum.ARM_R5, Offset: -4},
}

type armArch struct {
	archBase
}

// ARMArch returns the 32 bit little endian ARM architecture.
func ARMArch() Arch {
	return &armArch{archBase{
		name:      "arm",
		machine:   elf.EM_ARM,
		ptrSize:   4,
		byteOrder: binary.LittleEndian,
		maxRegNum: regnum.ARMMaxRegNum(),
		toName:    regnum.ARMToName,
		nameToNum: regnum.ARMNameToNum,
		pcRegNum:  regnum.ARM_PC,
		spRegNum:  regnum.ARM_SP,
		bpRegNum:  regnum.ARM_FP,
		psRegNum:  regnum.ARM_CPSR,
		regsets: []Regset{
			&FixedRegset{Layout: armGregLayout},
			&FixedRegset{Layout: armFpregLayout},
		},
		detectors:  []SigtrampDetector{armSigtrampPattern, armSigtrampSymbols},
		sigcontext: armSigcontextLayout(),
		fpRule:     FramePointerRule{FPReg: regnum.ARM_FP, SavedFPOffset: 0, RetAddrOffset: 4, CFAOffset: 8},
	}}
}

func (a *armArch) Disassemble(code []byte, pc uint64) (*AsmInstruction, error) {
	if len(code) < 4 {
		return nil, ErrShortRead
	}
	inst, err := armasm.Decode(code, armasm.ModeARM)
	if err != nil {
		return nil, err
	}
	r := &AsmInstruction{PC: pc, Bytes: code[:4], Size: 4, Text: armasm.GNUSyntax(inst)}
	switch inst.Op {
	case armasm.B, armasm.BX:
		r.Kind = JmpInstruction
		if reg, ok := inst.Args[0].(armasm.Reg); ok && reg == armasm.LR {
			r.Kind = RetInstruction
		}
	case armasm.BL, armasm.BLX:
		r.Kind = CallInstruction
	case armasm.LDR, armasm.ADD, armasm.MOV:
		if reg, ok := inst.Args[0].(armasm.Reg); ok && reg == armasm.PC {
			r.Kind = RetInstruction
		}
	case armasm.POP:
		if regList, ok := inst.Args[0].(armasm.RegList); ok && (regList&(1<<uint(armasm.PC)) != 0) {
			r.Kind = RetInstruction
		}
	}
	return r, nil
}
