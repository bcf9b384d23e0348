package proc

import (
	"golang.org/x/arch/x86/x86asm"
)

func x86Disassemble(code []byte, pc uint64, bit int) (*AsmInstruction, error) {
	inst, err := x86asm.Decode(code, bit)
	if err != nil {
		return nil, err
	}
	r := &AsmInstruction{PC: pc, Bytes: code[:inst.Len], Size: inst.Len, Text: x86asm.GNUSyntax(inst, pc, nil)}
	switch inst.Op {
	case x86asm.JMP, x86asm.LJMP:
		r.Kind = JmpInstruction
	case x86asm.CALL, x86asm.LCALL:
		r.Kind = CallInstruction
	case x86asm.RET, x86asm.LRET:
		r.Kind = RetInstruction
	}
	return r, nil
}
