package proc

import (
	"debug/elf"
	"fmt"
)

// AsmInstruction represents one assembly instruction.
type AsmInstruction struct {
	PC    uint64
	Bytes []byte
	Size  int
	Kind  AsmInstructionKind
	Text  string
}

type AsmInstructionKind uint8

const (
	OtherInstruction AsmInstructionKind = iota
	CallInstruction
	RetInstruction
	JmpInstruction
)

func (instr *AsmInstruction) IsCall() bool {
	return instr.Kind == CallInstruction
}

func (instr *AsmInstruction) IsRet() bool {
	return instr.Kind == RetInstruction
}

func (instr *AsmInstruction) IsJmp() bool {
	return instr.Kind == JmpInstruction
}

// badInstruction is returned for bytes that do not decode, so that
// disassembly can continue after them.
func badInstruction(code []byte, pc uint64, size int) *AsmInstruction {
	if size > len(code) {
		size = len(code)
	}
	return &AsmInstruction{PC: pc, Bytes: code[:size], Size: size, Text: "?"}
}

// Disassemble decodes the instructions in [start, end) read from mem.
// Undecodable bytes are reported as "?" instructions, one minimum
// instruction length at a time.
func Disassemble(arch Arch, mem MemoryReader, start, end uint64) ([]*AsmInstruction, error) {
	if end <= start {
		return nil, nil
	}
	code := make([]byte, end-start)
	n, err := mem.ReadMemory(code, start)
	if n == 0 && err != nil {
		return nil, fmt.Errorf("reading %#x-%#x: %w", start, end, err)
	}
	code = code[:n]

	var r []*AsmInstruction
	for pc := start; pc-start < uint64(len(code)); {
		inst, err := arch.Disassemble(code[pc-start:], pc)
		if err != nil || inst.Size <= 0 {
			inst = badInstruction(code[pc-start:], pc, minInstructionLength(arch))
		}
		r = append(r, inst)
		pc += uint64(inst.Size)
	}
	return r, nil
}

func minInstructionLength(arch Arch) int {
	switch arch.Machine() {
	case elf.EM_386, elf.EM_X86_64:
		return 1
	}
	return 4
}
