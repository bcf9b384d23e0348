package proc

import (
	"encoding/binary"
	"testing"

	"github.com/go-delve/ntotdep/pkg/regnum"
)

const armStubAddr = 0x10000

func armStubCode() []byte {
	code := make([]byte, armSigtrampPattern.Len())
	for i, w := range armSigtrampPattern.Words {
		binary.LittleEndian.PutUint32(code[i*4:], w.Insn)
	}
	return code
}

func armRegs(pc, sp, r5 uint64) *RegisterCache {
	regs := ARMArch().NewRegisterCache()
	regs.SupplyUint64(regnum.ARM_PC, 4, pc)
	regs.SupplyUint64(regnum.ARM_SP, 4, sp)
	regs.SupplyUint64(regnum.ARM_R5, 4, r5)
	return regs
}

func TestARMSigtrampPatternMatch(t *testing.T) {
	code := armStubCode()
	if len(code) != 24 {
		t.Fatalf("pattern is %d bytes long", len(code))
	}
	// the handler returns to the instruction after blx
	pc := uint64(armStubAddr + 16)
	q := &SigtrampQuery{
		PC:   pc,
		Regs: armRegs(pc, 0x7fff0000, 0x7fff0100),
		Mem:  &BytesMemory{Addr: armStubAddr, Data: code},
	}
	m, ok := armSigtrampPattern.Detect(q)
	if !ok {
		t.Fatalf("trampoline not recognized")
	}
	if m.Start != armStubAddr {
		t.Errorf("start %#x", m.Start)
	}
	if m.ContextAddr != 0x7fff0100-4 {
		t.Errorf("context address %#x, expected r5-4", m.ContextAddr)
	}

	// any pc inside the window finds the same start
	for off := uint64(0); off <= armSigtrampPattern.BackOffset; off += 4 {
		if start, ok := armSigtrampPattern.Match(code, armStubAddr, armStubAddr+off); !ok || start != armStubAddr {
			t.Errorf("pc at +%d: %#x %v", off, start, ok)
		}
	}
}

func TestARMSigtrampPatternWindow(t *testing.T) {
	code := armStubCode()
	pc := uint64(armStubAddr) + armSigtrampPattern.BackOffset + 4
	if _, ok := armSigtrampPattern.Match(code, armStubAddr, pc); ok {
		t.Errorf("pattern start %d bytes before pc accepted", pc-armStubAddr)
	}
	// unaligned pcs are rounded down to a word boundary
	if start, ok := armSigtrampPattern.Match(code, armStubAddr, armStubAddr+armSigtrampPattern.BackOffset+2); !ok || start != armStubAddr {
		t.Errorf("unaligned pc: %#x %v", start, ok)
	}
}

func TestARMSigtrampPatternMutations(t *testing.T) {
	pc := uint64(armStubAddr + 16)
	for i := 0; i < armSigtrampPattern.Len(); i++ {
		code := armStubCode()
		code[i] ^= 0xff
		w := armSigtrampPattern.Words[i/4]
		masked := (w.Mask>>(8*uint(i%4)))&0xff == 0
		_, ok := armSigtrampPattern.Match(code, armStubAddr, pc)
		if masked && !ok {
			t.Errorf("mutation of masked byte %d prevented the match", i)
		}
		if !masked && ok {
			t.Errorf("mutation of byte %d still matches", i)
		}
	}
}

func TestARMSigtrampPatternNoRetry(t *testing.T) {
	// A copy of the first word right before the pc makes the scan stop
	// there: the rest of the pattern does not follow it and no other
	// position is tried.
	code := armStubCode()
	binary.LittleEndian.PutUint32(code[12:], armSigtrampPattern.Words[0].Insn)
	if _, ok := armSigtrampPattern.Match(code, armStubAddr, armStubAddr+16); ok {
		t.Errorf("match found after a mismatch")
	}
}

func TestARMSigtrampPatternOutOfWindow(t *testing.T) {
	code := append(make([]byte, 32), armStubCode()...)
	// pc past the back offset from the first word
	pc := uint64(armStubAddr + 32 + 20)
	if _, ok := armSigtrampPattern.Match(code, armStubAddr, pc); ok {
		t.Errorf("match found outside of the window")
	}
	// unreadable memory
	q := &SigtrampQuery{PC: 0x50000, Regs: armRegs(0x50000, 0, 0), Mem: &BytesMemory{Addr: armStubAddr, Data: code}}
	if _, ok := armSigtrampPattern.Detect(q); ok {
		t.Errorf("match found in unmapped memory")
	}
}

func TestContextRuleUnavailableRegister(t *testing.T) {
	regs := ARMArch().NewRegisterCache()
	regs.SupplyUint64(regnum.ARM_PC, 4, armStubAddr+16)
	q := &SigtrampQuery{PC: armStubAddr + 16, Regs: regs, Mem: &BytesMemory{Addr: armStubAddr, Data: armStubCode()}}
	if _, ok := armSigtrampPattern.Detect(q); ok {
		t.Errorf("match without r5")
	}
}

type fakeSymbols map[string][2]uint64

func (s fakeSymbols) FunctionContaining(pc uint64) (string, uint64, bool) {
	for name, r := range s {
		if pc >= r[0] && pc < r[1] {
			return name, r[0], true
		}
	}
	return "", 0, false
}

func TestSymbolTrampoline(t *testing.T) {
	arch := AMD64Arch()
	syms := fakeSymbols{
		SignalStubSymbol: {0x1000, 0x1040},
		"main":           {0x2000, 0x2100},
	}
	regs := arch.NewRegisterCache()
	regs.SupplyUint64(regnum.AMD64_Rdi, 8, 0x7ffc0000)

	q := &SigtrampQuery{PC: 0x1010, Regs: regs, Symbols: syms}
	m, ok := RecognizeSigtramp(arch.SigtrampDetectors(), q)
	if !ok {
		t.Fatalf("__signalstub not recognized")
	}
	if m.Start != 0x1000 || m.ContextAddr != 0x7ffc0000+48 {
		t.Errorf("start %#x context %#x", m.Start, m.ContextAddr)
	}

	q.PC = 0x2010
	if _, ok := RecognizeSigtramp(arch.SigtrampDetectors(), q); ok {
		t.Errorf("main recognized as a trampoline")
	}
	q.PC = 0x9000
	if _, ok := RecognizeSigtramp(arch.SigtrampDetectors(), q); ok {
		t.Errorf("unknown function recognized as a trampoline")
	}
}

func TestSymbolTrampolineContextOffsets(t *testing.T) {
	syms := fakeSymbols{SignalReturnSymbol: {0x1000, 0x1010}}
	for _, tc := range []struct {
		arch Arch
		reg  int
		off  int64
	}{
		{ARMArch(), regnum.ARM_R5, -4},
		{ARM64Arch(), regnum.ARM64_X19, 48},
		{I386Arch(), regnum.I386_Edi, 24},
		{AMD64Arch(), regnum.AMD64_Rdi, 48},
	} {
		regs := tc.arch.NewRegisterCache()
		regs.SupplyUint64(tc.reg, tc.arch.PtrSize(), 0x8000)
		m, ok := RecognizeSigtramp(tc.arch.SigtrampDetectors(), &SigtrampQuery{PC: 0x1004, Regs: regs, Symbols: syms})
		if !ok {
			t.Errorf("%s: SignalReturn not recognized", tc.arch.Name())
			continue
		}
		if m.ContextAddr != uint64(0x8000+tc.off) {
			t.Errorf("%s: context at %#x", tc.arch.Name(), m.ContextAddr)
		}
	}
}
