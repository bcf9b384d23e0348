package proc

import (
	"encoding/binary"
	"fmt"

	"github.com/go-delve/ntotdep/pkg/logflags"
)

// Symbol names of the QNX signal delivery stub and of the thunk signal
// handlers return through.
const (
	SignalStubSymbol   = "__signalstub"
	SignalReturnSymbol = "SignalReturn"
)

// ContextRule computes the address of the saved context structure of a
// signal trampoline frame: the value of register Reg plus Offset.
type ContextRule struct {
	Reg    int
	Offset int64
}

// Address applies the rule to regs.
func (r ContextRule) Address(regs *RegisterCache) (uint64, bool) {
	if !regs.Available(r.Reg) {
		return 0, false
	}
	return regs.Uint64Val(r.Reg) + uint64(r.Offset), true
}

// SigtrampQuery holds what a SigtrampDetector may look at to decide whether
// a frame is executing a signal trampoline.
type SigtrampQuery struct {
	PC      uint64
	Regs    *RegisterCache
	Mem     MemoryReader
	Symbols SymbolLookup
}

// TrampolineMatch describes a recognized signal trampoline.
type TrampolineMatch struct {
	Detector    string
	Start       uint64 // address of the first trampoline instruction
	ContextAddr uint64 // address of the saved context structure
}

// SigtrampDetector recognizes one kind of signal trampoline.
type SigtrampDetector interface {
	Name() string
	Detect(q *SigtrampQuery) (*TrampolineMatch, bool)
}

// RecognizeSigtramp runs detectors in order and returns the first match.
// A frame no detector recognizes is not a signal trampoline frame.
func RecognizeSigtramp(detectors []SigtrampDetector, q *SigtrampQuery) (*TrampolineMatch, bool) {
	logger := logflags.SigtrampLogger()
	for _, d := range detectors {
		if m, ok := d.Detect(q); ok {
			logger.Debugf("%#x: %s trampoline at %#x, context at %#x", q.PC, m.Detector, m.Start, m.ContextAddr)
			return m, true
		}
	}
	return nil, false
}

// TrampolineWord is one instruction word of a TrampolinePattern. Only the
// bits set in Mask are compared.
type TrampolineWord struct {
	Insn uint32
	Mask uint32
}

func (w TrampolineWord) matches(v uint32) bool {
	return v&w.Mask == w.Insn&w.Mask
}

// TrampolinePattern recognizes a signal trampoline by the instructions it
// is made of. The pc of a frame stopped in the trampoline is expected to be
// at most BackOffset bytes past the first instruction of the pattern.
//
// This is a fixed window heuristic: it is only as reliable as the code the
// operating system's compiler generated for the trampoline.
type TrampolinePattern struct {
	Label      string
	WordSize   int
	ByteOrder  binary.ByteOrder
	Words      []TrampolineWord
	BackOffset uint64
	Context    ContextRule
}

// Len returns the length of the pattern in bytes.
func (p *TrampolinePattern) Len() int {
	return p.WordSize * len(p.Words)
}

func (p *TrampolinePattern) word(code []byte, off int) uint32 {
	switch p.WordSize {
	case 2:
		return uint32(p.ByteOrder.Uint16(code[off:]))
	default:
		return p.ByteOrder.Uint32(code[off:])
	}
}

// Match scans code, which is mapped at codeAddr, backward from pc for the
// first word of the pattern, at most BackOffset bytes, then checks that the
// words following it match the rest of the pattern. A mismatch aborts the
// search, other candidate positions are not tried.
func (p *TrampolinePattern) Match(code []byte, codeAddr, pc uint64) (start uint64, ok bool) {
	if len(p.Words) == 0 || pc < codeAddr {
		return 0, false
	}
	ws := uint64(p.WordSize)
	pcOff := (pc - codeAddr) &^ (ws - 1)

	low := uint64(0)
	if pcOff > p.BackOffset {
		low = pcOff - p.BackOffset
	}
	found := false
	var off uint64
	for cand := pcOff; ; cand -= ws {
		if cand+ws <= uint64(len(code)) && p.Words[0].matches(p.word(code, int(cand))) {
			off, found = cand, true
			break
		}
		if cand < low+ws {
			break
		}
	}
	if !found {
		return 0, false
	}
	if off+uint64(p.Len()) > uint64(len(code)) {
		return 0, false
	}
	for i := 1; i < len(p.Words); i++ {
		if !p.Words[i].matches(p.word(code, int(off+uint64(i)*ws))) {
			return 0, false
		}
	}
	return codeAddr + off, true
}

// Window returns the address and size of the code that must be read to
// check pc against the pattern.
func (p *TrampolinePattern) Window(pc uint64) (addr uint64, size int) {
	pc &^= uint64(p.WordSize - 1)
	back := p.BackOffset
	if back > pc {
		back = pc
	}
	return pc - back, int(back) + p.Len()
}

func (p *TrampolinePattern) Name() string { return p.Label }

// Detect reads the code window around q.PC and matches it.
func (p *TrampolinePattern) Detect(q *SigtrampQuery) (*TrampolineMatch, bool) {
	if q.Mem == nil {
		return nil, false
	}
	addr, size := p.Window(q.PC)
	code := make([]byte, size)
	n, err := q.Mem.ReadMemory(code, addr)
	if err != nil && n == 0 {
		logflags.SigtrampLogger().Debugf("could not read trampoline window at %#x: %v", addr, err)
		return nil, false
	}
	start, ok := p.Match(code[:n], addr, q.PC)
	if !ok {
		return nil, false
	}
	ctx, ok := p.Context.Address(q.Regs)
	if !ok {
		return nil, false
	}
	return &TrampolineMatch{Detector: p.Label, Start: start, ContextAddr: ctx}, true
}

// SymbolTrampoline recognizes a signal trampoline by the name of the
// function containing the pc.
type SymbolTrampoline struct {
	Names   []string
	Context ContextRule
}

func (s *SymbolTrampoline) Detect(q *SigtrampQuery) (*TrampolineMatch, bool) {
	if q.Symbols == nil {
		return nil, false
	}
	name, entry, ok := q.Symbols.FunctionContaining(q.PC)
	if !ok {
		return nil, false
	}
	for _, n := range s.Names {
		if name != n {
			continue
		}
		ctx, ok := s.Context.Address(q.Regs)
		if !ok {
			return nil, false
		}
		return &TrampolineMatch{Detector: s.Name(), Start: entry, ContextAddr: ctx}, true
	}
	return nil, false
}

func (s *SymbolTrampoline) Name() string {
	return fmt.Sprintf("symbol%v", s.Names)
}
