package proc

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/ntotdep/pkg/logflags"
)

// DefaultMaxStackDepth is the number of frames Stacktrace returns when no
// depth is specified.
const DefaultMaxStackDepth = 50

const sigtrampCacheSize = 128

// NoReturnAddr is returned when the return address of a frame could not be
// found.
type NoReturnAddr struct {
	PC uint64
	FP uint64
}

func (nra NoReturnAddr) Error() string {
	return fmt.Sprintf("could not find return address for frame at %#x (frame pointer %#x)", nra.PC, nra.FP)
}

// errOutermost is returned by CallerRegisters for the outermost frame.
var errOutermost = errors.New("outermost frame")

// FrameID identifies a frame in the call chain: the value of the stack
// pointer in the frame and the start address of the code it is executing.
type FrameID struct {
	StackAddr uint64
	CodeAddr  uint64
}

func (id FrameID) String() string {
	return fmt.Sprintf("{stack=%#x,code=%#x}", id.StackAddr, id.CodeAddr)
}

// Stackframe represents a frame in a stack.
type Stackframe struct {
	Level int
	// PC is the address of the instruction executing in the frame. For
	// frames other than the innermost one it is a return address, unless
	// Interrupted is set.
	PC uint64
	SP uint64
	// Function containing PC and its entry point, if known.
	Function string
	Entry    uint64
	// Regs are the registers of the frame. Registers that could not be
	// recovered are unavailable.
	Regs *RegisterCache
	// Sigtramp is set when the frame is executing a signal trampoline.
	Sigtramp *TrampolineMatch
	// Interrupted is set when the frame was interrupted by a signal, PC
	// is then the address of the next instruction to execute rather than
	// a return address.
	Interrupted bool
	// Err is the reason the unwinder stopped after this frame, if it was
	// not the outermost frame.
	Err error
}

// ID returns the identity of the frame.
func (frame *Stackframe) ID() FrameID {
	code := frame.Entry
	if frame.Sigtramp != nil {
		code = frame.Sigtramp.Start
	}
	if code == 0 {
		code = frame.PC
	}
	return FrameID{StackAddr: frame.SP, CodeAddr: code}
}

// lookupPC returns the address to use when looking up the function
// containing the frame: return addresses point after the call instruction
// which may be the first address of the next function.
func (frame *Stackframe) lookupPC() uint64 {
	if frame.Level > 0 && !frame.Interrupted && frame.PC > 0 {
		return frame.PC - 1
	}
	return frame.PC
}

// SigtrampCache holds the addresses where the registers of the frame
// interrupted by a signal were saved, for one signal trampoline frame.
type SigtrampCache struct {
	ID          FrameID
	ContextAddr uint64
	layout      *RegisterLayout
}

func newSigtrampCache(id FrameID, ctx uint64, layout *RegisterLayout) *SigtrampCache {
	return &SigtrampCache{ID: id, ContextAddr: ctx, layout: layout}
}

// SavedRegisterAddress returns the address where the pre signal value of
// reg is stored, and its size.
func (c *SigtrampCache) SavedRegisterAddress(reg int) (addr uint64, size int, ok bool) {
	off, ok := c.layout.OffsetOf(reg)
	if !ok {
		return 0, 0, false
	}
	return c.ContextAddr + uint64(off), c.layout.WidthOf(reg), true
}

// CallerUnwinder computes the registers of the caller of a frame that is
// not a signal trampoline.
type CallerUnwinder interface {
	CallerRegisters(u *Unwinder, frame *Stackframe) (*RegisterCache, error)
}

// Unwinder walks the stack of a thread, unwinding through signal
// trampolines using the context structure the kernel saved.
type Unwinder struct {
	arch    Arch
	mem     MemoryReader
	symbols SymbolLookup

	// Detectors recognize signal trampoline frames, the architecture's
	// detectors by default.
	Detectors []SigtrampDetector
	// Fallback unwinds the frames that are not signal trampolines,
	// FramePointerUnwinder by default.
	Fallback CallerUnwinder

	sigtramps *lru.Cache
}

// NewUnwinder returns an unwinder for a target of architecture arch.
// symbols may be nil.
func NewUnwinder(arch Arch, mem MemoryReader, symbols SymbolLookup) *Unwinder {
	cache, err := lru.New(sigtrampCacheSize)
	if err != nil {
		panic(err)
	}
	return &Unwinder{
		arch:      arch,
		mem:       mem,
		symbols:   symbols,
		Detectors: arch.SigtrampDetectors(),
		Fallback:  FramePointerUnwinder{},
		sigtramps: cache,
	}
}

// Arch returns the architecture of the unwinder.
func (u *Unwinder) Arch() Arch {
	return u.arch
}

// Reset discards all cached signal trampoline frames. It must be called
// every time the target resumes execution.
func (u *Unwinder) Reset() {
	u.sigtramps.Purge()
}

// NewFrame describes the frame executing at regs.
func (u *Unwinder) NewFrame(level int, regs *RegisterCache, interrupted bool) *Stackframe {
	frame := &Stackframe{
		Level:       level,
		PC:          regs.PC(),
		SP:          regs.SP(),
		Regs:        regs,
		Interrupted: interrupted,
	}
	if u.symbols != nil {
		if name, entry, ok := u.symbols.FunctionContaining(frame.lookupPC()); ok {
			frame.Function, frame.Entry = name, entry
		}
	}
	if m, ok := RecognizeSigtramp(u.Detectors, &SigtrampQuery{PC: frame.PC, Regs: regs, Mem: u.mem, Symbols: u.symbols}); ok {
		frame.Sigtramp = m
	}
	return frame
}

// Sigtramp returns the signal trampoline cache of frame, building it the
// first time. It returns false if frame is not a signal trampoline frame.
func (u *Unwinder) Sigtramp(frame *Stackframe) (*SigtrampCache, bool) {
	if frame.Sigtramp == nil {
		return nil, false
	}
	id := frame.ID()
	if c, ok := u.sigtramps.Get(id); ok {
		return c.(*SigtrampCache), true
	}
	c := newSigtrampCache(id, frame.Sigtramp.ContextAddr, u.arch.SigcontextLayout())
	u.sigtramps.Add(id, c)
	logflags.UnwindLogger().Debugf("signal trampoline frame %v, context at %#x", id, c.ContextAddr)
	return c, true
}

// CallerRegisters returns the registers of the caller of frame.
func (u *Unwinder) CallerRegisters(frame *Stackframe) (*RegisterCache, error) {
	if sc, ok := u.Sigtramp(frame); ok {
		return u.sigtrampCallerRegisters(sc)
	}
	if u.Fallback == nil {
		return nil, errOutermost
	}
	return u.Fallback.CallerRegisters(u, frame)
}

// sigtrampCallerRegisters reads the pc and stack pointer of the interrupted
// frame and defers reading all other registers until one of them is used.
func (u *Unwinder) sigtrampCallerRegisters(sc *SigtrampCache) (*RegisterCache, error) {
	layout := sc.layout
	mem := cacheMemory(u.mem, sc.ContextAddr, layout.Size)
	caller := u.arch.NewRegisterCache()
	for _, reg := range []int{u.arch.PCRegNum(), u.arch.SPRegNum()} {
		addr, size, ok := sc.SavedRegisterAddress(reg)
		if !ok {
			return nil, fmt.Errorf("register %s not saved in signal context", u.arch.RegisterName(reg))
		}
		buf := make([]byte, size)
		if err := readFull(mem, buf, addr); err != nil {
			return nil, fmt.Errorf("reading saved %s at %#x: %w", u.arch.RegisterName(reg), addr, err)
		}
		caller.Supply(reg, buf)
	}
	caller.SetLoadMoreCallback(func() {
		buf := make([]byte, layout.Size)
		if err := readFull(mem, buf, sc.ContextAddr); err != nil {
			logflags.UnwindLogger().Warnf("could not read signal context at %#x: %v", sc.ContextAddr, err)
			return
		}
		supplyLayout(layout, caller, buf, nil)
	})
	return caller, nil
}

// FramePointerUnwinder unwinds frames by following the architecture's frame
// pointer chain.
type FramePointerUnwinder struct{}

func (FramePointerUnwinder) CallerRegisters(u *Unwinder, frame *Stackframe) (*RegisterCache, error) {
	rule := u.arch.FramePointerRule()
	if !frame.Regs.Available(rule.FPReg) {
		return nil, errOutermost
	}
	fp := frame.Regs.Uint64Val(rule.FPReg)
	if fp == 0 {
		return nil, errOutermost
	}
	ptrSize := u.arch.PtrSize()
	bo := u.arch.ByteOrder()
	mem := cacheMemory(u.mem, fp+uint64(rule.SavedFPOffset), 2*ptrSize)

	buf := make([]byte, ptrSize)
	if err := readFull(mem, buf, fp+uint64(rule.RetAddrOffset)); err != nil {
		return nil, NoReturnAddr{PC: frame.PC, FP: fp}
	}
	ret := bytesToUint64(bo, buf)
	if err := readFull(mem, buf, fp+uint64(rule.SavedFPOffset)); err != nil {
		return nil, NoReturnAddr{PC: frame.PC, FP: fp}
	}
	callerFP := bytesToUint64(bo, buf)

	// Registers other than the ones the frame pointer chain restores are
	// assumed to be preserved across the call.
	caller := frame.Regs.Copy()
	caller.SupplyUint64(u.arch.PCRegNum(), ptrSize, ret)
	caller.SupplyUint64(u.arch.SPRegNum(), ptrSize, fp+uint64(rule.CFAOffset))
	caller.SupplyUint64(rule.FPReg, ptrSize, callerFP)
	return caller, nil
}

// Stacktrace returns at most depth frames of the stack whose innermost
// frame has registers regs. If depth is not positive DefaultMaxStackDepth
// is used.
func (u *Unwinder) Stacktrace(regs *RegisterCache, depth int) []Stackframe {
	if depth <= 0 {
		depth = DefaultMaxStackDepth
	}
	logger := logflags.UnwindLogger()
	frames := make([]Stackframe, 0, depth)
	interrupted := false
	for level := 0; level < depth; level++ {
		frame := u.NewFrame(level, regs, interrupted)
		if level > 0 {
			prev := &frames[len(frames)-1]
			if id := frame.ID(); id == prev.ID() {
				prev.Err = fmt.Errorf("frame chain does not progress: %v repeated", id)
				logger.Debugf("stopping unwind at frame %d (%#x): %v", prev.Level, prev.PC, prev.Err)
				break
			}
		}
		caller, err := u.CallerRegisters(frame)
		if err == nil {
			err = u.checkCaller(frame, caller)
		}
		if err != nil {
			if err != errOutermost {
				frame.Err = err
				logger.Debugf("stopping unwind at frame %d (%#x): %v", level, frame.PC, err)
			}
			frames = append(frames, *frame)
			break
		}
		frames = append(frames, *frame)
		interrupted = frame.Sigtramp != nil
		regs = caller
	}
	return frames
}

// checkCaller rejects callers that would make the unwinder loop: outside
// of signal trampolines the stack only grows towards lower addresses.
func (u *Unwinder) checkCaller(frame *Stackframe, caller *RegisterCache) error {
	if caller.PC() == 0 {
		return errOutermost
	}
	if frame.Sigtramp == nil && caller.SP() <= frame.SP {
		return fmt.Errorf("frame pointer chain does not progress: sp %#x after %#x", caller.SP(), frame.SP)
	}
	return nil
}
