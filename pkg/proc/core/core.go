package core

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/ntoutil"
)

// A splicedMemory represents a memory space formed from multiple regions,
// each of which may override previously regions. For example, in the following
// core, the program text was loaded at 0x400000:
// Start               End                 Page Offset
// 0x0000000000400000  0x000000000044f000  0x0000000000000000
// but then it's partially overwritten with an RW mapping whose data is stored
// in the core file:
// Type           Offset             VirtAddr           PhysAddr
//                FileSiz            MemSiz              Flags  Align
// LOAD           0x0000000000004000 0x000000000049a000 0x0000000000000000
//                0x0000000000002000 0x0000000000002000  RW     1000
// This can be represented in a SplicedMemory by adding the original region,
// then putting the RW mapping on top of it.
type splicedMemory struct {
	readers []readerEntry
}

type readerEntry struct {
	offset uint64
	length uint64
	reader proc.MemoryReader
}

// Add adds a new region to the SplicedMemory, which may override existing regions.
func (r *splicedMemory) Add(reader proc.MemoryReader, off, length uint64) {
	if length == 0 {
		return
	}
	end := off + length - 1
	newReaders := make([]readerEntry, 0, len(r.readers))
	add := func(e readerEntry) {
		if e.length == 0 {
			return
		}
		newReaders = append(newReaders, e)
	}
	inserted := false
	// Walk through the list of regions, fixing up any that overlap and inserting the new one.
	for _, entry := range r.readers {
		entryEnd := entry.offset + entry.length - 1
		switch {
		case entryEnd < off:
			// Entry is completely before the new region.
			add(entry)
		case end < entry.offset:
			// Entry is completely after the new region.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			add(entry)
		case off <= entry.offset && entryEnd <= end:
			// Entry is completely overwritten by the new region. Drop.
		case entry.offset < off && entryEnd <= end:
			// New region overwrites the end of the entry.
			entry.length = off - entry.offset
			add(entry)
		case off <= entry.offset && end < entryEnd:
			// New reader overwrites the beginning of the entry.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			overlap := end + 1 - entry.offset
			entry.offset += overlap
			entry.length -= overlap
			add(entry)
		case entry.offset < off && end < entryEnd:
			// New region punches a hole in the entry. Split it in two and put the new region in the middle.
			add(readerEntry{entry.offset, off - entry.offset, entry.reader})
			add(readerEntry{off, length, reader})
			add(readerEntry{end + 1, entryEnd - end, entry.reader})
			inserted = true
		default:
			panic(fmt.Sprintf("Unhandled case: existing entry is %v len %v, new is %v len %v", entry.offset, entry.length, off, length))
		}
	}
	if !inserted {
		newReaders = append(newReaders, readerEntry{off, length, reader})
	}
	r.readers = newReaders
}

// ReadMemory implements MemoryReader.ReadMemory.
func (r *splicedMemory) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	started := false
	for _, entry := range r.readers {
		if entry.offset+entry.length <= addr {
			continue
		}
		if entry.offset > addr {
			if !started {
				break
			}
			return n, fmt.Errorf("hit unmapped area at %#x after %d bytes", addr, n)
		}

		// The reading of the memory has been started after the first iteration
		started = true

		// Don't go past the region.
		pb := buf
		if addr+uint64(len(buf)) > entry.offset+entry.length {
			pb = pb[:entry.offset+entry.length-addr]
		}
		pn, err := entry.reader.ReadMemory(pb, addr)
		n += pn
		if err != nil && err != io.EOF {
			return n, fmt.Errorf("error while reading spliced memory at %#x: %v", addr, err)
		}
		if pn != len(pb) {
			return n, nil
		}
		buf = buf[pn:]
		addr += uint64(pn)
		if len(buf) == 0 {
			// Done, don't bother scanning the rest.
			return n, nil
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("address %#x did not match any regions", addr)
	}
	return n, nil
}

// offsetReaderAt wraps a ReaderAt into a MemoryReader, subtracting a fixed
// offset from the address. This is useful to represent a mapping in an address
// space. For example, if program text is mapped in at 0x400000, an
// OffsetReaderAt with offset 0x400000 can be wrapped around file.Open(program)
// to return the results of a read in that part of the address space.
type offsetReaderAt struct {
	reader io.ReaderAt
	offset uint64
}

// ReadMemory will read the memory at addr-offset.
func (r *offsetReaderAt) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	return r.reader.ReadAt(buf, int64(addr-r.offset))
}

var (
	// ErrWriteCore is returned when attempting to write to the core
	// process memory.
	ErrWriteCore = errors.New("can not write to core process")

	// ErrChangeRegisterCore is returned when trying to change register values for core files.
	ErrChangeRegisterCore = errors.New("can not change register values of core process")

	// ErrNoThreads is returned for core files without any thread status note.
	ErrNoThreads = errors.New("core file has no threads")
)

// ErrUnrecognizedFormat is returned when the core file is not recognized as
// any of the supported formats.
var ErrUnrecognizedFormat = errors.New("unrecognized core format")

// Process is a QNX Neutrino process image stored in a core file.
type Process struct {
	Pid    int
	Signal int
	Flags  uint32

	arch      proc.Arch
	byteOrder binary.ByteOrder
	mem       proc.MemoryReader

	threads       map[int]*Thread
	threadOrder   []int
	currentThread *Thread

	sections map[string][]byte
	segments []segment

	exe     *elf.File
	exePath string

	modulesOnce sync.Once
	modules     ntoutil.ModuleList

	closers []io.Closer
}

// segment is a PT_LOAD segment of the core file.
type segment struct {
	vaddr  uint64
	size   uint64
	flags  elf.ProgFlag
	reader io.ReaderAt
}

var _ ntoutil.SectionSource = &Process{}

// Thread is a thread of a core file.
type Thread struct {
	ID    int
	Flags uint32
	// Why and What describe the reason the thread stopped.
	Why  uint32
	What uint32

	p      *Process
	gregs  []byte
	fpregs []byte
}

// Arch returns the architecture of the process.
func (p *Process) Arch() proc.Arch { return p.arch }

// ByteOrder returns the byte order of the core file.
func (p *Process) ByteOrder() binary.ByteOrder { return p.byteOrder }

// PtrSize returns the size of a pointer of the target.
func (p *Process) PtrSize() int { return p.arch.PtrSize() }

// ExePath returns the path of the executable passed to OpenCore.
func (p *Process) ExePath() string { return p.exePath }

// Memory returns the memory of the process.
func (p *Process) Memory() proc.MemoryReader { return p.mem }

// WriteMemory will only return an error for core files,
// you cannot write to the memory of a core process.
func (p *Process) WriteMemory(addr uint64, data []byte) (int, error) {
	return 0, ErrWriteCore
}

// ThreadList returns the threads of the process in the order they appear
// in the core file.
func (p *Process) ThreadList() []*Thread {
	r := make([]*Thread, 0, len(p.threadOrder))
	for _, tid := range p.threadOrder {
		r = append(r, p.threads[tid])
	}
	return r
}

// FindThread returns the thread with the given ID.
func (p *Process) FindThread(tid int) (*Thread, bool) {
	th, ok := p.threads[tid]
	return th, ok
}

// CurrentThread returns the thread that received the signal, or the first
// thread if the core file does not say.
func (p *Process) CurrentThread() *Thread {
	return p.currentThread
}

// SwitchThread makes tid the current thread.
func (p *Process) SwitchThread(tid int) error {
	th, ok := p.threads[tid]
	if !ok {
		return fmt.Errorf("thread %d does not exist", tid)
	}
	p.currentThread = th
	return nil
}

// Sections returns the names of the pseudo sections of the process image,
// sorted.
func (p *Process) Sections() []string {
	r := make([]string, 0, len(p.sections))
	for name := range p.sections {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// Section returns the contents of the pseudo section name: ".reg/<tid>" and
// ".reg2/<tid>" hold the raw general purpose and floating point registers
// of a thread, ".reg" and ".reg2" those of the current thread, and
// ".qnx_link_map" the serialized link map.
func (p *Process) Section(name string) ([]byte, bool) {
	switch name {
	case ".reg":
		if p.currentThread == nil || p.currentThread.gregs == nil {
			return nil, false
		}
		return p.currentThread.gregs, true
	case ".reg2":
		if p.currentThread == nil || p.currentThread.fpregs == nil {
			return nil, false
		}
		return p.currentThread.fpregs, true
	}
	data, ok := p.sections[name]
	return data, ok
}

// SectionData implements ntoutil.SectionSource.
func (p *Process) SectionData(name string) ([]byte, bool, error) {
	data, ok := p.Section(name)
	return data, ok, nil
}

// Modules returns the shared objects loaded by the process.
func (p *Process) Modules() ntoutil.ModuleList {
	p.modulesOnce.Do(func() {
		p.modules = ntoutil.ReadModuleList(p)
	})
	return p.modules
}

// Close releases the core file and the executable.
func (p *Process) Close() error {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if cerr := p.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	p.closers = nil
	return err
}

// Registers returns the registers of the thread, decoded through the
// register sets of the architecture.
func (t *Thread) Registers() (*proc.RegisterCache, error) {
	arch := t.p.arch
	if t.gregs == nil {
		return nil, fmt.Errorf("thread %d: no general purpose registers in core file", t.ID)
	}
	regs := arch.NewRegisterCache()
	arch.Regset(proc.RegsetGeneral).Supply(regs, t.gregs)
	if t.fpregs != nil {
		if rs := arch.Regset(proc.RegsetFloat); rs != nil {
			rs.Supply(regs, t.fpregs)
		}
	}
	return regs, nil
}

// SetReg will only return an error for core files,
// you cannot change register values for core files.
func (t *Thread) SetReg(int, []byte) error {
	return ErrChangeRegisterCore
}
