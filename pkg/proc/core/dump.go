package core

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-delve/ntotdep/pkg/elfwriter"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/ntoutil"
)

// Snapshot is the state of a process that WriteCore saves.
type Snapshot struct {
	Arch          proc.Arch
	Pid           int
	Signal        int
	Flags         uint32
	CurrentThread int
	Threads       []ThreadSnapshot
	Segments      []Segment
	LinkMap       []byte // serialized link map, see ntoutil.EncodeLinkMap
}

// ThreadSnapshot is the state of one thread.
type ThreadSnapshot struct {
	ID    int
	Flags uint32
	Why   uint32
	What  uint32
	Regs  *proc.RegisterCache
}

// Segment is a region of memory.
type Segment struct {
	Addr  uint64
	Data  []byte
	Flags elf.ProgFlag
}

// Snapshot returns the state of the process, reading every segment of
// the core file in memory.
func (p *Process) Snapshot() (*Snapshot, error) {
	s := &Snapshot{
		Arch:    p.arch,
		Pid:     p.Pid,
		Signal:  p.Signal,
		Flags:   p.Flags,
		LinkMap: p.sections[ntoutil.LinkMapSection],
	}
	if p.currentThread != nil {
		s.CurrentThread = p.currentThread.ID
	}
	for _, th := range p.ThreadList() {
		regs, err := th.Registers()
		if err != nil {
			return nil, err
		}
		s.Threads = append(s.Threads, ThreadSnapshot{ID: th.ID, Flags: th.Flags, Why: th.Why, What: th.What, Regs: regs})
	}
	for _, seg := range p.segments {
		data := make([]byte, seg.size)
		if _, err := seg.reader.ReadAt(data, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading segment at %#x: %v", seg.vaddr, err)
		}
		s.Segments = append(s.Segments, Segment{Addr: seg.vaddr, Data: data, Flags: seg.flags})
	}
	return s, nil
}

// WriteCore writes s to out as a QNX Neutrino core file and closes out.
func WriteCore(out elfwriter.WriteCloserSeeker, s *Snapshot) (err error) {
	defer func() {
		cerr := out.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("error writing output file: %v", cerr)
		}
	}()

	arch := s.Arch
	var fhdr elf.FileHeader
	switch arch.PtrSize() {
	case 4:
		fhdr.Class = elf.ELFCLASS32
	case 8:
		fhdr.Class = elf.ELFCLASS64
	default:
		return fmt.Errorf("unsupported pointer size %d", arch.PtrSize())
	}
	if arch.ByteOrder() == binary.BigEndian {
		fhdr.Data = elf.ELFDATA2MSB
	} else {
		fhdr.Data = elf.ELFDATA2LSB
	}
	fhdr.Version = elf.EV_CURRENT
	fhdr.OSABI = elf.ELFOSABI_NONE
	fhdr.Type = elf.ET_CORE
	fhdr.Machine = arch.Machine()

	w := elfwriter.New(out, &fhdr)
	bo := w.ByteOrder()

	info := make([]byte, coreInfoSize)
	bo.PutUint32(info[0:], uint32(s.Pid))
	bo.PutUint32(info[4:], uint32(s.CurrentThread))
	bo.PutUint32(info[8:], uint32(s.Signal))
	bo.PutUint32(info[12:], s.Flags)
	notes := []elfwriter.Note{{Type: elfwriter.QNXCoreInfoNoteType, Name: elfwriter.QNXNoteName, Data: info}}

	for i := range s.Threads {
		notes = append(notes, threadNotes(arch, bo, &s.Threads[i])...)
	}
	if len(s.LinkMap) > 0 {
		notes = append(notes, elfwriter.Note{Type: elfwriter.QNXLinkMapNoteType, Name: elfwriter.QNXNoteName, Data: s.LinkMap})
	}

	for _, seg := range s.Segments {
		if w.Err != nil {
			return fmt.Errorf("error writing to output file: %v", w.Err)
		}
		w.WriteLoad(seg.Addr, seg.Data, seg.Flags)
	}

	notesProg := w.WriteNotes(notes)
	w.Progs = append(w.Progs, notesProg)
	w.WriteProgramHeaders()
	if w.Err != nil {
		return fmt.Errorf("error writing to output file: %v", w.Err)
	}
	return nil
}

// threadNotes returns the status and register notes of th. The floating
// point registers are only saved if at least one of them is available.
func threadNotes(arch proc.Arch, bo binary.ByteOrder, th *ThreadSnapshot) []elfwriter.Note {
	status := make([]byte, coreStatusSize)
	bo.PutUint32(status[0:], uint32(th.ID))
	bo.PutUint32(status[4:], th.Flags)
	bo.PutUint32(status[8:], th.Why)
	bo.PutUint32(status[12:], th.What)
	notes := []elfwriter.Note{{Type: elfwriter.QNXCoreStatusNoteType, Name: elfwriter.QNXNoteName, Data: status}}
	if th.Regs == nil {
		return notes
	}

	gp := arch.Regset(proc.RegsetGeneral)
	gregs := make([]byte, gp.Size())
	gp.Collect(th.Regs, gregs)
	notes = append(notes, elfwriter.Note{Type: elfwriter.QNXCoreGRegNoteType, Name: elfwriter.QNXNoteName, Data: gregs})

	fp := arch.Regset(proc.RegsetFloat)
	if fp == nil || !anyAvailable(fp.LayoutFor(fp.Size()), th.Regs) {
		return notes
	}
	fpregs := make([]byte, fp.Size())
	fp.Collect(th.Regs, fpregs)
	return append(notes, elfwriter.Note{Type: elfwriter.QNXCoreFPRegNoteType, Name: elfwriter.QNXNoteName, Data: fpregs})
}

func anyAvailable(l *proc.RegisterLayout, regs *proc.RegisterCache) bool {
	for _, e := range l.Entries() {
		if e.Offset != proc.NoOffset && e.Reg < regs.CurrentSize() && regs.Available(e.Reg) {
			return true
		}
	}
	return false
}
