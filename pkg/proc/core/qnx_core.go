package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-delve/ntotdep/pkg/elfwriter"
	"github.com/go-delve/ntotdep/pkg/logflags"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/ntoutil"
)

const elfErrorBadMagicNumber = "bad magic number"

const (
	coreInfoSize   = 16
	coreStatusSize = 16
)

// note is a note from the PT_NOTE prog.
type note struct {
	Type elf.NType
	Name string
	Desc []byte
}

// elfNotesHdr is the ELF Notes header.
// Same size on 64 and 32-bit machines.
type elfNotesHdr struct {
	Namesz uint32
	Descsz uint32
	Type   uint32
}

// OpenCore opens the QNX Neutrino core file at corePath. If exePath is
// not empty the PT_LOAD segments of the executable are used for the parts
// of the address space the core file does not contain. The architecture
// is selected by looking up the machine of the core file in registry.
func OpenCore(registry *proc.Registry, corePath, exePath string) (_ *Process, err error) {
	data, release, err := mapFile(corePath)
	if err != nil {
		return nil, err
	}
	p := &Process{
		threads:  map[int]*Thread{},
		sections: map[string][]byte{},
		closers:  []io.Closer{release},
	}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	coreFile, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		if _, isfmterr := err.(*elf.FormatError); isfmterr && (strings.Contains(err.Error(), elfErrorBadMagicNumber) || strings.Contains(err.Error(), " at offset 0x0: too short")) {
			return nil, ErrUnrecognizedFormat
		}
		return nil, err
	}
	if coreFile.Type != elf.ET_CORE {
		return nil, fmt.Errorf("%s is not a core file", corePath)
	}
	p.arch, err = registry.LookupMachine(coreFile.Machine)
	if err != nil {
		return nil, err
	}
	p.byteOrder = coreFile.ByteOrder

	var exeELF *elf.File
	if exePath != "" {
		exe, err := os.Open(exePath)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, exe)
		exeELF, err = elf.NewFile(exe)
		if err != nil {
			return nil, err
		}
		if exeELF.Type != elf.ET_EXEC && exeELF.Type != elf.ET_DYN {
			return nil, fmt.Errorf("%s is not an executable file", exePath)
		}
		if exeELF.Machine != coreFile.Machine {
			return nil, fmt.Errorf("%s is for %v, core file is for %v", exePath, exeELF.Machine, coreFile.Machine)
		}
		p.exe, p.exePath = exeELF, exePath
	}

	notes, err := readNotes(coreFile)
	if err != nil {
		return nil, err
	}
	if err := qnxThreadsFromNotes(p, notes); err != nil {
		return nil, err
	}
	p.mem = buildMemory(p, coreFile, exeELF)

	logflags.CoreLogger().Debugf("opened %s: %s pid %d, %d threads, %d segments", corePath, p.arch.Name(), p.Pid, len(p.threads), len(p.segments))
	return p, nil
}

func qnxThreadsFromNotes(p *Process, notes []*note) error {
	logger := logflags.CoreLogger()
	bo := p.byteOrder
	currentTid := -1
	var last *Thread
	for _, note := range notes {
		if note.Name != elfwriter.QNXNoteName {
			logger.Debugf("ignoring note %q type %d", note.Name, note.Type)
			continue
		}
		switch note.Type {
		case elfwriter.QNXCoreInfoNoteType:
			if len(note.Desc) < coreInfoSize {
				return fmt.Errorf("malformed core info note: %d bytes", len(note.Desc))
			}
			p.Pid = int(bo.Uint32(note.Desc[0:]))
			currentTid = int(bo.Uint32(note.Desc[4:]))
			p.Signal = int(bo.Uint32(note.Desc[8:]))
			p.Flags = bo.Uint32(note.Desc[12:])
		case elfwriter.QNXCoreStatusNoteType:
			if len(note.Desc) < coreStatusSize {
				return fmt.Errorf("malformed thread status note: %d bytes", len(note.Desc))
			}
			th := &Thread{
				ID:    int(bo.Uint32(note.Desc[0:])),
				Flags: bo.Uint32(note.Desc[4:]),
				Why:   bo.Uint32(note.Desc[8:]),
				What:  bo.Uint32(note.Desc[12:]),
				p:     p,
			}
			if _, dup := p.threads[th.ID]; dup {
				logger.Warnf("thread %d appears twice in core file, using the last one", th.ID)
			} else {
				p.threadOrder = append(p.threadOrder, th.ID)
			}
			p.threads[th.ID] = th
			last = th
		case elfwriter.QNXCoreGRegNoteType, elfwriter.QNXCoreFPRegNoteType:
			if last == nil {
				logger.Warnf("register note type %d before any thread status note", note.Type)
				continue
			}
			if note.Type == elfwriter.QNXCoreGRegNoteType {
				last.gregs = note.Desc
				p.sections[".reg/"+strconv.Itoa(last.ID)] = note.Desc
			} else {
				last.fpregs = note.Desc
				p.sections[".reg2/"+strconv.Itoa(last.ID)] = note.Desc
			}
		case elfwriter.QNXLinkMapNoteType:
			p.sections[ntoutil.LinkMapSection] = note.Desc
		default:
			logger.Debugf("ignoring QNX note type %d", note.Type)
		}
	}
	if len(p.threadOrder) == 0 {
		return ErrNoThreads
	}
	if th, ok := p.threads[currentTid]; ok {
		p.currentThread = th
	} else {
		p.currentThread = p.threads[p.threadOrder[0]]
	}
	return nil
}

// readNotes reads all the notes from the notes progs in core.
func readNotes(core *elf.File) ([]*note, error) {
	notes := []*note{}
	for _, prog := range core.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		r := prog.Open()
		for {
			note, err := readNote(r, core.ByteOrder, int64(prog.Filesz))
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// readNote reads a single note from r, a note segment of size bytes.
func readNote(r io.ReadSeeker, bo binary.ByteOrder, size int64) (*note, error) {
	// Notes are laid out as described in the SysV ABI:
	// http://www.sco.com/developers/gabi/latest/ch5.pheader.html#note_section
	note := &note{}
	hdr := &elfNotesHdr{}

	err := binary.Read(r, bo, hdr)
	if err != nil {
		return nil, err // don't wrap so readNotes sees EOF.
	}
	note.Type = elf.NType(hdr.Type)

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if remaining := uint64(size - pos); uint64(hdr.Namesz) > remaining || uint64(hdr.Descsz) > remaining-uint64(hdr.Namesz) {
		return nil, fmt.Errorf("note of type %d too large: name %d bytes, desc %d bytes, %d bytes left in segment", hdr.Type, hdr.Namesz, hdr.Descsz, remaining)
	}

	name := make([]byte, hdr.Namesz)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("reading name: %v", err)
	}
	note.Name = strings.TrimRight(string(name), "\x00")
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after name: %v", err)
	}
	note.Desc = make([]byte, hdr.Descsz)
	if _, err := io.ReadFull(r, note.Desc); err != nil {
		return nil, fmt.Errorf("reading desc: %v", err)
	}
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after desc: %v", err)
	}
	return note, nil
}

// skipPadding moves r to the next multiple of pad.
func skipPadding(r io.ReadSeeker, pad int64) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos%pad == 0 {
		return nil
	}
	if _, err := r.Seek(pad-(pos%pad), io.SeekCurrent); err != nil {
		return err
	}
	return nil
}

func buildMemory(p *Process, core, exeELF *elf.File) proc.MemoryReader {
	memory := &splicedMemory{}

	// Load memory segments from exe and then from the core file,
	// allowing the corefile to overwrite previously loaded segments
	for _, elfFile := range []*elf.File{exeELF, core} {
		if elfFile == nil {
			continue
		}
		for _, prog := range elfFile.Progs {
			if prog.Type == elf.PT_LOAD {
				if prog.Filesz == 0 {
					continue
				}
				r := &offsetReaderAt{
					reader: prog.ReaderAt,
					offset: prog.Vaddr,
				}
				memory.Add(r, prog.Vaddr, prog.Filesz)
				if elfFile == core {
					p.segments = append(p.segments, segment{vaddr: prog.Vaddr, size: prog.Filesz, flags: prog.Flags, reader: prog.ReaderAt})
				}
			}
		}
	}
	return memory
}
