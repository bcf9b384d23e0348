// elfwriter is a package to write ELF files without having their entire
// contents in memory at any one time.
// This package is incomplete, only features needed to write core files are
// implemented, notably missing:
// - section headers
// - program headers at the beginning of the file

package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"io"
)

// WriteCloserSeeker is the union of io.Writer, io.Closer and io.Seeker.
type WriteCloserSeeker interface {
	io.Writer
	io.Seeker
	io.Closer
}

// ErrUnsupportedClass is returned for file headers that are neither
// ELFCLASS32 nor ELFCLASS64 or have an unknown data encoding.
var ErrUnsupportedClass = errors.New("unsupported ELF class or data encoding")

// Writer writes ELF files.
type Writer struct {
	w     WriteCloserSeeker
	Err   error
	Progs []*elf.ProgHeader

	class elf.Class
	bo    binary.ByteOrder

	seekProgHeader int64
	seekProgNum    int64
}

type Note struct {
	Type elf.NType
	Name string
	Data []byte
}

// New creates a new Writer and writes the file header described by fhdr.
// Both 32 and 64 bit files, in either byte order, are supported.
func New(w WriteCloserSeeker, fhdr *elf.FileHeader) *Writer {
	if seek, _ := w.Seek(0, io.SeekCurrent); seek != 0 {
		panic("can't write halfway through a file")
	}

	r := &Writer{w: w, class: fhdr.Class}

	switch fhdr.Data {
	case elf.ELFDATA2LSB:
		r.bo = binary.LittleEndian
	case elf.ELFDATA2MSB:
		r.bo = binary.BigEndian
	default:
		r.Err = ErrUnsupportedClass
		return r
	}

	var ehsize, phentsize uint16
	switch fhdr.Class {
	case elf.ELFCLASS32:
		ehsize, phentsize = 52, 32
	case elf.ELFCLASS64:
		ehsize, phentsize = 64, 56
	default:
		r.Err = ErrUnsupportedClass
		return r
	}

	// e_ident
	r.Write([]byte{0x7f, 'E', 'L', 'F', byte(fhdr.Class), byte(fhdr.Data), byte(fhdr.Version), byte(fhdr.OSABI), byte(fhdr.ABIVersion), 0, 0, 0, 0, 0, 0, 0})

	r.u16(uint16(fhdr.Type))    // e_type
	r.u16(uint16(fhdr.Machine)) // e_machine
	r.u32(uint32(fhdr.Version)) // e_version
	r.word(fhdr.Entry)          // e_entry
	r.seekProgHeader = r.Here()
	r.word(0)        // e_phoff
	r.word(0)        // e_shoff
	r.u32(0)         // e_flags
	r.u16(ehsize)    // e_ehsize
	r.u16(phentsize) // e_phentsize
	r.seekProgNum = r.Here()
	r.u16(0)                     // e_phnum
	r.u16(0)                     // e_shentsize
	r.u16(0)                     // e_shnum
	r.u16(uint16(elf.SHN_UNDEF)) // e_shstrndx

	// Sanity check, size of file header should be the same as ehsize
	if sz, _ := w.Seek(0, io.SeekCurrent); r.Err == nil && sz != int64(ehsize) {
		panic("internal error, ELF header size")
	}

	return r
}

// ByteOrder returns the byte order of the file being written.
func (w *Writer) ByteOrder() binary.ByteOrder {
	return w.bo
}

// WriteNotes writes notes to the current location, returns a ProgHeader describing the
// notes.
func (w *Writer) WriteNotes(notes []Note) *elf.ProgHeader {
	if len(notes) == 0 {
		return nil
	}
	h := &elf.ProgHeader{
		Type:  elf.PT_NOTE,
		Align: 4,
	}
	for i := range notes {
		note := &notes[i]
		w.Align(4)
		if h.Off == 0 {
			h.Off = uint64(w.Here())
		}
		namesz := 0
		if note.Name != "" {
			namesz = len(note.Name) + 1
		}
		w.u32(uint32(namesz))
		w.u32(uint32(len(note.Data)))
		w.u32(uint32(note.Type))
		if namesz > 0 {
			w.Write([]byte(note.Name))
			w.Write([]byte{0})
		}
		w.Align(4)
		w.Write(note.Data)
	}
	w.Align(4)
	h.Filesz = uint64(w.Here()) - h.Off
	return h
}

// WriteLoad writes data at the current location and adds a PT_LOAD program
// header mapping it at vaddr.
func (w *Writer) WriteLoad(vaddr uint64, data []byte, flags elf.ProgFlag) {
	w.Progs = append(w.Progs, &elf.ProgHeader{
		Type:   elf.PT_LOAD,
		Flags:  flags,
		Off:    uint64(w.Here()),
		Vaddr:  vaddr,
		Filesz: uint64(len(data)),
		Memsz:  uint64(len(data)),
	})
	w.Write(data)
}

// WriteProgramHeaders writes the program headers at the current location
// and patches the file header accordingly.
func (w *Writer) WriteProgramHeaders() {
	if w.Err != nil {
		return
	}
	w.Align(int64(w.wordSize()))
	phoff := w.Here()

	// Patch File Header
	w.seek(w.seekProgHeader, io.SeekStart)
	w.word(uint64(phoff))
	w.seek(w.seekProgNum, io.SeekStart)
	w.u16(uint16(len(w.Progs)))
	w.seek(0, io.SeekEnd)

	for _, prog := range w.Progs {
		if w.class == elf.ELFCLASS32 {
			w.u32(uint32(prog.Type))
			w.u32(uint32(prog.Off))
			w.u32(uint32(prog.Vaddr))
			w.u32(uint32(prog.Paddr))
			w.u32(uint32(prog.Filesz))
			w.u32(uint32(prog.Memsz))
			w.u32(uint32(prog.Flags))
			w.u32(uint32(prog.Align))
			continue
		}
		w.u32(uint32(prog.Type))
		w.u32(uint32(prog.Flags))
		w.u64(prog.Off)
		w.u64(prog.Vaddr)
		w.u64(prog.Paddr)
		w.u64(prog.Filesz)
		w.u64(prog.Memsz)
		w.u64(prog.Align)
	}
}

// Here returns the current seek offset from the start of the file.
func (w *Writer) Here() int64 {
	r, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil && w.Err == nil {
		w.Err = err
	}
	return r
}

// Align writes as many padding bytes as needed to make the current file
// offset a multiple of align.
func (w *Writer) Align(align int64) {
	off := w.Here()
	alignOff := (off + (align - 1)) &^ (align - 1)
	if alignOff-off > 0 {
		w.Write(make([]byte, alignOff-off))
	}
}

func (w *Writer) Write(buf []byte) {
	_, err := w.w.Write(buf)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) seek(off int64, whence int) {
	_, err := w.w.Seek(off, whence)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) wordSize() int {
	if w.class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

// word writes an address sized field.
func (w *Writer) word(n uint64) {
	if w.class == elf.ELFCLASS32 {
		w.u32(uint32(n))
	} else {
		w.u64(n)
	}
}

func (w *Writer) u16(n uint16) {
	err := binary.Write(w.w, w.bo, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u32(n uint32) {
	err := binary.Write(w.w, w.bo, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u64(n uint64) {
	err := binary.Write(w.w, w.bo, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}
