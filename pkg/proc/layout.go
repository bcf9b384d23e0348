package proc

import (
	"errors"
	"fmt"
	"sort"
)

// RegsetCategory names a partition of the registers that is transferred
// between the debugger and the target as one contiguous blob.
type RegsetCategory int

const (
	// RegsetNone is returned for registers that do not belong to any
	// register set. It is never a valid category to read or write.
	RegsetNone RegsetCategory = iota
	RegsetGeneral
	RegsetFloat
	RegsetSystem
	RegsetAlt
)

func (c RegsetCategory) String() string {
	switch c {
	case RegsetGeneral:
		return "general"
	case RegsetFloat:
		return "float"
	case RegsetSystem:
		return "system"
	case RegsetAlt:
		return "alt"
	default:
		return "none"
	}
}

const (
	// NoOffset marks a register that exists in the abstract register model
	// but has no storage in the target's context structure.
	NoOffset = -1

	// AllRegisters asks RegisterArea for the size of a whole register set.
	AllRegisters = -1
)

// ErrUnknownRegister is returned for registers that are not part of the
// requested register set.
var ErrUnknownRegister = errors.New("unknown register")

// LayoutEntry places one register inside a raw register blob.
type LayoutEntry struct {
	Reg    int
	Offset int // NoOffset for filler registers
	Width  int
}

// RegisterLayout maps abstract register numbers to byte ranges of the raw
// context blob the operating system uses for one register set category.
// A RegisterLayout is immutable once constructed.
type RegisterLayout struct {
	Category RegsetCategory
	Size     int

	entries []LayoutEntry
	byReg   map[int]int
}

// NewRegisterLayout returns a layout for a blob of size bytes. Entries must
// not overlap, must fit inside the blob and must not describe the same
// register twice.
func NewRegisterLayout(category RegsetCategory, size int, entries ...LayoutEntry) (*RegisterLayout, error) {
	if category == RegsetNone {
		return nil, errors.New("register layout without a category")
	}
	l := &RegisterLayout{
		Category: category,
		Size:     size,
		entries:  make([]LayoutEntry, len(entries)),
		byReg:    make(map[int]int, len(entries)),
	}
	copy(l.entries, entries)
	for i, e := range l.entries {
		if e.Reg < 0 {
			return nil, fmt.Errorf("invalid register number %d", e.Reg)
		}
		if _, dup := l.byReg[e.Reg]; dup {
			return nil, fmt.Errorf("register %d described twice", e.Reg)
		}
		l.byReg[e.Reg] = i
		if e.Offset == NoOffset {
			continue
		}
		if e.Offset < 0 || e.Width <= 0 || e.Offset+e.Width > size {
			return nil, fmt.Errorf("register %d at %d+%d does not fit in a %d byte %s register set", e.Reg, e.Offset, e.Width, size, category)
		}
	}

	stored := make([]LayoutEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Offset != NoOffset {
			stored = append(stored, e)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Offset < stored[j].Offset })
	for i := 1; i < len(stored); i++ {
		prev := stored[i-1]
		if prev.Offset+prev.Width > stored[i].Offset {
			return nil, fmt.Errorf("registers %d and %d overlap in the %s register set", prev.Reg, stored[i].Reg, category)
		}
	}
	return l, nil
}

// MustRegisterLayout is like NewRegisterLayout but panics on error. It is
// meant for the static per-architecture tables.
func MustRegisterLayout(category RegsetCategory, size int, entries ...LayoutEntry) *RegisterLayout {
	l, err := NewRegisterLayout(category, size, entries...)
	if err != nil {
		panic(err)
	}
	return l
}

// Contains returns true if reg is described by the layout, filler included.
func (l *RegisterLayout) Contains(reg int) bool {
	_, ok := l.byReg[reg]
	return ok
}

// OffsetOf returns the offset of reg inside the blob. It returns NoOffset
// and false for filler registers and for registers outside the layout.
func (l *RegisterLayout) OffsetOf(reg int) (int, bool) {
	i, ok := l.byReg[reg]
	if !ok || l.entries[i].Offset == NoOffset {
		return NoOffset, false
	}
	return l.entries[i].Offset, true
}

// WidthOf returns the width in bytes of reg, 0 if reg has no storage.
func (l *RegisterLayout) WidthOf(reg int) int {
	i, ok := l.byReg[reg]
	if !ok || l.entries[i].Offset == NoOffset {
		return 0
	}
	return l.entries[i].Width
}

// Entries returns the entries of the layout in declaration order.
func (l *RegisterLayout) Entries() []LayoutEntry {
	r := make([]LayoutEntry, len(l.entries))
	copy(r, l.entries)
	return r
}

// Area returns offset and size of reg inside the blob. For AllRegisters it
// returns 0 and the size of the whole blob. Registers without storage
// return NoOffset and 0.
func (l *RegisterLayout) Area(reg int) (offset, size int) {
	if reg == AllRegisters {
		return 0, l.Size
	}
	off, ok := l.OffsetOf(reg)
	if !ok {
		return NoOffset, 0
	}
	return off, l.WidthOf(reg)
}

// sequentialLayout builds the entries for n registers of the given width
// stored back to back starting at offset.
func sequentialLayout(firstReg, n, offset, width int) []LayoutEntry {
	r := make([]LayoutEntry, n)
	for i := range r {
		r[i] = LayoutEntry{Reg: firstReg + i, Offset: offset + i*width, Width: width}
	}
	return r
}

// filler returns entries for registers that have no storage.
func filler(regs ...int) []LayoutEntry {
	r := make([]LayoutEntry, len(regs))
	for i, reg := range regs {
		r[i] = LayoutEntry{Reg: reg, Offset: NoOffset}
	}
	return r
}

func concatEntries(parts ...[]LayoutEntry) []LayoutEntry {
	var r []LayoutEntry
	for _, p := range parts {
		r = append(r, p...)
	}
	return r
}
