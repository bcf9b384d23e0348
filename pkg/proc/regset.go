package proc

import (
	"github.com/go-delve/ntotdep/pkg/logflags"
)

// Regset moves the registers of one register set category between a raw
// context blob and a RegisterCache. Regsets have no side effects other
// than mutating the cache (Supply) or the blob (Collect).
type Regset interface {
	Category() RegsetCategory
	// Size is the size of the blob the target should be asked for.
	Size() int
	// LayoutFor returns the layout used to decode a blob of n bytes.
	LayoutFor(n int) *RegisterLayout
	// Supply fills cache with every register stored in blob. Registers
	// without storage, or whose storage lies past the end of blob, are
	// left untouched.
	Supply(cache *RegisterCache, blob []byte)
	// Collect writes every available register of cache into blob.
	// Positions of filler registers are not written: callers must zero
	// blob beforehand.
	Collect(cache *RegisterCache, blob []byte)
}

// FixedRegset is a Regset with a single layout.
type FixedRegset struct {
	Layout *RegisterLayout
}

func (rs *FixedRegset) Category() RegsetCategory { return rs.Layout.Category }

func (rs *FixedRegset) Size() int { return rs.Layout.Size }

func (rs *FixedRegset) LayoutFor(n int) *RegisterLayout { return rs.Layout }

func (rs *FixedRegset) Supply(cache *RegisterCache, blob []byte) {
	supplyLayout(rs.Layout, cache, blob, nil)
}

func (rs *FixedRegset) Collect(cache *RegisterCache, blob []byte) {
	collectLayout(rs.Layout, cache, blob)
}

// RegsetFormat identifies which sub-format a SizedRegset picked.
type RegsetFormat int

const (
	FormatLegacy RegsetFormat = iota
	FormatFixed
	FormatExtended
)

func (f RegsetFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatFixed:
		return "fixed"
	case FormatExtended:
		return "extended"
	}
	return "unknown"
}

// SizedRegset is a Regset with sub-formats of increasing capability,
// selected by the length of the blob the target actually provided: blobs
// longer than FixedSize use the Extended layout, blobs exactly FixedSize
// long use the Fixed layout and shorter blobs use the Legacy layout.
type SizedRegset struct {
	Cat       RegsetCategory
	FixedSize int
	// MaxSize is the size to ask the target for.
	MaxSize int

	Legacy   *RegisterLayout
	Fixed    *RegisterLayout
	Extended *RegisterLayout

	// ExtendedPresent, if set, reports whether a register that the
	// Extended layout has and the Fixed layout lacks is actually present in
	// blob.
	ExtendedPresent func(blob []byte, reg int) bool
	// Supplied, if set, is called after blob has been decoded into cache
	// with the layout of format.
	Supplied func(format RegsetFormat, cache *RegisterCache, blob []byte)
	// Collected, if set, is called after the registers in written have
	// been encoded into blob with the layout of format.
	Collected func(format RegsetFormat, cache *RegisterCache, blob []byte, written []int)
}

func (rs *SizedRegset) Category() RegsetCategory { return rs.Cat }

func (rs *SizedRegset) Size() int {
	if rs.MaxSize > 0 {
		return rs.MaxSize
	}
	return rs.Extended.Size
}

// Select returns the sub-format and layout used for a blob of n bytes.
func (rs *SizedRegset) Select(n int) (RegsetFormat, *RegisterLayout) {
	switch {
	case n > rs.FixedSize:
		return FormatExtended, rs.Extended
	case n == rs.FixedSize:
		return FormatFixed, rs.Fixed
	default:
		return FormatLegacy, rs.Legacy
	}
}

func (rs *SizedRegset) LayoutFor(n int) *RegisterLayout {
	_, l := rs.Select(n)
	return l
}

func (rs *SizedRegset) Supply(cache *RegisterCache, blob []byte) {
	format, l := rs.Select(len(blob))
	logflags.RegsLogger().Debugf("supplying %d byte %s register set with the %s decoder", len(blob), rs.Cat, format)
	var present func(int) bool
	if format == FormatExtended && rs.ExtendedPresent != nil {
		present = func(reg int) bool {
			if rs.Fixed.Contains(reg) {
				return true
			}
			return rs.ExtendedPresent(blob, reg)
		}
	}
	supplyLayout(l, cache, blob, present)
	if rs.Supplied != nil {
		rs.Supplied(format, cache, blob)
	}
}

func (rs *SizedRegset) Collect(cache *RegisterCache, blob []byte) {
	format, l := rs.Select(len(blob))
	written := collectLayout(l, cache, blob)
	if rs.Collected != nil && len(written) > 0 {
		rs.Collected(format, cache, blob, written)
	}
}

// supplyLayout copies every register of l stored inside blob into cache.
// If present is not nil registers for which it returns false are skipped.
func supplyLayout(l *RegisterLayout, cache *RegisterCache, blob []byte, present func(int) bool) int {
	n := 0
	for _, e := range l.entries {
		if e.Offset == NoOffset {
			continue
		}
		if e.Offset+e.Width > len(blob) {
			logflags.RegsLogger().Debugf("register %d at %#x+%d is past the end of a %d byte blob", e.Reg, e.Offset, e.Width, len(blob))
			continue
		}
		if present != nil && !present(e.Reg) {
			continue
		}
		cache.Supply(e.Reg, blob[e.Offset:e.Offset+e.Width])
		n++
	}
	return n
}

// collectLayout writes every available register of cache into its slot in
// blob and returns the registers it wrote.
func collectLayout(l *RegisterLayout, cache *RegisterCache, blob []byte) []int {
	var written []int
	for _, e := range l.entries {
		if e.Offset == NoOffset || e.Offset+e.Width > len(blob) {
			continue
		}
		reg := cache.Reg(e.Reg)
		if reg == nil {
			continue
		}
		dst := blob[e.Offset : e.Offset+e.Width]
		switch {
		case len(reg.Bytes) == e.Width:
			copy(dst, reg.Bytes)
		case e.Width <= 8:
			putUint(cache.ByteOrder, dst, reg.Uint64Val)
		default:
			for i := range dst {
				dst[i] = 0
			}
			copy(dst, reg.Bytes)
		}
		written = append(written, e.Reg)
	}
	return written
}
