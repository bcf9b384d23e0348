package proc

import (
	"encoding/binary"
)

// The floating point context of x86 processors comes in three formats,
// depending on what the processor supports: the 108 byte FSAVE area, the
// 512 byte FXSAVE area and the variable length XSAVE area, whose first 512
// bytes are an FXSAVE area. See Section 13.1 (and following) of Intel® 64
// and IA-32 Architectures Software Developer’s Manual, Volume 1: Basic
// Architecture.
const (
	fsaveSize  = 108
	fxsaveSize = 512

	fsaveSTStart    = 28
	fxsaveSTStart   = 32
	fxsaveTagOffset = 4
	fxsaveXMMStart  = 160
	x87RegWidth     = 10
	sseRegWidth     = 16

	xsaveHeaderStart   = 512
	xsaveYmmHStart     = 576
	xstateAVXComponent = 2
	xstateLegacyBVMask = 1<<0 | 1<<1 // x87 and SSE
	xcompCompactedBit  = 1 << 63
)

// x87Regnums describes where the floating point registers of an x86
// variant are in its abstract register numbering.
type x87Regnums struct {
	st0, fctrl, fstat, ftag, fiseg, fioff, foseg, fooff, fop int
	xmm0, mxcsr, ymm0h                                      int
	nxmm                                                    int
}

func fsaveLayout(r x87Regnums) *RegisterLayout {
	return MustRegisterLayout(RegsetFloat, fsaveSize, concatEntries(
		sequentialLayout(r.st0, 8, fsaveSTStart, x87RegWidth),
		[]LayoutEntry{
			{Reg: r.fctrl, Offset: 0, Width: 2},
			{Reg: r.fstat, Offset: 4, Width: 2},
			{Reg: r.ftag, Offset: 8, Width: 2},
			{Reg: r.fioff, Offset: 12, Width: 4},
			{Reg: r.fiseg, Offset: 16, Width: 2},
			{Reg: r.fop, Offset: 18, Width: 2},
			{Reg: r.fooff, Offset: 20, Width: 4},
			{Reg: r.foseg, Offset: 24, Width: 2},
		},
		filler(r.mxcsr),
	)...)
}

func fxsaveEntries(r x87Regnums) []LayoutEntry {
	return concatEntries(
		[]LayoutEntry{
			{Reg: r.fctrl, Offset: 0, Width: 2},
			{Reg: r.fstat, Offset: 2, Width: 2},
			{Reg: r.ftag, Offset: fxsaveTagOffset, Width: 1},
			{Reg: r.fop, Offset: 6, Width: 2},
			{Reg: r.fioff, Offset: 8, Width: 4},
			{Reg: r.fiseg, Offset: 12, Width: 2},
			{Reg: r.fooff, Offset: 16, Width: 4},
			{Reg: r.foseg, Offset: 20, Width: 2},
			{Reg: r.mxcsr, Offset: 24, Width: 4},
		},
		sequentialLayout(r.st0, 8, fxsaveSTStart, x87RegWidth),
		sequentialLayout(r.xmm0, r.nxmm, fxsaveXMMStart, sseRegWidth),
	)
}

func fxsaveLayout(r x87Regnums) *RegisterLayout {
	return MustRegisterLayout(RegsetFloat, fxsaveSize, fxsaveEntries(r)...)
}

func xsaveLayout(r x87Regnums) *RegisterLayout {
	return MustRegisterLayout(RegsetFloat, xsaveYmmHStart+r.nxmm*sseRegWidth, concatEntries(
		fxsaveEntries(r),
		sequentialLayout(r.ymm0h, r.nxmm, xsaveYmmHStart, sseRegWidth),
	)...)
}

// newX86FloatRegset returns the size dispatched floating point register set
// of an x86 variant. The cache always holds the full 16 bit tag word, as
// stored by FSAVE, the FXSAVE abridged tag is converted on the way in and
// out.
func newX86FloatRegset(r x87Regnums) *SizedRegset {
	isYmmH := func(reg int) bool {
		return reg >= r.ymm0h && reg < r.ymm0h+r.nxmm
	}
	fixed := fxsaveLayout(r)
	return &SizedRegset{
		Cat:       RegsetFloat,
		FixedSize: fxsaveSize,
		MaxSize:   xsaveYmmHStart + r.nxmm*sseRegWidth,
		Legacy:    fsaveLayout(r),
		Fixed:     fixed,
		Extended:  xsaveLayout(r),
		ExtendedPresent: func(blob []byte, reg int) bool {
			if !isYmmH(reg) {
				return false
			}
			return xsaveComponentPresent(blob, xstateAVXComponent)
		},
		Supplied: func(format RegsetFormat, cache *RegisterCache, blob []byte) {
			if format == FormatLegacy || !cache.Available(r.ftag) {
				return
			}
			abridged := uint8(cache.Uint64Val(r.ftag))
			cache.SupplyUint64(r.ftag, 2, uint64(x87FullTag(r, cache, abridged)))
		},
		Collected: func(format RegsetFormat, cache *RegisterCache, blob []byte, written []int) {
			if format == FormatLegacy {
				return
			}
			var bv uint64
			for _, reg := range written {
				switch {
				case reg == r.ftag:
					blob[fxsaveTagOffset] = x87AbridgedTag(uint16(cache.Uint64Val(r.ftag)))
					bv |= xstateLegacyBVMask
				case isYmmH(reg):
					bv |= 1 << xstateAVXComponent
				case fixed.Contains(reg):
					bv |= xstateLegacyBVMask
				}
			}
			if format == FormatExtended {
				xsaveMarkPresent(blob, bv)
			}
		},
	}
}

// x87 tag values of the full tag word.
const (
	x87TagValid   = 0
	x87TagZero    = 1
	x87TagSpecial = 2
	x87TagEmpty   = 3
)

// x87FullTag rebuilds the full tag word from the abridged tag of an FXSAVE
// area: every non empty physical register is classified from the contents
// of the ST register it currently maps to.
func x87FullTag(r x87Regnums, cache *RegisterCache, abridged uint8) uint16 {
	top := 0
	if cache.Available(r.fstat) {
		top = int(cache.Uint64Val(r.fstat)>>11) & 7
	}
	var full uint16
	for fpreg := 7; fpreg >= 0; fpreg-- {
		tag := x87TagEmpty
		if abridged&(1<<uint(fpreg)) != 0 {
			tag = x87TagValid
			if st := r.st0 + (fpreg+8-top)%8; cache.Available(st) {
				tag = x87Tag(cache.Bytes(st))
			}
		}
		full |= uint16(tag) << (2 * uint(fpreg))
	}
	return full
}

// x87Tag classifies the 80 bit extended precision value raw.
func x87Tag(raw []byte) int {
	if len(raw) < x87RegWidth {
		return x87TagSpecial
	}
	integer := raw[7]&0x80 != 0
	exponent := uint16(raw[9]&0x7f)<<8 | uint16(raw[8])
	fraction := binary.LittleEndian.Uint64(raw[0:8]) &^ (1 << 63)
	switch {
	case exponent == 0x7fff:
		return x87TagSpecial
	case exponent == 0:
		if fraction == 0 && !integer {
			return x87TagZero
		}
		return x87TagSpecial
	case integer:
		return x87TagValid
	default:
		return x87TagSpecial
	}
}

// x87AbridgedTag converts a full tag word to the FXSAVE abridged tag, one
// bit per physical register, set when the register is not empty.
func x87AbridgedTag(full uint16) uint8 {
	var abridged uint8
	for fpreg := uint(0); fpreg < 8; fpreg++ {
		if (full>>(2*fpreg))&3 != x87TagEmpty {
			abridged |= 1 << fpreg
		}
	}
	return abridged
}

// xsaveComponentPresent returns true if the XSAVE header of blob says that
// state component n is stored in standard format.
func xsaveComponentPresent(blob []byte, n uint) bool {
	if len(blob) < xsaveHeaderStart+16 {
		return false
	}
	hdr := blob[xsaveHeaderStart : xsaveHeaderStart+16]
	xstateBV := binary.LittleEndian.Uint64(hdr[0:8])
	xcompBV := binary.LittleEndian.Uint64(hdr[8:16])
	if xcompBV&xcompCompactedBit != 0 {
		// compact format not supported
		return false
	}
	return xstateBV&(1<<n) != 0
}

// xsaveMarkPresent sets the component bits of mask in the XSAVE header of
// blob.
func xsaveMarkPresent(blob []byte, mask uint64) {
	if mask == 0 || len(blob) < xsaveHeaderStart+8 {
		return
	}
	hdr := blob[xsaveHeaderStart : xsaveHeaderStart+8]
	binary.LittleEndian.PutUint64(hdr, binary.LittleEndian.Uint64(hdr)|mask)
}
