package proc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-delve/ntotdep/pkg/regnum"
)

// patternBlob returns a blob of n bytes where no two registers have the
// same value.
func patternBlob(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}

// storedBytes returns a zeroed blob of the same size as blob with only the
// bytes that belong to a register of l copied over.
func storedBytes(l *RegisterLayout, blob []byte) []byte {
	r := make([]byte, len(blob))
	for _, e := range l.Entries() {
		if e.Offset == NoOffset || e.Offset+e.Width > len(blob) {
			continue
		}
		copy(r[e.Offset:e.Offset+e.Width], blob[e.Offset:e.Offset+e.Width])
	}
	return r
}

func TestRegsetRoundTrip(t *testing.T) {
	reg := NewDefaultRegistry()
	for _, name := range reg.Names() {
		arch, _ := reg.Lookup(name)
		for _, cat := range []RegsetCategory{RegsetGeneral, RegsetFloat} {
			rs := arch.Regset(cat)
			if rs == nil {
				t.Fatalf("%s: no %s register set", name, cat)
			}
			sizes := []int{rs.Size()}
			if srs, ok := rs.(*SizedRegset); ok {
				sizes = append(sizes, srs.FixedSize, srs.Legacy.Size)
			}
			for _, size := range sizes {
				blob := patternBlob(size)
				if cat == RegsetFloat && size > fxsaveSize {
					// all components present, standard format
					binary.LittleEndian.PutUint64(blob[xsaveHeaderStart:], 0x7)
					binary.LittleEndian.PutUint64(blob[xsaveHeaderStart+8:], 0)
				}
				cache := arch.NewRegisterCache()
				rs.Supply(cache, blob)

				out := make([]byte, size)
				rs.Collect(cache, out)

				want := storedBytes(rs.LayoutFor(size), blob)
				if cat == RegsetFloat && size > fxsaveSize {
					copy(want[xsaveHeaderStart:], blob[xsaveHeaderStart:xsaveHeaderStart+8])
					// collect only sets the bits of the components it wrote
					binary.LittleEndian.PutUint64(want[xsaveHeaderStart:], 0x7)
				}
				if !bytes.Equal(out, want) {
					t.Errorf("%s %s (%d bytes): round trip mismatch\n got: %x\nwant: %x", name, cat, size, out, want)
				}
			}
		}
	}
}

func TestCollectLeavesFillerUntouched(t *testing.T) {
	arch := I386Arch()
	rs := arch.Regset(RegsetGeneral)
	cache := arch.NewRegisterCache()
	rs.Supply(cache, patternBlob(rs.Size()))

	out := bytes.Repeat([]byte{0xaa}, rs.Size())
	rs.Collect(cache, out)
	// offset 12 holds the esp pushed by pusha, no register is stored there
	for i := 12; i < 16; i++ {
		if out[i] != 0xaa {
			t.Errorf("byte %d of the filler slot was written: %#x", i, out[i])
		}
	}
	for _, reg := range []int{regnum.I386_Ds, regnum.I386_Es, regnum.I386_Fs, regnum.I386_Gs} {
		if cache.Available(reg) {
			t.Errorf("%s supplied", arch.RegisterName(reg))
		}
	}
}

func TestSupplyGeneralRegisters(t *testing.T) {
	arch := AMD64Arch()
	blob := make([]byte, amd64GregSize)
	binary.LittleEndian.PutUint64(blob[120:], 0x401000)  // rip
	binary.LittleEndian.PutUint64(blob[144:], 0x7ffe000) // rsp
	binary.LittleEndian.PutUint32(blob[128:], 0x33)      // cs
	binary.LittleEndian.PutUint64(blob[24:], 0x1010)     // r10
	cache := arch.NewRegisterCache()
	arch.Regset(RegsetGeneral).Supply(cache, blob)

	if cache.PC() != 0x401000 {
		t.Errorf("pc %#x", cache.PC())
	}
	if cache.SP() != 0x7ffe000 {
		t.Errorf("sp %#x", cache.SP())
	}
	if v := cache.Uint64Val(regnum.AMD64_Cs); v != 0x33 || len(cache.Bytes(regnum.AMD64_Cs)) != 4 {
		t.Errorf("cs %#x %d", v, len(cache.Bytes(regnum.AMD64_Cs)))
	}
	if v := cache.Uint64Val(regnum.AMD64_R8 + 2); v != 0x1010 {
		t.Errorf("r10 %#x", v)
	}
}

func TestFloatRegsetSelect(t *testing.T) {
	rs := AMD64Arch().Regset(RegsetFloat).(*SizedRegset)
	for _, tc := range []struct {
		n    int
		want RegsetFormat
	}{
		{0, FormatLegacy},
		{fsaveSize, FormatLegacy},
		{fxsaveSize - 1, FormatLegacy},
		{fxsaveSize, FormatFixed},
		{fxsaveSize + 1, FormatExtended},
		{rs.Size(), FormatExtended},
	} {
		if got, _ := rs.Select(tc.n); got != tc.want {
			t.Errorf("Select(%d) = %v, expected %v", tc.n, got, tc.want)
		}
	}
}

func TestFloatSupplyBoundaries(t *testing.T) {
	arch := AMD64Arch()
	rs := arch.Regset(RegsetFloat)

	// 511 bytes: legacy FSAVE layout, ST0 at offset 28
	blob := patternBlob(fxsaveSize - 1)
	cache := arch.NewRegisterCache()
	rs.Supply(cache, blob)
	if !bytes.Equal(cache.Bytes(regnum.AMD64_ST0), blob[28:38]) {
		t.Errorf("legacy: wrong ST0 %x", cache.Bytes(regnum.AMD64_ST0))
	}
	if cache.Available(regnum.AMD64_XMM0) || cache.Available(regnum.AMD64_MXCSR) {
		t.Errorf("legacy: SSE registers supplied")
	}

	// 512 bytes: FXSAVE layout, ST0 at offset 32, XMM0 at 160
	blob = patternBlob(fxsaveSize)
	cache = arch.NewRegisterCache()
	rs.Supply(cache, blob)
	if !bytes.Equal(cache.Bytes(regnum.AMD64_ST0), blob[32:42]) {
		t.Errorf("fixed: wrong ST0 %x", cache.Bytes(regnum.AMD64_ST0))
	}
	if !bytes.Equal(cache.Bytes(regnum.AMD64_XMM0+15), blob[160+15*16:160+16*16]) {
		t.Errorf("fixed: wrong XMM15")
	}
	if cache.Available(regnum.AMD64_YMM0H) {
		t.Errorf("fixed: YMM0H supplied")
	}

	// 513 bytes: extended layout, but the blob ends before the YMM state
	// and before the end of the XSAVE header
	blob = patternBlob(fxsaveSize + 1)
	cache = arch.NewRegisterCache()
	rs.Supply(cache, blob)
	if !bytes.Equal(cache.Bytes(regnum.AMD64_XMM0), blob[160:176]) {
		t.Errorf("extended: wrong XMM0")
	}
	if cache.Available(regnum.AMD64_YMM0H) {
		t.Errorf("extended: YMM0H supplied from a truncated blob")
	}
}

func TestXsaveComponentGating(t *testing.T) {
	arch := AMD64Arch()
	rs := arch.Regset(RegsetFloat)
	blob := patternBlob(rs.Size())

	check := func(xstateBV, xcompBV uint64, wantYmm bool) {
		t.Helper()
		binary.LittleEndian.PutUint64(blob[xsaveHeaderStart:], xstateBV)
		binary.LittleEndian.PutUint64(blob[xsaveHeaderStart+8:], xcompBV)
		cache := arch.NewRegisterCache()
		rs.Supply(cache, blob)
		if got := cache.Available(regnum.AMD64_YMM0H + 3); got != wantYmm {
			t.Errorf("xstate_bv=%#x xcomp_bv=%#x: YMM3H available %v, expected %v", xstateBV, xcompBV, got, wantYmm)
		}
		if !cache.Available(regnum.AMD64_XMM0 + 3) {
			t.Errorf("xstate_bv=%#x: XMM3 not available", xstateBV)
		}
	}
	check(0x7, 0, true)
	check(0x3, 0, false)
	check(0x7, 1<<63|0x7, false) // compacted
}

func TestXsaveCollectMarksComponent(t *testing.T) {
	arch := I386Arch()
	rs := arch.Regset(RegsetFloat)
	cache := arch.NewRegisterCache()
	cache.Supply(regnum.I386_YMM0H+1, bytes.Repeat([]byte{0x11}, 16))
	cache.Supply(regnum.I386_MXCSR, []byte{0x80, 0x1f, 0, 0})

	blob := make([]byte, rs.Size())
	rs.Collect(cache, blob)
	if bv := binary.LittleEndian.Uint64(blob[xsaveHeaderStart:]); bv&(1<<xstateAVXComponent) == 0 {
		t.Errorf("AVX component not marked present: %#x", bv)
	}
	if !bytes.Equal(blob[xsaveYmmHStart+16:xsaveYmmHStart+32], bytes.Repeat([]byte{0x11}, 16)) {
		t.Errorf("YMM1H not collected")
	}

	back := arch.NewRegisterCache()
	rs.Supply(back, blob)
	if !bytes.Equal(back.Bytes(regnum.I386_YMM0H+1), cache.Bytes(regnum.I386_YMM0H+1)) {
		t.Errorf("YMM1H did not round trip")
	}
	if back.Uint64Val(regnum.I386_MXCSR) != 0x1f80 {
		t.Errorf("mxcsr %#x", back.Uint64Val(regnum.I386_MXCSR))
	}
}

func TestFloatCollectFromLegacy(t *testing.T) {
	arch := I386Arch()
	rs := arch.Regset(RegsetFloat)

	fsave := make([]byte, fsaveSize)
	binary.LittleEndian.PutUint16(fsave[0:], 0x037f)
	binary.LittleEndian.PutUint16(fsave[4:], 0x3800) // top = 7
	binary.LittleEndian.PutUint16(fsave[8:], 0x3fff) // physical register 7 valid
	// ST0 = 1.0
	binary.LittleEndian.PutUint64(fsave[fsaveSTStart:], 1<<63)
	binary.LittleEndian.PutUint16(fsave[fsaveSTStart+8:], 0x3fff)
	cache := arch.NewRegisterCache()
	rs.Supply(cache, fsave)

	blob := make([]byte, rs.Size())
	rs.Collect(cache, blob)
	if blob[fxsaveTagOffset] != 0x80 || blob[fxsaveTagOffset+1] != 0 {
		t.Errorf("abridged tag %#x %#x", blob[fxsaveTagOffset], blob[fxsaveTagOffset+1])
	}
	bv := binary.LittleEndian.Uint64(blob[xsaveHeaderStart:])
	if bv&xstateLegacyBVMask != xstateLegacyBVMask || bv&(1<<xstateAVXComponent) != 0 {
		t.Errorf("xstate_bv %#x", bv)
	}

	back := arch.NewRegisterCache()
	rs.Supply(back, blob)
	if v := back.Uint64Val(regnum.I386_FTAG); v != 0x3fff {
		t.Errorf("tag word %#x", v)
	}
	if !bytes.Equal(back.Bytes(regnum.I386_ST0), cache.Bytes(regnum.I386_ST0)) {
		t.Errorf("ST0 did not round trip")
	}
}

func TestX87Tag(t *testing.T) {
	ext := func(mant uint64, exp uint16) []byte {
		b := make([]byte, x87RegWidth)
		binary.LittleEndian.PutUint64(b, mant)
		binary.LittleEndian.PutUint16(b[8:], exp)
		return b
	}
	for _, tc := range []struct {
		raw  []byte
		want int
	}{
		{ext(1<<63, 0x3fff), x87TagValid},
		{ext(0, 0), x87TagZero},
		{ext(0, 0x8000), x87TagZero}, // -0
		{ext(1, 0), x87TagSpecial},   // denormal
		{ext(1<<63, 0x7fff), x87TagSpecial},
		{ext(0, 0x3fff), x87TagSpecial}, // unnormal
	} {
		if got := x87Tag(tc.raw); got != tc.want {
			t.Errorf("%x: tag %d, expected %d", tc.raw, got, tc.want)
		}
	}
	if a := x87AbridgedTag(0x3fff); a != 0x80 {
		t.Errorf("abridged %#x", a)
	}
	if a := x87AbridgedTag(0xffff); a != 0 {
		t.Errorf("abridged of an empty stack %#x", a)
	}
}

func TestSupplyShortBlob(t *testing.T) {
	arch := ARMArch()
	rs := arch.Regset(RegsetGeneral)
	blob := patternBlob(10)
	cache := arch.NewRegisterCache()
	rs.Supply(cache, blob)
	if !cache.Available(regnum.ARM_R0 + 1) {
		t.Errorf("R1 not supplied")
	}
	if cache.Available(regnum.ARM_R0 + 2) {
		t.Errorf("R2 supplied from a 10 byte blob")
	}
	if cache.Available(regnum.ARM_PC) {
		t.Errorf("PC supplied from a 10 byte blob")
	}
}
