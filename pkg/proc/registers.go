package proc

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Register is a register formatted for display.
type Register struct {
	Name     string
	Category RegsetCategory
	Bytes    []byte
	Value    string
}

// FormatRegisters returns the available registers of regs, in register
// number order. Floating point registers are only included if
// floatingPoint is set.
func FormatRegisters(arch Arch, regs *RegisterCache, floatingPoint bool) []Register {
	var r []Register
	for reg := 0; reg <= arch.MaxRegNum(); reg++ {
		cat := arch.RegsetOf(reg)
		if cat == RegsetNone || (cat == RegsetFloat && !floatingPoint) {
			continue
		}
		if !regs.Available(reg) {
			continue
		}
		name := arch.RegisterName(reg)
		b := regs.Bytes(reg)
		r = append(r, Register{Name: name, Category: cat, Bytes: b, Value: formatRegisterValue(arch, reg, name, b)})
	}
	return r
}

func formatRegisterValue(arch Arch, reg int, name string, b []byte) string {
	bo := arch.ByteOrder()
	switch {
	case reg == arch.PSRegNum():
		descr := cpsrDescription
		if m := arch.Machine(); m == elf.EM_386 || m == elf.EM_X86_64 {
			descr = eflagsDescription
		}
		return descr.Describe(bytesToUint64(bo, b), len(b)*8)
	case strings.EqualFold(name, "MXCSR"):
		return mxcsrDescription.Describe(bytesToUint64(bo, b), 32)
	}
	switch len(b) {
	case 10:
		return formatX87(binary.LittleEndian.Uint16(b[8:]), binary.LittleEndian.Uint64(b[:8]))
	case 16:
		return formatVector(b)
	}
	return fmt.Sprintf("%#0*x", len(b)*2+2, bytesToUint64(bo, b))
}

// formatX87 formats an 80 bit extended precision float.
func formatX87(exponent uint16, mantissa uint64) string {
	var f float64
	fset := false

	const (
		_SIGNBIT    = 1 << 15
		_EXP_BIAS   = (1 << 14) - 1 // 2^(n-1) - 1 = 16383
		_SPECIALEXP = (1 << 15) - 1 // all bits set
		_HIGHBIT    = 1 << 63
	)

	sign := 1.0
	if exponent&_SIGNBIT != 0 {
		sign = -1.0
	}
	exp := exponent &^ uint16(_SIGNBIT)

	switch exp {
	case 0:
		switch {
		case mantissa == 0:
			f = sign * 0.0
			fset = true
		case mantissa&_HIGHBIT != 0:
			f = math.NaN()
			fset = true
		}
	case _SPECIALEXP:
		if mantissa&_HIGHBIT == 0 {
			f = sign * math.Inf(+1)
		} else {
			f = math.NaN()
		}
		fset = true
	default:
		if mantissa&_HIGHBIT == 0 {
			f = math.NaN()
			fset = true
		}
	}

	if !fset {
		significand := float64(mantissa) / (1 << 63)
		f = sign * math.Ldexp(significand, int(exp)-_EXP_BIAS)
	}
	return fmt.Sprintf("%#04x%016x\t%g", exponent, mantissa, f)
}

// formatVector formats a 128 bit vector register, stored little endian.
func formatVector(reg []byte) string {
	var out bytes.Buffer
	vi := reg[:16]

	fmt.Fprintf(&out, "0x")
	for i := 15; i >= 0; i-- {
		fmt.Fprintf(&out, "%02x", vi[i])
	}

	fmt.Fprintf(&out, "\tv2_int={ %016x %016x }", binary.LittleEndian.Uint64(vi[0:]), binary.LittleEndian.Uint64(vi[8:]))
	fmt.Fprintf(&out, "\tv4_int={ %08x %08x %08x %08x }", binary.LittleEndian.Uint32(vi[0:]), binary.LittleEndian.Uint32(vi[4:]), binary.LittleEndian.Uint32(vi[8:]), binary.LittleEndian.Uint32(vi[12:]))

	fmt.Fprintf(&out, "\tv2_float={ %g %g }",
		math.Float64frombits(binary.LittleEndian.Uint64(vi[0:])),
		math.Float64frombits(binary.LittleEndian.Uint64(vi[8:])))
	fmt.Fprintf(&out, "\tv4_float={ %g %g %g %g }",
		math.Float32frombits(binary.LittleEndian.Uint32(vi[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(vi[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(vi[8:])),
		math.Float32frombits(binary.LittleEndian.Uint32(vi[12:])))
	return out.String()
}

type flagRegisterDescr []flagDescr
type flagDescr struct {
	name string
	mask uint64
}

var mxcsrDescription flagRegisterDescr = []flagDescr{
	{"FZ", 1 << 15},
	{"RZ/RN", 1<<14 | 1<<13},
	{"PM", 1 << 12},
	{"UM", 1 << 11},
	{"OM", 1 << 10},
	{"ZM", 1 << 9},
	{"DM", 1 << 8},
	{"IM", 1 << 7},
	{"DAZ", 1 << 6},
	{"PE", 1 << 5},
	{"UE", 1 << 4},
	{"OE", 1 << 3},
	{"ZE", 1 << 2},
	{"DE", 1 << 1},
	{"IE", 1 << 0},
}

var eflagsDescription flagRegisterDescr = []flagDescr{
	{"CF", 1 << 0},
	{"", 1 << 1},
	{"PF", 1 << 2},
	{"AF", 1 << 4},
	{"ZF", 1 << 6},
	{"SF", 1 << 7},
	{"TF", 1 << 8},
	{"IF", 1 << 9},
	{"DF", 1 << 10},
	{"OF", 1 << 11},
	{"IOPL", 1<<12 | 1<<13},
	{"NT", 1 << 14},
	{"RF", 1 << 16},
	{"VM", 1 << 17},
	{"AC", 1 << 18},
	{"VIF", 1 << 19},
	{"VIP", 1 << 20},
	{"ID", 1 << 21},
}

// ARM CPSR and AArch64 PSTATE share the condition flags and the low mode
// bits.
var cpsrDescription flagRegisterDescr = []flagDescr{
	{"N", 1 << 31},
	{"Z", 1 << 30},
	{"C", 1 << 29},
	{"V", 1 << 28},
	{"Q", 1 << 27},
	{"J", 1 << 24},
	{"GE", 0xf << 16},
	{"E", 1 << 9},
	{"A", 1 << 8},
	{"I", 1 << 7},
	{"F", 1 << 6},
	{"T", 1 << 5},
	{"M", 0x1f},
}

func (descr flagRegisterDescr) Mask() uint64 {
	var r uint64
	for _, f := range descr {
		r = r | f.mask
	}
	return r
}

func (descr flagRegisterDescr) Describe(reg uint64, bitsize int) string {
	var r []string
	for _, f := range descr {
		if f.name == "" {
			continue
		}
		// rbm is f.mask with only the right-most bit set:
		// 0001 1100 -> 0000 0100
		rbm := f.mask & -f.mask
		if rbm == f.mask {
			if reg&f.mask != 0 {
				r = append(r, f.name)
			}
		} else {
			x := (reg & f.mask) >> uint64(math.Log2(float64(rbm)))
			r = append(r, fmt.Sprintf("%s=%x", f.name, x))
		}
	}
	if reg & ^descr.Mask() != 0 {
		r = append(r, fmt.Sprintf("unknown_flags=%x", reg&^descr.Mask()))
	}
	return fmt.Sprintf("%#0*x\t[%s]", bitsize/4+2, reg, strings.Join(r, " "))
}
