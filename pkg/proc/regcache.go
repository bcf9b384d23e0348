package proc

import (
	"encoding/binary"
)

// RegisterCache holds the debugger's view of the registers of one
// execution point (a thread or a frame), indexed by abstract register
// number. A nil entry means the register is unavailable.
type RegisterCache struct {
	regs []*CachedRegister

	ByteOrder binary.ByteOrder
	PCRegNum  int
	SPRegNum  int
	BPRegNum  int
	PSRegNum  int

	loadMoreCallback func()
}

// CachedRegister is the value of one register, stored as raw bytes in
// target byte order. Uint64Val is derived from Bytes for registers up to 8
// bytes wide and holds the low 8 bytes for wider ones.
type CachedRegister struct {
	Uint64Val uint64
	Bytes     []byte
}

// NewRegisterCache returns an empty cache with room for n registers.
func NewRegisterCache(n int, byteOrder binary.ByteOrder, pcRegNum, spRegNum, bpRegNum, psRegNum int) *RegisterCache {
	return &RegisterCache{
		regs:      make([]*CachedRegister, n),
		ByteOrder: byteOrder,
		PCRegNum:  pcRegNum,
		SPRegNum:  spRegNum,
		BPRegNum:  bpRegNum,
		PSRegNum:  psRegNum,
	}
}

// SetLoadMoreCallback sets a callback function that will be called the
// first time the user of the cache tries to access an unavailable register.
func (c *RegisterCache) SetLoadMoreCallback(fn func()) {
	c.loadMoreCallback = fn
}

// CurrentSize returns the current number of register slots.
func (c *RegisterCache) CurrentSize() int {
	return len(c.regs)
}

func (c *RegisterCache) loadMore() {
	if c.loadMoreCallback == nil {
		return
	}
	fn := c.loadMoreCallback
	c.loadMoreCallback = nil
	fn()
}

// Reg returns register idx or nil if the register is unavailable.
func (c *RegisterCache) Reg(idx int) *CachedRegister {
	if idx < 0 {
		return nil
	}
	if idx >= len(c.regs) || c.regs[idx] == nil {
		c.loadMore()
		if idx >= len(c.regs) {
			return nil
		}
	}
	return c.regs[idx]
}

// Available returns true if register idx has a value.
func (c *RegisterCache) Available(idx int) bool {
	return c.Reg(idx) != nil
}

// Uint64Val returns the uint64 value of register idx, 0 if the register is
// unavailable.
func (c *RegisterCache) Uint64Val(idx int) uint64 {
	reg := c.Reg(idx)
	if reg == nil {
		return 0
	}
	return reg.Uint64Val
}

// Bytes returns the raw value of register idx, nil if the register is
// unavailable.
func (c *RegisterCache) Bytes(idx int) []byte {
	reg := c.Reg(idx)
	if reg == nil {
		return nil
	}
	return reg.Bytes
}

func (c *RegisterCache) PC() uint64 {
	return c.Uint64Val(c.PCRegNum)
}

func (c *RegisterCache) SP() uint64 {
	return c.Uint64Val(c.SPRegNum)
}

func (c *RegisterCache) BP() uint64 {
	return c.Uint64Val(c.BPRegNum)
}

// Supply stores a copy of buf as the value of register idx.
func (c *RegisterCache) Supply(idx int, buf []byte) {
	if idx < 0 {
		return
	}
	b := make([]byte, len(buf))
	copy(b, buf)
	c.AddReg(idx, &CachedRegister{Uint64Val: bytesToUint64(c.ByteOrder, b), Bytes: b})
}

// SupplyUint64 stores v, encoded on width bytes, as the value of register idx.
func (c *RegisterCache) SupplyUint64(idx int, width int, v uint64) {
	if idx < 0 {
		return
	}
	b := make([]byte, width)
	putUint(c.ByteOrder, b, v)
	c.AddReg(idx, &CachedRegister{Uint64Val: bytesToUint64(c.ByteOrder, b), Bytes: b})
}

// AddReg adds register idx to the cache.
func (c *RegisterCache) AddReg(idx int, reg *CachedRegister) {
	if idx >= len(c.regs) {
		newRegs := make([]*CachedRegister, idx+1)
		copy(newRegs, c.regs)
		c.regs = newRegs
	}
	c.regs[idx] = reg
}

// Invalidate marks register idx as unavailable.
func (c *RegisterCache) Invalidate(idx int) {
	if idx >= 0 && idx < len(c.regs) {
		c.regs[idx] = nil
	}
}

// ClearRegisters marks all registers as unavailable.
func (c *RegisterCache) ClearRegisters() {
	c.loadMoreCallback = nil
	for regnum := range c.regs {
		c.regs[regnum] = nil
	}
}

// Copy returns a copy of the cache that is guaranteed not to change when
// c changes. Pending lazy loads are completed first.
func (c *RegisterCache) Copy() *RegisterCache {
	c.loadMore()
	r := *c
	r.regs = make([]*CachedRegister, len(c.regs))
	for i, reg := range c.regs {
		if reg == nil {
			continue
		}
		b := make([]byte, len(reg.Bytes))
		copy(b, reg.Bytes)
		r.regs[i] = &CachedRegister{Uint64Val: reg.Uint64Val, Bytes: b}
	}
	r.loadMoreCallback = nil
	return &r
}

// bytesToUint64 decodes the first (up to) 8 bytes of b in byte order bo.
func bytesToUint64(bo binary.ByteOrder, b []byte) uint64 {
	switch len(b) {
	case 0:
		return 0
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(bo.Uint16(b))
	case 4:
		return uint64(bo.Uint32(b))
	case 8:
		return bo.Uint64(b)
	}
	if len(b) > 8 {
		if bo == binary.BigEndian {
			return bo.Uint64(b[len(b)-8:])
		}
		return bo.Uint64(b[:8])
	}
	var v uint64
	if bo == binary.BigEndian {
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
		return v
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// putUint encodes v on len(b) bytes in byte order bo, truncating or zero
// extending as needed.
func putUint(bo binary.ByteOrder, b []byte, v uint64) {
	for i := range b {
		b[i] = 0
	}
	n := len(b)
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		x := byte(v >> (8 * uint(i)))
		if bo == binary.BigEndian {
			b[len(b)-1-i] = x
		} else {
			b[i] = x
		}
	}
}
