package proc

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestRegisterCacheLoadMore(t *testing.T) {
	c := NewRegisterCache(4, binary.LittleEndian, 0, 1, 2, 3)
	c.SupplyUint64(0, 4, 0x1000)
	calls := 0
	c.SetLoadMoreCallback(func() {
		calls++
		c.SupplyUint64(2, 4, 0x2000)
	})

	if c.PC() != 0x1000 {
		t.Errorf("pc %#x", c.PC())
	}
	if calls != 0 {
		t.Errorf("callback called for an available register")
	}
	if c.BP() != 0x2000 {
		t.Errorf("bp %#x", c.BP())
	}
	if c.Available(3) {
		t.Errorf("register 3 available")
	}
	if calls != 1 {
		t.Errorf("callback called %d times", calls)
	}
}

func TestRegisterCacheCopy(t *testing.T) {
	c := NewRegisterCache(2, binary.BigEndian, 0, 1, 1, 1)
	c.Supply(0, []byte{0x12, 0x34})
	c.SetLoadMoreCallback(func() { c.SupplyUint64(1, 8, 42) })

	cp := c.Copy()
	c.Bytes(0)[0] = 0xff
	c.Invalidate(1)
	if cp.Uint64Val(0) != 0x1234 {
		t.Errorf("copy changed with the original: %#x", cp.Uint64Val(0))
	}
	if cp.Uint64Val(1) != 42 {
		t.Errorf("pending registers not loaded before the copy")
	}
}

func TestRegisterCacheByteOrder(t *testing.T) {
	for _, tc := range []struct {
		bo   binary.ByteOrder
		in   []byte
		want uint64
	}{
		{binary.LittleEndian, []byte{1, 2, 3}, 0x030201},
		{binary.BigEndian, []byte{1, 2, 3}, 0x010203},
		{binary.LittleEndian, []byte{1, 0, 0, 0, 0, 0, 0, 0, 9, 9}, 1},
	} {
		c := NewRegisterCache(1, tc.bo, 0, 0, 0, 0)
		c.Supply(0, tc.in)
		if got := c.Uint64Val(0); got != tc.want {
			t.Errorf("%v %x: %#x, expected %#x", tc.bo, tc.in, got, tc.want)
		}
	}

	c := NewRegisterCache(1, binary.BigEndian, 0, 0, 0, 0)
	c.SupplyUint64(0, 4, 0xdeadbeef)
	if !bytes.Equal(c.Bytes(0), []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("big endian encoding %x", c.Bytes(0))
	}
	c.ClearRegisters()
	if c.Available(0) {
		t.Errorf("register available after ClearRegisters")
	}
}
