package proc

import (
	"errors"
	"fmt"
)

const cacheEnabled = true

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of the target's memory regardless of the host's pointer
// size.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// SymbolLookup resolves program counters to the functions containing them.
type SymbolLookup interface {
	// FunctionContaining returns the name and entry point of the function
	// containing pc.
	FunctionContaining(pc uint64) (name string, entry uint64, ok bool)
}

// ErrShortRead is returned when fewer bytes than requested could be read.
var ErrShortRead = errors.New("short read")

// readFull reads len(buf) bytes at addr.
func readFull(mem MemoryReader, buf []byte, addr uint64) error {
	n, err := mem.ReadMemory(buf, addr)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("reading %d bytes at %#x: %w", len(buf), addr, ErrShortRead)
	}
	return nil
}

type memCache struct {
	cacheAddr uint64
	cache     []byte
	mem       MemoryReader
}

func (m *memCache) contains(addr uint64, size int) bool {
	return addr >= m.cacheAddr && addr+uint64(size) <= m.cacheAddr+uint64(len(m.cache))
}

func (m *memCache) ReadMemory(data []byte, addr uint64) (n int, err error) {
	if m.contains(addr, len(data)) {
		copy(data, m.cache[addr-m.cacheAddr:])
		return len(data), nil
	}

	return m.mem.ReadMemory(data, addr)
}

// cacheMemory returns a MemoryReader that serves reads inside
// [addr, addr+size) from a single read of mem.
func cacheMemory(mem MemoryReader, addr uint64, size int) MemoryReader {
	if !cacheEnabled {
		return mem
	}
	if size <= 0 {
		return mem
	}
	if cacheMem, isCache := mem.(*memCache); isCache {
		if cacheMem.contains(addr, size) {
			return mem
		}
		mem = cacheMem.mem
	}
	cache := make([]byte, size)
	if err := readFull(mem, cache, addr); err != nil {
		return mem
	}
	return &memCache{addr, cache, mem}
}

// BytesMemory is a MemoryReader over a byte slice mapped at Addr.
type BytesMemory struct {
	Addr uint64
	Data []byte
}

func (m *BytesMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	if addr < m.Addr || addr-m.Addr >= uint64(len(m.Data)) {
		return 0, fmt.Errorf("address %#x not mapped", addr)
	}
	n := copy(buf, m.Data[addr-m.Addr:])
	if n < len(buf) {
		return n, ErrShortRead
	}
	return n, nil
}
