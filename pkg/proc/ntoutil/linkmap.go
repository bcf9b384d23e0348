// Package ntoutil contains QNX Neutrino specific helpers that are shared
// by the core file reader and the debugger front end.
package ntoutil

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/go-delve/ntotdep/pkg/logflags"
)

// LinkMapSection is the name of the pseudo section that exposes the
// serialized link map of a process.
const LinkMapSection = ".qnx_link_map"

const (
	linkMapHeaderSize = 16
	linkMapNumFields  = 6

	maxNumLibraries = 100000 // to avoid loading forever on corrupted data

	// NT_GNU_BUILD_ID
	BuildIDTypeGNU = 3
)

// ErrMalformedLinkMap is returned when the link map header or tables are
// inconsistent with the size of the data.
var ErrMalformedLinkMap = errors.New("malformed link map")

// LinkMapHeader is the header of a serialized link map. All fields are
// stored in target byte order.
type LinkMapHeader struct {
	Version        uint32
	LinkMapSize    uint32 // size of the table of link map records
	StrTabSize     uint32 // size of the string table, which follows the records
	BuildIDTabSize uint32 // size of the build id table, which follows the strings
}

// LinkMapEntry is one shared object loaded in the process.
type LinkMapEntry struct {
	// Index is the position of the record in the serialized table.
	Index int
	// Addr is the difference between the addresses in the object file and
	// the addresses in memory.
	Addr uint64
	Name string
	// Ld is the address of the dynamic section.
	Ld   uint64
	Path string

	// PrevLink and NextLink are the (target) addresses of the neighbouring
	// link map nodes.
	PrevLink uint64
	NextLink uint64

	BuildIDType uint32
	BuildID     []byte
}

// BuildIDString returns the build id in hexadecimal, or the empty string.
func (e *LinkMapEntry) BuildIDString() string {
	return hex.EncodeToString(e.BuildID)
}

// ModuleList is the list of shared objects of a process in load order.
type ModuleList []LinkMapEntry

// Prev returns the module loaded before module i.
func (l ModuleList) Prev(i int) (*LinkMapEntry, bool) {
	if i <= 0 || i >= len(l) {
		return nil, false
	}
	return &l[i-1], true
}

// Next returns the module loaded after module i.
func (l ModuleList) Next(i int) (*LinkMapEntry, bool) {
	if i < 0 || i+1 >= len(l) {
		return nil, false
	}
	return &l[i+1], true
}

// Find returns the module whose name or path is name.
func (l ModuleList) Find(name string) (*LinkMapEntry, bool) {
	for i := range l {
		if l[i].Name == name || l[i].Path == name {
			return &l[i], true
		}
	}
	return nil, false
}

// ReadLinkMapHeader decodes the header at the start of data using the
// target byte order bo.
func ReadLinkMapHeader(data []byte, bo binary.ByteOrder) (LinkMapHeader, error) {
	if len(data) < linkMapHeaderSize {
		return LinkMapHeader{}, fmt.Errorf("%w: %d byte header", ErrMalformedLinkMap, len(data))
	}
	return LinkMapHeader{
		Version:        bo.Uint32(data[0:]),
		LinkMapSize:    bo.Uint32(data[4:]),
		StrTabSize:     bo.Uint32(data[8:]),
		BuildIDTabSize: bo.Uint32(data[12:]),
	}, nil
}

// recordSize returns the size of a link map record for a target with
// pointers of ptrSize bytes.
func recordSize(ptrSize int) int {
	return linkMapNumFields * ptrSize
}

// readUint reads an unsigned integer of ptrSize bytes.
func readUint(b []byte, bo binary.ByteOrder, ptrSize int) uint64 {
	if ptrSize == 4 {
		return uint64(bo.Uint32(b))
	}
	return bo.Uint64(b)
}

// ReadLinkMap decodes a serialized link map. Empty data yields an empty
// list. Artificial bootstrap records, and the records describing the main
// executable, are not returned.
func ReadLinkMap(data []byte, bo binary.ByteOrder, ptrSize int) (ModuleList, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if ptrSize != 4 && ptrSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", ptrSize)
	}
	hdr, err := ReadLinkMapHeader(data, bo)
	if err != nil {
		return nil, err
	}
	lmStart := uint64(linkMapHeaderSize)
	strStart := lmStart + uint64(hdr.LinkMapSize)
	bidStart := strStart + uint64(hdr.StrTabSize)
	end := bidStart + uint64(hdr.BuildIDTabSize)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: tables need %d bytes, have %d", ErrMalformedLinkMap, end, len(data))
	}

	logger := logflags.SolibLogger()
	recsz := recordSize(ptrSize)
	if int(hdr.LinkMapSize)%recsz != 0 {
		logger.Warnf("link map table size %d is not a multiple of the record size %d", hdr.LinkMapSize, recsz)
	}
	n := int(hdr.LinkMapSize) / recsz
	if n > maxNumLibraries {
		return nil, fmt.Errorf("%w: %d records", ErrMalformedLinkMap, n)
	}

	strtab := data[strStart:bidStart]
	buildIDs := readBuildIDTable(data[bidStart:end], bo, n)

	var r ModuleList
	for i := 0; i < n; i++ {
		rec := data[lmStart+uint64(i*recsz):]
		var f [linkMapNumFields]uint64
		for j := range f {
			f[j] = readUint(rec[j*ptrSize:], bo, ptrSize)
		}
		e := LinkMapEntry{
			Index:    i,
			Addr:     f[0],
			Ld:       f[2],
			NextLink: f[3],
			PrevLink: f[4],
		}
		if e.PrevLink == 1 && e.NextLink == 1 {
			logger.Debugf("skipping bootstrap link map record %d", i)
			continue
		}
		e.Name = readString(strtab, f[1], i)
		e.Path = readString(strtab, f[5], i)
		if e.PrevLink == 0 && (e.Name == "PIE" || e.Name == "EXE") {
			logger.Debugf("skipping main executable link map record %d", i)
			continue
		}
		if bid, ok := buildIDs[i]; ok {
			e.BuildIDType, e.BuildID = bid.typ, bid.desc
		}
		r = append(r, e)
	}
	return r, nil
}

// readString returns the NUL terminated string at off in strtab.
func readString(strtab []byte, off uint64, rec int) string {
	if off >= uint64(len(strtab)) {
		if off != 0 || len(strtab) != 0 {
			logflags.SolibLogger().Warnf("link map record %d: string offset %#x outside of the %d byte string table", rec, off, len(strtab))
		}
		return ""
	}
	s := strtab[off:]
	for i, c := range s {
		if c == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

type buildID struct {
	typ  uint32
	desc []byte
}

// readBuildIDTable decodes the build id table: one (type, size, bytes)
// triple per link map record, in record order, each padded to 4 bytes.
// Triples with an empty descriptor, or a type other than the GNU build id,
// are skipped. A truncated triple ends the table.
func readBuildIDTable(tab []byte, bo binary.ByteOrder, nrec int) map[int]buildID {
	r := make(map[int]buildID)
	logger := logflags.SolibLogger()
	off := 0
	for i := 0; i < nrec && off < len(tab); i++ {
		if off+8 > len(tab) {
			logger.Warnf("build id table truncated at entry %d", i)
			break
		}
		typ := bo.Uint32(tab[off:])
		size := int(bo.Uint32(tab[off+4:]))
		off += 8
		if size < 0 || size > len(tab)-off {
			logger.Warnf("build id entry %d: %d byte descriptor past the end of the table", i, size)
			break
		}
		desc := tab[off : off+size]
		off += (size + 3) &^ 3
		switch {
		case size == 0:
			continue
		case typ != BuildIDTypeGNU:
			logger.Warnf("build id entry %d: unknown type %d", i, typ)
			continue
		}
		r[i] = buildID{typ: typ, desc: append([]byte(nil), desc...)}
	}
	return r
}

// LinkMapRecord is the raw content of one link map record, used to build
// serialized link maps.
type LinkMapRecord struct {
	Addr, Ld, Next, Prev uint64
	Name, Path           string
	BuildIDType          uint32
	BuildID              []byte
}

// EncodeLinkMap serializes records in the format read by ReadLinkMap.
func EncodeLinkMap(records []LinkMapRecord, bo binary.ByteOrder, ptrSize int) []byte {
	recsz := recordSize(ptrSize)
	lm := make([]byte, len(records)*recsz)
	strtab := []byte{0}
	addString := func(s string) uint64 {
		if s == "" {
			return 0
		}
		off := uint64(len(strtab))
		strtab = append(strtab, s...)
		strtab = append(strtab, 0)
		return off
	}
	var bidtab []byte
	hasBuildIDs := false
	for _, rec := range records {
		if len(rec.BuildID) > 0 {
			hasBuildIDs = true
		}
	}

	put := func(b []byte, v uint64) {
		if ptrSize == 4 {
			bo.PutUint32(b, uint32(v))
		} else {
			bo.PutUint64(b, v)
		}
	}
	for i, rec := range records {
		b := lm[i*recsz:]
		f := [linkMapNumFields]uint64{rec.Addr, addString(rec.Name), rec.Ld, rec.Next, rec.Prev, addString(rec.Path)}
		for j, v := range f {
			put(b[j*ptrSize:], v)
		}
		if hasBuildIDs {
			var hdr [8]byte
			typ := rec.BuildIDType
			if typ == 0 && len(rec.BuildID) > 0 {
				typ = BuildIDTypeGNU
			}
			bo.PutUint32(hdr[0:], typ)
			bo.PutUint32(hdr[4:], uint32(len(rec.BuildID)))
			bidtab = append(bidtab, hdr[:]...)
			bidtab = append(bidtab, rec.BuildID...)
			for len(bidtab)%4 != 0 {
				bidtab = append(bidtab, 0)
			}
		}
	}

	out := make([]byte, linkMapHeaderSize, linkMapHeaderSize+len(lm)+len(strtab)+len(bidtab))
	bo.PutUint32(out[0:], 1)
	bo.PutUint32(out[4:], uint32(len(lm)))
	bo.PutUint32(out[8:], uint32(len(strtab)))
	bo.PutUint32(out[12:], uint32(len(bidtab)))
	out = append(out, lm...)
	out = append(out, strtab...)
	out = append(out, bidtab...)
	return out
}
