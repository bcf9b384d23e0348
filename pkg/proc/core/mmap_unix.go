//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris
// +build linux darwin freebsd netbsd openbsd dragonfly solaris

package core

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

type mapping []byte

func (m mapping) Close() error {
	if len(m) == 0 {
		return nil
	}
	return unix.Munmap(m)
}

// mapFile maps the file at path read-only in memory. Empty files are read
// normally since they can not be mapped.
func mapFile(path string) ([]byte, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := fi.Size()
	if size == 0 {
		return nil, mapping(nil), nil
	}
	if int64(int(size)) != size {
		return nil, nil, fmt.Errorf("%s is too large to map", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("could not map %s: %w", path, err)
	}
	return data, mapping(data), nil
}
