//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !solaris
// +build !linux,!darwin,!freebsd,!netbsd,!openbsd,!dragonfly,!solaris

package core

import (
	"io"
	"io/ioutil"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// mapFile reads the whole file at path in memory.
func mapFile(path string) ([]byte, io.Closer, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, nopCloser{}, nil
}
