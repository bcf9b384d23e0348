//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows
// +build !linux,!darwin,!freebsd,!netbsd,!openbsd,!windows

package terminal

func (w *pagingWriter) getWindowSize() {
	w.mode = pagingWriterNormal
}
