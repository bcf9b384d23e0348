package terminal

import (
	"golang.org/x/sys/windows"
)

func (w *pagingWriter) getWindowSize() {
	var info windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Stdout, &info); err != nil {
		w.mode = pagingWriterNormal
		return
	}
	w.columns = int(info.Window.Right - info.Window.Left + 1)
	w.lines = int(info.Window.Bottom - info.Window.Top + 1)
}
