package terminal

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

// transcriptWriter writes to a pagingWriter and also, optionally, to a
// buffered file.
type transcriptWriter struct {
	fileOnly bool
	pw       *pagingWriter
	file     *bufio.Writer
	fh       io.Closer
}

func (w *transcriptWriter) Write(p []byte) (nn int, err error) {
	if !w.fileOnly {
		nn, err = w.pw.Write(p)
	}
	if err == nil {
		if w.file != nil {
			return w.file.Write(p)
		}
	}
	return
}

// Echo outputs str only to the optional transcript file.
func (w *transcriptWriter) Echo(str string) {
	if w.file != nil {
		w.file.WriteString(str)
	}
}

// Flush flushes the optional transcript file.
func (w *transcriptWriter) Flush() {
	if w.file != nil {
		w.file.Flush()
	}
}

// CloseTranscript closes the optional transcript file.
func (w *transcriptWriter) CloseTranscript() error {
	if w.file == nil {
		return nil
	}
	w.file.Flush()
	w.fileOnly = false
	err := w.fh.Close()
	w.file = nil
	w.fh = nil
	return err
}

// TranscribeTo starts transcribing the output to the specified file. If
// fileOnly is true the output will only go to the file, output to the
// io.Writer will be suppressed.
func (w *transcriptWriter) TranscribeTo(fh io.WriteCloser, fileOnly bool) {
	if w.file != nil {
		w.CloseTranscript()
	}
	w.fh = fh
	w.file = bufio.NewWriter(fh)
	w.fileOnly = fileOnly
}

// pagingWriter writes to w. After PageMaybe it buffers what it is given
// and, once more than a screenful has accumulated, starts a pager and
// sends everything to it instead.
type pagingWriter struct {
	mode pagingWriterMode
	w    io.Writer

	pending []byte
	lastnl  bool

	pager    string
	cmd      *exec.Cmd
	cmdStdin io.WriteCloser
	cancel   func()

	lines, columns int
}

type pagingWriterMode uint8

const (
	pagingWriterNormal pagingWriterMode = iota
	pagingWriterMaybe
	pagingWriterPaging
)

func (w *pagingWriter) Write(p []byte) (int, error) {
	switch w.mode {
	case pagingWriterMaybe:
		w.pending = append(w.pending, p...)
		if !w.largeOutput() {
			if len(p) > 0 {
				w.lastnl = p[len(p)-1] == '\n'
			}
			return w.w.Write(p)
		}
		if err := w.startPager(); err != nil {
			w.mode = pagingWriterNormal
			return w.w.Write(p)
		}
		return len(p), nil
	case pagingWriterPaging:
		n, err := w.cmdStdin.Write(p)
		if err != nil && w.cancel != nil {
			w.cancel()
			w.cancel = nil
		}
		return n, err
	default:
		return w.w.Write(p)
	}
}

// startPager runs the pager and replays the pending output into it.
func (w *pagingWriter) startPager() error {
	cmd := exec.Command(w.pager)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	w.cmd, w.cmdStdin = cmd, stdin
	if !w.lastnl {
		io.WriteString(w.w, "\n")
	}
	io.WriteString(w.w, "Sending output to pager...\n")
	w.cmdStdin.Write(w.pending)
	w.pending = nil
	w.mode = pagingWriterPaging
	return nil
}

// Reset waits for the pager, if one was started, and returns to writing
// directly to w.
func (w *pagingWriter) Reset() {
	w.mode = pagingWriterNormal
	w.pending = nil
	if w.cmd == nil {
		return
	}
	w.cmdStdin.Close()
	w.cmd.Wait()
	w.cmd, w.cmdStdin = nil, nil
}

// PageMaybe makes the output of the current command go through a pager if
// it does not fit on the screen. The pager is $NTODBG_PAGER, $PAGER or
// more. Without NTODBG_PAGER nothing is paged unless w is a terminal.
// cancel is called the first time writing to the pager fails.
func (w *pagingWriter) PageMaybe(cancel func()) {
	if w.mode != pagingWriterNormal {
		return
	}
	w.pager = os.Getenv("NTODBG_PAGER")
	if w.pager == "" {
		if f, ok := w.w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
			return
		}
		if strings.EqualFold(os.Getenv("TERM"), "dumb") {
			return
		}
		w.pager = os.Getenv("PAGER")
		if w.pager == "" {
			w.pager = "more"
		}
	}
	w.mode = pagingWriterMaybe
	w.lastnl = true
	w.cancel = cancel
	w.getWindowSize()
}

// largeOutput reports whether the pending output, wrapped at the window
// width, is taller than the window.
func (w *pagingWriter) largeOutput() bool {
	lines, col := 0, 0
	for _, ch := range w.pending {
		col++
		if ch == '\n' || col > w.columns {
			lines++
			col = 0
			if lines > w.lines {
				return true
			}
		}
	}
	return false
}
