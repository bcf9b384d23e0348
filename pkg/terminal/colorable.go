package terminal

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// isDumb returns true if escape codes should not be written to stdout.
func isDumb() bool {
	return strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
}

// getColorableWriter returns stdout, translating ANSI escape codes into
// console calls where the console needs it.
func getColorableWriter() io.Writer {
	return colorable.NewColorableStdout()
}
