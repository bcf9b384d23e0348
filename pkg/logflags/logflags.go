package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var anyFlag = false
var regs = false
var sigtramp = false
var unwind = false
var solib = false
var core = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

// makeFlaggableLogger returns a logger that logs everything when flag is
// set and only warnings otherwise. Warnings are how recoverable problems
// (missing sections, build id mismatches) reach the user, so they are
// never suppressed.
func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.WarnLevel, fields)
}

// Any returns true if any logging is enabled.
func Any() bool {
	return anyFlag
}

// Regs returns true if the register set codec should log.
func Regs() bool {
	return regs
}

// RegsLogger returns a logger for the register layouts and the register set codec.
func RegsLogger() Logger {
	return makeFlaggableLogger(regs, Fields{"layer": "proc", "kind": "regs"})
}

// Sigtramp returns true if signal trampoline recognition should log.
func Sigtramp() bool {
	return sigtramp
}

// SigtrampLogger returns a logger for signal trampoline recognition.
func SigtrampLogger() Logger {
	return makeFlaggableLogger(sigtramp, Fields{"layer": "proc", "kind": "sigtramp"})
}

// Unwind returns true if the frame unwinder should log.
func Unwind() bool {
	return unwind
}

// UnwindLogger returns a logger for the frame unwinder.
func UnwindLogger() Logger {
	return makeFlaggableLogger(unwind, Fields{"layer": "proc", "kind": "unwind"})
}

// Solib returns true if the link map reader should log.
func Solib() bool {
	return solib
}

// SolibLogger returns a logger for the link map reader.
func SolibLogger() Logger {
	return makeFlaggableLogger(solib, Fields{"layer": "solib"})
}

// Core returns true if the core file reader should log.
func Core() bool {
	return core
}

// CoreLogger returns a logger for the core file reader.
func CoreLogger() Logger {
	return makeFlaggableLogger(core, Fields{"layer": "core"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "ntodbg-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "unwind"
	}
	anyFlag = true
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "regs":
			regs = true
		case "sigtramp":
			sigtramp = true
		case "unwind":
			unwind = true
		case "solib":
			solib = true
		case "core":
			core = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'ntodbg help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

var textFormatterInstance = &textFormatter{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level)
	for _, k := range []string{"layer", "kind"} {
		if v, ok := entry.Data[k]; ok {
			fmt.Fprintf(b, "%s=%v ", k, v)
		}
	}
	for _, k := range keys {
		if k == "layer" || k == "kind" {
			continue
		}
		fmt.Fprintf(b, "%s=%v ", k, entry.Data[k])
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}
