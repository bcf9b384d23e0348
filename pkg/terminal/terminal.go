package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-delve/liner"

	"github.com/go-delve/ntotdep/pkg/config"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/core"
	"github.com/go-delve/ntotdep/pkg/proc/ntoutil"
)

const (
	historyFile                 string = ".ntodbg_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiRed     = 31
	ansiGreen   = 32
	ansiYellow  = 33
	ansiBlue    = 34
	ansiMagenta = 35
)

// Term represents the terminal running ntodbg.
type Term struct {
	proc     *core.Process
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	dumb     bool
	stdout   *transcriptWriter
	InitFile string

	unwinder *proc.Unwinder
	symbols  *proc.SymbolTable
}

// New returns a new Term debugging the process image p.
func New(p *core.Process, conf *config.Config) *Term {
	var w io.Writer

	dumb := isDumb()
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	t := newTerm(p, conf, w, dumb)
	t.line = liner.NewLiner()
	return t
}

func newTerm(p *core.Process, conf *config.Config, w io.Writer, dumb bool) *Term {
	if conf == nil {
		conf = &config.Config{}
	}
	cmds := DebugCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	t := &Term{
		proc:   p,
		conf:   conf,
		prompt: "(ntodbg) ",
		cmds:   cmds,
		dumb:   dumb,
		stdout: &transcriptWriter{pw: &pagingWriter{w: w}},
	}
	t.loadSymbols()
	return t
}

// loadSymbols (re)builds the symbol table from the executable and the
// shared objects found through the sysroot and the search path.
func (t *Term) loadSymbols() {
	symbols, errs := t.proc.LoadSymbols(t.searchConfig())
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	t.symbols = symbols
	t.unwinder = proc.NewUnwinder(t.proc.Arch(), t.proc.Memory(), symbols)
}

func (t *Term) searchConfig() *ntoutil.SearchConfig {
	return &ntoutil.SearchConfig{
		Sysroot:              t.conf.Sysroot,
		SearchPath:           t.conf.SolibSearchPath,
		DebugInfoDirectories: t.conf.DebugInfoDirectories,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
	if err := t.stdout.CloseTranscript(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing transcript file: %v\n", err)
	}
}

// Run begins running ntodbg in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	t.line.SetCompleter(func(line string) (c []string) {
		cmd := t.cmds.Find(strings.Split(line, " ")[0])
		switch cmd.aliases[0] {
		case "disassemble", "symbols":
			spc := strings.LastIndex(line, " ")
			prefix := line[:spc+1]
			for _, name := range t.symbols.FunctionsWithPrefix(line[spc+1:]) {
				c = append(c, prefix+name)
			}
		case "nullcmd", "nocmd":
			for _, cmd := range t.cmds.cmds {
				for _, alias := range cmd.aliases {
					if strings.HasPrefix(alias, strings.ToLower(line)) {
						c = append(c, alias)
					}
				}
			}
		}
		return
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	t.line.ReadHistory(f)
	f.Close()
	t.printSummary()
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	var lastCmd string

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}
		t.stdout.Echo(t.prompt + cmdstr + "\n")

		if strings.TrimSpace(cmdstr) == "" {
			cmdstr = lastCmd
		}

		lastCmd = cmdstr

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}

		t.stdout.Flush()
		t.stdout.pw.Reset()
	}
}

// Batch executes cmdstrs one after the other, as if they had been typed,
// stopping at the first one that fails.
func (t *Term) Batch(cmdstrs []string) error {
	defer t.stdout.Flush()
	for _, cmdstr := range cmdstrs {
		err := t.cmds.Call(cmdstr, t)
		t.stdout.pw.Reset()
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return nil
			}
			return fmt.Errorf("%s: %v", cmdstr, err)
		}
	}
	return nil
}

// printSummary prints what the core file says about the process.
func (t *Term) printSummary() {
	p := t.proc
	fmt.Fprintf(t.stdout, "Process %d (%s)", p.Pid, p.Arch().Name())
	if p.Signal != 0 {
		fmt.Fprintf(t.stdout, " terminated by signal %d", p.Signal)
	}
	fmt.Fprintln(t.stdout)
	if th := p.CurrentThread(); th != nil {
		fmt.Fprintf(t.stdout, "Current thread %d of %d\n", th.ID, len(p.ThreadList()))
	}
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	fmt.Fprintf(t.stdout, "%s%s\n", t.colorize(ansiBlue, prefix), str)
}

// colorize wraps s in the escape codes for color, unless the terminal
// is dumb.
func (t *Term) colorize(color int, s string) string {
	if t.dumb || s == "" {
		return s
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, color) + s + terminalResetEscapeCode
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}
	return 0, nil
}
