// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/go-delve/ntotdep/pkg/config"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/core"
	"github.com/go-delve/ntotdep/pkg/proc/ntoutil"
)

type callContext struct {
	// Frame is the frame the command operates on.
	Frame int
}

type frameDirection int

const (
	frameSet frameDirection = iota
	frameUp
	frameDown
)

type cmdfunc func(t *Term, ctx callContext, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the ntodbg terminal.
type Commands struct {
	cmds  []command
	frame int // Current frame as set by frame/up/down commands.
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"threads"}, group: threadCmds, cmdFn: threads, helpMsg: "Print out info for every thread in the core file."},
		{aliases: []string{"thread", "tr"}, group: threadCmds, cmdFn: c.thread, helpMsg: `Switch to the specified thread.

	thread <id>`},
		{aliases: []string{"stack", "bt"}, group: stackCmds, cmdFn: stackCommand, helpMsg: `Print stack trace.

	[frame <m>] stack [<depth>] [-full]

	-full	print the registers recovered for every frame

If depth is omitted the max-stack-depth configuration parameter is used.`},
		{aliases: []string{"frame"}, group: stackCmds,
			cmdFn: func(t *Term, ctx callContext, arg string) error {
				return c.frameCommand(t, ctx, arg, frameSet)
			},
			helpMsg: `Set the current frame, or execute command on a different frame.

	frame <m>
	frame <m> <command>

The first form sets frame used by subsequent commands such as "regs" or "sigtramp".
The second form runs the command on the given frame.`},
		{aliases: []string{"up"}, group: stackCmds,
			cmdFn: func(t *Term, ctx callContext, arg string) error {
				return c.frameCommand(t, ctx, arg, frameUp)
			},
			helpMsg: `Move the current frame up.

	up [<m>]
	up [<m>] <command>

Move the current frame up by <m>. The second form runs the command on the given frame.`},
		{aliases: []string{"down"}, group: stackCmds,
			cmdFn: func(t *Term, ctx callContext, arg string) error {
				return c.frameCommand(t, ctx, arg, frameDown)
			},
			helpMsg: `Move the current frame down.

	down [<m>]
	down [<m>] <command>

Move the current frame down by <m>. The second form runs the command on the given frame.`},
		{aliases: []string{"sigtramp"}, group: stackCmds, cmdFn: sigtrampCommand, helpMsg: `Print the signal trampoline executing in the current frame.

	[frame <m>] sigtramp

Prints which trampoline detector recognized the frame, where the
trampoline starts, where the interrupted context was saved and the
trampoline code.`},
		{aliases: []string{"regs"}, group: dataCmds, cmdFn: regs, helpMsg: `Print contents of CPU registers.

	[frame <m>] regs [-a]

Argument -a shows more registers. Registers that could not be recovered
for the frame are not shown.`},
		{aliases: []string{"examinemem", "x"}, group: dataCmds, cmdFn: examineMemoryCmd, helpMsg: `Examine raw memory at the given address.

Examine memory:

	examinemem [-fmt <format>] [-count|-len <count>] [-size <size>] <address>

Format represents the data format and the value is one of this list (default hex): bin(binary), oct(octal), dec(decimal), hex(hexadecimal).
Length is the number of bytes (default 1) and must be less than or equal to 1000.
Address is the memory location of the target to examine, a number or the name of a function.

For example:

    x -fmt hex -count 20 -size 1 0xc00008af38`},
		{aliases: []string{"disassemble", "disass"}, group: dataCmds, cmdFn: disassCommand, helpMsg: `Disassembler.

	[frame <m>] disassemble [-a <start> <end>] [-l <function>]

If no argument is specified the function being executed in the selected frame will be disassembled.

	-a <start> <end>	disassembles the specified address range
	-l <function>		disassembles the specified function`},
		{aliases: []string{"libraries", "libs"}, group: imageCmds, cmdFn: libraries, helpMsg: `List loaded shared libraries.

	libraries [-v]

For every shared object of the link map prints its load address, its name
and the host copy found through the sysroot and solib-search-path
configuration parameters. Argument -v also prints build ids.`},
		{aliases: []string{"symbols", "funcs"}, group: imageCmds, cmdFn: symbols, helpMsg: `Print list of functions.

	symbols [<prefix>]

If prefix is specified only the functions whose name starts with it are listed.`},
		{aliases: []string{"sections"}, group: imageCmds, cmdFn: sections, helpMsg: "Print the pseudo sections of the core file (.reg/<tid>, .reg2/<tid>, .qnx_link_map) and their size."},
		{aliases: []string{"dump"}, group: imageCmds, cmdFn: dump, helpMsg: `Creates a core dump from the current process state

	dump <output file>

The core dump is written in QNX Neutrino core format and can be read back with "ntodbg core".`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the debugger."},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.

Changing sysroot, solib-search-path or debug-info-directories reloads the symbols.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of ntodbg commands

	source <path>

If path is a single '-' character an interactive prompt is started.`},
		{aliases: []string{"transcript"}, cmdFn: transcript, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of ntodbg's command is appended to the specified output file. If '-t' is specified and the output file exists it is truncated. If '-x' is specified output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will return nullCommand.
func (c *Commands) Find(cmdstr string) command {
	if cmdstr == "" {
		return command{aliases: []string{"nullcmd"}, cmdFn: nullCommand}
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v
		}
	}

	return command{aliases: []string{"nocmd"}, cmdFn: noCmdAvailable}
}

// CallWithContext takes a command and a context that command should be executed in.
func (c *Commands) CallWithContext(cmdstr string, t *Term, ctx callContext) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname).cmdFn(t, ctx, args)
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	return c.CallWithContext(cmdstr, t, callContext{Frame: c.frame})
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, ctx callContext, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, ctx callContext, args string) error {
	return nil
}

func (c *Commands) help(t *Term, ctx callContext, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits the arguments of a command the way a shell would.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal arguments '%s'", args)
	}
	return v[0], nil
}

func threads(t *Term, ctx callContext, args string) error {
	cur := t.proc.CurrentThread()
	for _, th := range t.proc.ThreadList() {
		prefix := "  "
		if cur != nil && cur.ID == th.ID {
			prefix = t.colorize(ansiGreen, "*") + " "
		}
		regs, err := th.Registers()
		if err != nil {
			fmt.Fprintf(t.stdout, "%sThread %d (unreadable: %v)\n", prefix, th.ID, err)
			continue
		}
		fmt.Fprintf(t.stdout, "%sThread %d at %s why=%d what=%d\n", prefix, th.ID, t.formatPC(regs.PC()), th.Why, th.What)
	}
	return nil
}

func (c *Commands) thread(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("you must specify a thread")
	}
	tid, err := strconv.Atoi(args)
	if err != nil {
		return err
	}
	oldThread := "<none>"
	if th := t.proc.CurrentThread(); th != nil {
		oldThread = strconv.Itoa(th.ID)
	}
	if err := t.proc.SwitchThread(tid); err != nil {
		return err
	}
	c.frame = 0
	fmt.Fprintf(t.stdout, "Switched from %s to %d\n", oldThread, tid)
	return nil
}

// stacktrace returns depth frames of the current thread.
func (t *Term) stacktrace(depth int) ([]proc.Stackframe, error) {
	th := t.proc.CurrentThread()
	if th == nil {
		return nil, core.ErrNoThreads
	}
	regs, err := th.Registers()
	if err != nil {
		return nil, err
	}
	return t.unwinder.Stacktrace(regs, depth), nil
}

// selectedFrame returns frame n of the current thread.
func (t *Term) selectedFrame(n int) (*proc.Stackframe, error) {
	if n < 0 {
		return nil, fmt.Errorf("Invalid frame %d", n)
	}
	stack, err := t.stacktrace(n + 1)
	if err != nil {
		return nil, err
	}
	if n >= len(stack) {
		return nil, fmt.Errorf("Invalid frame %d", n)
	}
	return &stack[n], nil
}

// Handle "frame", "up", "down" commands.
func (c *Commands) frameCommand(t *Term, ctx callContext, argstr string, direction frameDirection) error {
	frame := 1
	arg := ""
	if len(argstr) == 0 {
		if direction == frameSet {
			return errors.New("not enough arguments")
		}
	} else {
		args := config.Split2PartsBySpace(argstr)
		var err error
		if frame, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
		if len(args) > 1 {
			arg = args[1]
		}
	}
	switch direction {
	case frameUp:
		frame = c.frame + frame
	case frameDown:
		frame = c.frame - frame
	}
	if len(arg) > 0 {
		ctx.Frame = frame
		return c.CallWithContext(arg, t, ctx)
	}
	f, err := t.selectedFrame(frame)
	if err != nil {
		return err
	}
	c.frame = frame
	fmt.Fprintf(t.stdout, "Frame %d: %s (SP: %#x)\n", frame, t.formatPC(f.PC), f.SP)
	return nil
}

func regs(t *Term, ctx callContext, args string) error {
	includeFp := t.conf.ShowFloatRegisters
	switch args {
	case "":
	case "-a":
		includeFp = true
	default:
		return fmt.Errorf("wrong argument: '%s'", args)
	}
	frame, err := t.selectedFrame(ctx.Frame)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', tabwriter.AlignRight)
	for _, reg := range proc.FormatRegisters(t.proc.Arch(), frame.Regs, includeFp) {
		fmt.Fprintf(w, "%s\t = %s\n", reg.Name, reg.Value)
	}
	return w.Flush()
}

func stackCommand(t *Term, ctx callContext, args string) error {
	t.stdout.pw.PageMaybe(nil)
	depth := t.conf.StackDepth()
	full := false
	for _, arg := range strings.Fields(args) {
		switch arg {
		case "-full":
			full = true
		default:
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return fmt.Errorf("depth must be a positive number")
			}
			depth = n
		}
	}
	stack, err := t.stacktrace(ctx.Frame + depth + 1)
	if err != nil {
		return err
	}
	if ctx.Frame >= len(stack) {
		return fmt.Errorf("Invalid frame %d", ctx.Frame)
	}
	truncated := len(stack) > ctx.Frame+depth
	if truncated {
		stack = stack[:ctx.Frame+depth]
	}
	printStack(t, t.stdout, stack[ctx.Frame:], "", full, truncated)
	return nil
}

func digits(n int) int {
	if n <= 0 {
		return 1
	}
	return int(math.Floor(math.Log10(float64(n)))) + 1
}

const stacktraceTruncatedMessage = "(truncated)"

func printStack(t *Term, out io.Writer, stack []proc.Stackframe, ind string, full, truncated bool) {
	if len(stack) == 0 {
		return
	}

	d := digits(stack[len(stack)-1].Level)
	fmtstr := "%s%" + strconv.Itoa(d) + "d  %s\n"
	s := ind + strings.Repeat(" ", d+2+len(ind))

	for i := range stack {
		frame := &stack[i]
		fmt.Fprintf(out, fmtstr, ind, frame.Level, t.formatPC(frame.PC))
		switch {
		case frame.Sigtramp != nil:
			fmt.Fprintf(out, "%s%s\n", s, t.colorize(ansiYellow, fmt.Sprintf("<signal trampoline, context at %#x>", frame.Sigtramp.ContextAddr)))
		case frame.Interrupted:
			fmt.Fprintf(out, "%s%s\n", s, t.colorize(ansiYellow, "<interrupted by signal>"))
		}
		fmt.Fprintf(out, "%ssp: %#x\n", s, frame.SP)

		if full {
			for _, reg := range proc.FormatRegisters(t.proc.Arch(), frame.Regs, false) {
				fmt.Fprintf(out, "%s    %s = %s\n", s, reg.Name, reg.Value)
			}
			fmt.Fprintln(out)
		}

		if frame.Err != nil {
			fmt.Fprintf(out, "%s%s\n", s, t.colorize(ansiRed, "error: "+frame.Err.Error()))
		}
	}

	if truncated {
		fmt.Fprintf(out, "%s"+stacktraceTruncatedMessage+"\n", ind)
	}
}

// formatPC returns pc followed by the function containing it.
func (t *Term) formatPC(pc uint64) string {
	w := t.proc.PtrSize() * 2
	fn := t.symbols.PCToFunc(pc)
	if fn == nil {
		return fmt.Sprintf("%#0*x in ??", w+2, pc)
	}
	return fmt.Sprintf("%#0*x in %s+%#x", w+2, pc, fn.Name, pc-fn.Entry)
}

func sigtrampCommand(t *Term, ctx callContext, args string) error {
	frame, err := t.selectedFrame(ctx.Frame)
	if err != nil {
		return err
	}
	m := frame.Sigtramp
	if m == nil {
		fmt.Fprintf(t.stdout, "Frame %d (%s) is not a signal trampoline\n", ctx.Frame, t.formatPC(frame.PC))
		return nil
	}
	fmt.Fprintf(t.stdout, "Frame %d is executing a signal trampoline\n", ctx.Frame)
	fmt.Fprintf(t.stdout, "  detector: %s\n", m.Detector)
	fmt.Fprintf(t.stdout, "  start:    %#x\n", m.Start)
	fmt.Fprintf(t.stdout, "  context:  %#x\n", m.ContextAddr)

	end := frame.PC + 1
	for _, d := range t.proc.Arch().SigtrampDetectors() {
		if d.Name() != m.Detector {
			continue
		}
		if p, ok := d.(interface{ Len() int }); ok {
			if e := m.Start + uint64(p.Len()); e > end {
				end = e
			}
		}
	}
	text, err := proc.Disassemble(t.proc.Arch(), t.proc.Memory(), m.Start, end)
	if err != nil {
		return err
	}
	disasmPrint(t, text, frame.PC, t.stdout)
	return nil
}

var errDisasmUsage = errors.New("wrong number of arguments: disassemble [-a <start> <end>] [-l <function>]")

// maxDisassembleLen limits disassembly of functions whose size is
// unknown.
const maxDisassembleLen = 0x40

func disassCommand(t *Term, ctx callContext, args string) error {
	var cmd, rest string

	if args != "" {
		argv := config.Split2PartsBySpace(args)
		if len(argv) != 2 {
			return errDisasmUsage
		}
		cmd = argv[0]
		rest = argv[1]
	}

	var start, end, pc uint64

	switch cmd {
	case "":
		frame, err := t.selectedFrame(ctx.Frame)
		if err != nil {
			return err
		}
		pc = frame.PC
		start, end = t.functionRange(pc)
	case "-a":
		v := config.Split2PartsBySpace(rest)
		if len(v) != 2 {
			return errDisasmUsage
		}
		var err error
		if start, err = t.parseAddress(v[0]); err != nil {
			return err
		}
		if end, err = t.parseAddress(v[1]); err != nil {
			return err
		}
	case "-l":
		fn := t.symbols.LookupFunc(rest)
		if fn == nil {
			return fmt.Errorf("function %q not found", rest)
		}
		start, end = t.functionRange(fn.Entry)
	default:
		return errDisasmUsage
	}

	if end <= start {
		return fmt.Errorf("empty address range %#x-%#x", start, end)
	}
	if end-start > 1<<20 {
		return fmt.Errorf("address range %#x-%#x too large", start, end)
	}

	text, err := proc.Disassemble(t.proc.Arch(), t.proc.Memory(), start, end)
	if err != nil {
		return err
	}
	if fn := t.symbols.PCToFunc(start); fn != nil && fn.Entry == start {
		fmt.Fprintf(t.stdout, "TEXT %s(SB) %s\n", fn.Name, fn.Module)
	}
	disasmPrint(t, text, pc, t.stdout)
	return nil
}

// functionRange returns the extent of the function containing pc, or a
// short window starting at pc if no symbol covers it.
func (t *Term) functionRange(pc uint64) (start, end uint64) {
	fn := t.symbols.PCToFunc(pc)
	if fn == nil {
		return pc, pc + maxDisassembleLen
	}
	if fn.End <= fn.Entry {
		return fn.Entry, fn.Entry + maxDisassembleLen
	}
	return fn.Entry, fn.End
}

// parseAddress parses a number or the name of a function.
func (t *Term) parseAddress(s string) (uint64, error) {
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n, nil
	}
	if fn := t.symbols.LookupFunc(s); fn != nil {
		return fn.Entry, nil
	}
	return 0, fmt.Errorf("wrong argument: %q is not a number or a function", s)
}

func examineMemoryCmd(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}

	var address uint64
	haveAddress := false

	// Default value
	priFmt := byte('x')
	count := 1
	size := 1

	for i := 0; i < len(v); i++ {
		switch v[i] {
		case "-fmt":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -fmt")
			}
			fmtMapToPriFmt := map[string]byte{
				"oct":         'o',
				"octal":       'o',
				"hex":         'x',
				"hexadecimal": 'x',
				"dec":         'd',
				"decimal":     'd',
				"bin":         'b',
				"binary":      'b',
			}
			var ok bool
			priFmt, ok = fmtMapToPriFmt[v[i]]
			if !ok {
				return fmt.Errorf("%q is not a valid format", v[i])
			}
		case "-count", "-len":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -count/-len")
			}
			count, err = strconv.Atoi(v[i])
			if err != nil || count <= 0 {
				return fmt.Errorf("count/len must be a positive integer")
			}
		case "-size":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -size")
			}
			size, err = strconv.Atoi(v[i])
			if err != nil || size <= 0 || size > 8 {
				return fmt.Errorf("size must be a positive integer (<=8)")
			}
		default:
			if i != len(v)-1 {
				return fmt.Errorf("unknown option %q", v[i])
			}
			address, err = t.parseAddress(v[i])
			if err != nil {
				return err
			}
			haveAddress = true
		}
	}

	if count*size > 1000 {
		return fmt.Errorf("read memory range (count*size) must be less than or equal to 1000 bytes")
	}

	if !haveAddress {
		return fmt.Errorf("no address specified")
	}

	mem := make([]byte, count*size)
	n, err := t.proc.Memory().ReadMemory(mem, address)
	if n == 0 && err != nil {
		return err
	}
	fmt.Fprint(t.stdout, prettyExamineMemory(address, mem[:n-n%size], t.proc.ByteOrder(), priFmt, size))
	if n < len(mem) {
		fmt.Fprintf(t.stdout, "(only %d bytes readable at %#x)\n", n, address)
	}
	return nil
}

func libraries(t *Term, ctx callContext, args string) error {
	t.stdout.pw.PageMaybe(nil)
	verbose := false
	switch args {
	case "":
	case "-v":
		verbose = true
	default:
		return fmt.Errorf("wrong argument: '%s'", args)
	}
	libs := t.proc.Modules()
	search := t.searchConfig()
	d := digits(len(libs))
	for i := range libs {
		lib := &libs[i]
		name := lib.Path
		if name == "" {
			name = lib.Name
		}
		fmt.Fprintf(t.stdout, "%"+strconv.Itoa(d)+"d. %#x %s\n", i, lib.Addr, name)
		host, err := search.Resolve(lib)
		if err == nil {
			err = ntoutil.ValidateBuildID(host, lib)
		}
		pad := strings.Repeat(" ", d+2)
		switch {
		case err != nil:
			fmt.Fprintf(t.stdout, "%s%s\n", pad, t.colorize(ansiRed, err.Error()))
		case host != name:
			fmt.Fprintf(t.stdout, "%shost copy: %s\n", pad, host)
		}
		if verbose && len(lib.BuildID) > 0 {
			fmt.Fprintf(t.stdout, "%sbuild id: %s\n", pad, lib.BuildIDString())
		}
	}
	return nil
}

func symbols(t *Term, ctx callContext, args string) error {
	t.stdout.pw.PageMaybe(nil)
	names := t.symbols.FunctionsWithPrefix(args)
	for _, name := range names {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func sections(t *Term, ctx callContext, args string) error {
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	for _, name := range t.proc.Sections() {
		data, _ := t.proc.Section(name)
		fmt.Fprintf(w, "%s\t%d\n", name, len(data))
	}
	return w.Flush()
}

func dump(t *Term, ctx callContext, args string) error {
	if args == "" {
		return fmt.Errorf("not enough arguments")
	}
	s, err := t.proc.Snapshot()
	if err != nil {
		return err
	}
	fh, err := os.Create(args)
	if err != nil {
		return err
	}
	if err := core.WriteCore(fh, s); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Core dump written to %s\n", args)
	return nil
}

// ExitRequestError is returned when the user
// exits ntodbg.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args string) error {
	return ExitRequestError{}
}

func (c *Commands) sourceCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if args == "-" {
		return t.interactiveSource()
	}

	return c.executeFile(t, args)
}

// interactiveSource executes the commands typed at the prompt until an
// empty line.
func (t *Term) interactiveSource() error {
	if t.line == nil {
		return errors.New("no interactive prompt available")
	}
	for {
		l, err := t.line.Prompt(">>> ")
		if err != nil || strings.TrimSpace(l) == "" {
			return nil
		}
		if err := t.cmds.Call(l, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return err
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

func transcript(t *Term, ctx callContext, args string) error {
	argv, err := splitArgs(args)
	if err != nil {
		return err
	}
	truncate := false
	fileOnly := false
	disable := false
	path := ""
	for _, arg := range argv {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			} else {
				path = arg
			}
		}
	}

	if disable {
		if path != "" {
			return errors.New("-off option specified with an output path")
		}
		return t.stdout.CloseTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	if err := t.stdout.CloseTranscript(); err != nil {
		return err
	}

	t.stdout.TranscribeTo(fh, fileOnly)
	return nil
}
