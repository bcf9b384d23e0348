package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go-delve/ntotdep/pkg/config"
	"github.com/go-delve/ntotdep/pkg/logflags"
	"github.com/go-delve/ntotdep/pkg/proc"
	"github.com/go-delve/ntotdep/pkg/proc/core"
	"github.com/go-delve/ntotdep/pkg/terminal"
	"github.com/go-delve/ntotdep/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// batchCommands are executed instead of starting the prompt.
	batchCommands []string

	// sysroot and solibSearchPath override the values in the config file.
	sysroot         string
	solibSearchPath []string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const ntodbgCommandLongDesc = `ntodbg is a post-mortem debugger for QNX Neutrino core files.

ntodbg reads the threads, registers, memory and shared object list saved
in a core file and lets you walk the call stack of every thread, signal
handler frames included, inspect registers and memory, and disassemble
code on x86, x86_64, ARM and AArch64 targets.

Host copies of the target's shared objects are looked up under --sysroot
and in the directories of --solib-search-path.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main ntodbg root command.
	rootCommand = &cobra.Command{
		Use:   "ntodbg",
		Short: "ntodbg is a debugger for QNX Neutrino core files.",
		Long:  ntodbgCommandLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput, logDest)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
		SilenceUsage: true,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'ntodbg help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'ntodbg help log').")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")

	// 'core' subcommand.
	coreCommand := &cobra.Command{
		Use:   "core <executable> <core>",
		Short: "Examine a core dump.",
		Long: `Examine a core dump (only QNX Neutrino core files are supported).

The core command will open the specified core file and the associated
executable and let you examine the state of the process when the
core dump was taken. Pass "-" as the executable when no copy of it is
available, symbols will then only come from the shared objects.

With --command the given commands are executed, in order, instead of
starting the interactive prompt.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("you must provide an executable and a core file")
			}
			return rootCommand.PersistentPreRunE(cmd, args)
		},
		Run: coreCmd,
	}
	coreCommand.Flags().StringArrayVarP(&batchCommands, "command", "c", nil, "Command to execute instead of starting the prompt, can be repeated.")
	addSearchFlags(coreCommand.Flags())
	rootCommand.AddCommand(coreCommand)

	// 'archs' subcommand.
	var verbose bool
	archsCommand := &cobra.Command{
		Use:   "archs",
		Short: "Lists the supported target architectures.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listArchs(cmd.OutOrStdout(), proc.NewDefaultRegistry(), verbose)
		},
	}
	archsCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print the properties of each architecture.")
	rootCommand.AddCommand(archsCommand)

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ntodbg\n%s\n", version.NtodbgVersion)
			if versionVerbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	regs		Log register layouts and register set decoding
	sigtramp	Log signal trampoline detection
	unwind		Log stack unwinding (default)
	solib		Log shared object discovery and symbol loading
	core		Log core file parsing

Warnings are always logged, with or without --log.

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// addSearchFlags adds the flags overriding where host copies of the
// target's files are looked up.
func addSearchFlags(fs *pflag.FlagSet) {
	fs.StringVar(&sysroot, "sysroot", "", "Root of the host copy of the target's file system.")
	fs.StringSliceVar(&solibSearchPath, "solib-search-path", nil, "Directories searched for shared objects not found under the sysroot.")
}

func coreCmd(cmd *cobra.Command, args []string) {
	exePath := args[0]
	if exePath == "-" {
		exePath = ""
	}
	if cmd.Flags().Changed("sysroot") {
		conf.Sysroot = sysroot
	}
	if cmd.Flags().Changed("solib-search-path") {
		conf.SolibSearchPath = solibSearchPath
	}
	if status := execute(exePath, args[1], conf); status != 0 {
		os.Exit(status)
	}
}

func execute(exePath, corePath string, conf *config.Config) int {
	p, err := core.OpenCore(proc.NewDefaultRegistry(), corePath, exePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open core file: %v\n", err)
		return 1
	}
	defer p.Close()

	term := terminal.New(p, conf)
	term.InitFile = initFile

	if len(batchCommands) > 0 {
		defer term.Close()
		if err := term.Batch(batchCommands); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}

func listArchs(out io.Writer, registry *proc.Registry, verbose bool) error {
	if !verbose {
		for _, name := range registry.Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMACHINE\tPTRSIZE\tBYTEORDER\tREGISTERS")
	for _, name := range registry.Names() {
		arch, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n", arch.Name(), arch.Machine(), arch.PtrSize(), arch.ByteOrder(), arch.MaxRegNum())
	}
	return w.Flush()
}
