package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/twophase/pkg/fs"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
)

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	// Default workDir to current directory
	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}
	}

	cfg, sources, err := LoadConfig(workDir, flags.configPath)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cmd := flags.remaining[0]
	cmdArgs := flags.remaining[1:]

	if cmd == "-h" || cmd == helpFlag {
		printUsage(out)

		return 0
	}

	env := cmdEnv{
		in:      in,
		out:     out,
		errOut:  errOut,
		fsys:    &fs.Real{},
		log:     newLogger(errOut, flags.verbose, flags.quiet),
		cfg:     cfg,
		workDir: workDir,
	}

	switch cmd {
	case "read":
		return cmdRead(env, cmdArgs)
	case "write":
		return cmdWrite(env, cmdArgs)
	case "status":
		return cmdStatus(env, cmdArgs)
	case "recover":
		return cmdRecover(env, cmdArgs)
	case "init":
		return cmdInit(env, cmdArgs)
	case "print-config":
		return cmdPrintConfig(env, sources)
	default:
		fprintln(errOut, "error: unknown command:", cmd)
		printUsage(errOut)

		return 1
	}
}

// cmdEnv carries everything a command needs to run.
type cmdEnv struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	fsys    fs.FS
	log     *slog.Logger
	cfg     Config
	workDir string
}

// resolve makes a file argument absolute relative to the working directory.
func (e cmdEnv) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(e.workDir, path)
}

func newLogger(errOut io.Writer, verbose, quiet bool) *slog.Logger {
	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
}

type globalFlags struct {
	workDir    string
	configPath string
	verbose    bool
	quiet      bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	if arg == "-v" || arg == "--verbose" {
		flags.verbose = true

		return consumedOne, nil
	}

	if arg == "-q" || arg == "--quiet" {
		flags.quiet = true

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func cmdPrintConfig(env cmdEnv, sources ConfigSources) int {
	formatted, err := FormatConfig(env.cfg)
	if err != nil {
		fprintln(env.errOut, "error:", err)

		return 1
	}

	fprintln(env.out, formatted)
	fprintln(env.out, "")
	fprintln(env.out, "# Sources:")

	if sources.Project != "" {
		fprintln(env.out, "#   project:", sources.Project)
	} else {
		fprintln(env.out, "#   (using defaults only)")
	}

	return 0
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func fprintf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == helpFlag {
			return true
		}
	}

	return false
}

func printUsage(writer io.Writer) {
	fprintln(writer, `tpf - crash-safe file storage

Usage: tpf [options] <command> [args]

Options:
  -C, --cwd <dir>    Run as if started in <dir>
  -c, --config       Use specified config file
  -v, --verbose      Log lifecycle events to stderr
  -q, --quiet        Suppress all logging

Commands:`)
	fprintln(writer, readHelp)
	fprintln(writer, writeHelp)
	fprintln(writer, statusHelp)
	fprintln(writer, recoverHelp)
	fprintln(writer, initHelp)
	fprintln(writer, `  print-config           Show resolved configuration`)
}
