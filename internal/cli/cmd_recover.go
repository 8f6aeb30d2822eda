package cli

import (
	"github.com/calvinalkan/twophase/pkg/twophase"
)

const recoverHelp = `  recover <file>         Resolve leftover state from an interrupted write`

func cmdRecover(env cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		fprintln(env.out, "Usage: tpf recover <file>")
		fprintln(env.out, "")
		fprintln(env.out, "Resolve leftover state from an interrupted write: promote a")
		fprintln(env.out, "completed temporary or discard an abandoned one. Safe to run")
		fprintln(env.out, "at any time; healthy state is left untouched.")

		return 0
	}

	if len(args) == 0 {
		fprintln(env.errOut, "error:", errFileRequired)

		return 1
	}

	path := env.resolve(args[0])

	err := twophase.Recover(env.fsys, path, twophase.WithLogger(env.log))
	if err != nil {
		fprintln(env.errOut, "error:", err)

		return 1
	}

	fprintln(env.out, "recovered", args[0])

	return 0
}
