package cli

import (
	"errors"
	"os"

	"github.com/calvinalkan/twophase/pkg/twophase"
)

const readHelp = `  read <file>            Print committed content to stdout`

func cmdRead(env cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		fprintln(env.out, "Usage: tpf read <file>")
		fprintln(env.out, "")
		fprintln(env.out, "Print the committed content of <file> to stdout. Falls back to")
		fprintln(env.out, "the backup when the primary copy is missing.")

		return 0
	}

	if len(args) == 0 {
		fprintln(env.errOut, "error:", errFileRequired)

		return 1
	}

	path := env.resolve(args[0])

	data, err := twophase.ReadFile(env.fsys, path, twophase.WithLogger(env.log))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fprintln(env.errOut, "error: no committed content:", args[0])

			return 1
		}

		fprintln(env.errOut, "error:", err)

		return 1
	}

	_, writeErr := env.out.Write(data)
	if writeErr != nil {
		fprintln(env.errOut, "error:", writeErr)

		return 1
	}

	return 0
}
