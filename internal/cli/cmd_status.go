package cli

import (
	"github.com/calvinalkan/twophase/pkg/twophase"
)

const statusHelp = `  status <file>          Show the on-disk state of the file triple`

func cmdStatus(env cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		fprintln(env.out, "Usage: tpf status <file>")
		fprintln(env.out, "")
		fprintln(env.out, "Show which sibling files exist for <file> and their sizes.")
		fprintln(env.out, "A lingering temporary means the last writer did not commit.")

		return 0
	}

	if len(args) == 0 {
		fprintln(env.errOut, "error:", errFileRequired)

		return 1
	}

	paths := twophase.DerivePaths(env.resolve(args[0]))

	rows := []struct {
		label string
		path  string
	}{
		{"primary", paths.Primary},
		{"backup", paths.Backup},
		{"temp", paths.Temp},
		{"probe", paths.Probe},
	}

	for _, row := range rows {
		info, err := env.fsys.Stat(row.path)
		if err != nil {
			fprintf(env.out, "%-8s absent\n", row.label)

			continue
		}

		fprintf(env.out, "%-8s %d bytes\n", row.label, info.Size())
	}

	return 0
}
