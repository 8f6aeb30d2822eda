package cli

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/twophase/pkg/twophase"
)

const writeHelp = `  write <file>           Commit stdin as the new content
    --perm                 Mode for created files (octal) [default: config]
    --sync                 fsync before committing`

func cmdWrite(env cmdEnv, args []string) int {
	flagSet := flag.NewFlagSet("write", flag.ContinueOnError)
	flagSet.SetOutput(env.errOut)
	flagSet.Usage = func() {
		w := flagSet.Output()
		fprintf(w, "Usage: tpf write <file> [options]\n\n")
		fprintf(w, "Read stdin and commit it as the new content of <file>.\n")
		fprintf(w, "The previous version becomes the backup.\n\n")
		fprintf(w, "Options:\n")
		flagSet.PrintDefaults()
	}

	permFlag := flagSet.String("perm", "", "Mode for created files (octal)")
	syncFlag := flagSet.Bool("sync", false, "fsync before committing")

	if hasHelpFlag(args) {
		flagSet.SetOutput(env.out)
		flagSet.Usage()

		return 0
	}

	parseErr := flagSet.Parse(args)
	if parseErr != nil {
		fprintf(env.errOut, "error: %v\n\n", parseErr)
		flagSet.Usage()

		return 1
	}

	if flagSet.NArg() == 0 {
		fprintln(env.errOut, "error:", errFileRequired)

		return 1
	}

	path := env.resolve(flagSet.Arg(0))

	permCfg := env.cfg
	if flagSet.Changed("perm") {
		permCfg.Perm = *permFlag
	}

	perm, permErr := permCfg.FilePerm()
	if permErr != nil {
		fprintln(env.errOut, "error:", permErr)

		return 1
	}

	doSync := env.cfg.Sync || *syncFlag

	data, readErr := io.ReadAll(env.in)
	if readErr != nil {
		fprintln(env.errOut, "error: reading stdin:", readErr)

		return 1
	}

	err := twophase.Do(env.fsys, path, twophase.WriteTrunc(perm),
		func(sess *twophase.Session) error {
			_, writeErr := sess.Write(data)
			if writeErr != nil {
				return fmt.Errorf("write: %w", writeErr)
			}

			if doSync {
				syncErr := sess.File().Sync()
				if syncErr != nil {
					return fmt.Errorf("sync: %w", syncErr)
				}
			}

			return nil
		}, twophase.WithLogger(env.log))
	if err != nil {
		fprintln(env.errOut, "error:", err)

		return 1
	}

	fprintf(env.out, "committed %d bytes to %s\n", len(data), flagSet.Arg(0))

	return 0
}
