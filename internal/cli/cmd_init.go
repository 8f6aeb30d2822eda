package cli

import (
	"bytes"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const initHelp = `  init                   Write a default .tpf.json config file`

func cmdInit(env cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		fprintln(env.out, "Usage: tpf init")
		fprintln(env.out, "")
		fprintln(env.out, "Write a default", ConfigFileName, "into the working directory.")

		return 0
	}

	cfgPath := filepath.Join(env.workDir, ConfigFileName)

	exists, err := env.fsys.Exists(cfgPath)
	if err != nil {
		fprintln(env.errOut, "error:", err)

		return 1
	}

	if exists {
		fprintln(env.errOut, "error:", errConfigFileExists, cfgPath)

		return 1
	}

	formatted, err := FormatConfig(DefaultConfig())
	if err != nil {
		fprintln(env.errOut, "error:", err)

		return 1
	}

	writeErr := atomic.WriteFile(cfgPath, bytes.NewReader([]byte(formatted+"\n")))
	if writeErr != nil {
		fprintln(env.errOut, "error:", writeErr)

		return 1
	}

	fprintln(env.out, "wrote", ConfigFileName)

	return 0
}
