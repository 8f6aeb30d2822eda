package cli

import "errors"

// Help flag.
const helpFlag = "--help"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config file")
	errPermInvalid        = errors.New("perm must be an octal mode like 0644")
	errFlagRequiresArg    = errors.New("flag requires an argument")
	errUnknownFlag        = errors.New("unknown flag")
	errFileRequired       = errors.New("file path is required")
	errConfigFileExists   = errors.New("config file already exists")
)
