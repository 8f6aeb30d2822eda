package twophase

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/twophase/pkg/fs"
)

// probeWritable determines whether cfg would yield a writable handle,
// without interpreting cfg itself.
//
// It opens a throwaway file at probePath with the caller's exact
// configuration and queries the capability of the resulting descriptor.
// The probe file is removed before returning, on every path.
//
// An open failing with not-found is the expected signal for read-only
// configurations: the probe path never pre-exists, so a configuration
// that cannot create it cannot write. That case returns (false, nil)
// rather than an error.
func probeWritable(fsys fs.FS, probePath string, cfg Config) (bool, error) {
	file, err := fsys.OpenFile(probePath, cfg.Flag, cfg.Perm)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("probe %q: %w", probePath, err)
	}

	writable, capErr := handleWritable(file)
	closeErr := file.Close()
	removeErr := safeRemove(fsys, probePath)

	if capErr != nil {
		return false, fmt.Errorf("probe %q: %w", probePath, capErr)
	}

	if closeErr != nil {
		return false, fmt.Errorf("probe %q: close: %w", probePath, closeErr)
	}

	if removeErr != nil {
		return false, fmt.Errorf("probe %q: remove: %w", probePath, removeErr)
	}

	return writable, nil
}

// handleWritable queries the effective access mode of an open descriptor
// via fcntl(F_GETFL). Asking the kernel about the live descriptor is
// portable across flag vocabularies in a way that parsing the open
// configuration is not.
func handleWritable(file fs.File) (bool, error) {
	flags, err := unix.FcntlInt(file.Fd(), unix.F_GETFL, 0)
	if err != nil {
		return false, fmt.Errorf("query access mode: %w", err)
	}

	return flags&unix.O_ACCMODE != unix.O_RDONLY, nil
}
