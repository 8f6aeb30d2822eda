package twophase

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/calvinalkan/twophase/pkg/fs"
)

// Recover inspects which of the primary, backup and temporary files exist
// and repairs the triple to a consistent state: afterwards the temporary
// file is gone (either discarded or promoted into the primary) and the
// primary holds the last fully-committed write.
//
// Recover is idempotent and runs automatically at the start of every
// [Open]; it is exported for fsck-style use.
//
// A lone backup with no primary is deliberately NOT promoted here. The
// read path serves it explicitly (with a warning) and the next commit
// preserves it; promoting it during recovery would erase the distinction
// between "explicit fallback to backup" and "normal primary".
func Recover(fsys fs.FS, primary string, opts ...Option) error {
	if fsys == nil {
		panic("fsys is nil")
	}

	o := newOptions(opts)

	return recoverTriple(fsys, DerivePaths(primary), o.logger)
}

// recoverTriple implements the recovery decision table:
//
//	T exists, P exists        -> delete T  (old primary intact, discard)
//	T exists, no P, B exists  -> rename T to P  (roll forward)
//	T exists, no P, no B      -> delete T  (first write never finished)
//	no T                      -> nothing to repair
//
// The presence of T tells which side of the commit sequence the previous
// process died on: before demoting the old primary (P still there), or
// after demoting but before promoting (P gone, B there).
func recoverTriple(fsys fs.FS, paths Paths, log *slog.Logger) error {
	tempExists, err := fsys.Exists(paths.Temp)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	if !tempExists {
		return nil
	}

	log.Warn("temporary file present, repairing from an earlier failure", "temp", paths.Temp)

	primaryExists, err := fsys.Exists(paths.Primary)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	if primaryExists {
		log.Warn("failure before the old primary was demoted, discarding the temporary file")

		return recoveryErr(safeRemove(fsys, paths.Temp))
	}

	backupExists, err := fsys.Exists(paths.Backup)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	if backupExists {
		log.Warn("failure between demotion and promotion, rolling forward", "primary", paths.Primary)

		return recoveryErr(safeRename(fsys, paths.Temp, paths.Primary))
	}

	log.Warn("no primary has ever been committed, discarding the temporary file")

	return recoveryErr(safeRemove(fsys, paths.Temp))
}

func recoveryErr(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("recovery: %w", err)
}

// safeRemove deletes path, absorbing not-found: a cleanup target that
// already vanished leaves nothing to do.
func safeRemove(fsys fs.FS, path string) error {
	err := fsys.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// safeRename renames from to to, absorbing not-found the same way.
func safeRename(fsys fs.FS, from, to string) error {
	err := fsys.Rename(from, to)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
