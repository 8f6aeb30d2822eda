package twophase

import (
	"fmt"
	"log/slog"

	"github.com/calvinalkan/twophase/pkg/fs"
)

// Session is a single-shot handle onto one logical file.
//
// A session is either writable or read-only, never both; which one is
// decided by probing the caller's open configuration, not by parsing it.
// Writable sessions are backed by the temporary file and become visible
// only when [Session.Close] commits them. Read-only sessions are backed
// by the primary (or the backup when the primary is missing) and close
// with no filesystem side effects.
//
// Sessions are not safe for concurrent use, and two sessions on the same
// logical file have no defined behavior. This is a documented limitation
// of the protocol, not an oversight: the original system is strictly
// single-process, single-writer.
type Session struct {
	fsys     fs.FS
	log      *slog.Logger
	id       string
	paths    Paths
	file     fs.File
	name     string
	writable bool
}

// File returns the live backing-file handle, for use with bufio,
// encoding/json and other stdlib consumers.
func (s *Session) File() fs.File {
	return s.file
}

// Name returns the path of the physical file backing this session: the
// temporary file for writable sessions, the primary or backup for reads.
func (s *Session) Name() string {
	return s.name
}

// Writable reports whether this session's handle supports writing.
func (s *Session) Writable() bool {
	return s.writable
}

// ID returns the session's identity, as carried in its log events.
func (s *Session) ID() string {
	return s.id
}

// Read reads from the backing file.
func (s *Session) Read(p []byte) (int, error) {
	return s.file.Read(p)
}

// Write writes to the backing file. Like [os.File.Write], it errors on a
// read-only session.
func (s *Session) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Seek sets the offset on the backing file.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	return s.file.Seek(offset, whence)
}

// Close releases the session. It must be called on every exit path and
// runs its filesystem effects exactly once; calling Close again is a
// no-op returning nil.
//
// The cause argument tags how the caller's scope ended. For a writable
// session, a nil cause commits the write:
//
//  1. if a primary exists, the old backup is deleted and the primary is
//     demoted to backup;
//  2. the temporary file is promoted to primary.
//
// When no primary existed, step 1 is skipped entirely, so a pre-existing
// backup survives the first commit. A non-nil cause rolls back instead:
// the temporary file is deleted and primary/backup are left exactly as
// they were before the session began. The cause itself is never returned;
// it belongs to the caller.
//
// A failed close of the temporary handle also rolls back, since the
// write's contents cannot be trusted; the close error is returned.
//
// Read-only sessions just close the handle.
func (s *Session) Close(cause error) error {
	if s.file == nil {
		return nil
	}

	file := s.file
	s.file = nil

	closeErr := file.Close()

	if !s.writable {
		s.log.Debug("read session closed", "backing", s.name)

		return closeErr
	}

	if cause == nil && closeErr == nil {
		err := s.commit()
		if err != nil {
			return err
		}

		s.log.Debug("write session committed", "primary", s.paths.Primary)

		return nil
	}

	s.log.Debug("write session rolled back", "cause", cause, "close_err", closeErr)

	rollbackErr := safeRemove(s.fsys, s.paths.Temp)

	if closeErr != nil {
		return closeErr
	}

	if rollbackErr != nil {
		return fmt.Errorf("rollback: %w", rollbackErr)
	}

	return nil
}

// commit publishes the temporary file. Renames are assumed atomic; a
// crash between any two steps is repaired by [Recover] on the next open,
// which is why the order here must never change.
func (s *Session) commit() error {
	primaryExists, err := s.fsys.Exists(s.paths.Primary)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if primaryExists {
		err = safeRemove(s.fsys, s.paths.Backup)
		if err != nil {
			return fmt.Errorf("commit: delete old backup: %w", err)
		}

		err = safeRename(s.fsys, s.paths.Primary, s.paths.Backup)
		if err != nil {
			return fmt.Errorf("commit: demote primary: %w", err)
		}
	}

	err = safeRename(s.fsys, s.paths.Temp, s.paths.Primary)
	if err != nil {
		return fmt.Errorf("commit: promote temporary: %w", err)
	}

	return nil
}
