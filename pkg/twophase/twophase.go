// Package twophase provides crash-safe, atomic persistence of a single
// logical file through a two-phase commit over three sibling files.
//
// A logical file identified by a primary path P is persisted alongside
// two derived siblings: a backup (P + ".bak") holding the previous
// committed version and a temporary (P + ".tmp") holding an in-flight
// write. A fourth sibling (P + ".prb") exists only transiently while a
// session probes whether the caller's open configuration is writable.
//
// Writes go to the temporary file and become visible in one atomic
// rename at commit; reads come from the primary, falling back to the
// backup when the primary is missing. Every [Open] first runs [Recover],
// which inspects which of the three files exist and repairs the triple,
// so after a crash at any point exactly one consistent version is
// served: the last fully-committed write or, failing that, the previous
// one.
//
// Typical usage mirrors a scoped open:
//
//	err := twophase.Do(fsys, "cache.json", twophase.WriteTrunc(0o644),
//		func(s *twophase.Session) error {
//			_, err := s.Write(data)
//			return err
//		})
//
// A returned error (or panic) from the function rolls the write back;
// a nil return commits it. [Open] gives the same session in explicit
// acquire/release form for callers that need to thread it around.
//
// Limitations, by design: no locking and no defined behavior for
// concurrent sessions on the same logical file, no staleness detection,
// no content validation. Crash safety rests entirely on rename being
// atomic on the underlying filesystem.
package twophase

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/calvinalkan/twophase/pkg/fs"
)

// Open starts a session on the logical file at primary.
//
// The sequence is fixed: derive the sibling paths, probe cfg's
// writability against a throwaway file, run recovery, pick the backing
// file, open it with cfg forwarded verbatim, and re-check that the real
// handle's capability matches what the probe predicted.
//
// For read-only sessions with neither a primary nor a backup on disk,
// the defining open fails with the underlying not-found error; no data
// is a legitimate terminal outcome, not a defect. A capability mismatch
// fails with [ErrWritableMismatch] after closing the partially-opened
// handle. Everything else propagates unchanged.
//
// The caller owns the returned session and must release it with
// [Session.Close] on every exit path; [Do] wraps that contract.
func Open(fsys fs.FS, primary string, cfg Config, opts ...Option) (*Session, error) {
	if fsys == nil {
		panic("fsys is nil")
	}

	o := newOptions(opts)
	paths := DerivePaths(primary)

	id := uuid.NewString()
	log := o.logger.With("session", id, "primary", primary)

	log.Debug("opening session")

	writable, err := probeWritable(fsys, paths.Probe, cfg)
	if err != nil {
		return nil, err
	}

	// Repair before deciding which file backs the handle; the decision
	// below assumes the temporary file is gone.
	err = recoverTriple(fsys, paths, log)
	if err != nil {
		return nil, err
	}

	name, err := selectBacking(fsys, paths, writable, log)
	if err != nil {
		return nil, err
	}

	file, err := fsys.OpenFile(name, cfg.Flag, cfg.Perm)
	if err != nil {
		return nil, err
	}

	err = checkCapability(fsys, file, paths, writable)
	if err != nil {
		return nil, err
	}

	log.Debug("session open", "backing", name, "writable", writable)

	return &Session{
		fsys:     fsys,
		log:      log,
		id:       id,
		paths:    paths,
		file:     file,
		name:     name,
		writable: writable,
	}, nil
}

// selectBacking picks the physical path behind the handle. Writes always
// go to a fresh temporary; reads prefer the primary and fall back to the
// backup only when the primary is missing.
func selectBacking(fsys fs.FS, paths Paths, writable bool, log *slog.Logger) (string, error) {
	if writable {
		return paths.Temp, nil
	}

	backupExists, err := fsys.Exists(paths.Backup)
	if err != nil {
		return "", fmt.Errorf("select backing file: %w", err)
	}

	primaryExists, err := fsys.Exists(paths.Primary)
	if err != nil {
		return "", fmt.Errorf("select backing file: %w", err)
	}

	if backupExists && !primaryExists {
		log.Warn("serving from backup, primary missing", "backup", paths.Backup)

		return paths.Backup, nil
	}

	return paths.Primary, nil
}

// checkCapability re-queries the real handle's write capability and
// compares it against the probed prediction. On failure the handle is
// closed and a writable session's temporary file removed before the
// error is returned.
func checkCapability(fsys fs.FS, file fs.File, paths Paths, probed bool) error {
	actual, err := handleWritable(file)
	if err == nil && actual != probed {
		err = fmt.Errorf("%w: probed=%v actual=%v", ErrWritableMismatch, probed, actual)
	}

	if err == nil {
		return nil
	}

	_ = file.Close()

	if probed {
		_ = safeRemove(fsys, paths.Temp)
	}

	return err
}

// Do opens a session, runs fn with it, and releases the session exactly
// once on every exit path, including panics.
//
// A nil error from fn commits; a non-nil error rolls back and is
// returned unchanged. A panic rolls back and re-panics. Release errors
// surface only when fn itself succeeded.
func Do(fsys fs.FS, primary string, cfg Config, fn func(*Session) error, opts ...Option) (err error) {
	session, err := Open(fsys, primary, cfg, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = session.Close(errPanicked)

			panic(r)
		}

		closeErr := session.Close(err)
		if err == nil {
			err = closeErr
		}
	}()

	err = fn(session)

	return err
}

// ReadFile reads the committed content of the logical file at primary:
// the primary file, or the backup when the primary is missing. Returns
// an error satisfying [errors.Is] with [os.ErrNotExist] when no data has
// ever been committed.
func ReadFile(fsys fs.FS, primary string, opts ...Option) ([]byte, error) {
	var data []byte

	err := Do(fsys, primary, ReadOnly(), func(s *Session) error {
		var readErr error

		data, readErr = io.ReadAll(s)

		return readErr
	}, opts...)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// WriteFile commits data as the new content of the logical file at
// primary, demoting any existing primary to the backup.
func WriteFile(fsys fs.FS, primary string, data []byte, perm os.FileMode, opts ...Option) error {
	return Do(fsys, primary, WriteTrunc(perm), func(s *Session) error {
		_, err := s.Write(data)

		return err
	}, opts...)
}
