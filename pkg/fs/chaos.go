package fs

import (
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized
// configs only inject faults for the specified rates; unset fields
// default to 0.0.
type ChaosConfig struct {
	// OpenFailRate controls how often Open and OpenFile fail. For
	// read-only opens the injected errno is EACCES, EIO, EMFILE or
	// ENFILE; write opens add ENOSPC, EDQUOT and EROFS.
	OpenFailRate float64

	// ReadFailRate controls how often File.Read fails, returning zero
	// bytes and EIO (matching os.File.Read on Unix-ish systems, which
	// forces n=0 on syscall read errors).
	ReadFailRate float64

	// WriteFailRate controls how often File.Write fails entirely,
	// writing zero bytes and returning EIO, ENOSPC, EDQUOT or EROFS.
	WriteFailRate float64

	// PartialWriteRate controls how often File.Write writes only a
	// prefix of the data before failing. Returns n > 0 along with an
	// errno-style error.
	PartialWriteRate float64

	// SyncFailRate controls how often File.Sync fails. Sync failures
	// can surface delayed write errors that weren't reported during
	// Write. Returns EIO, ENOSPC, EDQUOT or EROFS.
	SyncFailRate float64

	// CloseFailRate controls how often File.Close reports an error.
	// The underlying descriptor is always closed (to avoid leaks) even
	// when an error is returned. Returns EIO.
	CloseFailRate float64

	// StatFailRate controls how often Stat and Exists fail on a path.
	// Returns EACCES or EIO.
	StatFailRate float64

	// RemoveFailRate controls how often Remove fails.
	// Returns EACCES, EPERM, EBUSY, EIO or EROFS.
	RemoveFailRate float64

	// RenameFailRate controls how often Rename fails. Returns an
	// *os.LinkError (not *fs.PathError) with EACCES, EIO, ENOSPC,
	// EXDEV, EROFS or EPERM, like os.Rename.
	RenameFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	WriteFails    int64
	PartialWrites int64
	SyncFails     int64
	CloseFails    int64
	StatFails     int64
	RemoveFails   int64
	RenameFails   int64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps an [*fs.PathError] (or [*os.LinkError] for rename) carrying a
// real [syscall.Errno], so os.IsNotExist/os.IsPermission keep working via
// unwrapping while [IsChaosErr] can still distinguish injected from real
// OS errors in tests.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by
// [Chaos]. Returns false if err is nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// The fault model aims to match the surface semantics of Go's os package
// on Unix-ish systems. It is a "real filesystem + fault injection"
// wrapper, not a filesystem simulator; each call independently decides
// whether to inject.
//
// Chaos never injects ENOENT: any os.IsNotExist result originates from
// the wrapped [FS], so Chaos cannot manufacture "missing file" outcomes
// the real filesystem wouldn't have produced. This matters for the
// two-phase protocol, whose cleanup steps absorb not-found errors.
//
// Use [Chaos.SetMode] to toggle injection and [Chaos.Stats] to inspect
// how many faults were injected.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex
	rng   *rand.Rand

	openFails     atomic.Int64
	readFails     atomic.Int64
	writeFails    atomic.Int64
	partialWrites atomic.Int64
	syncFails     atomic.Int64
	closeFails    atomic.Int64
	statFails     atomic.Int64
	removeFails   atomic.Int64
	renameFails   atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		config: *config,
	}
}

// SetMode updates [Chaos] behavior.
//
// SetMode is safe to call concurrently with filesystem operations.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialWrites: c.partialWrites.Load(),
		SyncFails:     c.syncFails.Load(),
		CloseFails:    c.closeFails.Load(),
		StatFails:     c.statFails.Load(),
		RemoveFails:   c.removeFails.Load(),
		RenameFails:   c.renameFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.WriteFails + s.PartialWrites +
		s.SyncFails + s.CloseFails + s.StatFails + s.RemoveFails + s.RenameFails
}

// Open opens a file for reading with fault injection.
func (c *Chaos) Open(path string) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, chaosPathError("open", path, c.pick(readOpenErrnos))
	}

	file, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: file, chaos: c, path: path}, nil
}

// OpenFile opens a file with the specified flags and permissions with
// fault injection. The errno set depends on whether the flags request
// write access.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		errnos := readOpenErrnos
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
			errnos = writeOpenErrnos
		}

		return nil, chaosPathError("open", path, c.pick(errnos))
	}

	file, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: file, chaos: c, path: path}, nil
}

// Stat returns file info with fault injection.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if c.should(c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, chaosPathError("stat", path, c.pick(statErrnos))
	}

	return c.fs.Stat(path)
}

// Exists checks file existence with fault injection.
func (c *Chaos) Exists(path string) (bool, error) {
	if c.should(c.config.StatFailRate) {
		c.statFails.Add(1)

		return false, chaosPathError("stat", path, c.pick(statErrnos))
	}

	return c.fs.Exists(path)
}

// Remove removes a file with fault injection.
func (c *Chaos) Remove(path string) error {
	if c.should(c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return chaosPathError("remove", path, c.pick(removeErrnos))
	}

	return c.fs.Remove(path)
}

// Rename renames a file with fault injection.
func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.should(c.config.RenameFailRate) {
		c.renameFails.Add(1)

		le := &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: c.pick(renameErrnos)}

		return &chaosError{Err: le}
	}

	return c.fs.Rename(oldpath, newpath)
}

// Injected errno sets. ENOENT and EINTR are deliberately absent: missing
// paths must come from the wrapped FS, and the Go stdlib retries EINTR
// internally.
var (
	readOpenErrnos  = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE}
	writeOpenErrnos = []syscall.Errno{
		syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE,
		syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS,
	}
	statErrnos   = []syscall.Errno{syscall.EACCES, syscall.EIO}
	removeErrnos = []syscall.Errno{syscall.EACCES, syscall.EPERM, syscall.EBUSY, syscall.EIO, syscall.EROFS}
	renameErrnos = []syscall.Errno{
		syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EXDEV, syscall.EROFS, syscall.EPERM,
	}
	fdWriteErrnos = []syscall.Errno{syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS}
	fdSyncErrnos  = []syscall.Errno{syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS}
)

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(rate float64) bool {
	if ChaosMode(c.mode.Load()) != ChaosModeActive || rate <= 0 {
		return false
	}

	c.rngMu.Lock()
	v := c.rng.Float64()
	c.rngMu.Unlock()

	return v < rate
}

func (c *Chaos) pick(errnos []syscall.Errno) syscall.Errno {
	c.rngMu.Lock()
	i := c.rng.IntN(len(errnos))
	c.rngMu.Unlock()

	return errnos[i]
}

func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	i := c.rng.IntN(n)
	c.rngMu.Unlock()

	return i
}

// chaosPathError creates an injected [*fs.PathError] wrapped in
// [chaosError] so [IsChaosErr] can identify it while [errors.As] and
// helpers like [os.IsPermission] still work via unwrapping.
func chaosPathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile wraps a [File] and injects faults on handle operations.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Read(buf []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		// EIO only post-open; match os.File.Read shape (n forced to 0).
		return 0, chaosPathError("read", cf.path, syscall.EIO)
	}

	return cf.f.Read(buf)
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return 0, chaosPathError("write", cf.path, cf.chaos.pick(fdWriteErrnos))
	}

	// Partial write: a prefix lands on disk, then the write fails.
	// This is the torn-write case the commit protocol must survive.
	if cf.chaos.should(cf.chaos.config.PartialWriteRate) && len(data) > 1 {
		cf.chaos.partialWrites.Add(1)
		cutoff := cf.chaos.randIntn(len(data)-1) + 1 // [1, len(data)-1]

		wrote, err := cf.f.Write(data[:cutoff])
		if err != nil {
			return wrote, err
		}

		return wrote, chaosPathError("write", cf.path, cf.chaos.pick(fdWriteErrnos))
	}

	return cf.f.Write(data)
}

func (cf *chaosFile) Close() error {
	inject := cf.chaos.should(cf.chaos.config.CloseFailRate)

	// Always close the underlying file to avoid descriptor leaks, even
	// when returning an injected error.
	err := cf.f.Close()
	if err != nil {
		return err
	}

	if inject {
		cf.chaos.closeFails.Add(1)

		return chaosPathError("close", cf.path, syscall.EIO)
	}

	return nil
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Fd() uintptr {
	return cf.f.Fd()
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	if cf.chaos.should(cf.chaos.config.SyncFailRate) {
		cf.chaos.syncFails.Add(1)

		return chaosPathError("sync", cf.path, cf.chaos.pick(fdSyncErrnos))
	}

	return cf.f.Sync()
}

var _ FS = (*Chaos)(nil)
