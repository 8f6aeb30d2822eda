package fs

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"
)

// ErrFailpoint marks errors injected by [Failpoint].
//
// Use [errors.Is] with this sentinel to detect injected failures.
var ErrFailpoint = errors.New("failpoint")

// Op identifies a filesystem operation eligible for failpoint injection.
type Op string

// Valid Op values for [FailpointConfig.Ops].
const (
	OpOpen   Op = "open"
	OpRemove Op = "remove"
	OpRename Op = "rename"
	OpWrite  Op = "write"
	OpSync   Op = "sync"
)

// mutatingOps is the default eligible set: every operation that can
// change on-disk state. Reads, stats and closes are never eligible; a
// crashed process doesn't "fail" them, it simply stops issuing them.
var mutatingOps = []Op{OpOpen, OpRemove, OpRename, OpWrite, OpSync}

// FailpointConfig configures deterministic fault injection.
type FailpointConfig struct {
	// After triggers the failure on the Nth eligible operation
	// (1-indexed). Zero means the first eligible operation.
	After uint64

	// Ops restricts which operations are eligible. If empty, all
	// mutating operations are eligible. [OpOpen] only matches opens
	// that request write access.
	Ops []Op

	// Halt makes every eligible operation after the trigger fail too,
	// simulating a process that died at the trigger point: whatever the
	// code under test attempts afterwards never reaches the disk.
	Halt bool
}

// Failpoint wraps an [FS] and fails exactly the Nth eligible mutating
// operation, optionally halting all further mutations.
//
// Unlike [Chaos], which explores the failure space randomly, Failpoint
// pins the failure to one deterministic point. Sweeping After over every
// index of a commit sequence drives the protocol through each of its
// crash windows in turn.
type Failpoint struct {
	fs      FS
	config  FailpointConfig
	count   atomic.Uint64
	tripped atomic.Bool
}

// NewFailpoint creates a [Failpoint] wrapping the given [FS].
// Panics if underlying is nil.
func NewFailpoint(underlying FS, config FailpointConfig) *Failpoint {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	if config.After == 0 {
		config.After = 1
	}

	return &Failpoint{fs: underlying, config: config}
}

// Tripped reports whether the failpoint has triggered.
func (f *Failpoint) Tripped() bool {
	return f.tripped.Load()
}

// Count returns how many eligible operations have been observed.
func (f *Failpoint) Count() uint64 {
	return f.count.Load()
}

// check records an eligible operation and returns an injected error if
// this operation is the trigger (or a post-trigger operation in Halt
// mode). Returns nil when the operation should pass through.
func (f *Failpoint) check(op Op, path string) error {
	if !slices.Contains(f.eligible(), op) {
		return nil
	}

	if f.config.Halt && f.tripped.Load() {
		return fmt.Errorf("%w (halted): %s %q", ErrFailpoint, op, path)
	}

	if f.count.Add(1) == f.config.After {
		f.tripped.Store(true)

		return fmt.Errorf("%w: %s %q", ErrFailpoint, op, path)
	}

	return nil
}

func (f *Failpoint) eligible() []Op {
	if len(f.config.Ops) == 0 {
		return mutatingOps
	}

	return f.config.Ops
}

// Open passes through; plain read opens are never eligible.
func (f *Failpoint) Open(path string) (File, error) {
	if f.config.Halt && f.tripped.Load() {
		return nil, fmt.Errorf("%w (halted): read open %q", ErrFailpoint, path)
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &failpointFile{f: file, fp: f, path: path}, nil
}

// OpenFile opens a file; opens that request write access are eligible.
func (f *Failpoint) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		err := f.check(OpOpen, path)
		if err != nil {
			return nil, err
		}
	} else if f.config.Halt && f.tripped.Load() {
		return nil, fmt.Errorf("%w (halted): read open %q", ErrFailpoint, path)
	}

	file, err := f.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &failpointFile{f: file, fp: f, path: path}, nil
}

// Stat passes through; stats are never eligible.
func (f *Failpoint) Stat(path string) (os.FileInfo, error) {
	return f.fs.Stat(path)
}

// Exists passes through; existence checks are never eligible.
func (f *Failpoint) Exists(path string) (bool, error) {
	return f.fs.Exists(path)
}

// Remove deletes a file; eligible as [OpRemove].
func (f *Failpoint) Remove(path string) error {
	err := f.check(OpRemove, path)
	if err != nil {
		return err
	}

	return f.fs.Remove(path)
}

// Rename renames a file; eligible as [OpRename].
func (f *Failpoint) Rename(oldpath, newpath string) error {
	err := f.check(OpRename, oldpath)
	if err != nil {
		return err
	}

	return f.fs.Rename(oldpath, newpath)
}

// failpointFile wraps a [File] to make Write and Sync eligible.
type failpointFile struct {
	f    File
	fp   *Failpoint
	path string
}

var _ File = (*failpointFile)(nil)

func (ff *failpointFile) Read(buf []byte) (int, error) {
	return ff.f.Read(buf)
}

func (ff *failpointFile) Write(data []byte) (int, error) {
	err := ff.fp.check(OpWrite, ff.path)
	if err != nil {
		return 0, err
	}

	return ff.f.Write(data)
}

// Close always closes the underlying descriptor; closes are never
// eligible (a crash never "fails" a close, it skips it).
func (ff *failpointFile) Close() error {
	return ff.f.Close()
}

func (ff *failpointFile) Seek(offset int64, whence int) (int64, error) {
	return ff.f.Seek(offset, whence)
}

func (ff *failpointFile) Fd() uintptr {
	return ff.f.Fd()
}

func (ff *failpointFile) Stat() (os.FileInfo, error) {
	return ff.f.Stat()
}

func (ff *failpointFile) Sync() error {
	err := ff.fp.check(OpSync, ff.path)
	if err != nil {
		return err
	}

	return ff.f.Sync()
}

var _ FS = (*Failpoint)(nil)
