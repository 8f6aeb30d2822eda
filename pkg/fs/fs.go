// Package fs provides the filesystem abstraction used by the two-phase
// commit protocol, plus fault-injecting implementations for testing it.
//
// The main types are:
//   - [FS]: interface for the filesystem operations the protocol performs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Chaos]: testing implementation that injects random failures
//   - [Failpoint]: testing implementation that fails deterministically at
//     the Nth eligible operation, simulating a process killed mid-protocol
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.Open("cache.json")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File] and can be used with standard
// library functions that accept [io.Reader], [io.Writer], [io.Seeker], or
// [io.Closer].
//
// The intent is os-like behavior: implementations must behave like
// [os.File], including that [File.Fd] returns a valid OS file descriptor
// usable with syscalls (for example fcntl) until the file is closed.
//
// Note: [File] includes [io.Writer] even for read-only handles. Like
// [os.File], implementations should return an error from Write when the
// file wasn't opened for writing.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for capability queries via fcntl.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations the two-phase protocol needs.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection. Paths use OS semantics (like the os
// package and path/filepath), not the slash-separated paths of io/fs.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with the specified flags and permissions.
	// See [os.OpenFile]. This is the defining open of the protocol: both
	// the probe file and the real backing file go through it with the
	// caller's configuration forwarded verbatim.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info. See [os.Stat].
	// Returns an error satisfying [os.IsNotExist] if the file is absent.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error

	// Rename moves/renames a file. See [os.Rename].
	// Atomic on the same filesystem; the protocol's crash safety rests
	// on that assumption.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
