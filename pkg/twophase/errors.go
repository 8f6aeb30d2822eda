package twophase

import "errors"

// ErrWritableMismatch indicates an internal invariant violation: the
// writability probe predicted one capability for the caller's open
// configuration, but the real backing file opened with the other.
//
// The session is dead when this is returned; the partially-opened handle
// has already been closed and a writable session's temporary file removed.
var ErrWritableMismatch = errors.New("writability mismatch between probe and backing file")

// errPanicked is the rollback cause used by [Do] when the session
// function panics. Never returned to callers; the panic is re-raised.
var errPanicked = errors.New("session function panicked")
