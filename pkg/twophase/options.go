package twophase

import (
	"log/slog"
	"os"
)

// Config is the caller's open configuration: the flag/permission bundle
// forwarded verbatim to [fs.FS.OpenFile] for both the probe file and the
// real backing file.
//
// The package treats Config as opaque. It never interprets Flag to decide
// whether a session is writable; that question is always answered by
// querying a live handle (see the probe in [Open]). Flag vocabularies are
// easy to parse incorrectly, the descriptor itself is not.
type Config struct {
	Flag int
	Perm os.FileMode
}

// ReadOnly returns the configuration for a read-only session.
func ReadOnly() Config {
	return Config{Flag: os.O_RDONLY}
}

// WriteTrunc returns the configuration for a writable session that
// truncates any prior content, creating the file if needed.
func WriteTrunc(perm os.FileMode) Config {
	return Config{Flag: os.O_WRONLY | os.O_CREATE | os.O_TRUNC, Perm: perm}
}

// Option configures a session or a standalone [Recover] run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for recovery warnings and session
// lifecycle events. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
