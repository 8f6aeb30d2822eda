// Package cachefile persists JSON documents through the two-phase commit
// protocol.
//
// This is the use case the protocol was built for: a process that
// periodically rewrites a cache file (account and group data, lookup
// tables, etc.) and must never be left without a readable copy, no
// matter when it is killed. Save commits a new version atomically; Load
// reads the committed version, falling back to the backup when the
// primary is missing.
//
// Loads tolerate JSONC (comments and trailing commas) so hand-edited
// cache files keep working.
package cachefile

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/twophase/pkg/fs"
	"github.com/calvinalkan/twophase/pkg/twophase"
)

const filePerms = 0o644

// Save marshals v as indented JSON and commits it as the new content of
// the cache file at path. The previous version is demoted to the backup.
func Save(fsys fs.FS, path string, v any, opts ...twophase.Option) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	data = append(data, '\n')

	err = twophase.WriteFile(fsys, path, data, filePerms, opts...)
	if err != nil {
		return fmt.Errorf("write cache %q: %w", path, err)
	}

	return nil
}

// Load reads the committed content of the cache file at path and
// unmarshals it into v.
//
// Not-found passes through unchanged (check with [errors.Is] against
// [os.ErrNotExist]): a cache that was never written is a legitimate
// state for the caller to handle, not a defect.
func Load(fsys fs.FS, path string, v any, opts ...twophase.Option) error {
	data, err := twophase.ReadFile(fsys, path, opts...)
	if err != nil {
		return err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("cache %q: invalid JSONC: %w", path, err)
	}

	err = json.Unmarshal(standardized, v)
	if err != nil {
		return fmt.Errorf("cache %q: invalid JSON: %w", path, err)
	}

	return nil
}
