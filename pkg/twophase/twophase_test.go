package twophase_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/twophase/pkg/fs"
	"github.com/calvinalkan/twophase/pkg/twophase"
)

// quiet discards session logs so recovery warnings don't clutter test output.
func quiet() twophase.Option {
	return twophase.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// stage is a primary path inside a fresh temp dir, with distinct fixture
// contents for each sibling file.
type stage struct {
	paths       twophase.Paths
	primaryText string
	backupText  string
	tempText    string
}

func newStage(t *testing.T) *stage {
	t.Helper()

	dir := t.TempDir()

	return &stage{
		paths:       twophase.DerivePaths(filepath.Join(dir, "cache.json")),
		primaryText: strings.Repeat("primary content\n", 64),
		backupText:  strings.Repeat("backup content\n", 128),
		tempText:    strings.Repeat("temp content\n", 192),
	}
}

func (s *stage) prepare(t *testing.T, files map[string]string) {
	t.Helper()

	for path, content := range files {
		err := os.WriteFile(path, []byte(content), 0o644)
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
}

func (s *stage) exists(t *testing.T, path string) bool {
	t.Helper()

	_, err := os.Stat(path)
	if err == nil {
		return true
	}

	if os.IsNotExist(err) {
		return false
	}

	t.Fatalf("stat %q: %v", path, err)

	return false
}

func (s *stage) content(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}

	return string(data)
}

// assertTriple fails unless the on-disk existence of primary/backup/temp
// matches expectations. The probe file must never survive a session.
func (s *stage) assertTriple(t *testing.T, wantPrimary, wantBackup, wantTemp bool) {
	t.Helper()

	if got, want := s.exists(t, s.paths.Primary), wantPrimary; got != want {
		t.Fatalf("primary exists=%v, want=%v", got, want)
	}

	if got, want := s.exists(t, s.paths.Backup), wantBackup; got != want {
		t.Fatalf("backup exists=%v, want=%v", got, want)
	}

	if got, want := s.exists(t, s.paths.Temp), wantTemp; got != want {
		t.Fatalf("temp exists=%v, want=%v", got, want)
	}

	if s.exists(t, s.paths.Probe) {
		t.Fatalf("probe file %q survived a session", s.paths.Probe)
	}
}

func readPrimary(t *testing.T, st *stage) string {
	t.Helper()

	data, err := twophase.ReadFile(fs.NewReal(), st.paths.Primary, quiet())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	return string(data)
}

func Test_Read_Fails_NotFound_When_No_Data_Exists(t *testing.T) {
	t.Parallel()

	st := newStage(t)

	_, err := twophase.ReadFile(fs.NewReal(), st.paths.Primary, quiet())

	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want not-found", err)
	}

	st.assertTriple(t, false, false, false)
}

func Test_Read_Returns_Primary_Content(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Primary: st.primaryText})

	var name string

	err := twophase.Do(fs.NewReal(), st.paths.Primary, twophase.ReadOnly(), func(s *twophase.Session) error {
		name = s.Name()

		data, readErr := io.ReadAll(s)
		if readErr != nil {
			return readErr
		}

		if got, want := string(data), st.primaryText; got != want {
			t.Fatalf("content=%q, want=%q", got, want)
		}

		return nil
	}, quiet())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if got, want := name, st.paths.Primary; got != want {
		t.Fatalf("backing name=%q, want=%q", got, want)
	}
}

func Test_Write_Session_Backs_Onto_Temporary(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Primary: st.primaryText})

	err := twophase.Do(fs.NewReal(), st.paths.Primary, twophase.WriteTrunc(0o644), func(s *twophase.Session) error {
		if got, want := s.Name(), st.paths.Temp; got != want {
			t.Fatalf("backing name=%q, want=%q", got, want)
		}

		if got, want := s.Writable(), true; got != want {
			t.Fatalf("writable=%v, want=%v", got, want)
		}

		// The commit hasn't happened yet: the primary is untouched
		// while the session is live.
		if got, want := st.content(t, st.paths.Primary), st.primaryText; got != want {
			t.Fatalf("primary changed mid-session: %q", got)
		}

		_, writeErr := s.Write([]byte(st.tempText))

		return writeErr
	}, quiet())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func Test_Sequential_Writes_Rotate_Primary_Into_Backup(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	fsys := fs.NewReal()

	contents := []string{st.primaryText, st.backupText, st.tempText}

	for i, content := range contents {
		err := twophase.WriteFile(fsys, st.paths.Primary, []byte(content), 0o644, quiet())
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}

		st.assertTriple(t, true, i > 0, false)

		if got, want := readPrimary(t, st), content; got != want {
			t.Fatalf("after write %d: primary=%q, want=%q", i, got, want)
		}

		if i > 0 {
			if got, want := st.content(t, st.paths.Backup), contents[i-1]; got != want {
				t.Fatalf("after write %d: backup=%q, want=%q", i, got, want)
			}
		}
	}
}

func Test_Rollback_When_Session_Func_Errors(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{
		st.paths.Primary: st.primaryText,
		st.paths.Backup:  st.backupText,
	})

	errBoom := errors.New("boom")

	err := twophase.Do(fs.NewReal(), st.paths.Primary, twophase.WriteTrunc(0o644), func(s *twophase.Session) error {
		_, _ = s.Write([]byte("half-written"))

		return errBoom
	}, quiet())

	if !errors.Is(err, errBoom) {
		t.Fatalf("err=%v, want=%v", err, errBoom)
	}

	st.assertTriple(t, true, true, false)

	if got, want := readPrimary(t, st), st.primaryText; got != want {
		t.Fatalf("primary=%q, want pre-session content", got)
	}

	if got, want := st.content(t, st.paths.Backup), st.backupText; got != want {
		t.Fatalf("backup=%q, want pre-session content", got)
	}
}

func Test_Rollback_When_Session_Func_Panics(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Primary: st.primaryText})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("panic did not propagate")
			}
		}()

		_ = twophase.Do(fs.NewReal(), st.paths.Primary, twophase.WriteTrunc(0o644), func(s *twophase.Session) error {
			_, _ = s.Write([]byte("doomed"))

			panic("kaboom")
		}, quiet())
	}()

	st.assertTriple(t, true, false, false)

	if got, want := readPrimary(t, st), st.primaryText; got != want {
		t.Fatalf("primary=%q, want pre-session content", got)
	}
}

func Test_Recovery_Temp_And_Primary_Discards_Temp(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{
		st.paths.Temp:    st.tempText,
		st.paths.Primary: st.primaryText,
	})

	if got, want := readPrimary(t, st), st.primaryText; got != want {
		t.Fatalf("primary=%q, want=%q", got, want)
	}

	st.assertTriple(t, true, false, false)
}

func Test_Recovery_Temp_Primary_And_Backup_Discards_Temp(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{
		st.paths.Temp:    st.tempText,
		st.paths.Primary: st.primaryText,
		st.paths.Backup:  st.backupText,
	})

	if got, want := readPrimary(t, st), st.primaryText; got != want {
		t.Fatalf("primary=%q, want=%q", got, want)
	}

	st.assertTriple(t, true, true, false)
}

func Test_Recovery_Temp_And_Backup_Rolls_Forward(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{
		st.paths.Temp:   st.tempText,
		st.paths.Backup: st.backupText,
	})

	// The previous process died after demoting the old primary but
	// before promoting the new write; the temporary is completed into
	// the primary.
	if got, want := readPrimary(t, st), st.tempText; got != want {
		t.Fatalf("primary=%q, want rolled-forward temp content %q", got, want)
	}

	st.assertTriple(t, true, true, false)

	if got, want := st.content(t, st.paths.Backup), st.backupText; got != want {
		t.Fatalf("backup=%q, want preserved content", got)
	}
}

func Test_Recovery_Temp_Only_Discards_Temp_And_Read_Fails(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Temp: st.tempText})

	_, err := twophase.ReadFile(fs.NewReal(), st.paths.Primary, quiet())

	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want not-found", err)
	}

	st.assertTriple(t, false, false, false)
}

func Test_Read_Serves_Backup_When_Primary_Missing(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Backup: st.backupText})

	var name string

	err := twophase.Do(fs.NewReal(), st.paths.Primary, twophase.ReadOnly(), func(s *twophase.Session) error {
		name = s.Name()

		data, readErr := io.ReadAll(s)
		if readErr != nil {
			return readErr
		}

		if got, want := string(data), st.backupText; got != want {
			t.Fatalf("content=%q, want backup content", got)
		}

		return nil
	}, quiet())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if got, want := name, st.paths.Backup; got != want {
		t.Fatalf("backing name=%q, want=%q", got, want)
	}

	// Serving from the backup must not mutate anything.
	st.assertTriple(t, false, true, false)
}

func Test_Write_Preserves_Lone_Backup_On_First_Commit(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Backup: st.backupText})

	err := twophase.WriteFile(fs.NewReal(), st.paths.Primary, []byte(st.primaryText), 0o644, quiet())
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st.assertTriple(t, true, true, false)

	if got, want := readPrimary(t, st), st.primaryText; got != want {
		t.Fatalf("primary=%q, want=%q", got, want)
	}

	if got, want := st.content(t, st.paths.Backup), st.backupText; got != want {
		t.Fatalf("backup=%q, want preserved pre-existing backup", got)
	}
}

func Test_Recover_Is_Idempotent(t *testing.T) {
	t.Parallel()

	stages := map[string]func(*stage) map[string]string{
		"temp_and_primary": func(s *stage) map[string]string {
			return map[string]string{s.paths.Temp: s.tempText, s.paths.Primary: s.primaryText}
		},
		"temp_and_backup": func(s *stage) map[string]string {
			return map[string]string{s.paths.Temp: s.tempText, s.paths.Backup: s.backupText}
		},
		"temp_only": func(s *stage) map[string]string {
			return map[string]string{s.paths.Temp: s.tempText}
		},
		"backup_only": func(s *stage) map[string]string {
			return map[string]string{s.paths.Backup: s.backupText}
		},
		"empty": func(s *stage) map[string]string {
			return nil
		},
	}

	for name, files := range stages {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			st := newStage(t)
			st.prepare(t, files(st))

			err := twophase.Recover(fs.NewReal(), st.paths.Primary, quiet())
			if err != nil {
				t.Fatalf("first Recover: %v", err)
			}

			after := st.snapshot(t)

			err = twophase.Recover(fs.NewReal(), st.paths.Primary, quiet())
			if err != nil {
				t.Fatalf("second Recover: %v", err)
			}

			if got, want := st.snapshot(t), after; got != want {
				t.Fatalf("state after second recover=%v, want=%v", got, want)
			}
		})
	}
}

func Test_Recover_Does_Not_Promote_Lone_Backup(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Backup: st.backupText})

	err := twophase.Recover(fs.NewReal(), st.paths.Primary, quiet())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	// Backup-only state is resolved lazily at read time and at the next
	// commit, never eagerly here.
	st.assertTriple(t, false, true, false)
}

func Test_Writable_Mismatch_For_ReadUpdate_Config(t *testing.T) {
	t.Parallel()

	st := newStage(t)
	st.prepare(t, map[string]string{st.paths.Primary: st.primaryText})

	// O_RDWR without O_CREATE fails against the never-existing probe
	// file, so the probe predicts read-only; the real open of the
	// existing primary then yields a writable handle.
	_, err := twophase.Open(fs.NewReal(), st.paths.Primary, twophase.Config{Flag: os.O_RDWR}, quiet())

	if !errors.Is(err, twophase.ErrWritableMismatch) {
		t.Fatalf("err=%v, want ErrWritableMismatch", err)
	}

	st.assertTriple(t, true, false, false)

	if got, want := st.content(t, st.paths.Primary), st.primaryText; got != want {
		t.Fatalf("primary=%q, want untouched content", got)
	}
}

func Test_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	st := newStage(t)

	s, err := twophase.Open(fs.NewReal(), st.paths.Primary, twophase.WriteTrunc(0o644), quiet())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err = s.Write([]byte(st.primaryText))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	err = s.Close(nil)
	if err != nil {
		t.Fatalf("first Close: %v", err)
	}

	after := st.snapshot(t)

	// A second Close must be a no-op, not a second commit.
	err = s.Close(nil)
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if got, want := st.snapshot(t), after; got != want {
		t.Fatalf("state after second close=%v, want=%v", got, want)
	}
}

func Test_DerivePaths_Appends_Fixed_Suffixes(t *testing.T) {
	t.Parallel()

	paths := twophase.DerivePaths("/data/cache.json")

	if got, want := paths.Backup, "/data/cache.json.bak"; got != want {
		t.Fatalf("backup=%q, want=%q", got, want)
	}

	if got, want := paths.Temp, "/data/cache.json.tmp"; got != want {
		t.Fatalf("temp=%q, want=%q", got, want)
	}

	if got, want := paths.Probe, "/data/cache.json.prb"; got != want {
		t.Fatalf("probe=%q, want=%q", got, want)
	}
}

// snapshot captures the observable triple state as a comparable value.
func (s *stage) snapshot(t *testing.T) [3]string {
	t.Helper()

	read := func(path string) string {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "<absent>"
			}

			t.Fatalf("read %q: %v", path, err)
		}

		return string(data)
	}

	return [3]string{read(s.paths.Primary), read(s.paths.Backup), read(s.paths.Temp)}
}
