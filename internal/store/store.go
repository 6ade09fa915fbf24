// Package store owns the on-disk tree: path resolution, atomic JSON writes,
// and advisory file locks. It carries no domain logic; callers hold only
// value copies of what they read.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

// Store resolves paths under a single root directory. The zero value is not
// usable; construct with New.
type Store struct {
	root string
}

// New returns a Store rooted at dir. When dir is empty the default
// <user-home>/.opencode-teams is used.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultRoot()
	}
	return &Store{root: dir}
}

// DefaultRoot returns <user-home>/.opencode-teams, falling back to the
// system temp directory when the home directory cannot be resolved.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".opencode-teams")
}

// Root returns the resolved root directory.
func (s *Store) Root() string { return s.root }

// TeamDir returns teams/<team>.
func (s *Store) TeamDir(team string) string {
	return filepath.Join(s.root, "teams", team)
}

// TeamConfigPath returns teams/<team>/config.json.
func (s *Store) TeamConfigPath(team string) string {
	return filepath.Join(s.TeamDir(team), "config.json")
}

// InboxDir returns teams/<team>/inboxes.
func (s *Store) InboxDir(team string) string {
	return filepath.Join(s.TeamDir(team), "inboxes")
}

// InboxPath returns teams/<team>/inboxes/<agent>.json.
func (s *Store) InboxPath(team, agent string) string {
	return filepath.Join(s.InboxDir(team), agent+".json")
}

// InboxLockPath returns the shared lock file for all inboxes of one team.
func (s *Store) InboxLockPath(team string) string {
	return filepath.Join(s.InboxDir(team), ".lock")
}

// HealthPath returns teams/<team>/health.json.
func (s *Store) HealthPath(team string) string {
	return filepath.Join(s.TeamDir(team), "health.json")
}

// TaskDir returns tasks/<team>.
func (s *Store) TaskDir(team string) string {
	return filepath.Join(s.root, "tasks", team)
}

// TaskPath returns tasks/<team>/<id>.json.
func (s *Store) TaskPath(team string, id int) string {
	return filepath.Join(s.TaskDir(team), strconv.Itoa(id)+".json")
}

// TaskLockPath returns the shared lock file for one team's task directory.
func (s *Store) TaskLockPath(team string) string {
	return filepath.Join(s.TaskDir(team), ".lock")
}

// WriteJSON serializes v and atomically replaces path: the bytes land in a
// sibling temp file which is fsynced and then renamed over the destination,
// so a concurrent reader sees either the old or the new content, never a
// torn file. The temp file is unlinked on every failure path.
func (s *Store) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", domain.ErrStorage, path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", domain.ErrStorage, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %v", domain.ErrStorage, dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorage, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: fsync %s: %v", domain.ErrStorage, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", domain.ErrStorage, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrStorage, path, err)
	}
	return nil
}

// ReadJSON decodes path into v. A missing file maps to ErrNotFound; every
// other failure maps to ErrStorage.
func (s *Store) ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return fmt.Errorf("%w: read %s: %v", domain.ErrStorage, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrStorage, path, err)
	}
	return nil
}

// Exists reports whether path is present.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WithLock creates the lock file's directory if needed, acquires an
// exclusive OS-level advisory lock, runs fn, and releases the lock on every
// exit path. Locks are not reentrant: fn must not acquire the same lock
// again, and must not spawn subprocesses or sleep while holding it.
func (s *Store) WithLock(lockPath string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", domain.ErrStorage, filepath.Dir(lockPath), err)
	}
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("%w: lock %s: %v", domain.ErrStorage, lockPath, err)
	}
	defer fl.Unlock()
	return fn()
}
