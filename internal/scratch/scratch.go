// Package scratch manages the per-job directories the runtime loads
// packages from and writes results into.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// AddonsDir is the sub-directory the runtime scans for archives.
const AddonsDir = "addons"

var ErrInvalidID = errors.New("invalid job id")

// Manager handles job directories under a single root.
type Manager struct {
	root string
}

// Dir describes one job directory found under the root.
type Dir struct {
	ID      string
	Path    string
	ModTime time.Time
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

func (m *Manager) Root() string { return m.root }

// Path returns the directory for a job id without touching the disk.
func (m *Manager) Path(id string) string {
	return filepath.Join(m.root, id)
}

// Create makes <root>/<id>/addons and returns the job directory. It fails
// if the directory already exists.
func (m *Manager) Create(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch root: %w", err)
	}

	dir := m.Path(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating job dir: %w", err)
	}
	if err := os.Mkdir(filepath.Join(dir, AddonsDir), 0o755); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("creating addons dir: %w", err)
	}
	return dir, nil
}

// Exists checks if a job directory exists.
func (m *Manager) Exists(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	_, err := os.Stat(m.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns all job directories, oldest first.
func (m *Manager) List() ([]Dir, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	dirs := make([]Dir, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, Dir{
			ID:      e.Name(),
			Path:    filepath.Join(m.root, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].ModTime.Before(dirs[j].ModTime) })
	return dirs, nil
}

// Remove deletes a job directory and everything in it. Removing a missing
// directory is not an error.
func (m *Manager) Remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return os.RemoveAll(m.Path(id))
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
