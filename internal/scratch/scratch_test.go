package scratch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRemove(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "arma_bench"))

	dir, err := m.Create("job-1")
	require.NoError(t, err)
	assert.Equal(t, m.Path("job-1"), dir)
	assert.DirExists(t, filepath.Join(dir, AddonsDir))

	ok, err := m.Exists("job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Remove("job-1"))
	assert.NoDirExists(t, dir)

	// idempotent
	assert.NoError(t, m.Remove("job-1"))
}

func TestCreateExisting(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Create("dup")
	require.NoError(t, err)

	_, err = m.Create("dup")
	assert.Error(t, err)
}

func TestInvalidIDs(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, id := range []string{"", ".", "..", "../escape", "a/b"} {
		_, err := m.Create(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
		assert.ErrorIs(t, m.Remove(id), ErrInvalidID, id)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	_, err := m.Create("old")
	require.NoError(t, err)
	_, err = m.Create("new")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(m.Path("old"), past, past))

	dirs, err := m.List()
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.Equal(t, "old", dirs[0].ID)
	assert.Equal(t, "new", dirs[1].ID)
}

func TestListMissingRoot(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"))
	dirs, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, dirs)
}
