package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceSetup_CreatesLayout(t *testing.T) {
	root := t.TempDir()

	w, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w.Setup())
	t.Cleanup(func() { _ = w.Unlock() })

	assert.DirExists(t, w.MetadataDir)
	assert.DirExists(t, w.LogsDir)
	assert.Equal(t, filepath.Join(w.MetadataDir, "trackd.db"), w.DBPath)
	assert.Equal(t, filepath.Join(w.LogsDir, "trackd.log"), w.LogPath)
	assert.True(t, w.IsLocked())
}

func TestWorkspaceLocking_SingleInstance(t *testing.T) {
	root := t.TempDir()

	w1, err := NewWorkspace(root)
	require.NoError(t, err)
	w2, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w1.Setup())

	err = w2.Setup()
	require.ErrorIs(t, err, ErrWorkspaceLocked)

	lockPath := filepath.Join(root, ".data", "trackd.lock")
	assert.FileExists(t, lockPath)

	// unlocking a lock held elsewhere is a no-op
	require.NoError(t, w2.Unlock())
	assert.FileExists(t, lockPath)

	require.NoError(t, w1.Unlock())
	_, statErr := os.Stat(lockPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)

	require.NoError(t, w2.Lock())
	t.Cleanup(func() { _ = w2.Unlock() })
}
