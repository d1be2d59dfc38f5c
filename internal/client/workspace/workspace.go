// Package workspace lays out the data directory of a session and keeps other
// trackd processes out of it.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/trackd/internal/utils"
)

const (
	logsDir     = "logs"
	metadataDir = ".data"
	lockFile    = "trackd.lock"
	dbFile      = "trackd.db"
	logFile     = "trackd.log"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

type Workspace struct {
	Root        string
	MetadataDir string
	LogsDir     string
	DBPath      string
	LogPath     string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	meta := filepath.Join(root, metadataDir)
	logs := filepath.Join(root, logsDir)

	return &Workspace{
		Root:        root,
		MetadataDir: meta,
		LogsDir:     logs,
		DBPath:      filepath.Join(meta, dbFile),
		LogPath:     filepath.Join(logs, logFile),
		flock:       flock.New(filepath.Join(meta, lockFile)),
	}, nil
}

// Setup creates the directory layout and takes the workspace lock
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Debug("workspace", "root", w.Root)
	return nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

// Unlock releases the lock taken by this process. It is a no-op otherwise.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

func (w *Workspace) IsLocked() bool {
	return w.flock.Locked()
}
