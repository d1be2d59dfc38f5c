package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/trackd/internal/client/session"
	"github.com/openmined/trackd/internal/stream"
	"github.com/spf13/cobra"

	csync "github.com/openmined/trackd/internal/client/sync"
)

var errSyncFailed = errors.New("sync failed, see the log for details")

// restore resumes the saved session
func (c *cli) restore(cmd *cobra.Command) (*session.Session, error) {
	m, err := session.NewManager(c.cfg)
	if err != nil {
		return nil, err
	}
	s, err := m.Restore(cmd.Context())
	if errors.Is(err, session.ErrNotLoggedIn) {
		return nil, fmt.Errorf("%w, run `trackd login` first", err)
	}
	return s, err
}

// runSync drives one run started by start, printing every state it passes
// through, and reports the progress the session settled on
func runSync(ctx context.Context, manager *csync.Manager, out io.Writer, start func() stream.Stream[csync.SyncState]) error {
	progress := manager.Progress()
	defer progress.Close()

	err := stream.Each(ctx, start(), func(state csync.SyncState) {
		fmt.Fprintln(out, gray.Render("  "+string(state)))
	})
	if err != nil {
		return err
	}

	for {
		p, err := progress.Next(ctx)
		if err != nil {
			fmt.Fprintln(out, red.Render("Session ended: "+err.Error()))
			return err
		}

		switch p {
		case csync.SyncProgressSynced:
			fmt.Fprintln(out, green.Render("Synced"))
			return nil
		case csync.SyncProgressOfflineModeDetected:
			fmt.Fprintln(out, cyan.Render("Offline, local changes are kept for the next sync"))
			return nil
		case csync.SyncProgressFailed:
			// a session ending error freezes the manager before it ends progress
			if manager.IsFrozen() {
				continue
			}
			fmt.Fprintln(out, red.Render("Sync failed"))
			return errSyncFailed
		default:
			slog.Debug("waiting for sync to settle", "progress", p)
		}
	}
}
