package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/openmined/trackd/internal/client/session"
	"github.com/openmined/trackd/internal/stream"
	"github.com/openmined/trackd/internal/version"
	"github.com/spf13/cobra"

	csync "github.com/openmined/trackd/internal/client/sync"
)

func newDaemonCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep the session syncing whenever the client becomes active",
		Long: `Runs a full sync on start and again every time the client returns to the
foreground after the background sync threshold. Send SIGUSR1 when the
client goes to the background and SIGUSR2 when it comes back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("trackd", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			s, err := c.restore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sigs := make(chan os.Signal, 1)
			if signals := lifecycleSignals(); len(signals) > 0 {
				signal.Notify(sigs, signals...)
				defer signal.Stop(sigs)
			}

			defer slog.Info("Bye!")
			err = runDaemon(cmd.Context(), s, sigs)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// runDaemon starts syncing and feeds lifecycle signals to the background
// trigger until ctx is done or the session ends
func runDaemon(ctx context.Context, s *session.Session, sigs <-chan os.Signal) error {
	ds := s.DataSource()
	bg := s.Background()

	progress := ds.SyncManager().Progress()
	defer progress.Close()

	firstSync, err := ds.StartSyncing()
	if err != nil {
		return err
	}
	firstSync.Close()

	ended := make(chan error, 1)
	go func() {
		ended <- stream.Each(ctx, progress, func(p csync.SyncProgress) {
			slog.Info("sync progress", "session", s.ID, "progress", p)
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-ended:
			if err == nil {
				return nil
			}
			return fmt.Errorf("session ended: %w", err)
		case sig := <-sigs:
			switch sig {
			case backgroundSignal:
				slog.Debug("entering background")
				bg.EnterBackground()
			case foregroundSignal:
				slog.Debug("entering foreground")
				bg.EnterForeground()
			}
		}
	}
}
