package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/openmined/trackd/internal/client/access"
	"github.com/openmined/trackd/internal/client/datasource"
	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/utils"
	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session, the last sync and pending local changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !c.cfg.HasCredentials() {
				fmt.Fprintln(out, gray.Render("Not logged in"))
				logConfig(cmd, c)
				return nil
			}

			s, err := c.restore(cmd)
			if access.IsRestricted(err) {
				fmt.Fprintln(out, red.Render("Session refused: "+err.Error()))
				logConfig(cmd, c)
				return nil
			}
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintln(out, green.Render("Logged in"))
			logConfig(cmd, c)

			lastSynced, err := s.Engine().LastSynced(ctx)
			if err != nil {
				return err
			}
			synced := "never"
			if !lastSynced.IsZero() {
				synced = humanize.Time(lastSynced)
			}
			printField(out, "Last synced", synced)

			unsynced, err := s.DataSource().HasUnsyncedData(ctx)
			if err != nil {
				return err
			}
			pending := "none"
			if unsynced {
				pending = "local changes waiting to be pushed"
			}
			printField(out, "Pending", pending)

			running := "none"
			entry, err := s.Engine().Timer.Running(ctx)
			switch {
			case err == nil:
				running = fmt.Sprintf("%s since %s", describe(entry.Description), humanize.Time(entry.Start))
			case !errors.Is(err, datasource.ErrNoRunningEntry):
				return err
			}
			printField(out, "Running", running)

			return printCounts(ctx, out, s.DataSource().Repositories())
		},
	}
}

func logConfig(cmd *cobra.Command, c *cli) {
	out := cmd.OutOrStdout()
	if c.cfg.Email != "" {
		printField(out, "Email", utils.MaskEmail(c.cfg.Email))
	}
	printField(out, "Server", c.cfg.ServerURL)
	printField(out, "Data dir", c.cfg.DataDir)
	printField(out, "Config", c.cfg.Path)
	if c.cfg.HasCredentials() {
		printField(out, "Token", utils.MaskSecret(c.cfg.APIToken))
	}
}

func printField(out io.Writer, name string, value string) {
	fmt.Fprintln(out, label.Render(name)+cyan.Render(value))
}

func printCounts(ctx context.Context, out io.Writer, repos datasource.Repositories) error {
	counts := []struct {
		name  string
		count func(context.Context) (int, error)
	}{
		{"Workspaces", count(repos.Workspaces)},
		{"Clients", count(repos.Clients)},
		{"Projects", count(repos.Projects)},
		{"Tasks", count(repos.Tasks)},
		{"Tags", count(repos.Tags)},
		{"Time entries", count(repos.TimeEntries)},
	}

	for _, c := range counts {
		n, err := c.count(ctx)
		if err != nil {
			return err
		}
		printField(out, c.name, humanize.Comma(int64(n)))
	}
	return nil
}

func count[T models.Entity[T]](repo datasource.Repository[T]) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		all, err := repo.GetAll(ctx, nil)
		return len(all), err
	}
}
