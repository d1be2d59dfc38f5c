package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/trackd/internal/client/datasource"
	"github.com/spf13/cobra"
)

func newStartCmd(c *cli) *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "start [description]",
		Short: "Start tracking time, stopping the running entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.restore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			entry, err := s.Engine().Timer.Start(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, green.Render("Started ")+describe(entry.Description))

			if noSync {
				return nil
			}
			manager := s.Engine().Manager
			return runSync(cmd.Context(), manager, out, manager.PushSync)
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "keep the change local until the next sync")
	return cmd
}

func newStopCmd(c *cli) *cobra.Command {
	var (
		noSync  bool
		discard bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running time entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.restore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			timer := s.Engine().Timer
			if discard {
				entry, err := timer.Discard(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, cyan.Render("Discarded ")+describe(entry.Description))
				return nil
			}

			entry, err := timer.Stop(cmd.Context())
			if errors.Is(err, datasource.ErrNoRunningEntry) {
				fmt.Fprintln(out, gray.Render("Nothing running"))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s%s after %s\n", green.Render("Stopped "), describe(entry.Description), strings.TrimSpace(humanize.RelTime(entry.Start, entry.At, "", "")))

			if noSync {
				return nil
			}
			manager := s.Engine().Manager
			return runSync(cmd.Context(), manager, out, manager.PushSync)
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "keep the change local until the next sync")
	cmd.Flags().BoolVar(&discard, "discard", false, "drop the running entry instead of keeping it")
	return cmd
}

func describe(description string) string {
	if description == "" {
		return "(no description)"
	}
	return fmt.Sprintf("%q", description)
}
