package main

import (
	"github.com/spf13/cobra"
)

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull remote changes and push local ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.restore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			manager := s.Engine().Manager
			return runSync(cmd.Context(), manager, cmd.OutOrStdout(), manager.ForceFullSync)
		},
	}
}

func newPushCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push local changes only",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.restore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			manager := s.Engine().Manager
			return runSync(cmd.Context(), manager, cmd.OutOrStdout(), manager.PushSync)
		},
	}
}
