package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/openmined/trackd/internal/client/session"
	"github.com/spf13/cobra"
)

func newLoginCmd(c *cli) *cobra.Command {
	var email string
	var password string
	var noSync bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and run a first full sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if c.cfg.HasCredentials() {
				fmt.Fprintln(out, green.Render("Already logged in as "+c.cfg.Email))
				return nil
			}

			if email == "" {
				email = c.cfg.Email
			}
			if password == "" {
				password = os.Getenv(envPrefix + "_PASSWORD")
			}

			m, err := session.NewManager(c.cfg)
			if err != nil {
				return err
			}

			var s *session.Session
			switch {
			case email != "" && password != "":
				s, err = m.Login(cmd.Context(), email, password)
			case isInteractive(cmd):
				err = runLoginTUI(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), loginTUIOpts{
					Email:     email,
					ServerURL: c.cfg.ServerURL,
					Submit: func(email, password string) error {
						var loginErr error
						s, loginErr = m.Login(cmd.Context(), email, password)
						return loginErr
					},
				})
			default:
				return errors.New("email and password are required (--email, --password or TRACKD_PASSWORD)")
			}
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintln(out, green.Render("Logged in as "+s.Email()))
			logConfig(cmd, c)

			if noSync {
				return nil
			}
			manager := s.Engine().Manager
			return runSync(cmd.Context(), manager, out, manager.ForceFullSync)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password, prompted for on a terminal when omitted")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip the first full sync")
	return cmd
}

// isInteractive reports whether the command reads from and writes to a terminal
func isInteractive(cmd *cobra.Command) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isatty.IsTerminal(in.Fd()) {
		return false
	}
	out, ok := cmd.OutOrStdout().(*os.File)
	return ok && isatty.IsTerminal(out.Fd())
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and delete the local data",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := session.NewManager(c.cfg)
			if err != nil {
				return err
			}
			if err := m.Logout(cmd.Context()); err != nil {
				if errors.Is(err, session.ErrNotLoggedIn) {
					fmt.Fprintln(cmd.OutOrStdout(), gray.Render("Not logged in"))
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("Logged out"))
			return nil
		},
	}
}
