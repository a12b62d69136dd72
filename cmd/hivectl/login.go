package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewLoginCommand(g *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("HIVE_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or HIVE_PASSWORD) are required")
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			u, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s> (%s)\n", u.Name, u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", os.Getenv("HIVE_EMAIL"), "Account email.")
	cmd.Flags().StringVar(&password, "password", "", "Account password.")
	return cmd
}

func NewLogoutCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the kept token and remove it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
