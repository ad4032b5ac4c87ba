package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions",
	}
	c.AddCommand(&cobra.Command{
		Use:   "revoke <username>",
		Short: "Revoke every session of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(func(e *env) error {
				a, err := e.accounts.GetByUsername(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("account %s: %w", args[0], err)
				}
				n, err := e.admin.RevokeSessions(cmd.Context(), Actor, a.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s) of %s\n", n, a.Username)
				return nil
			})
		},
	})
	return c
}
