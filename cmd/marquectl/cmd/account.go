package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
)

type accountView struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	Groups    []string `json:"groups"`
	Banned    bool     `json:"banned"`
	MFA       bool     `json:"mfa"`
	CreatedAt string   `json:"created_at"`
}

func viewAccount(a domain.Account) accountView {
	return accountView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Groups:    a.Groups,
		Banned:    a.Banned,
		MFA:       a.HasMFA(),
		CreatedAt: formatTime(a.CreatedAt),
	}
}

func newAccountCmd(opts *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	c.AddCommand(
		newAccountCreateCmd(opts),
		newAccountListCmd(opts),
		newAccountBanCmd(opts, true),
		newAccountBanCmd(opts, false),
		newAccountDeleteCmd(opts),
	)
	return c
}

func newAccountCreateCmd(opts *options) *cobra.Command {
	var (
		email    string
		password string
		admin    bool
		groups   []string
	)
	c := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a local account",
		Long:  "Create a local account. Without --password a random one is generated and printed once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generated := false
			if password == "" {
				p, err := cryptox.GeneratePassword()
				if err != nil {
					return err
				}
				password, generated = p, true
			}
			if admin {
				groups = append(groups, domain.GroupAdmin, domain.GroupUser)
			}

			return opts.withEnv(func(e *env) error {
				a, err := e.accounts.Create(cmd.Context(), service.CreateAccountRequest{
					Username: args[0],
					Email:    email,
					Password: password,
					Groups:   groups,
				})
				if err != nil {
					return fmt.Errorf("create account: %w", err)
				}

				out := cmd.OutOrStdout()
				if opts.output == "json" {
					v := struct {
						accountView
						Password string `json:"password,omitempty"`
					}{accountView: viewAccount(a)}
					if generated {
						v.Password = password
					}
					return printJSON(out, v)
				}
				fmt.Fprintf(out, "created %s (%s) groups=%s\n", a.Username, a.ID, strings.Join(a.Groups, ","))
				if generated {
					fmt.Fprintf(out, "password: %s\n", password)
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&email, "email", "", "Email address")
	c.Flags().StringVar(&password, "password", "", "Password (generated when empty)")
	c.Flags().BoolVar(&admin, "admin", false, "Add the account to the admin group")
	c.Flags().StringSliceVar(&groups, "group", nil, "Extra group (repeatable)")
	return c
}

func newAccountListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(func(e *env) error {
				accounts, err := e.accounts.List(cmd.Context())
				if err != nil {
					return err
				}
				views := make([]accountView, 0, len(accounts))
				for _, a := range accounts {
					views = append(views, viewAccount(a))
				}

				out := cmd.OutOrStdout()
				if opts.output == "json" {
					return printJSON(out, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(out, "No accounts found.")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						v.ID, v.Username, strings.Join(v.Groups, ","),
						fmt.Sprint(v.Banned), fmt.Sprint(v.MFA), v.CreatedAt,
					})
				}
				printTable(out, []string{"ID", "USERNAME", "GROUPS", "BANNED", "MFA", "CREATED"}, rows)
				return nil
			})
		},
	}
}

func newAccountBanCmd(opts *options, banned bool) *cobra.Command {
	use, short := "ban <username>", "Ban an account and revoke its sessions"
	if !banned {
		use, short = "unban <username>", "Lift a ban"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(func(e *env) error {
				a, err := e.accounts.GetByUsername(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("account %s: %w", args[0], err)
				}
				if err := e.admin.SetBanned(cmd.Context(), Actor, a.ID, banned); err != nil {
					return err
				}
				verb := "banned"
				if !banned {
					verb = "unbanned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, a.Username)
				return nil
			})
		},
	}
}

func newAccountDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account with its sessions, identities and passkeys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(func(e *env) error {
				a, err := e.accounts.GetByUsername(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("account %s: %w", args[0], err)
				}
				if err := e.admin.DeleteAccount(cmd.Context(), Actor, a.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", a.Username)
				return nil
			})
		},
	}
}
