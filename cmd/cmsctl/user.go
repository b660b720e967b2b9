package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"madajagad/internal/services"
)

func newUserCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Admin account management",
	}
	cmd.AddCommand(newUserCreateCommand(rt), newUserListCommand(rt), newUserPasswdCommand(rt))
	return cmd
}

func newUserCreateCommand(rt *runtime) *cobra.Command {
	var (
		email    string
		password string
		name     string
		roles    []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account and grant roles",
		Example: "  cmsctl user create --email admin@example.com --password 's3cretpass' --role admin\n" +
			"  cmsctl user create --email editor@example.com --password 's3cretpass' --role editor --name Editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" || password == "" {
				return fmt.Errorf("user create requires --email and --password")
			}
			for _, r := range roles {
				if !services.ValidRole(r) {
					return fmt.Errorf("unknown role %q", r)
				}
			}
			ctx := cmd.Context()
			u, err := rt.users.Create(ctx, email, password, name)
			if err != nil {
				return err
			}
			for _, r := range roles {
				if err := rt.roles.Grant(ctx, u.ID, r); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user id=%s email=%s roles=%s\n", u.ID, u.Email, strings.Join(roles, ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant: admin, editor or viewer (repeatable)")
	return cmd
}

func newUserListCommand(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List accounts with their roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			users, err := rt.users.List(ctx, limit)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			roles, err := rt.roles.RolesOf(ctx, ids)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLES\tMFA\tLAST LOGIN")
			for _, u := range users {
				last := "-"
				if u.LastLoginAt != nil {
					last = u.LastLoginAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", u.ID, u.Email, u.Name, strings.Join(roles[u.ID], ","), u.MFAEnabled, last)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum accounts to list")
	return cmd
}

func newUserPasswdCommand(rt *runtime) *cobra.Command {
	var (
		email    string
		password string
	)
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Reset an account password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			u, err := rt.users.FindByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("find %s: %w", email, err)
			}
			if err := rt.users.SetPassword(ctx, u.ID, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRoleCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Role assignment",
	}
	cmd.AddCommand(
		newRoleChangeCommand(rt, "grant", "Grant a role to an account"),
		newRoleChangeCommand(rt, "revoke", "Revoke a role from an account"),
		&cobra.Command{
			Use:   "ls <email>",
			Short: "Show the roles of an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				u, err := rt.users.FindByEmail(ctx, args[0])
				if err != nil {
					return fmt.Errorf("find %s: %w", args[0], err)
				}
				roles, err := rt.roles.Roles(ctx, u.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(roles, "\n"))
				return nil
			},
		},
	)
	return cmd
}

func newRoleChangeCommand(rt *runtime, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <email> <role>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			role := strings.ToLower(strings.TrimSpace(args[1]))
			if !services.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			u, err := rt.users.FindByEmail(ctx, args[0])
			if err != nil {
				return fmt.Errorf("find %s: %w", args[0], err)
			}
			if action == "grant" {
				err = rt.roles.Grant(ctx, u.ID, role)
			} else {
				err = rt.roles.Revoke(ctx, u.ID, role)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", action, u.Email, role)
			return nil
		},
	}
}
