// Command lemurctl runs operator tasks against the member area: role
// activation, authentication settings and account maintenance.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/app"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/jobs"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withContainer loads the configuration and runs fn against a fresh container.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx := cmd.Context()
	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lemurctl",
		Short:         "Operate the Lemur member area",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(activateCmd(), authModeCmd(), sessionDaysCmd(), userCmd(), themeCmd())
	return cmd
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Apply migrations and register the club roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if err := c.Bootstrap(ctx); err != nil {
					return err
				}
				cmd.Println("roles registered")
				return nil
			})
		},
	}
}

func authModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth-mode",
		Short: "Inspect or change the authentication mode",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the effective authentication mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				cmd.Println(c.Modes.Mode(ctx))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <oauth|backup|both>",
		Short: "Store the authentication mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				mode, err := c.Modes.SetMode(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("authentication mode: %s\n", mode)
				return nil
			})
		},
	})
	return cmd
}

func sessionDaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session-days",
		Short: "Manage the member session lifetime",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <days>",
		Short: "Store the member session lifetime, clamped to 1..30",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid day count %q", args[0])
			}
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				stored, err := c.Sessions.SetSessionDays(ctx, days)
				if err != nil {
					return err
				}
				cmd.Printf("member sessions last %d days\n", stored)
				return nil
			})
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset-password <id>",
		Short: "Replace a password and close the member session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				password, err := c.Auth.ResetPassword(ctx, id)
				if err != nil {
					return err
				}
				cmd.Printf("new password for user %d: %s\n", id, password)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync <id> [groups...]",
		Short: "Apply Galette groups to a user, or queue a Galette sync when none are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			groups := args[1:]
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if len(groups) == 0 {
					if err := jobs.Enqueue(ctx, c.Redis, c.Config.Worker.Stream, jobs.TypeGaletteSync, id); err != nil {
						return err
					}
					cmd.Printf("galette sync queued for user %d\n", id)
					return nil
				}
				role, err := c.Sync.SyncGaletteRole(ctx, id, groups)
				if err != nil {
					return err
				}
				cmd.Printf("user %d now has role %s\n", id, role)
				return nil
			})
		},
	})

	cmd.AddCommand(accountCmd("suspend <id>", "Suspend an account and close its member session",
		func(ctx context.Context, c *app.Container, id int64) error { return c.Accounts.Suspend(ctx, id) }, "suspended"))
	cmd.AddCommand(accountCmd("reactivate <id>", "Reactivate a suspended account",
		func(ctx context.Context, c *app.Container, id int64) error { return c.Accounts.Reactivate(ctx, id) }, "reactivated"))
	cmd.AddCommand(accountCmd("grant-admin <id>", "Grant the administrator role",
		func(ctx context.Context, c *app.Container, id int64) error {
			return c.Accounts.GrantAdministrator(ctx, id)
		}, "is now an administrator"))
	return cmd
}

func accountCmd(use, short string, apply func(ctx context.Context, c *app.Container, id int64) error, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if err := apply(ctx, c, id); err != nil {
					return err
				}
				cmd.Printf("user %d %s\n", id, done)
				return nil
			})
		},
	}
}

func themeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Manage theme templates in object storage",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "put-403 <file>",
		Short: "Upload the access denied page template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			body := string(raw)
			if err := guard.ValidateTemplate(body); err != nil {
				return fmt.Errorf("invalid template: %w", err)
			}
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if c.Themes == nil {
					return fmt.Errorf("theme store not configured")
				}
				if err := c.Themes.PutTemplate(ctx, guard.DeniedTemplate, body); err != nil {
					return err
				}
				cmd.Printf("uploaded %s\n", guard.DeniedTemplate)
				return nil
			})
		},
	})
	return cmd
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}
