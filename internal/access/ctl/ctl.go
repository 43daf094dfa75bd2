// Package ctl implements accessctl, the operator tool for the access
// service database.
//
// It uses urfave/cli/v2 and reads the same environment (and .env file) as
// the server, so it can run next to it with no extra configuration.
package ctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/app"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

const configKey = "config"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "accessctl",
		Usage:   "Ledgerdrop access service maintenance",
		Version: app.BuildVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-driver",
				Usage:   "sqlite or postgres",
				EnvVars: []string{"DATABASE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "database-file",
				Usage:   "SQLite database path",
				EnvVars: []string{"DATABASE_FILE"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := app.LoadConfig()
			if v := c.String("database-driver"); v != "" {
				cfg.DatabaseDriver = v
			}
			if v := c.String("database-file"); v != "" {
				cfg.DatabaseFile = v
			}
			if v := c.String("database-url"); v != "" {
				cfg.DatabaseURL = v
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]any{}
			}
			c.App.Metadata[configKey] = cfg
			return nil
		},
		Commands: []*cli.Command{
			MigrateCommand(),
			PurgeCommand(),
			RevokeSessionsCommand(),
		},
	}
}

func config(c *cli.Context) app.Config {
	cfg, _ := c.App.Metadata[configKey].(app.Config)
	return cfg
}

// withStore opens the configured store for the duration of fn.
func withStore(c *cli.Context, fn func(ctx context.Context, st store.Store) error) error {
	ctx := slogx.WithContext(c.Context, slogx.Discard())

	st, err := app.OpenStore(ctx, config(c))
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}

// MigrateCommand applies pending schema migrations.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(c *cli.Context) error {
			return withStore(c, func(_ context.Context, st store.Store) error {
				if err := st.ApplyMigrations(); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(c.App.Writer, "migrations applied")
				return nil
			})
		},
	}
}

// PurgeCommand runs a single housekeeping pass.
func PurgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete expired tokens past retention and expired sessions",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "retention",
				Usage: "Keep expired tokens this long (defaults to TOKEN_RETENTION)",
			},
		},
		Action: func(c *cli.Context) error {
			retention := config(c).TokenRetention
			if c.IsSet("retention") {
				retention = c.Duration("retention")
			}

			return withStore(c, func(ctx context.Context, st store.Store) error {
				hk := service.NewHousekeepingService(st, slogx.Discard(), time.Hour, retention)
				report, err := hk.RunOnce(ctx)
				fmt.Fprintf(c.App.Writer, "deleted %d tokens, %d sessions\n", report.Tokens, report.Sessions)
				return err
			})
		},
	}
}

// RevokeSessionsCommand signs a user out everywhere.
func RevokeSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "revoke-sessions",
		Usage: "Revoke every session of a user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID or email address",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			return withStore(c, func(ctx context.Context, st store.Store) error {
				user, err := findUser(ctx, st, c.String("user"))
				if err != nil {
					return err
				}

				before, err := st.Sessions().CountActiveUserSessions(ctx, user.ID, time.Now().UTC())
				if err != nil {
					return err
				}
				sessions := &service.SessionService{Store: st}
				if err := sessions.RevokeAll(ctx, user.ID); err != nil {
					return fmt.Errorf("revoke sessions: %w", err)
				}

				fmt.Fprintf(c.App.Writer, "revoked %d active sessions for %s (%s)\n", before, user.Email, user.ID)
				return nil
			})
		},
	}
}

func findUser(ctx context.Context, st store.Store, ref string) (domain.User, error) {
	user, err := st.Users().GetUserByID(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		user, err = st.Users().GetUserByEmail(ctx, domain.NormalizeEmail(ref))
	}
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, cli.Exit(fmt.Sprintf("no user matches %q", ref), 1)
	}
	return user, err
}
