// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pachiledger/authcore/internal/config"
)

func newMigrateCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply pending migrations to the credential store. With no subcommand
all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps, flags)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps, flags)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, flags, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, flags, func(m Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				suffix := ""
				if dirty {
					suffix = " (dirty)"
				}
				cmd.Printf("Version: %d%s\nPending: %d\n", v, suffix, len(pending))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as VERSION without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, flags, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force").With("version", v).Wrap(err)
				}
				cmd.Printf("Forced version %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, deps *Deps, flags *rootFlags) error {
	cfg, logger, err := loadConfig(cmd, deps, flags)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverSQLite {
		// the sqlite schema is idempotent and applied on open
		_, release, err := deps.StoresOpener(cmd.Context(), cfg, logger)
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
		}
		release()
		cmd.Println("SQLite schema is up to date")
		return nil
	}
	return migrateWith(cmd, deps, cfg, func(m Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})
}

func withMigrator(cmd *cobra.Command, deps *Deps, flags *rootFlags, fn func(Migrator) error) error {
	cfg, _, err := loadConfig(cmd, deps, flags)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return oops.Code("MIGRATION_UNSUPPORTED").
			With("driver", cfg.Database.Driver).
			Errorf("%s only applies to the postgres driver", cmd.Name())
	}
	return migrateWith(cmd, deps, cfg, fn)
}

func migrateWith(_ *cobra.Command, deps *Deps, cfg *config.Config, fn func(Migrator) error) error {
	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

// parseForceVersion reads a leading integer; trailing characters are ignored.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return v, nil
}
