// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/pachiledger/authcore/internal/auth"
	"github.com/pachiledger/authcore/internal/auth/postgres"
	"github.com/pachiledger/authcore/internal/auth/sqlite"
	"github.com/pachiledger/authcore/internal/cipher"
	"github.com/pachiledger/authcore/internal/config"
	"github.com/pachiledger/authcore/internal/observability"
	"github.com/pachiledger/authcore/internal/store"
	"github.com/pachiledger/authcore/internal/xdg"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// ConfigLoader builds the configuration.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (*config.Config, error)

	// StoresOpener opens the configured credential store. The returned
	// func releases it.
	// Default: openStores
	StoresOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Stores, func(), error)

	// KeyLoader returns the field encryption key.
	// Default: loadKey
	KeyLoader func(cfg *config.Config) (key []byte, created bool, err error)

	// MigratorFactory creates a PostgreSQL migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, source observability.SummarySource, interval time.Duration, logger *slog.Logger) ObservabilityServer
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.ConfigLoader == nil {
		out.ConfigLoader = config.Load
	}
	if out.StoresOpener == nil {
		out.StoresOpener = openStores
	}
	if out.KeyLoader == nil {
		out.KeyLoader = loadKey
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, source observability.SummarySource, interval time.Duration, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, source, interval, logger)
		}
	}
	return &out
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Stores, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		path := cfg.Database.SQLitePath
		if path != sqlite.MemoryPath {
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return auth.Stores{}, nil, err
			}
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return auth.Stores{}, nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			_ = db.Close() //nolint:errcheck // migration error takes precedence
			return auth.Stores{}, nil, err
		}
		logger.Debug("opened sqlite store", "path", path)
		return sqlite.NewStores(db), func() { _ = db.Close() }, nil
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectRetries, logger)
		if err != nil {
			return auth.Stores{}, nil, err
		}
		return postgres.NewStores(pool), pool.Close, nil
	default:
		return auth.Stores{}, nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Database.Driver).
			Errorf("unknown database driver")
	}
}

// loadKey prefers an inline key and falls back to the key file, creating
// it on first use.
func loadKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.Encryption.Key != "" {
		key, err := cipher.ParseKey(cfg.Encryption.Key)
		return key, false, err
	}
	if cfg.Encryption.KeyFile == "" {
		return nil, false, oops.Code("CONFIG_INVALID").Errorf("encryption.key or encryption.key_file is required")
	}
	return cipher.LoadOrCreateKey(cfg.Encryption.KeyFile)
}
