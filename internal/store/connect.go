// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package store connects to PostgreSQL and manages the auth schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectRetries is how often a failed startup connection is retried.
const DefaultConnectRetries = 5

const connectBackoff = 250 * time.Millisecond

// Connect opens a pgx pool for databaseURL and pings it, retrying with
// exponential backoff while the server is unreachable. A malformed URL is
// not retried.
func Connect(ctx context.Context, databaseURL string, retries uint64, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_URL").Wrap(err)
	}

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(connectBackoff))
	err = withRetry(ctx, backoff, logger, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("database", cfg.ConnConfig.Database).
			Wrap(err)
	}
	return pool, nil
}

// withRetry runs attempt until it succeeds, the backoff is exhausted or
// ctx is done. Every failure is treated as retryable.
func withRetry(ctx context.Context, backoff retry.Backoff, logger *slog.Logger, attempt func(context.Context) error) error {
	n := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		n++
		if err := attempt(ctx); err != nil {
			logger.WarnContext(ctx, "database not reachable", "attempt", n, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
