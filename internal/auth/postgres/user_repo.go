// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pachiledger/authcore/internal/auth"
)

const userColumns = `id, username, email, password_hash, salt, created_at, last_login,
	is_active, failed_login_attempts, locked_until, password_changed_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Salt,
		user.CreatedAt,
		user.LastLogin,
		user.IsActive,
		user.FailedAttempts,
		user.LockedUntil,
		user.PasswordChangedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_DUPLICATE").With("username", user.Username).Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID, active or not.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// FindByIdentifier retrieves an active user by username or email.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active AND (username = $1 OR email = $1)
	`, identifier)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").With("operation", "find user by identifier").Wrap(err)
	}
	return user, nil
}

// IncrementFailedAttempts bumps the counter in one statement.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = $1
		RETURNING failed_login_attempts
	`, id.String()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_UPDATE_FAILED").
			With("operation", "increment failed attempts").
			With("user_id", id.String()).
			Wrap(err)
	}
	return attempts, nil
}

// ApplyLock sets locked_until and adds strikes to the counter unless a lock
// is still in force at now. It returns the lock in force afterwards.
func (r *UserRepository) ApplyLock(ctx context.Context, id ulid.ULID, lockedUntil, now time.Time, strikes int) (time.Time, bool, error) {
	var until time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET locked_until = $2, failed_login_attempts = failed_login_attempts + $3
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $4)
		RETURNING locked_until
	`, id.String(), lockedUntil, strikes, now).Scan(&until)
	if err == nil {
		return until, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, oops.Code("USER_UPDATE_FAILED").
			With("operation", "apply lock").
			With("user_id", id.String()).
			Wrap(err)
	}

	var existing *time.Time
	err = r.pool.QueryRow(ctx, `SELECT locked_until FROM users WHERE id = $1`, id.String()).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, false, oops.Code("USER_GET_FAILED").
			With("operation", "read lock").
			With("user_id", id.String()).
			Wrap(err)
	}
	if existing == nil {
		return time.Time{}, false, nil
	}
	return *existing, false, nil
}

// ClearLock clears locked_until and the counter.
func (r *UserRepository) ClearLock(ctx context.Context, id ulid.ULID) error {
	return r.execOne(ctx, "clear lock", id, `
		UPDATE users SET locked_until = NULL, failed_login_attempts = 0 WHERE id = $1
	`)
}

// RecordLogin stamps last_login and resets lock state.
func (r *UserRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.execOne(ctx, "record login", id, `
		UPDATE users
		SET last_login = $2, locked_until = NULL, failed_login_attempts = 0
		WHERE id = $1
	`, at)
}

// UpdatePassword replaces the password hash and salt.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash, salt string, changedAt time.Time) error {
	return r.execOne(ctx, "update password", id, `
		UPDATE users SET password_hash = $2, salt = $3, password_changed_at = $4 WHERE id = $1
	`, passwordHash, salt, changedAt)
}

// SetActive flips the active flag.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.execOne(ctx, "set active", id, `UPDATE users SET is_active = $2 WHERE id = $1`, active)
}

// CountActive returns the number of active users.
func (r *UserRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE is_active`).Scan(&n); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").With("operation", "count active users").Wrap(err)
	}
	return n, nil
}

// CountLocked returns the number of users locked at now.
func (r *UserRepository) CountLocked(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE locked_until > $1`, now).Scan(&n); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").With("operation", "count locked users").Wrap(err)
	}
	return n, nil
}

func (r *UserRepository) execOne(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row scanner) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)
	err := row.Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Salt,
		&user.CreatedAt,
		&user.LastLogin,
		&user.IsActive,
		&user.FailedAttempts,
		&user.LockedUntil,
		&user.PasswordChangedAt,
	)
	if err != nil {
		return nil, err
	}
	if user.ID, err = parseID(idStr, "users.id"); err != nil {
		return nil, err
	}
	return &user, nil
}
