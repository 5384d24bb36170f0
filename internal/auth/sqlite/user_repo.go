// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pachiledger/authcore/internal/auth"
)

const userColumns = `id, username, email, password_hash, salt, created_at, last_login,
	is_active, failed_login_attempts, locked_until, password_changed_at`

type userRow struct {
	ID                string        `db:"id"`
	Username          string        `db:"username"`
	Email             string        `db:"email"`
	PasswordHash      string        `db:"password_hash"`
	Salt              string        `db:"salt"`
	CreatedAt         int64         `db:"created_at"`
	LastLogin         sql.NullInt64 `db:"last_login"`
	IsActive          bool          `db:"is_active"`
	FailedAttempts    int           `db:"failed_login_attempts"`
	LockedUntil       sql.NullInt64 `db:"locked_until"`
	PasswordChangedAt int64         `db:"password_changed_at"`
}

func newUserRow(u *auth.User) userRow {
	return userRow{
		ID:                u.ID.String(),
		Username:          u.Username,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Salt:              u.Salt,
		CreatedAt:         toNanos(u.CreatedAt),
		LastLogin:         nullNanos(u.LastLogin),
		IsActive:          u.IsActive,
		FailedAttempts:    u.FailedAttempts,
		LockedUntil:       nullNanos(u.LockedUntil),
		PasswordChangedAt: toNanos(u.PasswordChangedAt),
	}
}

func (r userRow) user() (*auth.User, error) {
	id, err := parseID(r.ID, "users.id")
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:                id,
		Username:          r.Username,
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		Salt:              r.Salt,
		CreatedAt:         fromNanos(r.CreatedAt),
		LastLogin:         timePtr(r.LastLogin),
		IsActive:          r.IsActive,
		FailedAttempts:    r.FailedAttempts,
		LockedUntil:       timePtr(r.LockedUntil),
		PasswordChangedAt: fromNanos(r.PasswordChangedAt),
	}, nil
}

// UserRepository implements auth.UserRepository using SQLite.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :username, :email, :password_hash, :salt, :created_at, :last_login,
			:is_active, :failed_login_attempts, :locked_until, :password_changed_at)
	`, newUserRow(user))
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
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return row.user()
}

// FindByIdentifier retrieves an active user by username or email.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active AND (username = ? OR email = ?)
	`, identifier, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").With("operation", "find user by identifier").Wrap(err)
	}
	return row.user()
}

// IncrementFailedAttempts bumps the counter in one statement.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.db.GetContext(ctx, &attempts, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = ?
		RETURNING failed_login_attempts
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
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
	var until int64
	err := r.db.GetContext(ctx, &until, `
		UPDATE users
		SET locked_until = ?, failed_login_attempts = failed_login_attempts + ?
		WHERE id = ? AND (locked_until IS NULL OR locked_until <= ?)
		RETURNING locked_until
	`, toNanos(lockedUntil), strikes, id.String(), toNanos(now))
	if err == nil {
		return fromNanos(until), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, oops.Code("USER_UPDATE_FAILED").
			With("operation", "apply lock").
			With("user_id", id.String()).
			Wrap(err)
	}

	var existing sql.NullInt64
	err = r.db.GetContext(ctx, &existing, `SELECT locked_until FROM users WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, false, oops.Code("USER_GET_FAILED").
			With("operation", "read lock").
			With("user_id", id.String()).
			Wrap(err)
	}
	if !existing.Valid {
		return time.Time{}, false, nil
	}
	return fromNanos(existing.Int64), false, nil
}

// ClearLock clears locked_until and the counter.
func (r *UserRepository) ClearLock(ctx context.Context, id ulid.ULID) error {
	return r.execOne(ctx, "clear lock", id, `
		UPDATE users SET locked_until = NULL, failed_login_attempts = 0 WHERE id = ?
	`)
}

// RecordLogin stamps last_login and resets lock state.
func (r *UserRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.execOne(ctx, "record login", id, `
		UPDATE users
		SET last_login = ?, locked_until = NULL, failed_login_attempts = 0
		WHERE id = ?
	`, toNanos(at))
}

// UpdatePassword replaces the password hash and salt.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash, salt string, changedAt time.Time) error {
	return r.execOne(ctx, "update password", id, `
		UPDATE users SET password_hash = ?, salt = ?, password_changed_at = ? WHERE id = ?
	`, passwordHash, salt, toNanos(changedAt))
}

// SetActive flips the active flag.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.execOne(ctx, "set active", id, `UPDATE users SET is_active = ? WHERE id = ?`, active)
}

// CountActive returns the number of active users.
func (r *UserRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM users WHERE is_active`); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").With("operation", "count active users").Wrap(err)
	}
	return n, nil
}

// CountLocked returns the number of users locked at now.
func (r *UserRepository) CountLocked(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM users WHERE locked_until > ?`, toNanos(now)); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").With("operation", "count locked users").Wrap(err)
	}
	return n, nil
}

// execOne runs an update whose trailing placeholder is the user id.
func (r *UserRepository) execOne(ctx context.Context, operation string, id ulid.ULID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append(args, id.String())...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("user_id", id.String()).
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", operation).Wrap(err)
	}
	if n == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}
