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

type sessionRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	TokenHash string         `db:"token_hash"`
	CreatedAt int64          `db:"created_at"`
	ExpiresAt int64          `db:"expires_at"`
	IsActive  bool           `db:"is_active"`
	IPAddress sql.NullString `db:"ip_address"`
	UserAgent sql.NullString `db:"user_agent"`
}

func (r sessionRow) session() (*auth.Session, error) {
	id, err := parseID(r.ID, "user_sessions.id")
	if err != nil {
		return nil, err
	}
	userID, err := parseID(r.UserID, "user_sessions.user_id")
	if err != nil {
		return nil, err
	}
	return &auth.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: r.TokenHash,
		CreatedAt: fromNanos(r.CreatedAt),
		ExpiresAt: fromNanos(r.ExpiresAt),
		IsActive:  r.IsActive,
		IPAddress: r.IPAddress.String,
		UserAgent: r.UserAgent.String,
	}, nil
}

// SessionRepository implements auth.SessionRepository using SQLite.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, created_at, expires_at, is_active, ip_address, user_agent)
		VALUES (:id, :user_id, :token_hash, :created_at, :expires_at, :is_active, :ip_address, :user_agent)
	`, sessionRow{
		ID:        session.ID.String(),
		UserID:    session.UserID.String(),
		TokenHash: session.TokenHash,
		CreatedAt: toNanos(session.CreatedAt),
		ExpiresAt: toNanos(session.ExpiresAt),
		IsActive:  session.IsActive,
		IPAddress: nullString(session.IPAddress),
		UserAgent: nullString(session.UserAgent),
	})
	if isUniqueViolation(err) {
		return oops.Code("SESSION_DUPLICATE").Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetActiveByTokenHash retrieves the active session with tokenHash.
func (r *SessionRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, token_hash, created_at, expires_at, is_active, ip_address, user_agent
		FROM user_sessions
		WHERE token_hash = ? AND is_active
	`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return row.session()
}

// Deactivate marks a session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE user_sessions SET is_active = 0 WHERE id = ?`, id.String()); err != nil {
		return oops.Code("SESSION_DEACTIVATE_FAILED").With("session_id", id.String()).Wrap(err)
	}
	return nil
}

// DeactivateByTokenHash deactivates the active session with tokenHash.
func (r *SessionRepository) DeactivateByTokenHash(ctx context.Context, tokenHash string) (ulid.ULID, bool, error) {
	var userID string
	err := r.db.GetContext(ctx, &userID, `
		UPDATE user_sessions SET is_active = 0
		WHERE token_hash = ? AND is_active
		RETURNING user_id
	`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return ulid.ULID{}, false, nil
	}
	if err != nil {
		return ulid.ULID{}, false, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session by token hash").
			Wrap(err)
	}
	id, err := parseID(userID, "user_sessions.user_id")
	if err != nil {
		return ulid.ULID{}, true, err
	}
	return id, true, nil
}

// DeactivateByUser deactivates every active session of userID.
func (r *SessionRepository) DeactivateByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions SET is_active = 0 WHERE user_id = ? AND is_active
	`, userID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_FAILED").Wrap(err)
	}
	return n, nil
}

// CountActive counts active, unexpired sessions at now.
func (r *SessionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT count(*) FROM user_sessions WHERE is_active AND expires_at > ?
	`, toNanos(now))
	if err != nil {
		return 0, oops.Code("SESSION_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}
