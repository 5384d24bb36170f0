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

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool poolIface
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, created_at, expires_at, is_active, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.TokenHash,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsActive,
		nullString(session.IPAddress),
		nullString(session.UserAgent),
	)
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
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, is_active, ip_address, user_agent
		FROM user_sessions
		WHERE token_hash = $1 AND is_active
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Deactivate marks a session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `UPDATE user_sessions SET is_active = FALSE WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DEACTIVATE_FAILED").With("session_id", id.String()).Wrap(err)
	}
	return nil
}

// DeactivateByTokenHash deactivates the active session with tokenHash.
func (r *SessionRepository) DeactivateByTokenHash(ctx context.Context, tokenHash string) (ulid.ULID, bool, error) {
	var userID string
	err := r.pool.QueryRow(ctx, `
		UPDATE user_sessions SET is_active = FALSE
		WHERE token_hash = $1 AND is_active
		RETURNING user_id
	`, tokenHash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active
	`, userID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// CountActive counts active, unexpired sessions at now.
func (r *SessionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM user_sessions WHERE is_active AND expires_at > $1
	`, now).Scan(&n)
	if err != nil {
		return 0, oops.Code("SESSION_COUNT_FAILED").Wrap(err)
	}
	return n, nil
}

func scanSession(row scanner) (*auth.Session, error) {
	var (
		session       auth.Session
		idStr, userID string
		ip, agent     *string
	)
	err := row.Scan(
		&idStr,
		&userID,
		&session.TokenHash,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.IsActive,
		&ip,
		&agent,
	)
	if err != nil {
		return nil, err
	}
	if session.ID, err = parseID(idStr, "user_sessions.id"); err != nil {
		return nil, err
	}
	if session.UserID, err = parseID(userID, "user_sessions.user_id"); err != nil {
		return nil, err
	}
	session.IPAddress = derefString(ip)
	session.UserAgent = derefString(agent)
	return &session, nil
}
