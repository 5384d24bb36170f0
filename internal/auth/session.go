// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes     = 32 // 32 bytes = 43 base64url chars
	DefaultSessionTimeout = 24 * time.Hour
)

// Session is a bearer credential owned by a user. Only the SHA-256 of the
// token is kept.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsActive  bool
	IPAddress string
	UserAgent string
}

// NewSession creates a validated, active Session.
func NewSession(userID ulid.ULID, tokenHash, ipAddress, userAgent string, createdAt, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}
	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		IsActive:  true,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}, nil
}

// IsExpiredAt reports whether the session is past its expiry at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a random token and its hash.
// The plaintext goes to the client; the hash goes to the store.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	token = base64.RawURLEncoding.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the hex SHA-256 of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetActiveByTokenHash returns the active session with the given token
	// hash, expired or not. Returns ErrNotFound otherwise.
	GetActiveByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Deactivate marks a session inactive. Deactivating an inactive session
	// is not an error.
	Deactivate(ctx context.Context, id ulid.ULID) error

	// DeactivateByTokenHash marks the session inactive and reports whether
	// an active row was changed, and whose it was.
	DeactivateByTokenHash(ctx context.Context, tokenHash string) (userID ulid.ULID, changed bool, err error)

	// DeactivateByUser marks every active session of a user inactive.
	DeactivateByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// CountActive counts active, unexpired sessions at now.
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// SessionManager issues, validates and revokes bearer tokens.
type SessionManager struct {
	sessions SessionRepository
	users    UserRepository
	ttl      time.Duration
	logger   *slog.Logger
	clock    func() time.Time
}

// NewSessionManager creates a SessionManager. A non-positive ttl selects
// DefaultSessionTimeout; nil logger and clock select the defaults.
func NewSessionManager(sessions SessionRepository, users UserRepository, ttl time.Duration, logger *slog.Logger, clock func() time.Time) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{sessions: sessions, users: users, ttl: ttl, logger: logger, clock: clock}
}

// Issue creates a session for userID and returns the plaintext token.
func (m *SessionManager) Issue(ctx context.Context, userID ulid.ULID, ipAddress, userAgent string) (string, *Session, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, err
	}

	now := m.clock()
	session, err := NewSession(userID, tokenHash, ipAddress, userAgent, now, now.Add(m.ttl))
	if err != nil {
		return "", nil, err
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, storeUnavailable(m.logger, "create session", err)
	}
	return token, session, nil
}

// Validate returns the owner of token, or nil when the token is unknown,
// revoked or expired. An expired session is deactivated on first sight.
func (m *SessionManager) Validate(ctx context.Context, token string) (*UserSummary, error) {
	if token == "" {
		return nil, nil
	}

	session, err := m.sessions.GetActiveByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, storeUnavailable(m.logger, "get session", err)
	}

	if session.IsExpiredAt(m.clock()) {
		// Concurrent validators may both get here; deactivation is idempotent.
		if err := m.sessions.Deactivate(ctx, session.ID); err != nil {
			m.logger.WarnContext(ctx, "failed to deactivate expired session",
				"session_id", session.ID.String(),
				"error", err)
		}
		return nil, nil
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, storeUnavailable(m.logger, "get session owner", err)
	}
	if !user.IsActive {
		return nil, nil
	}

	summary := user.Summary()
	return &summary, nil
}

// Revoke deactivates the session for token and reports whether an active
// session was changed.
func (m *SessionManager) Revoke(ctx context.Context, token string) (bool, error) {
	_, changed, err := m.revoke(ctx, token)
	return changed, err
}

func (m *SessionManager) revoke(ctx context.Context, token string) (ulid.ULID, bool, error) {
	if token == "" {
		return ulid.ULID{}, false, nil
	}
	userID, changed, err := m.sessions.DeactivateByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		return ulid.ULID{}, false, storeUnavailable(m.logger, "revoke session", err)
	}
	return userID, changed, nil
}

// RevokeAll deactivates every session of userID.
func (m *SessionManager) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := m.sessions.DeactivateByUser(ctx, userID)
	if err != nil {
		return 0, storeUnavailable(m.logger, "revoke user sessions", err)
	}
	return n, nil
}
