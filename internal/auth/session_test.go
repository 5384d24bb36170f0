// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pachiledger/authcore/internal/auth"
	"github.com/pachiledger/authcore/internal/auth/mocks"
	"github.com/pachiledger/authcore/pkg/errutil"
)

func TestGenerateSessionToken(t *testing.T) {
	token, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.Len(t, hash, 64)
	assert.Equal(t, auth.HashSessionToken(token), hash)

	other, _, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashSessionToken_Deterministic(t *testing.T) {
	assert.Equal(t, auth.HashSessionToken("abc"), auth.HashSessionToken("abc"))
	assert.NotEqual(t, auth.HashSessionToken("abc"), auth.HashSessionToken("abd"))
}

func TestNewSession(t *testing.T) {
	userID := ulid.Make()
	now := noon

	t.Run("valid", func(t *testing.T) {
		s, err := auth.NewSession(userID, "hash", "10.0.0.1", "curl", now, now.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, s.IsActive)
		assert.Equal(t, userID, s.UserID)
		assert.False(t, s.IsExpiredAt(now))
		assert.True(t, s.IsExpiredAt(now.Add(time.Hour)))
	})

	t.Run("zero user", func(t *testing.T) {
		_, err := auth.NewSession(ulid.ULID{}, "hash", "", "", now, now.Add(time.Hour))
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_USER")
	})

	t.Run("empty hash", func(t *testing.T) {
		_, err := auth.NewSession(userID, "", "", "", now, now.Add(time.Hour))
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_HASH")
	})

	t.Run("expiry not after creation", func(t *testing.T) {
		_, err := auth.NewSession(userID, "hash", "", "", now, now)
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_EXPIRY")
	})
}

func TestSessionManager_Issue(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	users := mocks.NewMockUserRepository(t)
	clock := newFakeClock(noon)
	mgr := auth.NewSessionManager(sessions, users, 2*time.Hour, discardLogger(), clock.Now)

	userID := ulid.Make()
	sessions.On("Create", ctx, mock.MatchedBy(func(s *auth.Session) bool {
		return s.UserID == userID && s.ExpiresAt.Equal(noon.Add(2*time.Hour)) && s.IPAddress == "10.0.0.1"
	})).Return(nil)

	token, session, err := mgr.Issue(ctx, userID, "10.0.0.1", "curl")
	require.NoError(t, err)
	assert.Equal(t, auth.HashSessionToken(token), session.TokenHash)
	assert.NotEqual(t, token, session.TokenHash)
}

func TestSessionManager_Issue_StoreFailure(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	mgr := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), 0, discardLogger(), nil)

	sessions.On("Create", ctx, mock.Anything).Return(errors.New("connection reset"))

	_, _, err := mgr.Issue(ctx, ulid.Make(), "", "")
	errutil.AssertErrorCode(t, err, string(auth.KindStoreUnavailable))
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestSessionManager_Validate(t *testing.T) {
	ctx := context.Background()
	user := &auth.User{ID: ulid.Make(), Username: "alice", Email: "a@x.com", IsActive: true}

	liveSession := func(token string) *auth.Session {
		return &auth.Session{
			ID:        ulid.Make(),
			UserID:    user.ID,
			TokenHash: auth.HashSessionToken(token),
			CreatedAt: noon.Add(-time.Hour),
			ExpiresAt: noon.Add(time.Hour),
			IsActive:  true,
		}
	}

	t.Run("empty token", func(t *testing.T) {
		mgr := auth.NewSessionManager(mocks.NewMockSessionRepository(t), mocks.NewMockUserRepository(t), 0, discardLogger(), nil)
		got, err := mgr.Validate(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown token", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		sessions.On("GetActiveByTokenHash", ctx, auth.HashSessionToken("nope")).Return(nil, auth.ErrNotFound)
		mgr := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), 0, discardLogger(), nil)

		got, err := mgr.Validate(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("live session returns owner", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		users := mocks.NewMockUserRepository(t)
		sessions.On("GetActiveByTokenHash", ctx, auth.HashSessionToken("tok")).Return(liveSession("tok"), nil)
		users.On("GetByID", ctx, user.ID).Return(user, nil)
		mgr := auth.NewSessionManager(sessions, users, 0, discardLogger(), newFakeClock(noon).Now)

		got, err := mgr.Validate(ctx, "tok")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, user.Summary(), *got)
	})

	t.Run("expired session is deactivated", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		users := mocks.NewMockUserRepository(t)
		s := liveSession("tok")
		sessions.On("GetActiveByTokenHash", ctx, s.TokenHash).Return(s, nil).Once()
		sessions.On("Deactivate", ctx, s.ID).Return(nil).Once()
		sessions.On("GetActiveByTokenHash", ctx, s.TokenHash).Return(nil, auth.ErrNotFound).Once()
		clock := newFakeClock(noon.Add(2 * time.Hour))
		mgr := auth.NewSessionManager(sessions, users, 0, discardLogger(), clock.Now)

		got, err := mgr.Validate(ctx, "tok")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = mgr.Validate(ctx, "tok")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		s := liveSession("tok")
		sessions.On("GetActiveByTokenHash", ctx, s.TokenHash).Return(s, nil)
		sessions.On("Deactivate", ctx, s.ID).Return(nil)
		mgr := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), 0, discardLogger(), newFakeClock(s.ExpiresAt).Now)

		got, err := mgr.Validate(ctx, "tok")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("inactive owner", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		users := mocks.NewMockUserRepository(t)
		inactive := *user
		inactive.IsActive = false
		sessions.On("GetActiveByTokenHash", ctx, mock.Anything).Return(liveSession("tok"), nil)
		users.On("GetByID", ctx, user.ID).Return(&inactive, nil)
		mgr := auth.NewSessionManager(sessions, users, 0, discardLogger(), newFakeClock(noon).Now)

		got, err := mgr.Validate(ctx, "tok")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("missing owner", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		users := mocks.NewMockUserRepository(t)
		sessions.On("GetActiveByTokenHash", ctx, mock.Anything).Return(liveSession("tok"), nil)
		users.On("GetByID", ctx, user.ID).Return(nil, auth.ErrNotFound)
		mgr := auth.NewSessionManager(sessions, users, 0, discardLogger(), newFakeClock(noon).Now)

		got, err := mgr.Validate(ctx, "tok")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("store failure", func(t *testing.T) {
		sessions := mocks.NewMockSessionRepository(t)
		sessions.On("GetActiveByTokenHash", ctx, mock.Anything).Return(nil, errors.New("timeout"))
		mgr := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), 0, discardLogger(), nil)

		_, err := mgr.Validate(ctx, "tok")
		errutil.AssertErrorCode(t, err, string(auth.KindStoreUnavailable))
	})
}

func TestSessionManager_Revoke(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	mgr := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), 0, discardLogger(), nil)
	hash := auth.HashSessionToken("tok")
	userID := ulid.Make()

	sessions.On("DeactivateByTokenHash", ctx, hash).Return(userID, true, nil).Once()
	sessions.On("DeactivateByTokenHash", ctx, hash).Return(ulid.ULID{}, false, nil).Once()

	changed, err := mgr.Revoke(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = mgr.Revoke(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = mgr.Revoke(ctx, "")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSessionManager_RevokeAll(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	mgr := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), 0, discardLogger(), nil)
	userID := ulid.Make()

	sessions.On("DeactivateByUser", ctx, userID).Return(int64(3), nil).Once()
	n, err := mgr.RevokeAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	sessions.On("DeactivateByUser", ctx, userID).Return(int64(0), errors.New("down")).Once()
	_, err = mgr.RevokeAll(ctx, userID)
	errutil.AssertErrorCode(t, err, string(auth.KindStoreUnavailable))
}
