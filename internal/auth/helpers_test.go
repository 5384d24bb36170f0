// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pachiledger/authcore/internal/auth"
)

// noon keeps the off-hours rule quiet.
var noon = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memEventStore is an in-memory auth.EventStore.
type memEventStore struct {
	mu        sync.Mutex
	events    []*auth.SecurityEvent
	appendErr error
}

func (s *memEventStore) Append(_ context.Context, event *auth.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

func (s *memEventStore) CountInWindow(_ context.Context, filter auth.EventFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Timestamp.Before(filter.Since) {
			continue
		}
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		if filter.IPAddress != nil && (e.IPAddress == nil || *e.IPAddress != *filter.IPAddress) {
			continue
		}
		if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, e.Kind) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *memEventStore) CountDistinct(_ context.Context, userID *ulid.ULID, column auth.EventColumn, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, e := range s.events {
		if e.Timestamp.Before(since) {
			continue
		}
		if userID != nil && (e.UserID == nil || *e.UserID != *userID) {
			continue
		}
		v := e.IPAddress
		if column == auth.ColumnUserAgent {
			v = e.UserAgent
		}
		if v != nil {
			seen[*v] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *memEventStore) ListSince(_ context.Context, since time.Time) ([]*auth.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.SecurityEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEventStore) add(userID *ulid.ULID, kind auth.EventKind, ip, agent string, at time.Time) {
	e := &auth.SecurityEvent{ID: ulid.Make(), UserID: userID, Kind: kind, Timestamp: at}
	if ip != "" {
		e.IPAddress = &ip
	}
	if agent != "" {
		e.UserAgent = &agent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *memEventStore) count(kind auth.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (s *memEventStore) last(kind auth.EventKind) *auth.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i]
		}
	}
	return nil
}

var _ auth.EventStore = (*memEventStore)(nil)

// plainHasher skips argon2 so service tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, string, error) {
	if password == "" {
		return "", "", auth.ErrEmptyPassword
	}
	return "plain$" + password, "salt", nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain$"+password, nil
}

// memUserRepo is an in-memory auth.UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[ulid.ULID]*auth.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return auth.ErrDuplicate
		}
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.IsActive && (u.Username == identifier || u.Email == identifier) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) update(id ulid.ULID, fn func(u *auth.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *memUserRepo) IncrementFailedAttempts(_ context.Context, id ulid.ULID) (int, error) {
	var n int
	err := r.update(id, func(u *auth.User) {
		u.FailedAttempts++
		n = u.FailedAttempts
	})
	return n, err
}

func (r *memUserRepo) ApplyLock(_ context.Context, id ulid.ULID, lockedUntil, now time.Time, strikes int) (time.Time, bool, error) {
	var (
		inForce time.Time
		applied bool
	)
	err := r.update(id, func(u *auth.User) {
		if u.LockedUntil != nil && u.LockedUntil.After(now) {
			inForce = *u.LockedUntil
			return
		}
		u.LockedUntil = &lockedUntil
		u.FailedAttempts += strikes
		inForce, applied = lockedUntil, true
	})
	return inForce, applied, err
}

func (r *memUserRepo) ClearLock(_ context.Context, id ulid.ULID) error {
	return r.update(id, func(u *auth.User) {
		u.LockedUntil = nil
		u.FailedAttempts = 0
	})
}

func (r *memUserRepo) RecordLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	return r.update(id, func(u *auth.User) {
		u.LastLogin = &at
		u.LockedUntil = nil
		u.FailedAttempts = 0
	})
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id ulid.ULID, hash, salt string, changedAt time.Time) error {
	return r.update(id, func(u *auth.User) {
		u.PasswordHash = hash
		u.Salt = salt
		u.PasswordChangedAt = changedAt
	})
}

func (r *memUserRepo) SetActive(_ context.Context, id ulid.ULID, active bool) error {
	return r.update(id, func(u *auth.User) { u.IsActive = active })
}

func (r *memUserRepo) CountActive(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func (r *memUserRepo) CountLocked(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.LockedUntil != nil && u.LockedUntil.After(now) {
			n++
		}
	}
	return n, nil
}

func (r *memUserRepo) get(id ulid.ULID) *auth.User {
	u, _ := r.GetByID(context.Background(), id)
	return u
}

// memSessionRepo is an in-memory auth.SessionRepository.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]*auth.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[ulid.ULID]*auth.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memSessionRepo) GetActiveByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.IsActive && s.TokenHash == tokenHash {
			copied := *s
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memSessionRepo) Deactivate(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (r *memSessionRepo) DeactivateByTokenHash(_ context.Context, tokenHash string) (ulid.ULID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.IsActive && s.TokenHash == tokenHash {
			s.IsActive = false
			return s.UserID, true, nil
		}
	}
	return ulid.ULID{}, false, nil
}

func (r *memSessionRepo) DeactivateByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.IsActive && s.UserID == userID {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) CountActive(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.IsActive && now.Before(s.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

var (
	_ auth.PasswordHasher    = plainHasher{}
	_ auth.UserRepository    = (*memUserRepo)(nil)
	_ auth.SessionRepository = (*memSessionRepo)(nil)
)
