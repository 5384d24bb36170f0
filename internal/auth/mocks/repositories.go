// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package mocks provides testify doubles for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/pachiledger/authcore/internal/auth"
)

// MockUserRepository is a testify double for auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock whose expectations are asserted at cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) ApplyLock(ctx context.Context, id ulid.ULID, lockedUntil, now time.Time, strikes int) (time.Time, bool, error) {
	args := m.Called(ctx, id, lockedUntil, now, strikes)
	inForce, _ := args.Get(0).(time.Time)
	return inForce, args.Bool(1), args.Error(2)
}

func (m *MockUserRepository) ClearLock(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash, salt string, changedAt time.Time) error {
	return m.Called(ctx, id, passwordHash, salt, changedAt).Error(0)
}

func (m *MockUserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *MockUserRepository) CountActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) CountLocked(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// MockSessionRepository is a testify double for auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a mock whose expectations are asserted at cleanup.
func NewMockSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionRepository) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	args := m.Called(ctx, tokenHash)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockSessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionRepository) DeactivateByTokenHash(ctx context.Context, tokenHash string) (ulid.ULID, bool, error) {
	args := m.Called(ctx, tokenHash)
	userID, _ := args.Get(0).(ulid.ULID)
	return userID, args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) DeactivateByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *MockSessionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// MockEventStore is a testify double for auth.EventStore.
type MockEventStore struct {
	mock.Mock
}

// NewMockEventStore creates a mock whose expectations are asserted at cleanup.
func NewMockEventStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockEventStore {
	m := &MockEventStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockEventStore) Append(ctx context.Context, event *auth.SecurityEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventStore) CountInWindow(ctx context.Context, filter auth.EventFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockEventStore) CountDistinct(ctx context.Context, userID *ulid.ULID, column auth.EventColumn, since time.Time) (int, error) {
	args := m.Called(ctx, userID, column, since)
	return args.Int(0), args.Error(1)
}

func (m *MockEventStore) ListSince(ctx context.Context, since time.Time) ([]*auth.SecurityEvent, error) {
	args := m.Called(ctx, since)
	events, _ := args.Get(0).([]*auth.SecurityEvent)
	return events, args.Error(1)
}

// MockIntegrityChecker is a testify double for auth.IntegrityChecker.
type MockIntegrityChecker struct {
	mock.Mock
}

// NewMockIntegrityChecker creates a mock whose expectations are asserted at cleanup.
func NewMockIntegrityChecker(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockIntegrityChecker {
	m := &MockIntegrityChecker{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockIntegrityChecker) CountOrphans(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

var (
	_ auth.UserRepository    = (*MockUserRepository)(nil)
	_ auth.SessionRepository = (*MockSessionRepository)(nil)
	_ auth.EventStore        = (*MockEventStore)(nil)
	_ auth.IntegrityChecker  = (*MockIntegrityChecker)(nil)
)
