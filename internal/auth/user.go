// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var (
	// usernameRegex allows letters, digits and underscores only.
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// User is an identity record in the credential store.
type User struct {
	ID                ulid.ULID
	Username          string
	Email             string
	PasswordHash      string
	Salt              string
	CreatedAt         time.Time
	LastLogin         *time.Time
	IsActive          bool
	FailedAttempts    int
	LockedUntil       *time.Time
	PasswordChangedAt time.Time
}

// UserSummary is the public view of a user returned by session validation.
type UserSummary struct {
	ID       ulid.ULID `json:"id" yaml:"id"`
	Username string    `json:"username" yaml:"username"`
	Email    string    `json:"email" yaml:"email"`
}

// NewUser creates a validated, active User.
func NewUser(username, email, passwordHash, salt string, now time.Time) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:                ulid.Make(),
		Username:          username,
		Email:             email,
		PasswordHash:      passwordHash,
		Salt:              salt,
		CreatedAt:         now,
		IsActive:          true,
		PasswordChangedAt: now,
	}, nil
}

// Summary returns the public view of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}

// IsLockedAt reports whether the user is locked at the given time.
func (u *User) IsLockedAt(t time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(t)
}

// ValidateUsername checks length (3-20) and the letters, digits and underscore alphabet.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			With("max", MaxUsernameLength).
			Errorf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username may contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks the address against a conservative format.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email address is not valid")
	}
	return nil
}

// UserRepository is the credential store. It holds no policy; it only
// enforces uniqueness and performs single-statement updates so concurrent
// writers never act on a stale counter.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicate if the username or
	// email is already taken by any user, active or not.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user regardless of the active flag.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// FindByIdentifier retrieves an active user whose username or email
	// equals identifier.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	// IncrementFailedAttempts adds one to the failed-attempt counter and
	// returns the new value.
	IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error)

	// ApplyLock sets locked_until and adds strikes to the failed-attempt
	// counter in one conditional write that only succeeds when no lock is in
	// force at now. It returns the lock in force afterwards and whether this
	// call applied it; a zero time with applied false means the user is not
	// locked at all.
	ApplyLock(ctx context.Context, id ulid.ULID, lockedUntil, now time.Time, strikes int) (inForce time.Time, applied bool, err error)

	// ClearLock clears locked_until and resets the failed-attempt counter.
	ClearLock(ctx context.Context, id ulid.ULID) error

	// RecordLogin resets lock state and stamps last_login.
	RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePassword replaces the password hash and salt.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash, salt string, changedAt time.Time) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error

	// CountActive returns the number of active users.
	CountActive(ctx context.Context) (int, error)

	// CountLocked returns the number of users locked at now.
	CountLocked(ctx context.Context, now time.Time) (int, error)
}
