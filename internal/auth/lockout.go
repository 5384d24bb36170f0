// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultLockoutLadder is the escalation ladder in minutes: 30m, 2h, 8h,
// 24h, then 7 days for every further lock.
var DefaultLockoutLadder = []int{30, 120, 480, 1440, 10080}

// LockHistoryWindow is the trailing window whose ACCOUNT_LOCKED events
// select the next ladder step.
const LockHistoryWindow = 7 * 24 * time.Hour

// LockStatus is the outcome of a lock check.
type LockStatus struct {
	Locked           bool
	RemainingMinutes int
	// Cleared is set when an expired lock was lazily removed.
	Cleared bool
}

// LockPolicy decides lock durations and mutates lock state.
type LockPolicy struct {
	users  UserRepository
	events *EventLog
	ladder []int
	logger *slog.Logger
	clock  func() time.Time
}

// NewLockPolicy creates a LockPolicy. An empty ladder selects DefaultLockoutLadder.
func NewLockPolicy(users UserRepository, events *EventLog, ladder []int, logger *slog.Logger, clock func() time.Time) *LockPolicy {
	if len(ladder) == 0 {
		ladder = DefaultLockoutLadder
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &LockPolicy{
		users:  users,
		events: events,
		ladder: append([]int(nil), ladder...),
		logger: logger,
		clock:  clock,
	}
}

// DurationFor returns the ladder duration in minutes for the next lock of userID.
func (p *LockPolicy) DurationFor(ctx context.Context, userID ulid.ULID) (int, error) {
	recent, err := p.events.CountInWindow(ctx, &userID, []EventKind{EventAccountLocked}, LockHistoryWindow)
	if err != nil {
		return 0, storeUnavailable(p.logger, "count recent locks", err)
	}
	return p.ladderStep(recent), nil
}

func (p *LockPolicy) ladderStep(recentLocks int) int {
	if recentLocks >= len(p.ladder) {
		recentLocks = len(p.ladder) - 1
	}
	if recentLocks < 0 {
		recentLocks = 0
	}
	return p.ladder[recentLocks]
}

// Lock locks userID for minutes, or for the ladder duration when minutes
// is nil. The lock counts as one more failed attempt. A lock already in
// force is kept as is. Returns false when the user does not exist.
func (p *LockPolicy) Lock(ctx context.Context, userID ulid.ULID, reason string, minutes *int) (bool, error) {
	res, err := p.apply(ctx, userID, reason, minutes, 1)
	return res.locked, err
}

// lockResult reports the lock in force after apply.
type lockResult struct {
	// minutes is the applied duration, or the remaining minutes of an
	// existing lock when applied is false.
	minutes int
	locked  bool
	applied bool
}

// apply locks userID, adding strikes to the failed-attempt counter. When a
// concurrent caller already holds a lock in force, apply leaves it alone
// and records no event.
func (p *LockPolicy) apply(ctx context.Context, userID ulid.ULID, reason string, minutes *int, strikes int) (lockResult, error) {
	var duration int
	if minutes != nil {
		duration = *minutes
	} else {
		d, err := p.DurationFor(ctx, userID)
		if err != nil {
			return lockResult{}, err
		}
		duration = d
	}
	if duration <= 0 {
		return lockResult{}, errValidation(map[string][]string{"minutes": {"must be positive"}})
	}

	now := p.clock()
	lockedUntil := now.Add(time.Duration(duration) * time.Minute)
	inForce, applied, err := p.users.ApplyLock(ctx, userID, lockedUntil, now, strikes)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return lockResult{}, nil
		}
		return lockResult{}, storeUnavailable(p.logger, "apply lock", err)
	}
	if !applied {
		if inForce.IsZero() {
			return lockResult{}, nil
		}
		p.logger.DebugContext(ctx, "lock already in force",
			"user_id", userID.String(),
			"locked_until", inForce)
		return lockResult{minutes: int(inForce.Sub(now) / time.Minute), locked: true}, nil
	}

	p.events.Append(ctx, &userID, EventAccountLocked,
		fmt.Sprintf("Account locked for %d minutes. Reason: %s", duration, reason), "", "")
	p.logger.WarnContext(ctx, "account locked",
		"user_id", userID.String(),
		"minutes", duration,
		"reason", reason)
	return lockResult{minutes: duration, locked: true, applied: true}, nil
}

// Unlock clears the lock and failed-attempt counter. Returns false when
// the user does not exist.
func (p *LockPolicy) Unlock(ctx context.Context, userID ulid.ULID, adminOverride bool) (bool, error) {
	if err := p.users.ClearLock(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, storeUnavailable(p.logger, "clear lock", err)
	}

	reason := "Automatic unlock"
	if adminOverride {
		reason = "Admin override"
	}
	p.events.Append(ctx, &userID, EventAccountUnlocked, "Account unlocked: "+reason, "", "")
	p.logger.InfoContext(ctx, "account unlocked",
		"user_id", userID.String(),
		"admin_override", adminOverride)
	return true, nil
}

// Check reports whether user is currently locked. An expired lock is
// cleared without logging an unlock event.
func (p *LockPolicy) Check(ctx context.Context, user *User) (*LockStatus, error) {
	if user.LockedUntil == nil {
		return &LockStatus{}, nil
	}

	now := p.clock()
	if user.LockedUntil.After(now) {
		remaining := user.LockedUntil.Sub(now)
		return &LockStatus{Locked: true, RemainingMinutes: int(remaining / time.Minute)}, nil
	}

	if err := p.users.ClearLock(ctx, user.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, storeUnavailable(p.logger, "clear expired lock", err)
	}
	user.LockedUntil = nil
	user.FailedAttempts = 0
	return &LockStatus{Cleared: true}, nil
}
