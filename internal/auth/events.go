// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind is the type of a security event.
type EventKind string

// Security event kinds.
const (
	EventUserRegistered         EventKind = "USER_REGISTERED"
	EventLoginSuccess           EventKind = "LOGIN_SUCCESS"
	EventLoginFailed            EventKind = "LOGIN_FAILED"
	EventLogout                 EventKind = "LOGOUT"
	EventAccountLocked          EventKind = "ACCOUNT_LOCKED"
	EventAccountUnlocked        EventKind = "ACCOUNT_UNLOCKED"
	EventSuspiciousActivity     EventKind = "SUSPICIOUS_ACTIVITY_DETECTED"
	EventSuspiciousLoginSuccess EventKind = "SUSPICIOUS_LOGIN_SUCCESS"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	EventUserRegistered,
	EventLoginSuccess,
	EventLoginFailed,
	EventLogout,
	EventAccountLocked,
	EventAccountUnlocked,
	EventSuspiciousActivity,
	EventSuspiciousLoginSuccess,
}

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SecurityEvent is an immutable security log entry.
type SecurityEvent struct {
	ID          ulid.ULID  `json:"id"`
	UserID      *ulid.ULID `json:"user_id,omitempty"`
	Kind        EventKind  `json:"event_type"`
	Description string     `json:"description"`
	IPAddress   *string    `json:"ip_address,omitempty"`
	UserAgent   *string    `json:"user_agent,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// EventColumn names a column CountDistinct may aggregate over.
type EventColumn string

// Distinct-countable columns.
const (
	ColumnIPAddress EventColumn = "ip_address"
	ColumnUserAgent EventColumn = "user_agent"
)

// Valid reports whether c is a known column.
func (c EventColumn) Valid() bool {
	return c == ColumnIPAddress || c == ColumnUserAgent
}

// EventFilter selects events for a windowed count. A nil UserID or
// IPAddress matches any value; empty Kinds matches every kind.
type EventFilter struct {
	UserID    *ulid.ULID
	IPAddress *string
	Kinds     []EventKind
	Since     time.Time
}

// EventStore is the append-only security log table.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event *SecurityEvent) error

	// CountInWindow counts events matching filter with timestamp >= Since.
	CountInWindow(ctx context.Context, filter EventFilter) (int, error)

	// CountDistinct counts distinct non-null values of column among events
	// since the given time. A nil userID counts across all users.
	CountDistinct(ctx context.Context, userID *ulid.ULID, column EventColumn, since time.Time) (int, error)

	// ListSince returns events with timestamp >= since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]*SecurityEvent, error)
}

// IntegrityChecker finds rows whose user no longer exists.
type IntegrityChecker interface {
	CountOrphans(ctx context.Context) (sessions, events int, err error)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
