// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pachiledger/authcore/internal/auth"
)

// EventRepository implements auth.EventStore and auth.IntegrityChecker
// using PostgreSQL.
type EventRepository struct {
	pool poolIface
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool poolIface) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append persists a security event.
func (r *EventRepository) Append(ctx context.Context, event *auth.SecurityEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_logs (id, user_id, event_type, description, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID.String(),
		userIDArg(event.UserID),
		string(event.Kind),
		event.Description,
		event.IPAddress,
		event.UserAgent,
		event.Timestamp,
	)
	if err != nil {
		return oops.Code("EVENT_APPEND_FAILED").
			With("event_type", string(event.Kind)).
			Wrap(err)
	}
	return nil
}

// CountInWindow counts events matching filter.
func (r *EventRepository) CountInWindow(ctx context.Context, filter auth.EventFilter) (int, error) {
	where, args := eventWhere(filter.Since, filter.UserID)
	if filter.IPAddress != nil {
		args = append(args, *filter.IPAddress)
		where += fmt.Sprintf(" AND ip_address = $%d", len(args))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		where += fmt.Sprintf(" AND event_type = ANY($%d)", len(args))
	}

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM security_logs WHERE `+where, args...).Scan(&n); err != nil {
		return 0, oops.Code("EVENT_COUNT_FAILED").With("operation", "count events").Wrap(err)
	}
	return n, nil
}

// CountDistinct counts distinct non-null values of column.
func (r *EventRepository) CountDistinct(ctx context.Context, userID *ulid.ULID, column auth.EventColumn, since time.Time) (int, error) {
	var col string
	switch column {
	case auth.ColumnIPAddress:
		col = "ip_address"
	case auth.ColumnUserAgent:
		col = "user_agent"
	default:
		return 0, oops.Code("AUTH_INVALID_COLUMN").Errorf("cannot count distinct %q", column)
	}

	where, args := eventWhere(since, userID)
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(DISTINCT `+col+`) FROM security_logs WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, oops.Code("EVENT_COUNT_FAILED").With("operation", "count distinct "+col).Wrap(err)
	}
	return n, nil
}

// ListSince returns events at or after since, oldest first.
func (r *EventRepository) ListSince(ctx context.Context, since time.Time) ([]*auth.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, event_type, description, ip_address, user_agent, timestamp
		FROM security_logs
		WHERE timestamp >= $1
		ORDER BY timestamp, id
	`, since)
	if err != nil {
		return nil, oops.Code("EVENT_LIST_FAILED").With("operation", "list events").Wrap(err)
	}
	defer rows.Close()

	var events []*auth.SecurityEvent
	for rows.Next() {
		var (
			event  auth.SecurityEvent
			idStr  string
			userID *string
			kind   string
		)
		if err := rows.Scan(&idStr, &userID, &kind, &event.Description, &event.IPAddress, &event.UserAgent, &event.Timestamp); err != nil {
			return nil, oops.Code("EVENT_SCAN_FAILED").Wrap(err)
		}
		if event.ID, err = parseID(idStr, "security_logs.id"); err != nil {
			return nil, err
		}
		if userID != nil {
			uid, err := parseID(*userID, "security_logs.user_id")
			if err != nil {
				return nil, err
			}
			event.UserID = &uid
		}
		event.Kind = auth.EventKind(kind)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("EVENT_ROWS_ERROR").With("operation", "iterate events").Wrap(err)
	}
	return events, nil
}

// CountOrphans counts sessions and security log rows whose user is missing.
func (r *EventRepository) CountOrphans(ctx context.Context) (sessions, events int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM user_sessions s
			 LEFT JOIN users u ON u.id = s.user_id
			 WHERE u.id IS NULL),
			(SELECT count(*) FROM security_logs l
			 LEFT JOIN users u ON u.id = l.user_id
			 WHERE l.user_id IS NOT NULL AND u.id IS NULL)
	`).Scan(&sessions, &events)
	if err != nil {
		return 0, 0, oops.Code("INTEGRITY_CHECK_FAILED").Wrap(err)
	}
	return sessions, events, nil
}

func eventWhere(since time.Time, userID *ulid.ULID) (string, []any) {
	conds := []string{"timestamp >= $1"}
	args := []any{since}
	if userID != nil {
		args = append(args, userID.String())
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func userIDArg(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
