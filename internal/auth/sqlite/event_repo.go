// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pachiledger/authcore/internal/auth"
)

type eventRow struct {
	ID          string         `db:"id"`
	UserID      sql.NullString `db:"user_id"`
	Kind        string         `db:"event_type"`
	Description string         `db:"description"`
	IPAddress   sql.NullString `db:"ip_address"`
	UserAgent   sql.NullString `db:"user_agent"`
	Timestamp   int64          `db:"timestamp"`
}

func (r eventRow) event() (*auth.SecurityEvent, error) {
	id, err := parseID(r.ID, "security_logs.id")
	if err != nil {
		return nil, err
	}
	event := &auth.SecurityEvent{
		ID:          id,
		Kind:        auth.EventKind(r.Kind),
		Description: r.Description,
		IPAddress:   stringPtr(r.IPAddress),
		UserAgent:   stringPtr(r.UserAgent),
		Timestamp:   fromNanos(r.Timestamp),
	}
	if r.UserID.Valid {
		uid, err := parseID(r.UserID.String, "security_logs.user_id")
		if err != nil {
			return nil, err
		}
		event.UserID = &uid
	}
	return event, nil
}

// EventRepository implements auth.EventStore and auth.IntegrityChecker
// using SQLite.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append persists a security event.
func (r *EventRepository) Append(ctx context.Context, event *auth.SecurityEvent) error {
	row := eventRow{
		ID:          event.ID.String(),
		Kind:        string(event.Kind),
		Description: event.Description,
		IPAddress:   optionalString(event.IPAddress),
		UserAgent:   optionalString(event.UserAgent),
		Timestamp:   toNanos(event.Timestamp),
	}
	if event.UserID != nil {
		row.UserID = sql.NullString{String: event.UserID.String(), Valid: true}
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO security_logs (id, user_id, event_type, description, ip_address, user_agent, timestamp)
		VALUES (:id, :user_id, :event_type, :description, :ip_address, :user_agent, :timestamp)
	`, row)
	if err != nil {
		return oops.Code("EVENT_APPEND_FAILED").
			With("event_type", string(event.Kind)).
			Wrap(err)
	}
	return nil
}

// CountInWindow counts events matching filter.
func (r *EventRepository) CountInWindow(ctx context.Context, filter auth.EventFilter) (int, error) {
	conds, args := eventWhere(filter.Since, filter.UserID)
	if filter.IPAddress != nil {
		conds = append(conds, "ip_address = ?")
		args = append(args, *filter.IPAddress)
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		conds = append(conds, "event_type IN (?)")
		args = append(args, kinds)
	}

	query, args, err := sqlx.In(`SELECT count(*) FROM security_logs WHERE `+strings.Join(conds, " AND "), args...)
	if err != nil {
		return 0, oops.Code("EVENT_COUNT_FAILED").With("operation", "expand kinds").Wrap(err)
	}

	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
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

	conds, args := eventWhere(since, userID)
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT count(DISTINCT `+col+`) FROM security_logs WHERE `+strings.Join(conds, " AND "), args...)
	if err != nil {
		return 0, oops.Code("EVENT_COUNT_FAILED").With("operation", "count distinct "+col).Wrap(err)
	}
	return n, nil
}

// ListSince returns events at or after since, oldest first.
func (r *EventRepository) ListSince(ctx context.Context, since time.Time) ([]*auth.SecurityEvent, error) {
	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, event_type, description, ip_address, user_agent, timestamp
		FROM security_logs
		WHERE timestamp >= ?
		ORDER BY timestamp, id
	`, toNanos(since))
	if err != nil {
		return nil, oops.Code("EVENT_LIST_FAILED").With("operation", "list events").Wrap(err)
	}

	events := make([]*auth.SecurityEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.event()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// CountOrphans counts sessions and security log rows whose user is missing.
func (r *EventRepository) CountOrphans(ctx context.Context) (sessions, events int, err error) {
	err = r.db.QueryRowxContext(ctx, `
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

func eventWhere(since time.Time, userID *ulid.ULID) ([]string, []any) {
	conds := []string{"timestamp >= ?"}
	args := []any{toNanos(since)}
	if userID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, userID.String())
	}
	return conds, args
}
