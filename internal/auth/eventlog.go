// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// EventLog records security events. Recording never fails the caller:
// when the store rejects an event it goes to the spool file, and when the
// spool fails too the event is dropped and logged.
type EventLog struct {
	store     EventStore
	spoolPath string
	spoolMu   sync.Mutex
	spoolFile *os.File
	logger    *slog.Logger
	clock     func() time.Time
}

// NewEventLog creates an EventLog. An empty spoolPath disables spooling.
func NewEventLog(store EventStore, spoolPath string, logger *slog.Logger, clock func() time.Time) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &EventLog{store: store, spoolPath: spoolPath, logger: logger, clock: clock}
}

// Append records an event. Empty ip and agent are stored as null.
func (l *EventLog) Append(ctx context.Context, userID *ulid.ULID, kind EventKind, description, ip, agent string) {
	event := &SecurityEvent{
		ID:          ulid.Make(),
		UserID:      userID,
		Kind:        kind,
		Description: description,
		IPAddress:   optionalString(ip),
		UserAgent:   optionalString(agent),
		Timestamp:   l.clock(),
	}

	err := l.store.Append(ctx, event)
	if err == nil {
		return
	}
	securityLogFailures.WithLabelValues("store_failed").Inc()

	if l.spoolPath == "" {
		l.logger.ErrorContext(ctx, "security event dropped",
			"event_type", string(kind),
			"error", err)
		securityLogFailures.WithLabelValues("dropped").Inc()
		return
	}
	if spoolErr := l.spool(event); spoolErr != nil {
		l.logger.ErrorContext(ctx, "security event dropped: store and spool both failed",
			"event_type", string(kind),
			"store_error", err,
			"spool_error", spoolErr)
		securityLogFailures.WithLabelValues("spool_failed").Inc()
		return
	}
	l.logger.WarnContext(ctx, "security event spooled",
		"event_type", string(kind),
		"error", err)
}

func (l *EventLog) spool(event *SecurityEvent) error {
	l.spoolMu.Lock()
	defer l.spoolMu.Unlock()

	if l.spoolFile == nil {
		file, err := os.OpenFile(l.spoolPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return oops.With("path", l.spoolPath).Wrap(err)
		}
		l.spoolFile = file
	}

	data, err := json.Marshal(event)
	if err != nil {
		return oops.Wrap(err)
	}
	data = append(data, '\n')
	if _, err := l.spoolFile.Write(data); err != nil {
		return oops.With("path", l.spoolPath).Wrap(err)
	}
	if err := l.spoolFile.Sync(); err != nil {
		return oops.With("path", l.spoolPath).Wrap(err)
	}
	spoolEntries.Inc()
	return nil
}

// ReplaySpool appends every spooled event to the store and truncates the
// spool. Events that still fail are written back for the next replay.
// It returns the number of events replayed.
func (l *EventLog) ReplaySpool(ctx context.Context) (int, error) {
	if l.spoolPath == "" {
		return 0, nil
	}

	l.spoolMu.Lock()
	defer l.spoolMu.Unlock()

	data, err := os.ReadFile(l.spoolPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, oops.With("path", l.spoolPath).Wrap(err)
	}
	if len(data) == 0 {
		return 0, nil
	}

	var (
		replayed int
		retained bytes.Buffer
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event SecurityEvent
		if err := json.Unmarshal(line, &event); err != nil {
			l.logger.ErrorContext(ctx, "discarding unreadable spool entry", "error", err)
			securityLogFailures.WithLabelValues("spool_unmarshal_failed").Inc()
			continue
		}
		if err := l.store.Append(ctx, &event); err != nil {
			securityLogFailures.WithLabelValues("spool_replay_failed").Inc()
			retained.Write(line)
			retained.WriteByte('\n')
			continue
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, oops.With("path", l.spoolPath).Wrap(err)
	}

	if l.spoolFile != nil {
		_ = l.spoolFile.Close() //nolint:errcheck // reopened on next spool
		l.spoolFile = nil
	}
	if err := os.WriteFile(l.spoolPath, retained.Bytes(), 0o600); err != nil {
		return replayed, oops.With("path", l.spoolPath).Wrap(err)
	}

	spoolEntries.Set(float64(bytes.Count(retained.Bytes(), []byte{'\n'})))
	l.logger.InfoContext(ctx, "replayed spooled security events",
		"replayed", replayed,
		"retained", bytes.Count(retained.Bytes(), []byte{'\n'}))
	return replayed, nil
}

// Close releases the spool file.
func (l *EventLog) Close() error {
	l.spoolMu.Lock()
	defer l.spoolMu.Unlock()
	if l.spoolFile == nil {
		return nil
	}
	err := l.spoolFile.Close()
	l.spoolFile = nil
	if err != nil {
		return oops.Wrap(err)
	}
	return nil
}

// CountInWindow counts events of the given kinds for userID in the
// trailing window. A nil userID counts across all users.
func (l *EventLog) CountInWindow(ctx context.Context, userID *ulid.ULID, kinds []EventKind, window time.Duration) (int, error) {
	n, err := l.store.CountInWindow(ctx, EventFilter{
		UserID: userID,
		Kinds:  kinds,
		Since:  l.clock().Add(-window),
	})
	if err != nil {
		return 0, oops.With("operation", "count events").Wrap(err)
	}
	return n, nil
}

// CountForIP counts events of the given kinds from ip across all users in
// the trailing window.
func (l *EventLog) CountForIP(ctx context.Context, ip string, kinds []EventKind, window time.Duration) (int, error) {
	n, err := l.store.CountInWindow(ctx, EventFilter{
		IPAddress: &ip,
		Kinds:     kinds,
		Since:     l.clock().Add(-window),
	})
	if err != nil {
		return 0, oops.With("operation", "count events for ip").Wrap(err)
	}
	return n, nil
}

// CountDistinct counts distinct non-null values of column for userID in
// the trailing window.
func (l *EventLog) CountDistinct(ctx context.Context, userID *ulid.ULID, column EventColumn, window time.Duration) (int, error) {
	if !column.Valid() {
		return 0, oops.Code("AUTH_INVALID_COLUMN").Errorf("cannot count distinct %q", column)
	}
	n, err := l.store.CountDistinct(ctx, userID, column, l.clock().Add(-window))
	if err != nil {
		return 0, oops.With("operation", "count distinct").Wrap(err)
	}
	return n, nil
}

// ListSince returns events in the trailing window, oldest first.
func (l *EventLog) ListSince(ctx context.Context, window time.Duration) ([]*SecurityEvent, error) {
	events, err := l.store.ListSince(ctx, l.clock().Add(-window))
	if err != nil {
		return nil, oops.With("operation", "list events").Wrap(err)
	}
	return events, nil
}
