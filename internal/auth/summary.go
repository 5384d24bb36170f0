// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pachiledger/authcore/pkg/errutil"
)

// Reporting windows.
const (
	summaryWindow      = 24 * time.Hour
	summaryLocksWindow = 7 * 24 * time.Hour
)

// Analytics thresholds.
const (
	topSuspiciousReasons = 10
	topIPStatistics      = 20
	ipFailureThreshold   = 5
	ipRequestThreshold   = 50
)

const integrityProbe = "integrity probe 店舗データ123"

// SecuritySummary is a point-in-time monitoring snapshot.
type SecuritySummary struct {
	ActiveUsers             int       `json:"active_users" yaml:"active_users"`
	FailedLogins24h         int       `json:"failed_logins_24h" yaml:"failed_logins_24h"`
	LockedAccounts          int       `json:"locked_accounts" yaml:"locked_accounts"`
	ActiveSessions          int       `json:"active_sessions" yaml:"active_sessions"`
	SuspiciousActivities24h int       `json:"suspicious_activities_24h" yaml:"suspicious_activities_24h"`
	UniqueIPs24h            int       `json:"unique_ips_24h" yaml:"unique_ips_24h"`
	AccountLocks7d          int       `json:"account_locks_7d" yaml:"account_locks_7d"`
	GeneratedAt             time.Time `json:"generated_at" yaml:"generated_at"`
}

// SecuritySummary gathers the monitoring counters.
func (s *Service) SecuritySummary(ctx context.Context) (*SecuritySummary, error) {
	now := s.clock()
	summary := &SecuritySummary{GeneratedAt: now}

	var err error
	if summary.ActiveUsers, err = s.users.CountActive(ctx); err != nil {
		return nil, storeUnavailable(s.logger, "count active users", err)
	}
	if summary.LockedAccounts, err = s.users.CountLocked(ctx, now); err != nil {
		return nil, storeUnavailable(s.logger, "count locked users", err)
	}
	if summary.ActiveSessions, err = s.sessionRepo.CountActive(ctx, now); err != nil {
		return nil, storeUnavailable(s.logger, "count active sessions", err)
	}
	if summary.FailedLogins24h, err = s.events.CountInWindow(ctx, nil,
		[]EventKind{EventLoginFailed}, summaryWindow); err != nil {
		return nil, storeUnavailable(s.logger, "count failed logins", err)
	}
	if summary.SuspiciousActivities24h, err = s.events.CountInWindow(ctx, nil,
		[]EventKind{EventSuspiciousActivity, EventSuspiciousLoginSuccess}, summaryWindow); err != nil {
		return nil, storeUnavailable(s.logger, "count suspicious events", err)
	}
	if summary.UniqueIPs24h, err = s.events.CountDistinct(ctx, nil, ColumnIPAddress, summaryWindow); err != nil {
		return nil, storeUnavailable(s.logger, "count unique ips", err)
	}
	if summary.AccountLocks7d, err = s.events.CountInWindow(ctx, nil,
		[]EventKind{EventAccountLocked}, summaryLocksWindow); err != nil {
		return nil, storeUnavailable(s.logger, "count account locks", err)
	}
	return summary, nil
}

// DailyStats counts login outcomes for one calendar day.
type DailyStats struct {
	Date                 string `json:"date" yaml:"date"`
	SuccessfulLogins     int    `json:"successful_logins" yaml:"successful_logins"`
	FailedLogins         int    `json:"failed_logins" yaml:"failed_logins"`
	SuspiciousActivities int    `json:"suspicious_activities" yaml:"suspicious_activities"`
}

// ReasonCount is a suspicious-activity description and how often it occurred.
type ReasonCount struct {
	Description string `json:"description" yaml:"description"`
	Count       int    `json:"count" yaml:"count"`
}

// IPStats aggregates the events of one client address.
type IPStats struct {
	IPAddress        string `json:"ip_address" yaml:"ip_address"`
	TotalRequests    int    `json:"total_requests" yaml:"total_requests"`
	FailedAttempts   int    `json:"failed_attempts" yaml:"failed_attempts"`
	SuccessfulLogins int    `json:"successful_logins" yaml:"successful_logins"`
}

// UserActivity aggregates the events of one user.
type UserActivity struct {
	UserID           ulid.ULID `json:"user_id" yaml:"user_id"`
	Username         string    `json:"username,omitempty" yaml:"username,omitempty"`
	SuccessfulLogins int       `json:"successful_logins" yaml:"successful_logins"`
	FailedLogins     int       `json:"failed_logins" yaml:"failed_logins"`
	AccountLocks     int       `json:"account_locks" yaml:"account_locks"`
	LastActivity     time.Time `json:"last_activity" yaml:"last_activity"`
}

// SecurityAnalytics is the report produced by Service.SecurityAnalytics.
type SecurityAnalytics struct {
	PeriodDays        int            `json:"period_days" yaml:"period_days"`
	Daily             []DailyStats   `json:"daily_statistics" yaml:"daily_statistics"`
	SuspiciousReasons []ReasonCount  `json:"suspicious_activity_reasons" yaml:"suspicious_activity_reasons"`
	IPStatistics      []IPStats      `json:"ip_address_statistics" yaml:"ip_address_statistics"`
	UserActivity      []UserActivity `json:"user_activity_patterns" yaml:"user_activity_patterns"`
	GeneratedAt       time.Time      `json:"generated_at" yaml:"generated_at"`
}

// SecurityAnalytics aggregates the security log over the trailing days.
// Days are calendar days in the detector's location, newest first.
func (s *Service) SecurityAnalytics(ctx context.Context, days int) (*SecurityAnalytics, error) {
	if days <= 0 {
		return nil, errValidation(map[string][]string{"days": {"must be positive"}})
	}

	events, err := s.events.ListSince(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, storeUnavailable(s.logger, "list events", err)
	}

	loc := s.cfg.Detector.Location
	if loc == nil {
		loc = time.Local
	}

	daily := make(map[string]*DailyStats)
	reasons := make(map[string]int)
	ips := make(map[string]*IPStats)
	users := make(map[ulid.ULID]*UserActivity)

	for _, e := range events {
		date := e.Timestamp.In(loc).Format(time.DateOnly)
		d, ok := daily[date]
		if !ok {
			d = &DailyStats{Date: date}
			daily[date] = d
		}
		switch e.Kind {
		case EventLoginSuccess:
			d.SuccessfulLogins++
		case EventLoginFailed:
			d.FailedLogins++
		case EventSuspiciousActivity:
			d.SuspiciousActivities++
			reasons[e.Description]++
		}

		if e.IPAddress != nil {
			st, ok := ips[*e.IPAddress]
			if !ok {
				st = &IPStats{IPAddress: *e.IPAddress}
				ips[*e.IPAddress] = st
			}
			st.TotalRequests++
			switch e.Kind {
			case EventLoginFailed:
				st.FailedAttempts++
			case EventLoginSuccess:
				st.SuccessfulLogins++
			}
		}

		if e.UserID != nil {
			ua, ok := users[*e.UserID]
			if !ok {
				ua = &UserActivity{UserID: *e.UserID}
				users[*e.UserID] = ua
			}
			switch e.Kind {
			case EventLoginSuccess:
				ua.SuccessfulLogins++
			case EventLoginFailed:
				ua.FailedLogins++
			case EventAccountLocked:
				ua.AccountLocks++
			}
			if e.Timestamp.After(ua.LastActivity) {
				ua.LastActivity = e.Timestamp
			}
		}
	}

	report := &SecurityAnalytics{
		PeriodDays:        days,
		Daily:             make([]DailyStats, 0, len(daily)),
		SuspiciousReasons: make([]ReasonCount, 0, len(reasons)),
		IPStatistics:      []IPStats{},
		UserActivity:      make([]UserActivity, 0, len(users)),
		GeneratedAt:       s.clock(),
	}

	for _, d := range daily {
		report.Daily = append(report.Daily, *d)
	}
	sort.Slice(report.Daily, func(i, j int) bool { return report.Daily[i].Date > report.Daily[j].Date })

	for desc, n := range reasons {
		report.SuspiciousReasons = append(report.SuspiciousReasons, ReasonCount{Description: desc, Count: n})
	}
	sort.Slice(report.SuspiciousReasons, func(i, j int) bool {
		a, b := report.SuspiciousReasons[i], report.SuspiciousReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Description < b.Description
	})
	if len(report.SuspiciousReasons) > topSuspiciousReasons {
		report.SuspiciousReasons = report.SuspiciousReasons[:topSuspiciousReasons]
	}

	for _, st := range ips {
		if st.FailedAttempts > ipFailureThreshold || st.TotalRequests > ipRequestThreshold {
			report.IPStatistics = append(report.IPStatistics, *st)
		}
	}
	sort.Slice(report.IPStatistics, func(i, j int) bool {
		a, b := report.IPStatistics[i], report.IPStatistics[j]
		if a.FailedAttempts != b.FailedAttempts {
			return a.FailedAttempts > b.FailedAttempts
		}
		if a.TotalRequests != b.TotalRequests {
			return a.TotalRequests > b.TotalRequests
		}
		return a.IPAddress < b.IPAddress
	})
	if len(report.IPStatistics) > topIPStatistics {
		report.IPStatistics = report.IPStatistics[:topIPStatistics]
	}

	for id, ua := range users {
		if user, err := s.users.GetByID(ctx, id); err == nil {
			ua.Username = user.Username
		}
		report.UserActivity = append(report.UserActivity, *ua)
	}
	sort.Slice(report.UserActivity, func(i, j int) bool {
		a, b := report.UserActivity[i], report.UserActivity[j]
		if a.FailedLogins != b.FailedLogins {
			return a.FailedLogins > b.FailedLogins
		}
		if a.AccountLocks != b.AccountLocks {
			return a.AccountLocks > b.AccountLocks
		}
		return a.UserID.Compare(b.UserID) < 0
	})

	return report, nil
}

// IntegrityReport is the result of Service.ValidateDataIntegrity.
type IntegrityReport struct {
	EncryptionTestPassed   bool     `json:"encryption_test_passed" yaml:"encryption_test_passed"`
	DatabaseIntegrityOK    bool     `json:"database_integrity_ok" yaml:"database_integrity_ok"`
	SecurityLogsConsistent bool     `json:"security_logs_consistent" yaml:"security_logs_consistent"`
	OrphanedSessions       int      `json:"orphaned_sessions" yaml:"orphaned_sessions"`
	OrphanedEvents         int      `json:"orphaned_events" yaml:"orphaned_events"`
	OverallStatus          bool     `json:"overall_status" yaml:"overall_status"`
	Issues                 []string `json:"issues_found" yaml:"issues_found"`
}

// ValidateDataIntegrity runs an encryption round trip and looks for
// sessions and security log rows whose user no longer exists. Failures
// are reported as issues rather than errors.
func (s *Service) ValidateDataIntegrity(ctx context.Context) *IntegrityReport {
	report := &IntegrityReport{Issues: []string{}}

	ciphertext, err := s.cipher.EncryptString(integrityProbe)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("encryption self-test failed: %v", err))
	} else if plaintext, err := s.cipher.DecryptString(ciphertext); err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("decryption self-test failed: %v", err))
	} else if plaintext != integrityProbe {
		report.Issues = append(report.Issues, "encryption round trip returned different data")
	} else {
		report.EncryptionTestPassed = true
	}

	if s.integrity == nil {
		report.Issues = append(report.Issues, "store does not support integrity checks")
	} else if sessions, events, err := s.integrity.CountOrphans(ctx); err != nil {
		errutil.LogError(s.logger, "integrity check failed", err)
		report.Issues = append(report.Issues, "database integrity check failed")
	} else {
		report.OrphanedSessions = sessions
		report.OrphanedEvents = events
		if sessions > 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("orphaned sessions: %d", sessions))
		}
		if events > 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("orphaned security log entries: %d", events))
		}
		report.DatabaseIntegrityOK = sessions == 0 && events == 0
		report.SecurityLogsConsistent = events == 0
	}

	report.OverallStatus = report.EncryptionTestPassed && report.DatabaseIntegrityOK && report.SecurityLogsConsistent
	return report
}
