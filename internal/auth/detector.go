// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reasons reported by the detector.
const (
	ReasonRapidAttempts    = "rapid login attempts"
	ReasonMultipleIPs      = "access from multiple IP addresses"
	ReasonMultipleAgents   = "access from multiple browsers/devices"
	ReasonBurstFailures    = "multiple failed logins in a short period"
	ReasonOffHours         = "access outside normal hours"
	ReasonPrivateIPFailure = "mass failed attempts from a single private IP"
)

// DetectorConfig holds the heuristic thresholds. A rule fires when its
// count is strictly greater than the threshold.
type DetectorConfig struct {
	RapidAttemptWindow    time.Duration
	RapidAttemptThreshold int

	IPWindow    time.Duration
	IPThreshold int

	AgentWindow    time.Duration
	AgentThreshold int

	BurstWindow    time.Duration
	BurstThreshold int

	// Access is off-hours when the local hour is < OffHoursStart or > OffHoursEnd.
	OffHoursStart int
	OffHoursEnd   int
	Location      *time.Location

	PrivateIPWindow    time.Duration
	PrivateIPThreshold int
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		RapidAttemptWindow:    time.Hour,
		RapidAttemptThreshold: 10,
		IPWindow:              2 * time.Hour,
		IPThreshold:           3,
		AgentWindow:           24 * time.Hour,
		AgentThreshold:        5,
		BurstWindow:           30 * time.Minute,
		BurstThreshold:        3,
		OffHoursStart:         6,
		OffHoursEnd:           23,
		Location:              time.Local,
		PrivateIPWindow:       24 * time.Hour,
		PrivateIPThreshold:    20,
	}
}

// Verdict is the result of a detector evaluation.
type Verdict struct {
	Triggered bool
	Reasons   []string
}

// Detector evaluates recent security events for suspicious patterns. It
// only ever writes the SUSPICIOUS_ACTIVITY_DETECTED audit record.
type Detector struct {
	events *EventLog
	cfg    DetectorConfig
	logger *slog.Logger
	clock  func() time.Time
}

// NewDetector creates a Detector.
func NewDetector(events *EventLog, cfg DetectorConfig, logger *slog.Logger, clock func() time.Time) *Detector {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Detector{events: events, cfg: cfg, logger: logger, clock: clock}
}

// Evaluate runs every rule for userID. A rule whose query fails is logged
// and skipped; only a cancelled context is returned as an error.
func (d *Detector) Evaluate(ctx context.Context, userID ulid.ULID, ip, agent string) (Verdict, error) {
	var reasons []string
	uid := &userID

	if n, ok := d.count(ctx, "rapid_attempts", func() (int, error) {
		return d.events.CountInWindow(ctx, uid, []EventKind{EventLoginFailed, EventLoginSuccess}, d.cfg.RapidAttemptWindow)
	}); ok && n > d.cfg.RapidAttemptThreshold {
		reasons = append(reasons, ReasonRapidAttempts)
	}

	if n, ok := d.count(ctx, "ip_fanout", func() (int, error) {
		return d.events.CountDistinct(ctx, uid, ColumnIPAddress, d.cfg.IPWindow)
	}); ok && n > d.cfg.IPThreshold {
		reasons = append(reasons, ReasonMultipleIPs)
	}

	if n, ok := d.count(ctx, "agent_fanout", func() (int, error) {
		return d.events.CountDistinct(ctx, uid, ColumnUserAgent, d.cfg.AgentWindow)
	}); ok && n > d.cfg.AgentThreshold {
		reasons = append(reasons, ReasonMultipleAgents)
	}

	if n, ok := d.count(ctx, "burst_failures", func() (int, error) {
		return d.events.CountInWindow(ctx, uid, []EventKind{EventLoginFailed}, d.cfg.BurstWindow)
	}); ok && n > d.cfg.BurstThreshold {
		reasons = append(reasons, ReasonBurstFailures)
	}

	hour := d.clock().In(d.cfg.Location).Hour()
	if hour < d.cfg.OffHoursStart || hour > d.cfg.OffHoursEnd {
		reasons = append(reasons, ReasonOffHours)
	}

	if isPrivateAddress(ip) {
		if n, ok := d.count(ctx, "private_ip_failures", func() (int, error) {
			return d.events.CountForIP(ctx, ip, []EventKind{EventLoginFailed}, d.cfg.PrivateIPWindow)
		}); ok && n > d.cfg.PrivateIPThreshold {
			reasons = append(reasons, ReasonPrivateIPFailure)
		}
	}

	if err := ctx.Err(); err != nil {
		return Verdict{}, oops.Code(string(KindStoreUnavailable)).
			With("operation", "evaluate suspicious activity").
			Wrap(err)
	}

	if len(reasons) == 0 {
		return Verdict{}, nil
	}

	suspiciousVerdicts.Inc()
	d.events.Append(ctx, uid, EventSuspiciousActivity, "Detected: "+strings.Join(reasons, ", "), ip, agent)
	return Verdict{Triggered: true, Reasons: reasons}, nil
}

func (d *Detector) count(ctx context.Context, rule string, query func() (int, error)) (int, bool) {
	n, err := query()
	if err != nil {
		d.logger.WarnContext(ctx, "detector rule skipped", "rule", rule, "error", err)
		return 0, false
	}
	return n, true
}

// isPrivateAddress reports whether ip parses as a private or loopback address.
func isPrivateAddress(ip string) bool {
	if ip == "" {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback()
}
