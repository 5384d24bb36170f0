// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	accountLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_account_locks_total",
		Help: "Account locks applied, by trigger",
	}, []string{"trigger"})

	suspiciousVerdicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_suspicious_verdicts_total",
		Help: "Detector evaluations that found at least one reason",
	})

	securityLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_security_log_failures_total",
		Help: "Security log write failures",
	}, []string{"reason"})

	spoolEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authcore_security_log_spool_entries",
		Help: "Security events waiting in the spool file",
	})

	storeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_store_failures_total",
		Help: "Repository failures surfaced as store unavailable, by operation",
	}, []string{"operation"})
)

// Login outcomes.
const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeLocked  = "locked"
)
