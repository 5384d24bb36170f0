// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package auth is the authentication and security-monitoring core.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates an active User with validated username and email
//   - NewSession - creates an active Session with a validated owner and expiry
//
// Repository implementations receive pre-validated types from these
// constructors. Persistence lives in the postgres and sqlite subpackages.
//
// # Components
//
//   - EventLog - append-only security log with a spool-file fallback
//   - Detector - heuristic suspicious-activity verdicts over the log
//   - LockPolicy - escalating account locks and lazy unlock
//   - SessionManager - bearer token issue, validation and revocation
//   - Service - register, login, logout and the monitoring reports
//
// # Errors
//
// Expected outcomes are returned as oops errors carrying an ErrorKind code.
// Use KindOf to branch and PublicMessage for text that is safe to show to
// an end user.
package auth
