// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pachiledger/authcore/pkg/errutil"
)

var tracer = otel.Tracer("authcore/auth")

// Config holds the authentication policy.
type Config struct {
	MaxLoginAttempts            int
	LockoutLadder               []int
	SuspiciousLockMinutes       int
	HighlySuspiciousLockMinutes int
	PasswordMinLength           int
	SessionTTL                  time.Duration
	SpoolPath                   string
	Detector                    DetectorConfig
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		MaxLoginAttempts:            5,
		LockoutLadder:               DefaultLockoutLadder,
		SuspiciousLockMinutes:       60,
		HighlySuspiciousLockMinutes: 120,
		PasswordMinLength:           DefaultPasswordMinLength,
		SessionTTL:                  DefaultSessionTimeout,
		Detector:                    DefaultDetectorConfig(),
	}
}

// Stores groups the persistence collaborators of the Service.
type Stores struct {
	Users     UserRepository
	Sessions  SessionRepository
	Events    EventStore
	Integrity IntegrityChecker
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source. Nil is ignored.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithHasher replaces the argon2id password hasher.
func WithHasher(hasher PasswordHasher) Option {
	return func(s *Service) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// Service orchestrates registration, login, sessions, lockout, suspicious
// activity detection and field encryption.
type Service struct {
	users       UserRepository
	sessionRepo SessionRepository
	integrity   IntegrityChecker
	hasher      PasswordHasher
	cipher      Cipher

	events   *EventLog
	detector *Detector
	locks    *LockPolicy
	sessions *SessionManager

	cfg    Config
	logger *slog.Logger
	clock  func() time.Time
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID     ulid.ULID
	Username   string
	Email      string
	Token      string
	ExpiresAt  time.Time
	Suspicious bool
	// Warnings are advisory suspicion reasons; they never block the login.
	Warnings []string
}

// NewService creates a Service.
func NewService(stores Stores, cipher Cipher, cfg Config, opts ...Option) (*Service, error) {
	if stores.Users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user repository is required")
	}
	if stores.Sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session repository is required")
	}
	if stores.Events == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("event store is required")
	}
	if cipher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("cipher is required")
	}
	if cfg.MaxLoginAttempts <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("max_login_attempts", cfg.MaxLoginAttempts).
			Errorf("max login attempts must be positive")
	}

	s := &Service{
		users:       stores.Users,
		sessionRepo: stores.Sessions,
		integrity:   stores.Integrity,
		hasher:      NewArgon2idHasher(),
		cipher:      cipher,
		cfg:         cfg,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.events = NewEventLog(stores.Events, cfg.SpoolPath, s.logger, s.clock)
	s.detector = NewDetector(s.events, cfg.Detector, s.logger, s.clock)
	s.locks = NewLockPolicy(stores.Users, s.events, cfg.LockoutLadder, s.logger, s.clock)
	s.sessions = NewSessionManager(stores.Sessions, stores.Users, cfg.SessionTTL, s.logger, s.clock)
	return s, nil
}

// Events exposes the security event log.
func (s *Service) Events() *EventLog { return s.events }

// Register creates an active user and returns its id.
func (s *Service) Register(ctx context.Context, username, email, password string) (_ ulid.ULID, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { endSpan(span, err) }()

	fields := make(map[string][]string)
	if vErr := ValidateUsername(username); vErr != nil {
		fields["username"] = append(fields["username"], vErr.Error())
	}
	if vErr := ValidateEmail(email); vErr != nil {
		fields["email"] = append(fields["email"], vErr.Error())
	}
	if problems := ValidatePasswordStrength(password, s.cfg.PasswordMinLength); len(problems) > 0 {
		fields["password"] = problems
	}
	if len(fields) > 0 {
		s.logger.InfoContext(ctx, "registration rejected", "fields", fieldNames(fields))
		return ulid.ULID{}, errValidation(fields)
	}

	hash, salt, err := s.hasher.Hash(password)
	if err != nil {
		return ulid.ULID{}, err
	}
	user, err := NewUser(username, email, hash, salt, s.clock())
	if err != nil {
		return ulid.ULID{}, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.logger.InfoContext(ctx, "registration rejected: duplicate identity")
			return ulid.ULID{}, oops.Code(string(KindDuplicateIdentity)).
				Errorf("username or email is already registered")
		}
		return ulid.ULID{}, storeUnavailable(s.logger, "create user", err)
	}

	s.events.Append(ctx, &user.ID, EventUserRegistered, "User registered: "+user.Username, "", "")
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user.ID, nil
}

// Login authenticates identifier (username or email) and issues a session.
func (s *Service) Login(ctx context.Context, identifier, password, ip, agent string) (_ *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { endSpan(span, err) }()

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, storeUnavailable(s.logger, "find user", err)
		}
		// Spend the same argon2 time as a real mismatch.
		_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // result is irrelevant
		s.events.Append(ctx, nil, EventLoginFailed, "Login attempt with invalid username: "+identifier, ip, agent)
		loginAttempts.WithLabelValues(outcomeFailed).Inc()
		return nil, errInvalidCredentials()
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	status, err := s.locks.Check(ctx, user)
	if err != nil {
		return nil, err
	}
	if status.Locked {
		loginAttempts.WithLabelValues(outcomeLocked).Inc()
		return nil, errAccountLocked(status.RemainingMinutes, nil)
	}

	ok, verifyErr := s.hasher.Verify(password, user.PasswordHash)
	if verifyErr != nil {
		errutil.LogError(s.logger.With("user_id", user.ID.String()), "stored password hash is unreadable", verifyErr)
	}
	if !ok {
		return nil, s.loginFailed(ctx, user, ip, agent)
	}
	return s.loginSucceeded(ctx, user, ip, agent)
}

func (s *Service) loginFailed(ctx context.Context, user *User, ip, agent string) error {
	attempts, err := s.users.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return storeUnavailable(s.logger, "increment failed attempts", err)
	}

	verdict, err := s.detector.Evaluate(ctx, user.ID, ip, agent)
	if err != nil {
		return err
	}

	failedDescription := fmt.Sprintf("Failed login attempt #%d", attempts)
	if attempts < s.cfg.MaxLoginAttempts && !verdict.Triggered {
		s.events.Append(ctx, &user.ID, EventLoginFailed, failedDescription, ip, agent)
		loginAttempts.WithLabelValues(outcomeFailed).Inc()
		return errInvalidCredentials()
	}

	var override *int
	trigger := "threshold"
	if verdict.Triggered {
		minutes := s.cfg.SuspiciousLockMinutes
		if len(verdict.Reasons) > 2 {
			minutes = s.cfg.HighlySuspiciousLockMinutes
		}
		override = &minutes
		trigger = "suspicious"
	}

	suspicion := "None"
	if verdict.Triggered {
		suspicion = strings.Join(verdict.Reasons, ", ")
	}
	reason := fmt.Sprintf("Failed login attempts: %d, Suspicious: %s", attempts, suspicion)

	// The attempt was already counted above, so the lock adds no strike.
	lock, err := s.locks.apply(ctx, user.ID, reason, override, 0)
	if err != nil {
		return err
	}
	s.events.Append(ctx, &user.ID, EventLoginFailed, failedDescription, ip, agent)
	if !lock.locked {
		loginAttempts.WithLabelValues(outcomeFailed).Inc()
		return errInvalidCredentials()
	}
	if lock.applied {
		accountLocks.WithLabelValues(trigger).Inc()
	}
	loginAttempts.WithLabelValues(outcomeLocked).Inc()
	return errAccountLocked(lock.minutes, verdict.Reasons)
}

func (s *Service) loginSucceeded(ctx context.Context, user *User, ip, agent string) (*LoginResult, error) {
	verdict, err := s.detector.Evaluate(ctx, user.ID, ip, agent)
	if err != nil {
		return nil, err
	}
	if verdict.Triggered && len(verdict.Reasons) > 1 {
		s.events.Append(ctx, &user.ID, EventSuspiciousLoginSuccess,
			"Successful login with suspicious indicators: "+strings.Join(verdict.Reasons, ", "), ip, agent)
		if len(verdict.Reasons) > 2 {
			s.logger.WarnContext(ctx, "highly suspicious login",
				"user_id", user.ID.String(),
				"reasons", verdict.Reasons)
		}
	}

	if err := s.users.RecordLogin(ctx, user.ID, s.clock()); err != nil {
		return nil, storeUnavailable(s.logger, "record login", err)
	}

	token, session, err := s.sessions.Issue(ctx, user.ID, ip, agent)
	if err != nil {
		return nil, err
	}

	s.events.Append(ctx, &user.ID, EventLoginSuccess, "Successful login", ip, agent)
	loginAttempts.WithLabelValues(outcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())

	result := &LoginResult{
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Token:      token,
		ExpiresAt:  session.ExpiresAt,
		Suspicious: verdict.Triggered,
	}
	if verdict.Triggered {
		result.Warnings = verdict.Reasons
	}
	return result, nil
}

// ValidateSession returns the owner of token, or nil when the token is not
// a live session.
func (s *Service) ValidateSession(ctx context.Context, token string) (*UserSummary, error) {
	return s.sessions.Validate(ctx, token)
}

// Logout revokes the session for token and reports whether it was active.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	userID, changed, err := s.sessions.revoke(ctx, token)
	if err != nil || !changed {
		return false, err
	}
	s.events.Append(ctx, &userID, EventLogout, "User logged out", "", "")
	return true, nil
}

// LockAccount locks userID for minutes, or per the escalation ladder when
// minutes is nil.
func (s *Service) LockAccount(ctx context.Context, userID ulid.ULID, reason string, minutes *int) (bool, error) {
	locked, err := s.locks.Lock(ctx, userID, reason, minutes)
	if locked {
		accountLocks.WithLabelValues("manual").Inc()
	}
	return locked, err
}

// UnlockAccount clears the lock of userID.
func (s *Service) UnlockAccount(ctx context.Context, userID ulid.ULID, adminOverride bool) (bool, error) {
	return s.locks.Unlock(ctx, userID, adminOverride)
}

// DetectSuspiciousActivity runs the detector standalone.
func (s *Service) DetectSuspiciousActivity(ctx context.Context, userID ulid.ULID, ip, agent string) (Verdict, error) {
	return s.detector.Evaluate(ctx, userID, ip, agent)
}

// ChangePassword replaces the password of userID after verifying current
// and revokes every session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errInvalidCredentials()
		}
		return storeUnavailable(s.logger, "get user", err)
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		return errInvalidCredentials()
	}
	if problems := ValidatePasswordStrength(next, s.cfg.PasswordMinLength); len(problems) > 0 {
		return errValidation(map[string][]string{"password": problems})
	}

	hash, salt, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, salt, s.clock()); err != nil {
		return storeUnavailable(s.logger, "update password", err)
	}
	revoked, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password changed",
		"user_id", userID.String(),
		"sessions_revoked", revoked)
	return nil
}

// Deactivate soft-deletes userID and revokes its sessions. Returns false
// when the user does not exist.
func (s *Service) Deactivate(ctx context.Context, userID ulid.ULID) (bool, error) {
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, storeUnavailable(s.logger, "deactivate user", err)
	}
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return true, err
	}
	s.logger.InfoContext(ctx, "user deactivated", "user_id", userID.String())
	return true, nil
}

// Encrypt encrypts a string with the service cipher.
func (s *Service) Encrypt(plaintext string) (string, error) {
	return s.cipher.EncryptString(plaintext)
}

// Decrypt decrypts a string produced by Encrypt.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	return s.cipher.DecryptString(ciphertext)
}

// EncryptFields encrypts the named fields of record; nil selects SensitiveFields.
func (s *Service) EncryptFields(record Record, fields []string) (Record, error) {
	return EncryptFields(s.cipher, record, fields)
}

// DecryptFields decrypts the flagged sensitive fields of record.
func (s *Service) DecryptFields(record Record) (Record, error) {
	return DecryptFields(s.cipher, record, nil)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

func fieldNames(fields map[string][]string) []string {
	names := make([]string, 0, len(fields))
	for _, name := range []string{"username", "email", "password"} {
		if _, ok := fields[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
