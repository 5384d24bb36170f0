// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/pachiledger/authcore/pkg/errutil"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a unique constraint is violated.
var ErrDuplicate = errors.New("duplicate")

// ErrorKind classifies the errors returned by the authentication core.
type ErrorKind string

// Error kinds. The value of each kind is the oops code carried by the error.
const (
	KindNone               ErrorKind = ""
	KindInvalidCredentials ErrorKind = "AUTH_INVALID_CREDENTIALS"
	KindAccountLocked      ErrorKind = "AUTH_ACCOUNT_LOCKED"
	KindDuplicateIdentity  ErrorKind = "AUTH_DUPLICATE_IDENTITY"
	KindValidationFailed   ErrorKind = "AUTH_VALIDATION_FAILED"
	KindDecryptionFailed   ErrorKind = "CIPHER_DECRYPTION_FAILED"
	KindStoreUnavailable   ErrorKind = "AUTH_STORE_UNAVAILABLE"
	KindInternal           ErrorKind = "AUTH_INTERNAL"
)

var publicMessages = map[ErrorKind]string{
	KindInvalidCredentials: "invalid username or password",
	KindAccountLocked:      "account is locked",
	KindDuplicateIdentity:  "username or email is already in use",
	KindValidationFailed:   "registration data is invalid",
	KindDecryptionFailed:   "data could not be decrypted",
	KindStoreUnavailable:   "authentication service is temporarily unavailable",
	KindInternal:           "internal error",
}

// KindOf returns the kind of err, KindNone for nil and KindInternal for errors
// that carry no known code.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	code := errutil.Code(err)
	if _, known := publicMessages[ErrorKind(code)]; known {
		return ErrorKind(code)
	}
	return KindInternal
}

// PublicMessage returns a message that is safe to show to an end user.
// It never contains wrapped driver or system detail.
func PublicMessage(err error) string {
	kind := KindOf(err)
	if kind == KindNone {
		return ""
	}
	if kind == KindAccountLocked {
		if minutes, ok := RemainingMinutes(err); ok {
			return fmt.Sprintf("account is locked, try again in %d minutes", minutes)
		}
	}
	return publicMessages[kind]
}

// RemainingMinutes extracts the lock time left from an AccountLocked error.
func RemainingMinutes(err error) (int, bool) {
	v, ok := contextValue(err, "remaining_minutes")
	if !ok {
		return 0, false
	}
	minutes, ok := v.(int)
	return minutes, ok
}

// SuspicionReasons extracts the detector reasons attached to an AccountLocked error.
func SuspicionReasons(err error) []string {
	v, ok := contextValue(err, "reasons")
	if !ok {
		return nil
	}
	reasons, _ := v.([]string)
	return reasons
}

// FieldErrors extracts the per-field messages of a ValidationFailed error.
func FieldErrors(err error) map[string][]string {
	v, ok := contextValue(err, "field_errors")
	if !ok {
		return nil
	}
	fields, _ := v.(map[string][]string)
	return fields
}

func contextValue(err error, key string) (any, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil, false
	}
	v, ok := oopsErr.Context()[key]
	return v, ok
}

func errInvalidCredentials() error {
	return oops.Code(string(KindInvalidCredentials)).Errorf("invalid username or password")
}

func errAccountLocked(remainingMinutes int, reasons []string) error {
	return oops.Code(string(KindAccountLocked)).
		With("remaining_minutes", remainingMinutes).
		With("reasons", reasons).
		Errorf("account is locked for another %d minutes", remainingMinutes)
}

func errValidation(fields map[string][]string) error {
	return oops.Code(string(KindValidationFailed)).
		With("field_errors", fields).
		Errorf("validation failed for %d field(s)", len(fields))
}

// storeUnavailable logs err locally and converts it to a StoreUnavailable error.
func storeUnavailable(logger *slog.Logger, operation string, err error) error {
	errutil.LogError(logger, "store operation failed", err)
	storeFailures.WithLabelValues(operation).Inc()
	return oops.Code(string(KindStoreUnavailable)).
		With("operation", operation).
		Errorf("store operation %q failed", operation)
}
