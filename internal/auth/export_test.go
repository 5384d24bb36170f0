// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

// DummyPasswordHashForTest exposes the timing-equalisation hash to tests.
const DummyPasswordHashForTest = dummyPasswordHash

// ErrAccountLockedForTest builds an AccountLocked error.
func ErrAccountLockedForTest(minutes int, reasons []string) error {
	return errAccountLocked(minutes, reasons)
}

// ErrValidationForTest builds a ValidationFailed error.
func ErrValidationForTest(fields map[string][]string) error {
	return errValidation(fields)
}

// ErrInvalidCredentialsForTest builds an InvalidCredentials error.
func ErrInvalidCredentialsForTest() error {
	return errInvalidCredentials()
}
