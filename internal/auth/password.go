// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPasswordMinLength is the minimum password length when none is configured.
const DefaultPasswordMinLength = 8

const passwordSpecialChars = `!@#$%^&*(),.?":{}|<>`

var commonPasswords = map[string]struct{}{
	"password":    {},
	"123456":      {},
	"123456789":   {},
	"qwerty":      {},
	"abc123":      {},
	"password123": {},
	"admin":       {},
	"letmein":     {},
	"welcome":     {},
	"monkey":      {},
}

// ValidatePasswordStrength returns every rule the password violates.
// An empty result means the password is acceptable.
func ValidatePasswordStrength(password string, minLength int) []string {
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}

	var problems []string
	if utf8.RuneCountInString(password) < minLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", minLength))
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecialChars, r):
			special = true
		}
	}
	if !lower {
		problems = append(problems, "must contain a lower-case letter")
	}
	if !upper {
		problems = append(problems, "must contain an upper-case letter")
	}
	if !digit {
		problems = append(problems, "must contain a digit")
	}
	if !special {
		problems = append(problems, "must contain a special character")
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		problems = append(problems, "is a commonly used password")
	}
	return problems
}
