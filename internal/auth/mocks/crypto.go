// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/pachiledger/authcore/internal/auth"
)

// MockPasswordHasher is a testify double for auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted at cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, string, error) {
	args := m.Called(password)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// MockCipher is a testify double for auth.Cipher.
type MockCipher struct {
	mock.Mock
}

// NewMockCipher creates a mock whose expectations are asserted at cleanup.
func NewMockCipher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCipher {
	m := &MockCipher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCipher) EncryptString(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockCipher) DecryptString(ciphertext string) (string, error) {
	args := m.Called(ciphertext)
	return args.String(0), args.Error(1)
}

var (
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.Cipher         = (*MockCipher)(nil)
)
