// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package cipher provides authenticated symmetric encryption of opaque
// values with a single process-wide key.
package cipher

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// CodeDecryptionFailed is carried by every decryption error.
const CodeDecryptionFailed = "CIPHER_DECRYPTION_FAILED"

// Service encrypts with XChaCha20-Poly1305. The output of Encrypt is
// nonce || ciphertext || tag. Service is safe for concurrent use.
type Service struct {
	aead cipher.AEAD
}

// New creates a Service for a KeySize-byte key.
func New(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, oops.Code("CIPHER_INVALID_KEY").
			With("key_len", len(key)).
			Errorf("key must be %d bytes", KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, oops.Code("CIPHER_INVALID_KEY").Wrap(err)
	}
	return &Service{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. Empty input returns
// empty output.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return []byte{}, nil
	}
	nonceSize := s.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, oops.Code("CIPHER_NONCE_FAILED").Wrap(err)
	}
	return s.aead.Seal(out, out, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt. Empty input returns empty
// output. Truncated, modified or foreign-key input fails with
// CIPHER_DECRYPTION_FAILED.
func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return []byte{}, nil
	}
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize+s.aead.Overhead() {
		return nil, oops.Code(CodeDecryptionFailed).
			With("len", len(ciphertext)).
			Errorf("ciphertext too short")
	}
	plaintext, err := s.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, oops.Code(CodeDecryptionFailed).Errorf("ciphertext failed authentication")
	}
	return plaintext, nil
}

// EncryptString encrypts s and returns URL-safe base64. Empty in, empty out.
func (s *Service) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := s.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (s *Service) DecryptString(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	sealed, err := base64.URLEncoding.Strict().DecodeString(ciphertext)
	if err != nil {
		return "", oops.Code(CodeDecryptionFailed).Errorf("ciphertext is not valid base64")
	}
	plaintext, err := s.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
