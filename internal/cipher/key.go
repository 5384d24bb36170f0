// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package cipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/pachiledger/authcore/internal/xdg"
)

// GenerateKey returns a new random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, oops.Code("CIPHER_KEYGEN_FAILED").Wrap(err)
	}
	return key, nil
}

// EncodeKey returns the base64 text form of key.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// ParseKey decodes a base64 key (standard or URL alphabet, padded or not).
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) != KeySize {
			return nil, oops.Code("CIPHER_INVALID_KEY").
				With("key_len", len(key)).
				Errorf("key must be %d bytes", KeySize)
		}
		return key, nil
	}
	return nil, oops.Code("CIPHER_INVALID_KEY").Errorf("key is not valid base64")
}

// LoadOrCreateKey reads the key stored at path, generating and persisting
// a new one with 0600 permissions when the file does not exist. Calling it
// again returns the same key. created reports whether a key was written.
func LoadOrCreateKey(path string) (key []byte, created bool, err error) {
	key, err = readKeyFile(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, false, err
	}
	key, err = GenerateKey()
	if err != nil {
		return nil, false, err
	}

	// The key is written in full to a temp file and then linked into place,
	// so a concurrent reader never sees a partial key.
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return nil, false, oops.Code("CIPHER_KEY_WRITE_FAILED").With("path", path).Wrap(err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup of the temp name

	if err := writeKeyTemp(tmp, key); err != nil {
		return nil, false, oops.Code("CIPHER_KEY_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Another process won the race; use its key.
			key, err = readKeyFile(path)
			return key, false, err
		}
		return nil, false, oops.Code("CIPHER_KEY_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return key, true, nil
}

func writeKeyTemp(file *os.File, key []byte) error {
	if err := file.Chmod(0o600); err != nil {
		_ = file.Close() //nolint:errcheck // chmod error takes precedence
		return err
	}
	if _, err := file.WriteString(EncodeKey(key) + "\n"); err != nil {
		_ = file.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close() //nolint:errcheck // sync error takes precedence
		return err
	}
	return file.Close()
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, oops.Code("CIPHER_KEY_READ_FAILED").With("path", path).Wrap(err)
	}
	key, err := ParseKey(string(data))
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return key, nil
}
