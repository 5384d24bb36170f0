// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pachiledger/authcore/pkg/errutil"
)

type fakeMigrator struct {
	calls   []string
	forced  int
	upErr   error
	version uint
	dirty   bool
	pending []uint
	closed  bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) {
	m.calls = append(m.calls, "version")
	return m.version, m.dirty, nil
}

func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.forced = v
	return nil
}

func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func migratorDeps(m *fakeMigrator, gotURL *string) *Deps {
	return &Deps{
		MigratorFactory: func(url string) (Migrator, error) {
			*gotURL = url
			return m, nil
		},
	}
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "negative is valid", input: "-1", wantVersion: -1},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "non-numeric returns error", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "empty string returns error", input: "", wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only returns error", input: "   ", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErrCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestMigrate_Postgres(t *testing.T) {
	isolate(t)
	const url = "postgres://authcore@localhost:5432/authcore"

	t.Run("up by default", func(t *testing.T) {
		m := &fakeMigrator{}
		var gotURL string
		out, _, err := execute(t, migratorDeps(m, &gotURL), "", "migrate", "--database-url", url)
		require.NoError(t, err)
		assert.Equal(t, url, gotURL)
		assert.Equal(t, []string{"up"}, m.calls)
		assert.True(t, m.closed)
		assert.Contains(t, out, "Migrations completed successfully")
	})

	t.Run("version", func(t *testing.T) {
		m := &fakeMigrator{version: 2, dirty: true, pending: []uint{3}}
		var gotURL string
		out, _, err := execute(t, migratorDeps(m, &gotURL), "", "migrate", "version", "--database-url", url)
		require.NoError(t, err)
		assert.Contains(t, out, "Version: 2 (dirty)")
		assert.Contains(t, out, "Pending: 1")
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{}
		var gotURL string
		_, _, err := execute(t, migratorDeps(m, &gotURL), "", "migrate", "force", "1", "--database-url", url)
		require.NoError(t, err)
		assert.Equal(t, 1, m.forced)
	})

	t.Run("down", func(t *testing.T) {
		m := &fakeMigrator{}
		var gotURL string
		_, _, err := execute(t, migratorDeps(m, &gotURL), "", "migrate", "down", "--database-url", url)
		require.NoError(t, err)
		assert.Equal(t, []string{"down"}, m.calls)
	})

	t.Run("up failure", func(t *testing.T) {
		m := &fakeMigrator{upErr: errors.New("dirty database")}
		var gotURL string
		_, _, err := execute(t, migratorDeps(m, &gotURL), "", "migrate", "up", "--database-url", url)
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	})

	t.Run("missing url", func(t *testing.T) {
		_, _, err := execute(t, nil, "", "migrate")
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestMigrate_SQLite(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, nil, "", sqliteArgs("migrate")...)
	require.NoError(t, err)
	assert.Contains(t, out, "SQLite schema is up to date")

	_, _, err = execute(t, nil, "", sqliteArgs("migrate", "version")...)
	errutil.AssertErrorCode(t, err, "MIGRATION_UNSUPPORTED")
}
