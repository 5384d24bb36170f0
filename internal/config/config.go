// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package config loads authcore configuration from defaults, an optional
// YAML file, environment secrets and command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/pachiledger/authcore/internal/auth"
	"github.com/pachiledger/authcore/internal/xdg"
)

// Environment variables consulted for secrets left unset by file and flags.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvEncryptionKey = "AUTHCORE_ENCRYPTION_KEY"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the complete authcore configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Encryption EncryptionConfig `koanf:"encryption"`
	Security   SecurityConfig   `koanf:"security"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// DatabaseConfig selects and locates the credential store.
type DatabaseConfig struct {
	Driver         string `koanf:"driver" jsonschema:"enum=postgres,enum=sqlite"`
	URL            string `koanf:"url" jsonschema:"description=PostgreSQL connection URL"`
	SQLitePath     string `koanf:"sqlite_path"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// EncryptionConfig locates the field encryption key. Key wins over KeyFile.
type EncryptionConfig struct {
	Key     string `koanf:"key" jsonschema:"description=base64 encoded 32-byte key"`
	KeyFile string `koanf:"key_file"`
}

// SecurityConfig holds the lockout and session policy.
type SecurityConfig struct {
	MaxLoginAttempts            int           `koanf:"max_login_attempts" jsonschema:"minimum=1"`
	LockoutLadderMinutes        []int         `koanf:"lockout_ladder_minutes" jsonschema:"minItems=1"`
	SuspiciousLockMinutes       int           `koanf:"suspicious_lock_minutes" jsonschema:"minimum=1"`
	HighlySuspiciousLockMinutes int           `koanf:"highly_suspicious_lock_minutes" jsonschema:"minimum=1"`
	PasswordMinLength           int           `koanf:"password_min_length" jsonschema:"minimum=1"`
	SessionTTL                  time.Duration `koanf:"session_ttl"`
	SpoolFile                   string        `koanf:"spool_file"`
	// Timezone is the IANA zone used by the off-hours rule; "Local" by default.
	Timezone string `koanf:"timezone"`
}

// LogConfig selects the log output format.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
}

// MetricsConfig configures the observability server.
type MetricsConfig struct {
	Addr            string        `koanf:"addr"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	policy := auth.DefaultConfig()
	cfg := Config{
		Database: DatabaseConfig{
			Driver:         DriverPostgres,
			ConnectRetries: 5,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:            policy.MaxLoginAttempts,
			LockoutLadderMinutes:        append([]int(nil), policy.LockoutLadder...),
			SuspiciousLockMinutes:       policy.SuspiciousLockMinutes,
			HighlySuspiciousLockMinutes: policy.HighlySuspiciousLockMinutes,
			PasswordMinLength:           policy.PasswordMinLength,
			SessionTTL:                  policy.SessionTTL,
			Timezone:                    "Local",
		},
		Log:     LogConfig{Format: "json"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464", RefreshInterval: 30 * time.Second},
	}
	if p, err := xdg.SQLiteFile(); err == nil {
		cfg.Database.SQLitePath = p
	}
	if p, err := xdg.KeyFile(); err == nil {
		cfg.Encryption.KeyFile = p
	}
	if p, err := xdg.SpoolFile(); err == nil {
		cfg.Security.SpoolFile = p
	}
	return cfg
}

func (c Config) flatten() map[string]any {
	return map[string]any{
		"database.driver":                         c.Database.Driver,
		"database.url":                            c.Database.URL,
		"database.sqlite_path":                    c.Database.SQLitePath,
		"database.connect_retries":                c.Database.ConnectRetries,
		"encryption.key":                          c.Encryption.Key,
		"encryption.key_file":                     c.Encryption.KeyFile,
		"security.max_login_attempts":             c.Security.MaxLoginAttempts,
		"security.lockout_ladder_minutes":         c.Security.LockoutLadderMinutes,
		"security.suspicious_lock_minutes":        c.Security.SuspiciousLockMinutes,
		"security.highly_suspicious_lock_minutes": c.Security.HighlySuspiciousLockMinutes,
		"security.password_min_length":            c.Security.PasswordMinLength,
		"security.session_ttl":                    c.Security.SessionTTL,
		"security.spool_file":                     c.Security.SpoolFile,
		"security.timezone":                       c.Security.Timezone,
		"log.format":                              c.Log.Format,
		"metrics.addr":                            c.Metrics.Addr,
		"metrics.refresh_interval":                c.Metrics.RefreshInterval,
	}
}

// Load builds a Config. An empty path falls back to the XDG config file,
// which is optional; an explicit path must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range Default().flatten() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := loadFile(k, path, explicit); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		if err := k.Load(flagProvider(flags, k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Encryption.Key == "" {
		cfg.Encryption.Key = os.Getenv(EnvEncryptionKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			problems = append(problems, "database.url (or "+EnvDatabaseURL+") is required for postgres")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			problems = append(problems, "database.sqlite_path is required for sqlite")
		}
	default:
		problems = append(problems, "database.driver must be postgres or sqlite")
	}
	if c.Security.MaxLoginAttempts < 1 {
		problems = append(problems, "security.max_login_attempts must be positive")
	}
	if len(c.Security.LockoutLadderMinutes) == 0 {
		problems = append(problems, "security.lockout_ladder_minutes must not be empty")
	}
	for _, m := range c.Security.LockoutLadderMinutes {
		if m <= 0 {
			problems = append(problems, "security.lockout_ladder_minutes entries must be positive")
			break
		}
	}
	if c.Security.SessionTTL <= 0 {
		problems = append(problems, "security.session_ttl must be positive")
	}
	if _, err := time.LoadLocation(c.Security.Timezone); err != nil {
		problems = append(problems, "security.timezone is not a known zone")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, "log.format must be json or text")
	}
	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AuthConfig converts the security section into the auth policy.
func (c *Config) AuthConfig() (auth.Config, error) {
	loc, err := time.LoadLocation(c.Security.Timezone)
	if err != nil {
		return auth.Config{}, oops.Code("CONFIG_INVALID").With("timezone", c.Security.Timezone).Wrap(err)
	}
	policy := auth.DefaultConfig()
	policy.MaxLoginAttempts = c.Security.MaxLoginAttempts
	policy.LockoutLadder = append([]int(nil), c.Security.LockoutLadderMinutes...)
	policy.SuspiciousLockMinutes = c.Security.SuspiciousLockMinutes
	policy.HighlySuspiciousLockMinutes = c.Security.HighlySuspiciousLockMinutes
	policy.PasswordMinLength = c.Security.PasswordMinLength
	policy.SessionTTL = c.Security.SessionTTL
	policy.SpoolPath = c.Security.SpoolFile
	policy.Detector.Location = loc
	return policy, nil
}
