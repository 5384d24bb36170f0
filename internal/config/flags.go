// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package config

import (
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"database-driver":    "database.driver",
	"database-url":       "database.url",
	"sqlite-path":        "database.sqlite_path",
	"connect-retries":    "database.connect_retries",
	"key-file":           "encryption.key_file",
	"max-login-attempts": "security.max_login_attempts",
	"session-ttl":        "security.session_ttl",
	"spool-file":         "security.spool_file",
	"timezone":           "security.timezone",
	"log-format":         "log.format",
	"metrics-addr":       "metrics.addr",
}

// RegisterFlags adds the configuration flags to fs. Unchanged flags never
// override values from the config file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-driver", d.Database.Driver, "credential store driver (postgres or sqlite)")
	fs.String("database-url", "", "PostgreSQL connection URL (default $"+EnvDatabaseURL+")")
	fs.String("sqlite-path", d.Database.SQLitePath, "SQLite database file")
	fs.Uint64("connect-retries", d.Database.ConnectRetries, "startup connection retries")
	fs.String("key-file", d.Encryption.KeyFile, "encryption key file")
	fs.Int("max-login-attempts", d.Security.MaxLoginAttempts, "failed logins before an account is locked")
	fs.Duration("session-ttl", d.Security.SessionTTL, "session lifetime")
	fs.String("spool-file", d.Security.SpoolFile, "fallback file for security events the store rejects")
	fs.String("timezone", d.Security.Timezone, "time zone for the off-hours rule")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("metrics-addr", d.Metrics.Addr, "listen address for the metrics server")
}

// flagProvider reads the mapped flags of fs. Flags outside flagKeys are
// ignored.
func flagProvider(fs *pflag.FlagSet, k posflag.KoanfIntf) *posflag.Posflag {
	return posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
}
