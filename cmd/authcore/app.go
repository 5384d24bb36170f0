// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pachiledger/authcore/internal/auth"
	"github.com/pachiledger/authcore/internal/cipher"
	"github.com/pachiledger/authcore/internal/config"
	"github.com/pachiledger/authcore/internal/logging"
	"github.com/pachiledger/authcore/internal/xdg"
)

const serviceName = "authcore"

// app is the wiring shared by the commands that talk to the store.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	stores  auth.Stores
	service *auth.Service
	release func()
}

func loadConfig(cmd *cobra.Command, deps *Deps, flags *rootFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := deps.ConfigLoader(flags.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, flags.verbose)
	return cfg, logger, nil
}

func openApp(cmd *cobra.Command, deps *Deps, flags *rootFlags) (*app, error) {
	cfg, logger, err := loadConfig(cmd, deps, flags)
	if err != nil {
		return nil, err
	}

	policy, err := cfg.AuthConfig()
	if err != nil {
		return nil, err
	}
	if policy.SpoolPath != "" {
		if err := xdg.EnsureDir(filepath.Dir(policy.SpoolPath)); err != nil {
			return nil, err
		}
	}

	key, created, err := deps.KeyLoader(cfg)
	if err != nil {
		return nil, oops.Code("KEY_LOAD_FAILED").Wrap(err)
	}
	if created {
		logger.Warn("generated a new encryption key", "path", cfg.Encryption.KeyFile)
	}
	fieldCipher, err := cipher.New(key)
	if err != nil {
		return nil, err
	}

	stores, release, err := deps.StoresOpener(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
	}

	service, err := auth.NewService(stores, fieldCipher, policy, auth.WithLogger(logger))
	if err != nil {
		release()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, stores: stores, service: service, release: release}, nil
}

func (a *app) Close() {
	if err := a.service.Events().Close(); err != nil {
		a.logger.Warn("failed to close security spool", "error", err)
	}
	a.release()
}

// resolveUser accepts a user ID or the username/email of an active user.
func (a *app) resolveUser(ctx context.Context, ref string) (ulid.ULID, error) {
	if id, err := ulid.ParseStrict(ref); err == nil {
		return id, nil
	}
	user, err := a.stores.Users.FindByIdentifier(ctx, ref)
	if errors.Is(err, auth.ErrNotFound) {
		return ulid.ULID{}, oops.Code("USER_NOT_FOUND").With("user", ref).Errorf("no active user %q", ref)
	}
	if err != nil {
		return ulid.ULID{}, err
	}
	return user.ID, nil
}

// readPassword reads one line from the command's stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	lines, err := readSecretLines(cmd, 1)
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

// readPasswordPair reads the current and the new password, one per line.
func readPasswordPair(cmd *cobra.Command) (current, next string, err error) {
	lines, err := readSecretLines(cmd, 2)
	if err != nil {
		return "", "", err
	}
	return lines[0], lines[1], nil
}

func readSecretLines(cmd *cobra.Command, n int) ([]string, error) {
	r := bufio.NewReader(cmd.InOrStdin())
	lines := make([]string, 0, n)
	for range n {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return nil, oops.Code("PASSWORD_REQUIRED").With("expected_lines", n).Errorf("password must be given on stdin")
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return enc.Close()
}

// reportAuthError prints the caller-safe message for err and returns err.
func reportAuthError(cmd *cobra.Command, err error) error {
	if kind := auth.KindOf(err); kind != auth.KindNone && kind != auth.KindInternal {
		cmd.PrintErrln(auth.PublicMessage(err))
	}
	return err
}
