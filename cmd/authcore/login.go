// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"time"

	"github.com/spf13/cobra"
)

type loginOutput struct {
	UserID     string    `yaml:"user_id"`
	Username   string    `yaml:"username"`
	Email      string    `yaml:"email"`
	Token      string    `yaml:"session_token"`
	ExpiresAt  time.Time `yaml:"expires_at"`
	Suspicious bool      `yaml:"suspicious"`
	Warnings   []string  `yaml:"warnings,omitempty"`
}

func newLoginCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	var ip, agent string

	cmd := &cobra.Command{
		Use:   "login IDENTIFIER",
		Short: "Authenticate by username or email; the password is read from stdin",
		Long: `Authenticate by username or email and open a session. The password
is read from the first line of stdin. On success the session token is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.Login(cmd.Context(), args[0], password, ip, agent)
			if err != nil {
				return reportAuthError(cmd, err)
			}
			return printYAML(cmd, loginOutput{
				UserID:     result.UserID.String(),
				Username:   result.Username,
				Email:      result.Email,
				Token:      result.Token,
				ExpiresAt:  result.ExpiresAt,
				Suspicious: result.Suspicious,
				Warnings:   result.Warnings,
			})
		},
	}

	cmd.Flags().StringVar(&ip, "ip", "", "client IP address recorded with the attempt")
	cmd.Flags().StringVar(&agent, "user-agent", "authcore-cli", "client user agent recorded with the attempt")

	return cmd
}
