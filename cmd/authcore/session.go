// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newSessionCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and revoke sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate TOKEN",
		Short: "Print the user a session token belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.service.ValidateSession(cmd.Context(), args[0])
			if err != nil {
				return reportAuthError(cmd, err)
			}
			if user == nil {
				return oops.Code("SESSION_INVALID").Errorf("session is invalid or expired")
			}
			return printYAML(cmd, user)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "revoke TOKEN",
		Aliases: []string{"logout"},
		Short:   "End a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			revoked, err := a.service.Logout(cmd.Context(), args[0])
			if err != nil {
				return reportAuthError(cmd, err)
			}
			if !revoked {
				cmd.Println("No active session for that token")
				return nil
			}
			cmd.Println("Session revoked")
			return nil
		},
	})

	return cmd
}
