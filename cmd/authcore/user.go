// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newUserCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long: `Manage user accounts. USER is a user ID, or the username or email
of an active user.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "register USERNAME EMAIL",
		Short: "Create a user; the password is read from stdin",
		Args:  cobra.ExactArgs(2),
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

			id, err := a.service.Register(cmd.Context(), args[0], args[1], password)
			if err != nil {
				return reportAuthError(cmd, err)
			}
			cmd.Println(id.String())
			return nil
		},
	})

	var (
		minutes int
		reason  string
	)
	lock := &cobra.Command{
		Use:   "lock USER",
		Short: "Lock an account",
		Long: `Lock an account. Without --minutes the duration follows the
escalating lockout ladder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var explicit *int
			if cmd.Flags().Changed("minutes") {
				explicit = &minutes
			}
			locked, err := a.service.LockAccount(cmd.Context(), id, reason, explicit)
			if err != nil {
				return reportAuthError(cmd, err)
			}
			if !locked {
				return oops.Code("USER_NOT_FOUND").With("user", args[0]).Errorf("account was not locked")
			}
			cmd.Printf("Locked %s\n", id)
			return nil
		},
	}
	lock.Flags().IntVar(&minutes, "minutes", 0, "lock duration in minutes")
	lock.Flags().StringVar(&reason, "reason", "Administrative lock", "reason recorded in the security log")
	cmd.AddCommand(lock)

	cmd.AddCommand(&cobra.Command{
		Use:   "unlock USER",
		Short: "Unlock an account (admin override)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			unlocked, err := a.service.UnlockAccount(cmd.Context(), id, true)
			if err != nil {
				return reportAuthError(cmd, err)
			}
			if !unlocked {
				return oops.Code("USER_NOT_FOUND").With("user", args[0]).Errorf("account was not unlocked")
			}
			cmd.Printf("Unlocked %s\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate USER",
		Short: "Deactivate an account and revoke its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ok, err := a.service.Deactivate(cmd.Context(), id)
			if err != nil {
				return reportAuthError(cmd, err)
			}
			if !ok {
				return oops.Code("USER_NOT_FOUND").With("user", args[0]).Errorf("account was not deactivated")
			}
			cmd.Printf("Deactivated %s\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "passwd USER",
		Short: "Change a password; reads the current and new password from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, next, err := readPasswordPair(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.service.ChangePassword(cmd.Context(), id, current, next); err != nil {
				return reportAuthError(cmd, err)
			}
			cmd.Println("Password changed; existing sessions were revoked")
			return nil
		},
	})

	return cmd
}
