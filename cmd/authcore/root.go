// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/pachiledger/authcore/internal/config"
)

// rootFlags are the flags shared by every subcommand.
type rootFlags struct {
	configFile string
	verbose    bool
}

// NewRootCmd creates the root command. A nil deps uses the production wiring.
func NewRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "Authentication and security monitoring for the ledger",
		Long: `authcore manages user credentials, sessions and account lockout,
records security events and reports on suspicious activity.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateCmd(deps, flags))
	cmd.AddCommand(newKeyCmd(deps, flags))
	cmd.AddCommand(newUserCmd(deps, flags))
	cmd.AddCommand(newLoginCmd(deps, flags))
	cmd.AddCommand(newSessionCmd(deps, flags))
	cmd.AddCommand(newSecurityCmd(deps, flags))
	cmd.AddCommand(newMonitorCmd(deps, flags))

	return cmd
}
