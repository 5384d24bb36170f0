// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/pachiledger/authcore/internal/cipher"
)

func newKeyCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the field encryption key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the encryption key file if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, deps, flags)
			if err != nil {
				return err
			}
			if cfg.Encryption.Key != "" {
				if _, _, err := deps.KeyLoader(cfg); err != nil {
					return err
				}
				cmd.Println("Encryption key is provided by configuration")
				return nil
			}
			_, created, err := deps.KeyLoader(cfg)
			if err != nil {
				return err
			}
			if created {
				cmd.Printf("Created encryption key at %s\n", cfg.Encryption.KeyFile)
			} else {
				cmd.Printf("Encryption key already exists at %s\n", cfg.Encryption.KeyFile)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new random key without storing it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := cipher.GenerateKey()
			if err != nil {
				return err
			}
			cmd.Println(cipher.EncodeKey(key))
			return nil
		},
	})

	return cmd
}
