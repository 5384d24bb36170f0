// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newSecurityCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Security reports",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print the current security summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.service.SecuritySummary(cmd.Context())
			if err != nil {
				return err
			}
			return printYAML(cmd, summary)
		},
	})

	var days int
	analytics := &cobra.Command{
		Use:   "analytics",
		Short: "Print login and suspicious activity analytics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return oops.Code("INVALID_ARGUMENT").With("days", days).Errorf("--days must be positive")
			}
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.service.SecurityAnalytics(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printYAML(cmd, report)
		},
	}
	analytics.Flags().IntVar(&days, "days", 7, "number of days to analyze")
	cmd.AddCommand(analytics)

	cmd.AddCommand(&cobra.Command{
		Use:   "integrity",
		Short: "Check encryption and database integrity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.service.ValidateDataIntegrity(cmd.Context())
			if err := printYAML(cmd, report); err != nil {
				return err
			}
			if !report.OverallStatus {
				return oops.Code("INTEGRITY_CHECK_FAILED").With("issues", report.Issues).Errorf("integrity check found problems")
			}
			return nil
		},
	})

	return cmd
}
