// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newMonitorCmd(deps *Deps, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Serve security metrics until interrupted",
		Long: `Replay any spooled security events into the store, then serve
prometheus metrics and health probes. The security summary gauges are
refreshed every metrics.refresh_interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, deps, flags)
		},
	}
}

func runMonitor(cmd *cobra.Command, deps *Deps, flags *rootFlags) error {
	a, err := openApp(cmd, deps, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	replayed, err := a.service.Events().ReplaySpool(ctx)
	if err != nil {
		a.logger.Warn("failed to replay security spool", "error", err)
	} else if replayed > 0 {
		a.logger.Info("replayed spooled security events", "count", replayed)
	}

	server := deps.ObservabilityServerFactory(a.cfg.Metrics.Addr, a.service, a.cfg.Metrics.RefreshInterval, a.logger)
	errCh, err := server.Start()
	if err != nil {
		return oops.Code("MONITOR_START_FAILED").Wrap(err)
	}
	cmd.Printf("Serving metrics on http://%s/metrics\n", server.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down monitor")
	case err, ok := <-errCh:
		if ok && err != nil {
			serveErr = oops.Code("MONITOR_SERVE_FAILED").Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("error stopping observability server", "error", err)
	}
	return serveErr
}
