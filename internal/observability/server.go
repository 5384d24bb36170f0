// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package observability serves prometheus metrics and health probes, and
// keeps the security summary gauges fresh.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/pachiledger/authcore/internal/auth"
)

// DefaultRefreshInterval is used when NewServer is given a non-positive interval.
const DefaultRefreshInterval = 30 * time.Second

// SummarySource produces the security summary exported as gauges.
type SummarySource interface {
	SecuritySummary(ctx context.Context) (*auth.SecuritySummary, error)
}

// SecurityGauges mirrors auth.SecuritySummary in prometheus.
type SecurityGauges struct {
	ActiveUsers          prometheus.Gauge
	FailedLogins24h      prometheus.Gauge
	LockedAccounts       prometheus.Gauge
	ActiveSessions       prometheus.Gauge
	SuspiciousActivities prometheus.Gauge
	UniqueIPs24h         prometheus.Gauge
	AccountLocks7d       prometheus.Gauge
	LastRefresh          prometheus.Gauge
	RefreshFailures      prometheus.Counter
}

// NewSecurityGauges creates the gauges and registers them with reg.
func NewSecurityGauges(reg prometheus.Registerer) *SecurityGauges {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "authcore", Name: name, Help: help})
	}
	g := &SecurityGauges{
		ActiveUsers:          gauge("active_users", "Active user accounts"),
		FailedLogins24h:      gauge("failed_logins_24h", "Failed logins in the last 24 hours"),
		LockedAccounts:       gauge("locked_accounts", "Accounts currently locked"),
		ActiveSessions:       gauge("active_sessions", "Active, unexpired sessions"),
		SuspiciousActivities: gauge("suspicious_activities_24h", "Suspicious activity detections in the last 24 hours"),
		UniqueIPs24h:         gauge("unique_ips_24h", "Distinct client IPs in the last 24 hours"),
		AccountLocks7d:       gauge("account_locks_7d", "Account locks in the last 7 days"),
		LastRefresh:          gauge("summary_last_refresh_timestamp_seconds", "Unix time of the last successful summary refresh"),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "summary_refresh_failures_total",
			Help:      "Security summary refreshes that failed",
		}),
	}
	reg.MustRegister(
		g.ActiveUsers, g.FailedLogins24h, g.LockedAccounts, g.ActiveSessions,
		g.SuspiciousActivities, g.UniqueIPs24h, g.AccountLocks7d,
		g.LastRefresh, g.RefreshFailures,
	)
	return g
}

// Set copies s into the gauges.
func (g *SecurityGauges) Set(s *auth.SecuritySummary) {
	g.ActiveUsers.Set(float64(s.ActiveUsers))
	g.FailedLogins24h.Set(float64(s.FailedLogins24h))
	g.LockedAccounts.Set(float64(s.LockedAccounts))
	g.ActiveSessions.Set(float64(s.ActiveSessions))
	g.SuspiciousActivities.Set(float64(s.SuspiciousActivities24h))
	g.UniqueIPs24h.Set(float64(s.UniqueIPs24h))
	g.AccountLocks7d.Set(float64(s.AccountLocks7d))
	g.LastRefresh.Set(float64(s.GeneratedAt.Unix()))
}

// Server exposes /metrics and the health probes. Readiness follows the
// outcome of the most recent summary refresh.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	gatherer   prometheus.Gatherer
	gauges     *SecurityGauges
	source     SummarySource
	interval   time.Duration
	logger     *slog.Logger

	running     atomic.Bool
	ready       atomic.Bool
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

// NewServer creates a server listening on addr ("127.0.0.1:9464", ":0", ...).
// A nil source serves process metrics only and is always ready.
func NewServer(addr string, source SummarySource, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	s := &Server{
		addr:     addr,
		registry: registry,
		// The auth counters and Go runtime collectors live in the default registry.
		gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, registry},
		gauges:   NewSecurityGauges(registry),
		source:   source,
		interval: interval,
		logger:   logger,
	}
	if source == nil {
		s.ready.Store(true)
	}
	return s
}

// Gauges returns the security summary gauges.
func (s *Server) Gauges() *SecurityGauges {
	return s.gauges
}

// Refresh pulls one summary into the gauges and updates readiness.
func (s *Server) Refresh(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	summary, err := s.source.SecuritySummary(ctx)
	if err != nil {
		s.ready.Store(false)
		s.gauges.RefreshFailures.Inc()
		return oops.Code("METRICS_REFRESH_FAILED").Wrap(err)
	}
	s.gauges.Set(summary)
	s.ready.Store(true)
	return nil
}

// Start begins serving and refreshing. The returned channel receives a
// serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("METRICS_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("METRICS_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	refreshCtx, cancel := context.WithCancel(context.Background())
	s.stopRefresh = cancel
	s.refreshDone = make(chan struct{})
	go s.refreshLoop(refreshCtx)

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

func (s *Server) refreshLoop(ctx context.Context) {
	defer close(s.refreshDone)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("security summary refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts the refresh loop and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.stopRefresh()
	<-s.refreshDone

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("METRICS_SHUTDOWN_FAILED").With("operation", "shutdown observability server").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // client may have gone away
		w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("not ready\n"))
}
