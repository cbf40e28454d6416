// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package observability provides HTTP endpoints for metrics and health
// checks, plus the dispatch counters the runtime records.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the runtime is attached and dispatching.
type ReadinessChecker func() bool

// Package-level dispatch counters. Package-level so the handler and manager
// can record without holding a Server reference.
var (
	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatling_events_processed_total",
			Help: "Total number of transport events processed by event name",
		},
		[]string{"event"},
	)
	commandsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatling_commands_executed_total",
			Help: "Total number of command plugin executions by pattern",
		},
		[]string{"pattern"},
	)
	guardFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatling_guard_failures_total",
			Help: "Total number of guard denials by reason code",
		},
		[]string{"code"},
	)
	pluginErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatling_plugin_errors_total",
			Help: "Total number of plugin exec errors by dispatch phase",
		},
		[]string{"phase"},
	)
	pluginReloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatling_plugin_reloads_total",
			Help: "Total number of plugin location registrations and removals",
		},
	)
	pluginLoadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatling_plugin_load_failures_total",
			Help: "Total number of plugin files that failed to load",
		},
	)
)

// RecordEventProcessed increments the processed-event counter.
func RecordEventProcessed(event string) {
	eventsProcessed.WithLabelValues(event).Inc()
}

// RecordCommandExecuted increments the command execution counter.
func RecordCommandExecuted(pattern string) {
	commandsExecuted.WithLabelValues(pattern).Inc()
}

// RecordGuardFailure increments the guard denial counter.
func RecordGuardFailure(code string) {
	guardFailures.WithLabelValues(code).Inc()
}

// RecordPluginError increments the plugin error counter for a dispatch
// phase ("listener" or "command").
func RecordPluginError(phase string) {
	pluginErrors.WithLabelValues(phase).Inc()
}

// RecordPluginReload increments the reload counter.
func RecordPluginReload() {
	pluginReloads.Inc()
}

// RecordPluginLoadFailure increments the load failure counter.
func RecordPluginLoadFailure() {
	pluginLoadFailures.Inc()
}

// Server provides HTTP endpoints for observability (metrics and health
// probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server listening on addr
// ("host:port"; ":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Own registry to avoid polluting the global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(
		eventsProcessed,
		commandsExecuted,
		guardFailures,
		pluginErrors,
		pluginReloads,
		pluginLoadFailures,
	)

	return &Server{
		addr:     addr,
		registry: registry,
		isReady:  readinessChecker,
	}
}

// Start begins serving observability endpoints. It returns an error channel
// carrying any serve failure; the channel closes on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if stopped.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable
		w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("not ready\n"))
}
