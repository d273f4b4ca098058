// Package metrics exposes Prometheus counters for the alert pipeline and an
// HTTP endpoint to scrape them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's instrumentation.
type Metrics struct {
	CyclesTotal           *prometheus.CounterVec
	CycleDuration         prometheus.Histogram
	OpportunitiesDetected prometheus.Counter
	OpportunitiesNew      prometheus.Counter
	NotificationsTotal    *prometheus.CounterVec
	QuotesDropped         prometheus.Counter
	SportsFailed          prometheus.Counter
	QuotaRemaining        prometheus.Gauge
}

// New registers the pipeline metrics with the given registry. A nil registry
// uses the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbalert_cycles_total",
			Help: "Completed detection cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbalert_cycle_duration_seconds",
			Help:    "Wall-clock duration of one detection cycle.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		OpportunitiesDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbalert_opportunities_detected_total",
			Help: "Arbitrage opportunities found by the detector.",
		}),
		OpportunitiesNew: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbalert_opportunities_new_total",
			Help: "Opportunities registered for the first time within their cooldown window.",
		}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbalert_notifications_total",
			Help: "Per-recipient delivery outcomes.",
		}, []string{"status"}),
		QuotesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbalert_quotes_dropped_total",
			Help: "Malformed quotes dropped during ingestion.",
		}),
		SportsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbalert_sports_failed_total",
			Help: "Per-sport fetches that exhausted their retries.",
		}),
		QuotaRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arbalert_provider_quota_remaining",
			Help: "Provider request budget remaining, as last reported.",
		}),
	}
}

// Server serves the /metrics scrape endpoint.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics HTTP server bound to addr.
func NewServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(slog.String("component", "metrics")),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
