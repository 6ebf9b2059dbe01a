// Package metrics instruments the live trading engine with Prometheus
// counters and gauges and serves them over HTTP. Backtests do not register
// metrics; only the long-running live mode is scraped.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnayoung/go-pair-trader/internal/config"
)

// EngineMetrics holds the instruments updated by the live engine each tick.
type EngineMetrics struct {
	registry *prometheus.Registry

	TicksTotal        prometheus.Counter
	SkippedTicksTotal *prometheus.CounterVec
	TradesTotal       *prometheus.CounterVec
	TickDuration      prometheus.Histogram

	PortfolioValue prometheus.Gauge
	PortfolioCash  prometheus.Gauge
	ZScore         prometheus.Gauge
	CurrentSignal  prometheus.Gauge
	LastTickTime   prometheus.Gauge
}

// NewEngineMetrics creates and registers the engine instruments on a
// dedicated registry, labeled with the traded pair.
func NewEngineMetrics(symbol1, symbol2 string) *EngineMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	constLabels := prometheus.Labels{
		"symbol1": symbol1,
		"symbol2": symbol2,
	}

	return &EngineMetrics{
		registry: registry,

		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "pairtrader",
			Name:        "ticks_total",
			Help:        "Completed engine ticks.",
			ConstLabels: constLabels,
		}),
		SkippedTicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pairtrader",
			Name:        "skipped_ticks_total",
			Help:        "Ticks skipped without a trading decision, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pairtrader",
			Name:        "trades_total",
			Help:        "Executed trades, by resulting signal.",
			ConstLabels: constLabels,
		}, []string{"signal"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "pairtrader",
			Name:        "tick_duration_seconds",
			Help:        "Wall time of a full tick including persistence.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),

		PortfolioValue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairtrader",
			Name:        "portfolio_value",
			Help:        "Total portfolio value at the latest prices.",
			ConstLabels: constLabels,
		}),
		PortfolioCash: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairtrader",
			Name:        "portfolio_cash",
			Help:        "Cash balance.",
			ConstLabels: constLabels,
		}),
		ZScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairtrader",
			Name:        "spread_zscore",
			Help:        "Latest spread z-score.",
			ConstLabels: constLabels,
		}),
		CurrentSignal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairtrader",
			Name:        "current_signal",
			Help:        "Held signal: -1 short spread, 0 flat, 1 long spread.",
			ConstLabels: constLabels,
		}),
		LastTickTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "pairtrader",
			Name:        "last_tick_timestamp_seconds",
			Help:        "Unix time of the last completed tick.",
			ConstLabels: constLabels,
		}),
	}
}

// RecordTick updates the per-tick gauges and counters.
func (m *EngineMetrics) RecordTick(value, cash, zscore float64, signal int, duration time.Duration) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(duration.Seconds())
	m.PortfolioValue.Set(value)
	m.PortfolioCash.Set(cash)
	m.ZScore.Set(zscore)
	m.CurrentSignal.Set(float64(signal))
	m.LastTickTime.SetToCurrentTime()
}

// RecordSkippedTick counts a tick that produced no trading decision.
func (m *EngineMetrics) RecordSkippedTick(reason string) {
	m.SkippedTicksTotal.WithLabelValues(reason).Inc()
}

// RecordTrade counts an executed trade by its resulting signal.
func (m *EngineMetrics) RecordTrade(signal string) {
	m.TradesTotal.WithLabelValues(signal).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Server serves the metrics registry over HTTP.
type Server struct {
	config config.MetricsConfig
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics HTTP server for the given registry.
func NewServer(cfg config.MetricsConfig, metrics *EngineMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	return &Server{
		config: cfg,
		logger: logger.With("component", "metrics_server"),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving in the background. Server errors are logged, not
// returned; a broken metrics endpoint must not take trading down.
func (s *Server) Start() {
	s.logger.Info("starting metrics server",
		"addr", s.server.Addr,
		"path", s.config.Path,
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
