package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the Prometheus metrics for backtests and sweeps
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	TradesTotal prometheus.Counter
	ActiveRuns  prometheus.Gauge

	// Pipeline step metrics
	StepDuration *prometheus.HistogramVec

	// Series cache metrics
	CacheLookups *prometheus.CounterVec
}

// NewMetricsRegistry creates the metrics on a private registry
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glickorun_runs_total",
				Help: "Total number of backtest runs by terminal status",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glickorun_run_duration_seconds",
				Help:    "Wall time of one backtest run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),

		TradesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "glickorun_trades_total",
				Help: "Total number of closed trades across successful runs",
			},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "glickorun_active_runs",
				Help: "Number of backtest runs currently executing",
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glickorun_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glickorun_cache_lookups_total",
				Help: "Series cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.TradesTotal,
		m.ActiveRuns,
		m.StepDuration,
		m.CacheLookups,
	)
	return m
}

// RunStarted marks one run as executing
func (m *MetricsRegistry) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished records the terminal state of a run
func (m *MetricsRegistry) RunFinished(status string, duration time.Duration, trades int) {
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
	if trades > 0 {
		m.TradesTotal.Add(float64(trades))
	}
}

// RecordCacheLookup counts a cache hit or miss for tier
func (m *MetricsRegistry) RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// StepTimer measures one pipeline step
type StepTimer struct {
	registry *MetricsRegistry
	step     string
	start    time.Time
}

// StartStepTimer starts timing a pipeline step
func (m *MetricsRegistry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		registry: m,
		step:     step,
		start:    time.Now(),
	}
}

// Stop records the step duration with result "success" or "error"
func (st *StepTimer) Stop(result string) {
	st.registry.StepDuration.WithLabelValues(st.step, result).Observe(time.Since(st.start).Seconds())
}

// Gatherer exposes the underlying registry
func (m *MetricsRegistry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// MetricsHandler serves the registry in the Prometheus text format
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
