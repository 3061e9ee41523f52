package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for engine activity.
type Metrics struct {
	config MetricsConfig

	// Engine metrics
	engineInvocations *prometheus.CounterVec
	engineDuration    *prometheus.HistogramVec
	engineErrors      *prometheus.CounterVec
	activeEngines     prometheus.Gauge

	// Selection metrics
	selectionFailures *prometheus.CounterVec

	// Parallel race metrics
	raceWinners       *prometheus.CounterVec
	raceCancellations *prometheus.CounterVec

	// Compilation metrics
	groundActions *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// no-op instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		engineInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_invocations_total",
				Help:      "Total number of engine invocations by outcome status",
			},
			[]string{"engine", "mode", "status"},
		),
		engineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_duration_seconds",
				Help:      "Duration of engine invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"engine", "mode"},
		),
		engineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_errors_total",
				Help:      "Total number of engine invocations that returned an error",
			},
			[]string{"engine", "mode", "class"},
		),
		activeEngines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_engines",
				Help:      "Current number of acquired engine instances",
			},
		),

		selectionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selection_failures_total",
				Help:      "Total number of engine selections that found no engine",
			},
			[]string{"mode", "reason"},
		),

		raceWinners: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "race_winners_total",
				Help:      "Total number of parallel races won per engine",
			},
			[]string{"engine"},
		),
		raceCancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "race_cancellations_total",
				Help:      "Total number of race participants cancelled after another engine won",
			},
			[]string{"engine"},
		),

		groundActions: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ground_actions",
				Help:      "Number of ground actions produced per compilation",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"engine"},
		),
	}

	registry.MustRegister(
		m.engineInvocations,
		m.engineDuration,
		m.engineErrors,
		m.activeEngines,
		m.selectionFailures,
		m.raceWinners,
		m.raceCancellations,
		m.groundActions,
	)

	return m, nil
}

// Engine Metrics

// RecordEngineInvocation records one completed invocation with its outcome.
func (m *Metrics) RecordEngineInvocation(engine, mode, status string, duration time.Duration) {
	if m == nil || m.engineInvocations == nil {
		return
	}
	m.engineInvocations.WithLabelValues(engine, mode, status).Inc()
	m.engineDuration.WithLabelValues(engine, mode).Observe(duration.Seconds())
}

// RecordEngineError records an invocation that failed with an error.
func (m *Metrics) RecordEngineError(engine, mode, class string) {
	if m == nil || m.engineErrors == nil {
		return
	}
	m.engineErrors.WithLabelValues(engine, mode, class).Inc()
}

// EngineAcquired increments the active engine gauge.
func (m *Metrics) EngineAcquired() {
	if m == nil || m.activeEngines == nil {
		return
	}
	m.activeEngines.Inc()
}

// EngineReleased decrements the active engine gauge.
func (m *Metrics) EngineReleased() {
	if m == nil || m.activeEngines == nil {
		return
	}
	m.activeEngines.Dec()
}

// Selection Metrics

// RecordSelectionFailure records a selection that produced no engine.
func (m *Metrics) RecordSelectionFailure(mode, reason string) {
	if m == nil || m.selectionFailures == nil {
		return
	}
	m.selectionFailures.WithLabelValues(mode, reason).Inc()
}

// Race Metrics

// RecordRaceWinner records the engine that won a parallel race.
func (m *Metrics) RecordRaceWinner(engine string) {
	if m == nil || m.raceWinners == nil {
		return
	}
	m.raceWinners.WithLabelValues(engine).Inc()
}

// RecordRaceCancellation records a participant cancelled by a race.
func (m *Metrics) RecordRaceCancellation(engine string) {
	if m == nil || m.raceCancellations == nil {
		return
	}
	m.raceCancellations.WithLabelValues(engine).Inc()
}

// Compilation Metrics

// RecordGrounding records the size of a grounded problem.
func (m *Metrics) RecordGrounding(engine string, actions int) {
	if m == nil || m.groundActions == nil {
		return
	}
	m.groundActions.WithLabelValues(engine).Observe(float64(actions))
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer exposes metrics on the configured address until ctx is
// done. It returns immediately after the listener is bound.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger *Logger) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	ln, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return nil
}
