package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics defines the interface consumed by the rest of the module, kept
// storage-agnostic so the engine and sweeper never import Prometheus
// directly.
type Metrics interface {
	IncrementCounter(name string, labels map[string]string)
	RecordValue(name string, value float64, labels map[string]string)
	RecordDuration(name string, duration time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// PrometheusMetrics backs Metrics with a fixed set of registered
// collectors for the checkout core's operations.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	engineOperations   *prometheus.CounterVec
	engineDuration     *prometheus.HistogramVec
	idempotencyHits    *prometheus.CounterVec
	lowStockSignals    prometheus.Counter
	sweeperCycles      prometheus.Counter
	sweeperExpired     prometheus.Counter
	sweeperUnitsFreed  prometheus.Counter
	sweeperErrors      prometheus.Counter
	rateLimiterBlocked prometheus.Counter
}

// NewMetrics creates and registers the checkout core's Prometheus
// collectors against a dedicated registry.
func NewMetrics(serviceName string) (*PrometheusMetrics, error) {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		engineOperations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "engine_operations_total",
			Help:      "Count of reserve/confirm operations by outcome.",
		}, []string{"operation", "outcome"}),
		engineDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Name:      "engine_operation_duration_seconds",
			Help:      "Latency of reserve/confirm operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		idempotencyHits: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "idempotency_outcomes_total",
			Help:      "Count of idempotency-store outcomes by kind.",
		}, []string{"outcome"}),
		lowStockSignals: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "low_stock_signals_total",
			Help:      "Count of LowStockSignal records emitted by confirm.",
		}),
		sweeperCycles: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "sweeper_cycles_total",
			Help:      "Count of expiry sweeper cycles run.",
		}),
		sweeperExpired: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "sweeper_reservations_expired_total",
			Help:      "Count of reservations transitioned to expired.",
		}),
		sweeperUnitsFreed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "sweeper_units_released_total",
			Help:      "Count of reserved units released by the sweeper.",
		}),
		sweeperErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "sweeper_errors_total",
			Help:      "Count of failed expired-reservation queries and failed per-reservation expiry transactions.",
		}),
		rateLimiterBlocked: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "rate_limiter_blocked_total",
			Help:      "Count of requests rejected by the per-caller rate limiter.",
		}),
	}

	return m, nil
}

// Registry exposes the underlying Prometheus registry for the /metrics
// HTTP handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) {
	switch name {
	case "engine_operation":
		m.engineOperations.WithLabelValues(labels["operation"], labels["outcome"]).Inc()
	case "idempotency_outcome":
		m.idempotencyHits.WithLabelValues(labels["outcome"]).Inc()
	case "low_stock_signal":
		m.lowStockSignals.Inc()
	case "sweeper_cycle":
		m.sweeperCycles.Inc()
	case "sweeper_error":
		m.sweeperErrors.Inc()
	case "rate_limiter_blocked":
		m.rateLimiterBlocked.Inc()
	}
}

func (m *PrometheusMetrics) RecordValue(name string, value float64, labels map[string]string) {
	switch name {
	case "sweeper_expired":
		m.sweeperExpired.Add(value)
	case "sweeper_units_released":
		m.sweeperUnitsFreed.Add(value)
	}
}

func (m *PrometheusMetrics) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	if name == "engine_operation" {
		m.engineDuration.WithLabelValues(labels["operation"]).Observe(duration.Seconds())
	}
}

func (m *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
	// No gauges are currently tracked; reserved for future use (e.g. active reservations).
}
