// Package observability provides Prometheus metrics for the tracker.
package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	TokensProcessed *prometheus.CounterVec

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderAttempts *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec

	// Breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	// Dead letter metrics
	DeadLetterRecorded *prometheus.CounterVec
	DeadLetterSize     prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry,
// so a push sends only tracker metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_tracker"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		TokensProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "tokens_total",
			Help:      "Tokens processed by outcome",
		}, []string{"outcome"}),

		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider fetches by result class",
		}, []string{"provider", "result"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "http_attempts_total",
			Help:      "HTTP attempts including retries",
		}, []string{"provider", "result"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Provider fetch latency in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"provider", "result"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Breaker state per provider (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Breaker state transitions",
		}, []string{"provider", "to"}),

		DeadLetterRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dead_letter",
			Name:      "recorded_total",
			Help:      "Dead letter entries recorded by error class",
		}, []string{"class"}),
		DeadLetterSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dead_letter",
			Name:      "entries",
			Help:      "Entries currently in the dead letter queue",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database operation errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last run without failures",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a finished run.
func RecordRun(mode, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordToken records one token outcome (updated, failed, skipped).
func RecordToken(outcome string) {
	DefaultMetrics.TokensProcessed.WithLabelValues(outcome).Inc()
}

// RecordProviderFetch records a provider fetch and its latency.
func RecordProviderFetch(provider, result string, seconds float64) {
	DefaultMetrics.ProviderRequests.WithLabelValues(provider, result).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordProviderAttempt records a single HTTP attempt.
func RecordProviderAttempt(provider string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.ProviderAttempts.WithLabelValues(provider, result).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(provider, result).Inc()
}

// RecordBreakerState records a breaker transition. state is 0 closed,
// 1 half-open, 2 open.
func RecordBreakerState(provider, to string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(provider).Set(float64(state))
	DefaultMetrics.BreakerTransitions.WithLabelValues(provider, to).Inc()
}

// RecordDeadLetter records a dead letter entry.
func RecordDeadLetter(class string) {
	DefaultMetrics.DeadLetterRecorded.WithLabelValues(class).Inc()
}

// UpdateDeadLetterSize sets the dead letter size gauge.
func UpdateDeadLetterSize(n int) {
	DefaultMetrics.DeadLetterSize.Set(float64(n))
}

// RecordDBQuery records database operation metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MarkSuccessfulRun sets the last successful run gauge.
func MarkSuccessfulRun(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRun.Set(float64(unixSeconds))
}

// Push sends the default metrics to a Prometheus Pushgateway, replacing
// the previous push for the same job.
func Push(ctx context.Context, url, job string) error {
	return PushMetrics(ctx, DefaultMetrics, url, job)
}

// PushMetrics pushes m to a Pushgateway.
func PushMetrics(ctx context.Context, m *Metrics, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
