package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepCount counts finished sweeps by result (ok, aborted, canceled).
	SweepCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_sweep_total",
			Help: "Total number of reminder sweeps",
		},
		[]string{"result"},
	)

	// SweepDuration is the wall time of one sweep in seconds.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_sweep_duration_seconds",
			Help:    "Reminder sweep duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
	)

	// ReminderOutcome counts per-enrollment outcomes.
	ReminderOutcome = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_outcome_total",
			Help: "Reminder outcomes per enrollment",
		},
		[]string{"milestone", "outcome"}, // outcome: sent, failed, submitted, not_approved, already_sent, config_gap, lookup_failed
	)

	// DeliveryLatency is the latency of the external delivery call in milliseconds.
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reminder_delivery_latency_ms",
			Help:    "Delivery provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"provider", "status"},
	)

	// SlowQueryCount counts queries above the slow threshold.
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of slow database queries",
		},
	)

	// SlowQueryDuration is the duration of slow queries in seconds.
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Slow database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	// OutboxPublished counts outbox events by result.
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events published to MQ",
		},
		[]string{"status"},
	)
)

// RecordSweep records one finished sweep.
func RecordSweep(result string, duration time.Duration) {
	SweepCount.WithLabelValues(result).Inc()
	SweepDuration.Observe(duration.Seconds())
}

// IncrementReminderOutcome records the outcome of one enrollment.
func IncrementReminderOutcome(milestone, outcome string) {
	ReminderOutcome.WithLabelValues(milestone, outcome).Inc()
}

// RecordDeliveryLatency records one delivery call.
func RecordDeliveryLatency(provider, status string, duration time.Duration) {
	DeliveryLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery records one slow query.
func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// IncrementOutboxPublished records one outbox publish attempt.
func IncrementOutboxPublished(status string) {
	OutboxPublished.WithLabelValues(status).Inc()
}
