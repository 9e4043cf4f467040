// Package metrics exposes the transaction engine's Prometheus
// instrumentation: attempt/conflict/retry-exhaustion counters and a
// transaction latency histogram. Callers that don't run a metrics HTTP
// endpoint can simply never scrape the default registry; the counters
// still increment at zero cost beyond the atomic add.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TxAttempts counts every transaction attempt by operation
	// (buy|sell|resolve) and outcome (committed|conflict|error).
	TxAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsrcore_tx_attempts_total",
			Help: "Transaction attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// TxConflicts counts serialization/deadlock conflicts observed,
	// independent of whether the retry eventually succeeded.
	TxConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsrcore_tx_conflicts_total",
			Help: "Serialization or deadlock conflicts observed per operation.",
		},
		[]string{"operation"},
	)

	// TxRetriesExhausted counts transactions that failed every retry
	// attempt and surfaced ErrConflictAfterRetries to the caller.
	TxRetriesExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lmsrcore_tx_retries_exhausted_total",
			Help: "Transactions that exhausted their retry budget.",
		},
		[]string{"operation"},
	)

	// TxDuration observes end-to-end wall time per operation, including
	// retries, from the caller's point of view.
	TxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lmsrcore_tx_duration_seconds",
			Help:    "Transaction duration in seconds, including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(TxAttempts, TxConflicts, TxRetriesExhausted, TxDuration)
}

// ObserveAttempt increments the attempt counter for operation/outcome.
func ObserveAttempt(operation, outcome string) {
	TxAttempts.WithLabelValues(operation, outcome).Inc()
}

// ObserveConflict increments the conflict counter for operation.
func ObserveConflict(operation string) {
	TxConflicts.WithLabelValues(operation).Inc()
}

// ObserveRetriesExhausted increments the retry-exhaustion counter for
// operation.
func ObserveRetriesExhausted(operation string) {
	TxRetriesExhausted.WithLabelValues(operation).Inc()
}

// ObserveDuration records a completed transaction's duration in seconds
// for operation.
func ObserveDuration(operation string, seconds float64) {
	TxDuration.WithLabelValues(operation).Observe(seconds)
}
