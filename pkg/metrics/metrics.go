package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for coalmine.
// Using promauto for automatic registration with default registry.
var (
	// --- Election Metrics ---

	// ClaimsTotal counts claim attempts by outcome (won, lost, error).
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coalmine",
			Subsystem: "election",
			Name:      "claims_total",
			Help:      "Total number of election claim attempts by outcome",
		},
		[]string{"backend", "outcome"},
	)

	// --- Recorder Metrics ---

	// RecordsTotal counts run-and-record cycles by status.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coalmine",
			Subsystem: "recorder",
			Name:      "records_total",
			Help:      "Total number of run-and-record cycles by status",
		},
		[]string{"workload", "status"},
	)

	// WorkloadDuration tracks how long the workload took.
	WorkloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coalmine",
			Subsystem: "recorder",
			Name:      "workload_duration_seconds",
			Help:      "Wall-clock duration of workload runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12), // 1ms to ~70m
		},
		[]string{"workload"},
	)

	// AppendDuration tracks result log append latency.
	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coalmine",
			Subsystem: "results",
			Name:      "append_duration_seconds",
			Help:      "Latency of appending one record to the result log",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
	)

	// LockWait tracks time spent waiting for the file result log lock.
	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coalmine",
			Subsystem: "results",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the result log lock",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18),
		},
	)

	// CyclesSkipped counts scheduled cycles rejected by the circuit breaker.
	CyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coalmine",
			Subsystem: "schedule",
			Name:      "cycles_skipped_total",
			Help:      "Total scheduled worker cycles skipped while the circuit was open",
		},
	)
)

// RecordClaim records the outcome of one election attempt.
func RecordClaim(backend string, won bool, err error) {
	outcome := "lost"
	switch {
	case err != nil:
		outcome = "error"
	case won:
		outcome = "won"
	}
	ClaimsTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordRun records metrics for a completed run-and-record cycle.
func RecordRun(workload, status string, durationSeconds float64) {
	RecordsTotal.WithLabelValues(workload, status).Inc()
	if status == "success" {
		WorkloadDuration.WithLabelValues(workload).Observe(durationSeconds)
	}
}

// Push sends the default registry to a Pushgateway. One-shot workers exit
// before any scrape, so this is how their metrics leave the process.
func Push(url, job, instance string) error {
	err := push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("instance", instance).
		Push()
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
