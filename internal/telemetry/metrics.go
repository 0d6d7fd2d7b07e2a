package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects every Prometheus instrument the job subsystem emits.
// Built once in the composition root and passed explicitly to the
// components that need it, rather than registered through package-level
// globals scattered across the codebase.
type Metrics struct {
	JobsEnqueued             *prometheus.CounterVec
	SchedulerDeadlockDetected *prometheus.CounterVec
	RLSContextMissing        prometheus.Counter
	ScanTimeouts             *prometheus.CounterVec
	SlowQueryDetected        prometheus.Counter
	JobProcessDuration       *prometheus.HistogramVec
	SchedulerJobDuration     *prometheus.HistogramVec
	CacheEvictions           prometheus.Counter
}

// NewMetrics constructs and registers all collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobcore",
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Number of jobs enqueued, labeled by job type and priority class.",
		}, []string{"job_type", "priority_class"}),
		SchedulerDeadlockDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobcore",
			Subsystem: "scheduler",
			Name:      "deadlock_detected_total",
			Help:      "Number of cohort scheduler transactions that observed a deadlock or serialization failure, labeled by cohort.",
		}, []string{"cohort"}),
		RLSContextMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobcore",
			Subsystem: "tenant",
			Name:      "rls_context_missing_total",
			Help:      "Number of statements refused because no tenant context was set on the session.",
		}),
		ScanTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobcore",
			Subsystem: "zombiescan",
			Name:      "scan_timeouts_total",
			Help:      "Number of zombie scans that hit a timeout, labeled by level (plugin|overall).",
		}, []string{"level"}),
		SlowQueryDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobcore",
			Subsystem: "storage",
			Name:      "slow_query_detected_total",
			Help:      "Number of SQL statements that exceeded the slow-query threshold.",
		}),
		JobProcessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobcore",
			Subsystem: "jobs",
			Name:      "process_duration_seconds",
			Help:      "Wall-clock duration of a single job's handler execution, labeled by job type.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job_type"}),
		SchedulerJobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobcore",
			Subsystem: "scheduler",
			Name:      "cohort_duration_seconds",
			Help:      "Wall-clock duration of a single cohort-scheduler invocation, labeled by cohort.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"cohort"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobcore",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of in-memory cache entries evicted, by TTL expiry or LRU pressure.",
		}),
	}

	reg.MustRegister(
		m.JobsEnqueued,
		m.SchedulerDeadlockDetected,
		m.RLSContextMissing,
		m.ScanTimeouts,
		m.SlowQueryDetected,
		m.JobProcessDuration,
		m.SchedulerJobDuration,
		m.CacheEvictions,
	)

	return m
}

// PriorityClass buckets a signed priority integer into the label the spec's
// "enqueued counter labeled by type and priority class" requirement names.
func PriorityClass(priority int) string {
	switch {
	case priority > 0:
		return "high"
	case priority < 0:
		return "low"
	default:
		return "normal"
	}
}
