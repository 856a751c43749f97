// Package observability provides logging, metrics, and tracing for the
// worker process.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// JobsClaimedTotal counts jobs this worker claimed, by experiment id.
	JobsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edacc_jobs_claimed_total",
			Help: "Total number of jobs claimed by this worker, by experiment",
		},
		[]string{"experiment_id"},
	)
	// JobsFinishedTotal counts jobs this worker finished, by resulting
	// status code (spec.md §3 job status codes).
	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edacc_jobs_finished_total",
			Help: "Total number of jobs finished by this worker, by status code",
		},
		[]string{"status"},
	)
	// JobsRunning is a gauge of the number of slots currently running a job.
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edacc_jobs_running",
			Help: "Number of worker slots currently running a job",
		},
	)
	// JobDuration records watchdog-reported CPU time for finished jobs.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edacc_job_cpu_seconds",
			Help:    "Watchdog-reported CPU time of finished jobs, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		},
	)
	// ArtifactFetchTotal counts artifact store fetch attempts, by outcome
	// (hit, downloaded, peer_wait, error).
	ArtifactFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edacc_artifact_fetch_total",
			Help: "Total artifact store acquisitions, by outcome",
		},
		[]string{"outcome"},
	)
	// DBReconnectsTotal counts DB Gateway reconnect-class retries.
	DBReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edacc_db_reconnects_total",
			Help: "Total number of DB Gateway reconnect-class retries",
		},
	)
	// CheckJobsIntervalMS is a gauge tracking the Main Loop's current
	// exponential-backoff poll interval (spec.md §4.6).
	CheckJobsIntervalMS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edacc_check_jobs_interval_ms",
			Help: "Current Main Loop poll interval in milliseconds",
		},
	)
	// ControlCommandsTotal counts control-channel commands dispatched, by
	// kind (spec.md §4.5).
	ControlCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edacc_control_commands_total",
			Help: "Total control-channel commands dispatched, by kind",
		},
		[]string{"kind"},
	)
	// CircuitBreakerStatus reports the current state of a named circuit
	// breaker (0=closed, 1=open, 2=half-open); used by the optional
	// job-server client (spec.md §6).
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edacc_circuit_breaker_status",
			Help: "Circuit breaker status by service and operation (0=closed,1=open,2=half-open)",
		},
		[]string{"service", "operation"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
// Called once from cmd/worker/main.go before the /metrics handler starts
// serving, exactly as the teacher's InitMetrics does.
func InitMetrics() {
	prometheus.MustRegister(JobsClaimedTotal)
	prometheus.MustRegister(JobsFinishedTotal)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(ArtifactFetchTotal)
	prometheus.MustRegister(DBReconnectsTotal)
	prometheus.MustRegister(CheckJobsIntervalMS)
	prometheus.MustRegister(ControlCommandsTotal)
	prometheus.MustRegister(CircuitBreakerStatus)
}

// RecordCircuitBreakerStatus records a circuit breaker's state transition,
// consumed by CircuitBreaker.Call in circuit_breaker.go.
func RecordCircuitBreakerStatus(service, operation string, status int) {
	CircuitBreakerStatus.WithLabelValues(service, operation).Set(float64(status))
}
