// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lakeforge_jobs_submitted_total",
		Help: "Total number of jobs submitted to the coordinator, by kind",
	}, []string{"kind"})
	JobsDequeued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakeforge_jobs_dequeued_total",
		Help: "Total number of jobs pulled off the bus by dispatchers",
	})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lakeforge_jobs_completed_total",
		Help: "Total number of successfully completed jobs, by kind",
	}, []string{"kind"})
	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lakeforge_jobs_failed_total",
		Help: "Total number of failed jobs, by kind",
	}, []string{"kind"})
	JobsRequeued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakeforge_jobs_requeued_total",
		Help: "Total number of transient-failure nacks returned to the bus",
	})
	JobsDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakeforge_jobs_dead_letter_total",
		Help: "Total number of jobs moved to the dead-letter list",
	})
	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lakeforge_job_execution_duration_seconds",
		Help:    "Histogram of execution durations by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lakeforge_queue_length",
		Help: "Current length of bus queues",
	}, []string{"queue"})
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lakeforge_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakeforge_circuit_breaker_trips_total",
		Help: "Count of times the circuit breaker transitioned to Open",
	})
	ReaperRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakeforge_reaper_recovered_total",
		Help: "Total number of deliveries recovered by the reaper from abandoned processing lists",
	})
	DispatcherActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lakeforge_dispatcher_active",
		Help: "Number of active dispatcher loop goroutines",
	})
	PreviewRowsTruncated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakeforge_preview_rows_truncated_total",
		Help: "Total number of result rows left out of query previews by PREVIEW_MAX_ROWS",
	})
)

func init() {
	prometheus.MustRegister(JobsSubmitted, JobsDequeued, JobsCompleted, JobsFailed, JobsRequeued,
		JobsDeadLetter, JobExecutionDuration, QueueLength, CircuitBreakerState, CircuitBreakerTrips,
		ReaperRecovered, DispatcherActive, PreviewRowsTruncated)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
func StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
