// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobsHalted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_halted_total",
			Help: "Total number of jobs halted before completion",
		},
		[]string{"task_type"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	SessionsRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesforce_sessions_revoked_total",
			Help: "Sessions counted as revoked, including already-deleted ones",
		},
		[]string{"task_type"},
	)

	SessionRevocationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesforce_session_revocation_failures_total",
			Help: "Session deletes that were skipped after a failure",
		},
		[]string{"task_type", "reason"},
	)

	SalesforceAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesforce_api_requests_total",
			Help: "Salesforce REST requests by method and response status",
		},
		[]string{"method", "status"},
	)

	SalesforceAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesforce_api_request_duration_seconds",
			Help:    "Latency of Salesforce REST requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
