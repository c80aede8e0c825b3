package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery jobs finishing execution, partitioned by queue and outcome
	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_jobs_processed_total",
			Help: "Total number of delivery jobs processed",
		},
		[]string{"queue", "result"},
	)

	// Handler execution time per queue
	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_job_duration_seconds",
			Help:    "Delivery job handler latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
)

const (
	resultCompleted = "completed"
	resultRetried   = "retried"
	resultFailed    = "failed"
)
