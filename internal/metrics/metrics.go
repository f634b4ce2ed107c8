// Package metrics provides Prometheus metrics for the orchestrator, in the
// same promauto-registered style the teacher's internal/infrastructure/metrics
// package uses.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamcast"

var (
	// WorkerCallsTotal tracks calls made to remote worker services.
	// Labels:
	//   - call: convert, status, files, fetch
	//   - status: success, error, timeout
	WorkerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_calls_total",
			Help:      "Total number of calls made to remote worker services",
		},
		[]string{"call", "status"},
	)

	// WorkerCallDuration tracks the latency of worker calls.
	WorkerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_call_duration_seconds",
			Help:      "Duration of calls made to remote worker services",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	// PipelineTransitionsTotal tracks status transitions made by the
	// pipeline engine.
	// Labels:
	//   - from, to: status names
	PipelineTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_transitions_total",
			Help:      "Total number of pipeline status transitions",
		},
		[]string{"from", "to"},
	)

	// PipelineDuration tracks the end-to-end duration of a pipeline run,
	// from uploaded to a terminal status.
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end duration of a pipeline run from upload to a terminal status",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// PipelineActiveGauge tracks how many pipeline runs currently hold the
	// concurrency semaphore.
	PipelineActiveGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_active_runs",
			Help:      "Number of pipeline runs currently holding the concurrency slot",
		},
	)

	// PollQueueDepthGauge tracks the size of a poll phase's FIFO queue of
	// pending variants. It is a single unlabeled gauge: with several pipelines
	// polling at once it holds the value the most recent one set.
	PollQueueDepthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_queue_depth",
			Help:      "Current number of variants waiting in the poll queue",
		},
	)

	// CacheOperationsTotal tracks the status-read cache decorator's hits,
	// misses and writes.
	// Labels:
	//   - operation: get, set, invalidate
	//   - status: hit, miss, success, error
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of status cache operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks singleflight coalescing behavior on
	// status reads.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight status requests",
		},
		[]string{"result"},
	)
)

// Worker call name constants.
const (
	CallConvert = "convert"
	CallStatus  = "status"
	CallFiles   = "files"
	CallFetch   = "fetch"
)

// Worker/cache outcome constants.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Cache operation type constants.
const (
	CacheOpGet        = "get"
	CacheOpSet        = "set"
	CacheOpInvalidate = "invalidate"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
