// Package metrics exposes capture, worker and mutation counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts frames delivered by the capture device
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanalyzer_capture_packets_total",
			Help: "Total number of frames delivered by the capture device",
		},
		[]string{"device"},
	)

	// CaptureDropsTotal counts frames lost before decoding, by stage
	// (queue, kernel, interface)
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanalyzer_capture_drops_total",
			Help: "Total number of frames dropped before decoding",
		},
		[]string{"device", "stage"},
	)

	// WorkerPacketsTotal counts frames handled by the worker, by stage
	WorkerPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanalyzer_worker_packets_total",
			Help: "Total number of frames handled by the background worker",
		},
		[]string{"device", "stage"},
	)

	WorkerBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tanalyzer_worker_batch_size",
			Help:    "Number of frames taken per queue drain",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1 .. 8192
		},
		[]string{"device"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tanalyzer_queue_depth",
			Help: "Frames waiting in the ingest queue at the last drain",
		},
		[]string{"device"},
	)

	// MutationTransmittedTotal counts synthetic frames written to the wire
	MutationTransmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanalyzer_mutation_transmitted_total",
			Help: "Total number of synthesized frames transmitted",
		},
		[]string{"device"},
	)

	MutationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanalyzer_mutation_failures_total",
			Help: "Total number of failed mutation attempts",
		},
		[]string{"device"},
	)

	// SessionStatus tracks the capture session state per device
	SessionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tanalyzer_session_status",
			Help: "Current capture session status (0=stopped, 1=running, 2=error)",
		},
		[]string{"device"},
	)
)

// Worker stage labels.
const (
	StageDecoded     = "decoded"
	StageDecodeError = "decode_error"
	StageFiltered    = "filtered"
	StagePublished   = "published"
)

// Drop stage labels.
const (
	DropQueue     = "queue"
	DropKernel    = "kernel"
	DropInterface = "interface"
)

// SessionStatusValue represents session status as a gauge value.
const (
	SessionStopped = 0
	SessionRunning = 1
	SessionError   = 2
)
