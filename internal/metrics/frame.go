package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesProcessed tracks frames encoded or decoded.
	FramesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "processed_total",
			Help:      "Total number of frames encoded or decoded",
		},
		[]string{"direction", "status"}, // encode/decode, success/failure
	)

	// SequenceViolations tracks frames rejected for seq non-monotonicity.
	SequenceViolations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "sequence_violations_total",
			Help:      "Total number of frames rejected for sequence number violations",
		},
	)

	// DecryptFailures tracks AEAD open failures, by cause.
	DecryptFailures = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "decrypt_failures_total",
			Help:      "Total number of frame decrypt failures",
		},
		[]string{"reason"}, // auth_tag, aad_mismatch, truncated
	)

	// FrameProcessingDuration tracks encode/decode latency.
	FrameProcessingDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "processing_duration_seconds",
			Help:      "Frame encode/decode duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~205ms
		},
		[]string{"direction"},
	)

	// FrameSize tracks plaintext frame sizes before encryption.
	FrameSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "size_bytes",
			Help:      "Plaintext frame size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)
