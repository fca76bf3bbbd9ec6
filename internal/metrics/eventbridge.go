package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BridgeLinesProcessed tracks stdout lines the bridge has demuxed,
	// by kind (desktop_event, log) and outcome.
	BridgeLinesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbridge",
			Name:      "lines_processed_total",
			Help:      "Total stdout lines processed by the local event bridge",
		},
		[]string{"kind", "status"}, // desktop_event/log, ok/malformed
	)

	// BridgeStdoutTruncations tracks oldest-line evictions from the 1 MiB
	// stdout buffer.
	BridgeStdoutTruncations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbridge",
			Name:      "stdout_truncations_total",
			Help:      "Total number of oldest-line truncations of the stdout buffer",
		},
	)

	// BridgeProcessExits tracks local agent process exits by the
	// classification assigned to their stderr tail.
	BridgeProcessExits = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbridge",
			Name:      "process_exits_total",
			Help:      "Total local agent process exits by stderr classification",
		},
		[]string{"classification"},
	)
)
