package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayRequests tracks REST calls made to the relay, by route and status.
	RelayRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Total number of REST requests made to the relay",
		},
		[]string{"route", "status"},
	)

	// RelayTokenRefreshes tracks bearer token refreshes, by trigger.
	RelayTokenRefreshes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "token_refreshes_total",
			Help:      "Total number of access token refreshes",
		},
		[]string{"trigger"}, // proactive, reactive_401
	)

	// SSEReconnects tracks stream reconnect attempts.
	SSEReconnects = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sse_reconnects_total",
			Help:      "Total number of SSE stream reconnect attempts",
		},
	)

	// SSEEventsReceived tracks events delivered off the stream, by dedup outcome.
	SSEEventsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sse_events_total",
			Help:      "Total number of SSE events received",
		},
		[]string{"outcome"}, // delivered, duplicate, oversize
	)

	// SSEStreamDuration tracks how long a stream connection stays open.
	SSEStreamDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sse_stream_duration_seconds",
			Help:      "Duration an SSE stream connection stays open before disconnect",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
		},
	)
)
