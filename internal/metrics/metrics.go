// Package metrics exposes the prometheus collectors shared by every
// component of the desktop agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "desktop_agent"

// Registry is the collector registry every metric in this package is
// registered against. A dedicated registry (rather than the global
// default) keeps desktopctl's debug server free of Go runtime noise
// unless explicitly requested.
var Registry = prometheus.NewRegistry()

// Handler returns the HTTP handler serving Registry in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer starts a standalone metrics HTTP server on addr. Intended
// for local debugging only; the desktop agent itself never binds a port.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// Timer measures elapsed wall-clock time for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer {
	return Timer{start: time.Now()}
}

// ElapsedSeconds returns the time since NewTimer as seconds, the unit
// every duration histogram in this package uses.
func (t Timer) ElapsedSeconds() float64 {
	return time.Since(t.start).Seconds()
}
