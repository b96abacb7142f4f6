package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sstmcp",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Number of tool invocations by outcome.",
		}, []string{"tool", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sstmcp",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of external tool commands.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"op"},
	)
	devRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sstmcp",
			Subsystem: "dev",
			Name:      "running",
			Help:      "Number of dev server processes currently supervised.",
		},
	)
	devRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sstmcp",
			Subsystem: "dev",
			Name:      "restarts_total",
			Help:      "Number of dev server restarts by reason.",
		}, []string{"reason"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{toolCalls, commandDuration, devRunning, devRestarts}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncToolCall(tool, outcome string) {
	if regOK.Load() {
		toolCalls.WithLabelValues(tool, outcome).Inc()
	}
}

func ObserveCommandDuration(op string, seconds float64) {
	if regOK.Load() {
		commandDuration.WithLabelValues(op).Observe(seconds)
	}
}

func SetDevRunning(n int) {
	if regOK.Load() {
		devRunning.Set(float64(n))
	}
}

func IncDevRestart(reason string) {
	if regOK.Load() {
		devRestarts.WithLabelValues(reason).Inc()
	}
}
