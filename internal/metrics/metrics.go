package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hotkeyd"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	moduleStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "starts_total",
			Help:      "Number of successful module launches.",
		}, []string{"name"},
	)
	moduleLaunchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "launch_failures_total",
			Help:      "Number of module launches that failed before the child started.",
		}, []string{"name", "reason"},
	)
	moduleStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "stops_total",
			Help:      "Number of stop requests by outcome.",
		}, []string{"name", "outcome"},
	)
	runningInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "running_instances",
			Help:      "Current tracked instances per module name.",
		}, []string{"name"},
	)
	hotkeyFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hotkey",
			Name:      "fires_total",
			Help:      "Number of times a bound chord became fully held.",
		}, []string{"name", "action"},
	)
	hotkeyRegistrationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hotkey",
			Name:      "registration_failures_total",
			Help:      "Number of hotkey bindings rejected at startup.",
		}, []string{"name"},
	)
	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Number of dispatched actions by result.",
		}, []string{"name", "action", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		moduleStarts, moduleLaunchFailures, moduleStops, runningInstances,
		hotkeyFires, hotkeyRegistrationFailures, dispatches,
		usageCPU, usageRSS,
	}
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

func IncStart(name string) {
	if regOK.Load() {
		moduleStarts.WithLabelValues(name).Inc()
	}
}

func IncLaunchFailure(name, reason string) {
	if regOK.Load() {
		moduleLaunchFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncStop(name, outcome string) {
	if regOK.Load() {
		moduleStops.WithLabelValues(name, outcome).Inc()
	}
}

func SetRunningInstances(name string, n int) {
	if regOK.Load() {
		runningInstances.WithLabelValues(name).Set(float64(n))
	}
}

func IncHotkeyFire(name, action string) {
	if regOK.Load() {
		hotkeyFires.WithLabelValues(name, action).Inc()
	}
}

func IncRegistrationFailure(name string) {
	if regOK.Load() {
		hotkeyRegistrationFailures.WithLabelValues(name).Inc()
	}
}

func IncDispatch(name, action, result string) {
	if regOK.Load() {
		dispatches.WithLabelValues(name, action, result).Inc()
	}
}
