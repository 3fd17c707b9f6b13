// Package metrics holds the Prometheus collectors of the control plane.
//
// Collectors are registered on the default registry at package init; the
// server exposes them on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// discoveryCycles tracks completed discovery cycles
	discoveryCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchyard_discovery_cycles_total",
			Help: "Total completed discovery cycles",
		},
	)

	// discoveryCycleDuration tracks how long a full cycle takes
	discoveryCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "switchyard_discovery_cycle_duration_seconds",
			Help:    "Duration of discovery cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// scannerResults tracks registrations returned per scanner
	scannerResults = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchyard_discovery_scanner_registrations",
			Help: "Registrations returned by each scanner in the last cycle",
		},
		[]string{"scanner"},
	)

	// scannerErrors tracks failed scans
	scannerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_discovery_scanner_errors_total",
			Help: "Total failed scans by scanner",
		},
		[]string{"scanner"},
	)

	// discoveryChanges tracks registry mutations made by discovery
	discoveryChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_discovery_changes_total",
			Help: "Registry changes applied by discovery by change type",
		},
		[]string{"change"},
	)

	// probeResults tracks probe outcomes
	probeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_probe_results_total",
			Help: "Total probes by service and result",
		},
		[]string{"service", "result"},
	)

	// probeDuration tracks probe latency
	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchyard_probe_duration_seconds",
			Help:    "Probe latency by service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// healthStatus is 1 for the current status of each service
	healthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchyard_service_health",
			Help: "Current health status of each service (1 for the active status)",
		},
		[]string{"service", "status"},
	)

	// routeRequests tracks routed invocations by outcome
	routeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_route_requests_total",
			Help: "Total routed invocations by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// routeDuration tracks end-to-end routing latency
	routeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchyard_route_duration_seconds",
			Help:    "Routing latency by service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

var healthStatuses = []string{"healthy", "unhealthy", "unknown"}

// RecordDiscoveryCycle records a finished discovery cycle.
func RecordDiscoveryCycle(d time.Duration) {
	discoveryCycles.Inc()
	discoveryCycleDuration.Observe(d.Seconds())
}

// RecordScan records the result of one scanner in a cycle.
func RecordScan(scanner string, count int, err error) {
	if err != nil {
		scannerErrors.WithLabelValues(scanner).Inc()
		scannerResults.WithLabelValues(scanner).Set(0)
		return
	}
	scannerResults.WithLabelValues(scanner).Set(float64(count))
}

// RecordDiscoveryChange counts a registry change ("created", "updated",
// "removed", "conflict") made by discovery.
func RecordDiscoveryChange(change string, n int) {
	if n > 0 {
		discoveryChanges.WithLabelValues(change).Add(float64(n))
	}
}

// RecordProbe records one probe outcome. result is "success" or a failure
// kind.
func RecordProbe(service, result string, d time.Duration) {
	probeResults.WithLabelValues(service, result).Inc()
	probeDuration.WithLabelValues(service).Observe(d.Seconds())
}

// SetHealthStatus marks status as the active health status of service.
func SetHealthStatus(service, status string) {
	for _, s := range healthStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		healthStatus.WithLabelValues(service, s).Set(v)
	}
}

// RecordRoute records one routed invocation. outcome is "ok" or an error
// kind.
func RecordRoute(service, outcome string, d time.Duration) {
	routeRequests.WithLabelValues(service, outcome).Inc()
	routeDuration.WithLabelValues(service).Observe(d.Seconds())
}

// ForgetService drops the per-service series of a removed service.
func ForgetService(service string) {
	for _, s := range healthStatuses {
		healthStatus.DeleteLabelValues(service, s)
	}
	probeDuration.DeleteLabelValues(service)
	routeDuration.DeleteLabelValues(service)
}
