// Package metrics exposes address pool counters and gauges in Prometheus format.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/limiquantix/addrpool/internal/domain"
)

var (
	// Profile metrics
	ProfilesCreated   = metrics.NewCounter(`addrpool_profiles_created_total`)
	ProfilesDeleted   = metrics.NewCounter(`addrpool_profiles_deleted_total`)
	PoolRegenerations = metrics.NewCounter(`addrpool_pool_regenerations_total`)

	// Reservation metrics
	AddressesReserved   = metrics.NewCounter(`addrpool_addresses_reserved_total`)
	AddressesReleased   = metrics.NewCounter(`addrpool_addresses_released_total`)
	ReservationFailures = metrics.NewCounter(`addrpool_reservation_failures_total`)
	PoolExhausted       = metrics.NewCounter(`addrpool_pool_exhausted_total`)
	OrphanedAssignments = metrics.NewCounter(`addrpool_orphaned_assignments_total`)

	// HTTP metrics
	HTTPRequestsTotal   = metrics.NewCounter(`addrpool_http_requests_total`)
	HTTPRequestDuration = metrics.NewHistogram(`addrpool_http_request_duration_seconds`)
)

// Handler returns the metrics handler for Prometheus scraping
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	}
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method string, statusCode int, duration float64) {
	HTTPRequestsTotal.Inc()
	HTTPRequestDuration.Update(duration)

	metrics.GetOrCreateCounter(
		fmt.Sprintf(`addrpool_http_requests_total{method=%q,status="%d"}`, method, statusCode)).Inc()
}

func profileGauge(name, label string) string {
	return fmt.Sprintf(`addrpool_profile_%s{profile=%q}`, name, label)
}

// ObserveProfile publishes the per-profile host, assigned and available gauges.
func ObserveProfile(p *domain.NetworkProfile, available int) {
	metrics.GetOrCreateGauge(profileGauge("hosts", p.Label), nil).Set(float64(p.HostCount))
	metrics.GetOrCreateGauge(profileGauge("assigned", p.Label), nil).Set(float64(p.AssignedCount))
	metrics.GetOrCreateGauge(profileGauge("available", p.Label), nil).Set(float64(available))
}

// ForgetProfile drops the gauges of a deleted or renamed profile.
func ForgetProfile(label string) {
	for _, name := range []string{"hosts", "assigned", "available"} {
		metrics.UnregisterMetric(profileGauge(name, label))
	}
}
