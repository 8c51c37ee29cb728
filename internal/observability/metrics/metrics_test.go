package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveBooking("created")
	m.ObserveConflict()
	m.ObserveCancellation("customer", true)
	m.ObserveRefund("stripe", "completed")
	m.ObserveWebhook("vipps", "applied")
	m.ObserveWebhookLatency("vipps", 0.2)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("created")
	m.ObserveConflict()
	m.ObserveCancellation("staff", false)
	m.ObserveRefund("vipps", "failed")
	m.ObserveWebhook("stripe", "duplicate")
	m.ObserveWebhookLatency("stripe", 0.1)
}
