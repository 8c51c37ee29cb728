package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking and
// cancellation flows.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	cancellationsTotal *prometheus.CounterVec
	refundsTotal       *prometheus.CounterVec
	webhookTotal       *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking attempts",
		}, []string{"status"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Total bookings rejected for slot conflicts",
		}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Total cancellations by type",
		}, []string{"type", "late"}),
		refundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "refunds_total",
			Help:      "Total refund attempts by gateway and outcome",
		}, []string{"gateway", "status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Total gateway webhooks by outcome",
		}, []string{"gateway", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of gateway webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal, m.conflictsTotal, m.cancellationsTotal,
		m.refundsTotal, m.webhookTotal, m.webhookLatency,
	)
	return m
}

func (m *BookingMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *BookingMetrics) ObserveCancellation(cancelType string, late bool) {
	if m == nil {
		return
	}
	label := "false"
	if late {
		label = "true"
	}
	m.cancellationsTotal.WithLabelValues(cancelType, label).Inc()
}

func (m *BookingMetrics) ObserveRefund(gateway, status string) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(gateway, status).Inc()
}

func (m *BookingMetrics) ObserveWebhook(gateway, outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(gateway, outcome).Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(gateway string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(gateway).Observe(seconds)
}
