package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics tracks lifecycle activity. All methods are no-ops on a
// nil receiver so services can run without a registry.
type BookingMetrics struct {
	transitions     *prometheus.CounterVec
	archived        *prometheus.CounterVec
	checkInRejected prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Applied booking status transitions.",
	}, []string{"from", "to"})
	archived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_archived_total",
		Help: "Bookings moved to the archive.",
	}, []string{"reason"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_checkin_rejected_total",
		Help: "Check-in tokens rejected by the authorizer.",
	})
	reg.MustRegister(transitions, archived, rejected)
	return &BookingMetrics{transitions: transitions, archived: archived, checkInRejected: rejected}
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *BookingMetrics) ObserveArchived(reason string, count int) {
	if m == nil || m.archived == nil || count <= 0 {
		return
	}
	m.archived.WithLabelValues(normalizeLabel(reason)).Add(float64(count))
}

func (m *BookingMetrics) IncCheckInRejected() {
	if m == nil || m.checkInRejected == nil {
		return
	}
	m.checkInRejected.Inc()
}
