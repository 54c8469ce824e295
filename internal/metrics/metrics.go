package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	admissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prostor",
			Name:      "admission_decisions_total",
			Help:      "Reservation admission decisions by outcome.",
		},
		[]string{"outcome"},
	)

	guardTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prostor",
			Name:      "guard_timeouts_total",
			Help:      "Admission guard acquisitions that timed out.",
		},
	)

	sweptReservations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prostor",
			Name:      "swept_reservations_total",
			Help:      "Reservations marked COMPLETED by the lifecycle sweep.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prostor",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(admissionDecisions, guardTimeouts, sweptReservations, httpRequests)
	})
}

// IncAdmission increments the decision counter for an outcome label
// (admitted, conflict, quota_exceeded, bad_request).
func IncAdmission(outcome string) {
	admissionDecisions.WithLabelValues(outcome).Inc()
}

// IncGuardTimeout counts a failed guard acquisition.
func IncGuardTimeout() {
	guardTimeouts.Inc()
}

// AddSwept counts reservations completed by the sweep.
func AddSwept(n int64) {
	sweptReservations.Add(float64(n))
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
