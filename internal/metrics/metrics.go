package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Set struct {
	Checkouts       *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Shortfalls      prometheus.Counter
	IntegrityFaults prometheus.Counter
	SweepSeconds    prometheus.Histogram
}

func New(service string) *Set {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderreserve",
		Subsystem: service,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderreserve",
		Subsystem: service,
		Name:      "transitions_total",
		Help:      "Guarded status transitions by target status and result.",
	}, []string{"to", "result"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orderreserve",
		Subsystem: service,
		Name:      "stock_shortfalls_total",
		Help:      "Reservations rejected for insufficient stock.",
	})
	faults := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orderreserve",
		Subsystem: service,
		Name:      "integrity_faults_total",
		Help:      "Order/ledger inconsistencies found by the audit.",
	})
	sweep := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orderreserve",
		Subsystem: service,
		Name:      "sweep_duration_seconds",
		Help:      "Expiry sweep duration.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	prometheus.MustRegister(checkouts, transitions, shortfalls, faults, sweep)
	return &Set{
		Checkouts:       checkouts,
		Transitions:     transitions,
		Shortfalls:      shortfalls,
		IntegrityFaults: faults,
		SweepSeconds:    sweep,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Transition records a guarded transition attempt.
func (s *Set) Transition(to string, applied bool) {
	if s == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "stale"
	}
	s.Transitions.WithLabelValues(to, result).Inc()
}
