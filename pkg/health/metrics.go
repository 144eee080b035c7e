package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for solve latency, in-flight solves
// and reservation-operation outcomes (spec §11: "solve-latency histograms
// and in-flight-request gauges"). Nothing outside this package's tests
// creates or updates one.
type Metrics struct {
	SolveDuration   *prometheus.HistogramVec
	InFlightSolves  prometheus.Gauge
	ReservationsTot *prometheus.CounterVec
}

// NewMetrics registers a fresh set of collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nrm",
			Subsystem: "pathfinder",
			Name:      "solve_duration_seconds",
			Help:      "Time spent in one pathfind/reserve solve, by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		InFlightSolves: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nrm",
			Subsystem: "pathfinder",
			Name:      "in_flight_solves",
			Help:      "Number of pathfind/reserve requests currently being solved.",
		}),
		ReservationsTot: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nrm",
			Subsystem: "reservation",
			Name:      "operations_total",
			Help:      "Count of reservation operations, by op and outcome.",
		}, []string{"op", "outcome"}),
	}
}

// TrackSolve records one solve's duration and in-flight bracket. Callers
// wrap the solve with:
//
//	done := m.TrackSolve("reserve")
//	route, cost, err := orch.Run(ctx, req, tempDir)
//	done(err)
func (m *Metrics) TrackSolve(op string) func(err error) {
	m.InFlightSolves.Inc()
	start := time.Now()
	return func(err error) {
		m.InFlightSolves.Dec()
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.SolveDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}
}

// CountReservationOp increments the reservation-operations counter.
func (m *Metrics) CountReservationOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ReservationsTot.WithLabelValues(op, outcome).Inc()
}
