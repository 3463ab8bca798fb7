package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailure  = "failure"
)

// RentalMetrics records rental operation outcomes and settlement deductions.
type RentalMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deductions *prometheus.HistogramVec
}

// NewRentalMetrics registers the rental metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRentalMetrics(reg prometheus.Registerer) *RentalMetrics {
	if reg == nil {
		return &RentalMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_operations_total",
		Help: "Rental operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rental_operation_duration_seconds",
		Help:    "Duration of rental operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	deductions := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rental_settlement_deduction_points",
		Help:    "Points deducted at settlement.",
		Buckets: []float64{0, 10000, 20000, 30000, 50000, 100000, 250000},
	}, []string{"damaged"})
	reg.MustRegister(operations, duration, deductions)
	return &RentalMetrics{
		operations: operations,
		duration:   duration,
		deductions: deductions,
	}
}

// ObserveOperation counts one finished operation and its latency.
func (m *RentalMetrics) ObserveOperation(operation, outcome string, took time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveDeduction records the total deducted by a settled return.
func (m *RentalMetrics) ObserveDeduction(points int64, damaged bool) {
	if m == nil || m.deductions == nil {
		return
	}
	label := "false"
	if damaged {
		label = "true"
	}
	m.deductions.WithLabelValues(label).Observe(float64(points))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
