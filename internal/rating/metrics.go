package rating

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricReviewsSubmitted          = "rating_reviews_submitted_total"
	MetricReviewRejections          = "rating_review_rejections_total"
	MetricReconcileTotal            = "rating_reconcile_total"
	MetricReconcileErrors           = "rating_reconcile_errors_total"
	MetricReconcileDuration         = "rating_reconcile_duration_seconds"
	MetricReconcileRepaired         = "rating_reconcile_repaired_total"
	MetricLastReconcileTimestamp    = "rating_last_reconcile_timestamp"
	MetricLastReconcileSubjectCount = "rating_last_reconcile_subject_count"
)

// Rejection reasons used as the "reason" label.
const (
	RejectInvalidRating = "invalid_rating"
	RejectDuplicate     = "duplicate"
	RejectInvalid       = "invalid_subject"
	RejectOther         = "error"
)

// Metrics contains Prometheus metrics for review submission and
// aggregate reconciliation. All operations are thread-safe.
type Metrics struct {
	reviewsSubmitted          *prometheus.CounterVec
	reviewRejections          *prometheus.CounterVec
	reconcileTotal            prometheus.Counter
	reconcileErrors           prometheus.Counter
	reconcileDuration         prometheus.Histogram
	reconcileRepaired         prometheus.Counter
	lastReconcileTimestamp    prometheus.Gauge
	lastReconcileSubjectCount prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		reviewsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReviewsSubmitted,
				Help: "Total number of accepted reviews by subject type",
			},
			[]string{"subject_type"},
		),
		reviewRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReviewRejections,
				Help: "Total number of rejected review submissions by reason",
			},
			[]string{"reason"},
		),
		reconcileTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconcileTotal,
			Help: "Total number of aggregate rating reconciliation runs",
		}),
		reconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconcileErrors,
			Help: "Total number of aggregate rating reconciliation errors",
		}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricReconcileDuration,
			Help:    "Histogram of aggregate rating reconciliation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}),
		reconcileRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconcileRepaired,
			Help: "Total number of stored aggregates corrected by reconciliation",
		}),
		lastReconcileTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastReconcileTimestamp,
			Help: "Unix timestamp of the last aggregate rating reconciliation",
		}),
		lastReconcileSubjectCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastReconcileSubjectCount,
			Help: "Number of subjects processed in the last reconciliation",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.reviewsSubmitted,
		m.reviewRejections,
		m.reconcileTotal,
		m.reconcileErrors,
		m.reconcileDuration,
		m.reconcileRepaired,
		m.lastReconcileTimestamp,
		m.lastReconcileSubjectCount,
	}
}

// IncSubmitted increments the accepted review counter.
func (m *Metrics) IncSubmitted(subjectType SubjectType) {
	m.reviewsSubmitted.WithLabelValues(string(subjectType)).Inc()
}

// IncRejected increments the rejection counter for the reason matching err.
func (m *Metrics) IncRejected(err error) {
	m.reviewRejections.WithLabelValues(rejectionReason(err)).Inc()
}

// IncReconcileTotal increments the reconcile run counter.
func (m *Metrics) IncReconcileTotal() {
	m.reconcileTotal.Inc()
}

// IncReconcileErrors increments the reconcile error counter.
func (m *Metrics) IncReconcileErrors() {
	m.reconcileErrors.Inc()
}

// IncReconcileRepaired increments the repaired aggregate counter.
func (m *Metrics) IncReconcileRepaired() {
	m.reconcileRepaired.Inc()
}

// ObserveReconcileDuration records a reconcile duration sample.
func (m *Metrics) ObserveReconcileDuration(seconds float64) {
	m.reconcileDuration.Observe(seconds)
}

// SetLastReconcileTimestamp sets the last reconcile timestamp gauge.
func (m *Metrics) SetLastReconcileTimestamp(timestamp float64) {
	m.lastReconcileTimestamp.Set(timestamp)
}

// SetLastReconcileSubjectCount sets the last reconcile subject count gauge.
func (m *Metrics) SetLastReconcileSubjectCount(count float64) {
	m.lastReconcileSubjectCount.Set(count)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRating):
		return RejectInvalidRating
	case errors.Is(err, ErrDuplicateReview):
		return RejectDuplicate
	case errors.Is(err, ErrInvalidSubject), errors.Is(err, ErrSelfReview):
		return RejectInvalid
	default:
		return RejectOther
	}
}
