package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingRequestsTotal      = "ranking_requests_total"
	MetricRankingCandidatesReturned = "ranking_candidates_returned"
	MetricRankingCandidatesFiltered = "ranking_candidates_filtered_total"
)

// Filter reasons used as the "reason" label.
const (
	reasonUnverified = "unverified"
	reasonNoLocation = "no_location"
	reasonDistance   = "distance"
	reasonRating     = "rating"
	reasonPrice      = "price"
)

// Metrics contains Prometheus metrics for candidate ranking.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	candidatesReturned prometheus.Histogram
	candidatesFiltered *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingRequestsTotal,
				Help: "Total number of ranking requests by sort key",
			},
			[]string{"sort_by"},
		),
		candidatesReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingCandidatesReturned,
			Help:    "Number of candidates returned per ranking request",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		candidatesFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingCandidatesFiltered,
				Help: "Total number of candidates excluded from results by reason",
			},
			[]string{"reason"},
		),
	}
}

// Register registers all metrics with the given registry.
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
		m.requestsTotal,
		m.candidatesReturned,
		m.candidatesFiltered,
	}
}

func (m *Metrics) observeRank(sortBy SortKey, returned int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(string(sortBy)).Inc()
	m.candidatesReturned.Observe(float64(returned))
}

func (m *Metrics) incFiltered(reason string) {
	if m == nil {
		return
	}
	m.candidatesFiltered.WithLabelValues(reason).Inc()
}
