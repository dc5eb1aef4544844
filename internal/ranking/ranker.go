package ranking

import (
	"errors"
	"fmt"
	"sort"

	"github.com/onnwee/panditseva/internal/geo"
)

// DefaultMaxDistanceKm is the search radius used when a query leaves it unset.
const DefaultMaxDistanceKm = 50.0

var (
	// ErrIncompleteLocation is returned when the client has no location set.
	ErrIncompleteLocation = errors.New("client location is not set")

	// ErrInvalidSortKey is returned by ParseSortKey for an unknown key.
	ErrInvalidSortKey = errors.New("invalid sort key")
)

// SortKey selects the ordering of ranked results.
type SortKey string

const (
	SortByDistance   SortKey = "distance"    // nearest first
	SortByPrice      SortKey = "price"       // cheapest first
	SortByRating     SortKey = "rating"      // best rated first
	SortByMatchScore SortKey = "match_score" // highest score first
)

// ParseSortKey converts a query parameter into a SortKey.
// An empty string selects SortByMatchScore.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "":
		return SortByMatchScore, nil
	case SortByDistance, SortByPrice, SortByRating, SortByMatchScore:
		return SortKey(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, s)
	}
}

// Candidate is a pandit as seen by the ranker.
type Candidate struct {
	ID       string
	Location *geo.Coordinate // nil when the pandit has not set a location
	Price    float64         // price per service, 0 when unknown
	Rating   float64         // aggregate rating in [0, 5], 0 when unrated
	Verified bool
}

// ScoredCandidate is a candidate that passed every filter.
type ScoredCandidate struct {
	Candidate
	DistanceKm float64 // rounded to two decimals
	MatchScore float64 // in [0, 100], rounded to two decimals
}

// Query holds the client's search filters.
type Query struct {
	MaxDistanceKm float64  // search radius; 0 means DefaultMaxDistanceKm
	MinRating     float64  // minimum aggregate rating, inclusive
	MaxPrice      *float64 // optional price cap, inclusive
	SortBy        SortKey  // empty means SortByMatchScore
}

// Ranker filters, scores and orders candidates.
// A Ranker is safe for concurrent use.
type Ranker struct {
	calibration Calibration
	metrics     *Metrics
}

// NewRanker creates a ranker with the given calibration. A nil calibration
// uses the defaults. metrics may be nil.
func NewRanker(cal *Calibration, metrics *Metrics) *Ranker {
	if cal == nil {
		cal = DefaultCalibration()
	}
	return &Ranker{calibration: *cal, metrics: metrics}
}

// Calibration returns the weights and limits the ranker scores with.
func (r *Ranker) Calibration() Calibration {
	return r.calibration
}

// Rank returns the candidates matching q, scored and sorted by q.SortBy.
//
// A candidate is dropped when it is unverified, has no location, is farther
// than q.MaxDistanceKm, is rated below q.MinRating or costs more than
// *q.MaxPrice. Equal sort keys keep their input order. The input slice is
// not modified.
func (r *Ranker) Rank(client *geo.Coordinate, candidates []Candidate, q Query) ([]ScoredCandidate, error) {
	if client == nil {
		return nil, ErrIncompleteLocation
	}

	sortBy, err := ParseSortKey(string(q.SortBy))
	if err != nil {
		return nil, err
	}

	maxDistance := q.MaxDistanceKm
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistanceKm
	}

	results := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Verified {
			r.metrics.incFiltered(reasonUnverified)
			continue
		}
		if c.Location == nil {
			r.metrics.incFiltered(reasonNoLocation)
			continue
		}

		distance := geo.Distance(client, c.Location)
		if distance > maxDistance {
			r.metrics.incFiltered(reasonDistance)
			continue
		}
		if c.Rating < q.MinRating {
			r.metrics.incFiltered(reasonRating)
			continue
		}
		if q.MaxPrice != nil && c.Price > *q.MaxPrice {
			r.metrics.incFiltered(reasonPrice)
			continue
		}

		results = append(results, ScoredCandidate{
			Candidate:  c,
			DistanceKm: round2(distance),
			MatchScore: MatchScore(distance, c.Price, c.Rating, r.calibration.Limits, r.calibration.Weights),
		})
	}

	sortResults(results, sortBy)
	r.metrics.observeRank(sortBy, len(results))

	return results, nil
}

func sortResults(results []ScoredCandidate, key SortKey) {
	var less func(a, b ScoredCandidate) bool
	switch key {
	case SortByDistance:
		less = func(a, b ScoredCandidate) bool { return a.DistanceKm < b.DistanceKm }
	case SortByPrice:
		less = func(a, b ScoredCandidate) bool { return a.Price < b.Price }
	case SortByRating:
		less = func(a, b ScoredCandidate) bool { return a.Rating > b.Rating }
	default:
		less = func(a, b ScoredCandidate) bool { return a.MatchScore > b.MatchScore }
	}

	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
}
