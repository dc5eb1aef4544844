// Package ranking scores and orders pandit candidates for a client search.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	cal, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//	ranker := ranking.NewRanker(cal)
//
//	// Rank candidates for a client location
//	results, err := ranker.Rank(clientLocation, candidates, ranking.Query{
//		MaxDistanceKm: 25,
//		MinRating:     3.5,
//		SortBy:        ranking.SortByMatchScore,
//	})
//
// Match Score:
//
// Each candidate receives a score in [0, 100] built from three components:
//
//	distance: 100 * (1 - d/maxDistance), 0 beyond maxDistance
//	price:    100 * (1 - p/maxPrice), floored at 0; 50 when price is unknown
//	rating:   r/5 * 100; 50 when the pandit has no ratings yet
//
// The components are combined with Weights (0.4, 0.3, 0.3 by default) and the
// total is rounded to two decimals. Non-negative weights summing to at most 1
// keep the total inside [0, 100]; MatchScore does not enforce this.
//
// Calibration:
//
// Weights and normalisation limits can be tuned at deploy time through a JSON
// file loaded at startup. See configs/ranking.calibration.json for the
// default configuration.
package ranking
