package ranking

import "math"

// Neutral is the component score used when a price or rating is unknown.
const Neutral = 50.0

// DistanceScore maps a distance in km to [0, 100]: 100 at the client's
// location, falling linearly to 0 at maxDistanceKm and beyond.
func DistanceScore(distanceKm, maxDistanceKm float64) float64 {
	if maxDistanceKm <= 0 || distanceKm > maxDistanceKm {
		return 0
	}
	return math.Max(0, 100*(1-distanceKm/maxDistanceKm))
}

// PriceScore maps a price to [0, 100]: cheaper is better, 0 at maxPrice and
// beyond. A price of 0 or less means "not set" and scores Neutral.
func PriceScore(price, maxPrice float64) float64 {
	if price <= 0 {
		return Neutral
	}
	if maxPrice <= 0 {
		return 0
	}
	return math.Max(0, 100*(1-price/maxPrice))
}

// RatingScore maps an aggregate rating in [0, 5] to [0, 100].
// A rating of 0 means "no ratings yet" and scores Neutral.
func RatingScore(rating float64) float64 {
	if rating <= 0 {
		return Neutral
	}
	return rating / 5 * 100
}

// MatchScore combines the three component scores with w and rounds the
// total to two decimals.
func MatchScore(distanceKm, price, rating float64, limits Limits, w Weights) float64 {
	total := DistanceScore(distanceKm, limits.MaxDistanceKm)*w.Distance +
		PriceScore(price, limits.MaxPrice)*w.Price +
		RatingScore(rating)*w.Rating
	return round2(total)
}

// DefaultMatchScore is MatchScore with DefaultLimits and DefaultWeights.
func DefaultMatchScore(distanceKm, price, rating float64) float64 {
	return MatchScore(distanceKm, price, rating, DefaultLimits(), DefaultWeights())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
