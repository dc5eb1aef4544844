package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Unreachable is the distance reported when either endpoint has no location.
// Callers must exclude such candidates instead of treating it as a distance.
var Unreachable = math.Inf(1)

// IsUnreachable reports whether d is the Unreachable sentinel.
func IsUnreachable(d float64) bool {
	return math.IsInf(d, 1)
}

// Distance returns the great-circle distance in kilometers between a and b
// using the haversine formula. If either coordinate is nil the result is
// Unreachable.
//
// The result is non-negative, symmetric and zero iff both points are equal.
func Distance(a, b *Coordinate) float64 {
	if a == nil || b == nil {
		return Unreachable
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	// Rounding can push h marginally past 1 for antipodal points.
	if h > 1 {
		h = 1
	}

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
