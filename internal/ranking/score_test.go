package ranking

import (
	"math"
	"testing"
)

func TestDefaultMatchScore(t *testing.T) {
	tests := []struct {
		name       string
		distanceKm float64
		price      float64
		rating     float64
		want       float64
	}{
		{name: "same location, unpriced, top rated", distanceKm: 0, price: 0, rating: 5, want: 85},
		{name: "at the limits, unrated", distanceKm: 50, price: 5000, rating: 0, want: 15},
		{name: "halfway on every component", distanceKm: 25, price: 2500, rating: 4, want: 59},
		{name: "beyond the limits", distanceKm: 60, price: 10000, rating: 0, want: 15},
		{name: "neutral price and rating", distanceKm: 0, price: 0, rating: 0, want: 70},
		{name: "best possible", distanceKm: 0, price: 0.0001, rating: 5, want: 100},
		{name: "rounded to two decimals", distanceKm: 5.5597463, price: 1000, rating: 4.5, want: 86.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultMatchScore(tt.distanceKm, tt.price, tt.rating)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DefaultMatchScore(%v, %v, %v) = %v, want %v",
					tt.distanceKm, tt.price, tt.rating, got, tt.want)
			}
		})
	}
}

func TestMatchScore_StaysWithinBounds(t *testing.T) {
	distances := []float64{0, 0.5, 10, 49.99, 50, 50.01, 100, 20015}
	prices := []float64{0, 1, 999, 2500, 5000, 5001, 1e6}
	ratings := []float64{0, 0.1, 1, 2.5, 3.7, 5}

	for _, d := range distances {
		for _, p := range prices {
			for _, r := range ratings {
				got := DefaultMatchScore(d, p, r)
				if got < 0 || got > 100 {
					t.Errorf("DefaultMatchScore(%v, %v, %v) = %v, out of [0, 100]", d, p, r, got)
				}
				if got != round2(got) {
					t.Errorf("DefaultMatchScore(%v, %v, %v) = %v, not rounded to 2 decimals", d, p, r, got)
				}
			}
		}
	}
}

func TestMatchScore_CustomWeightsAndLimits(t *testing.T) {
	limits := Limits{MaxDistanceKm: 10, MaxPrice: 1000}
	w := Weights{Distance: 1}

	if got := MatchScore(5, 0, 0, limits, w); got != 50 {
		t.Errorf("MatchScore with distance-only weights = %v, want 50", got)
	}

	w = Weights{Price: 1}
	if got := MatchScore(0, 250, 0, limits, w); got != 75 {
		t.Errorf("MatchScore with price-only weights = %v, want 75", got)
	}
}

func TestComponentScores(t *testing.T) {
	t.Run("distance", func(t *testing.T) {
		if got := DistanceScore(0, 50); got != 100 {
			t.Errorf("DistanceScore(0) = %v, want 100", got)
		}
		if got := DistanceScore(50, 50); got != 0 {
			t.Errorf("DistanceScore(max) = %v, want 0", got)
		}
		if got := DistanceScore(51, 50); got != 0 {
			t.Errorf("DistanceScore(beyond max) = %v, want 0", got)
		}
		if got := DistanceScore(10, 0); got != 0 {
			t.Errorf("DistanceScore with zero limit = %v, want 0", got)
		}
	})

	t.Run("price", func(t *testing.T) {
		if got := PriceScore(0, 5000); got != Neutral {
			t.Errorf("PriceScore(0) = %v, want neutral", got)
		}
		if got := PriceScore(-10, 5000); got != Neutral {
			t.Errorf("PriceScore(negative) = %v, want neutral", got)
		}
		if got := PriceScore(2500, 5000); got != 50 {
			t.Errorf("PriceScore(half) = %v, want 50", got)
		}
		if got := PriceScore(9000, 5000); got != 0 {
			t.Errorf("PriceScore(above max) = %v, want 0", got)
		}
	})

	t.Run("rating", func(t *testing.T) {
		if got := RatingScore(0); got != Neutral {
			t.Errorf("RatingScore(0) = %v, want neutral", got)
		}
		if got := RatingScore(5); got != 100 {
			t.Errorf("RatingScore(5) = %v, want 100", got)
		}
		if got := RatingScore(2.5); got != 50 {
			t.Errorf("RatingScore(2.5) = %v, want 50", got)
		}
	})
}
