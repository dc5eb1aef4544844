package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Weights defines how much each component contributes to the match score.
type Weights struct {
	Distance float64 `json:"distance"` // Weight for proximity to the client (default: 0.4)
	Price    float64 `json:"price"`    // Weight for affordability (default: 0.3)
	Rating   float64 `json:"rating"`   // Weight for aggregate rating (default: 0.3)
}

// Limits are the normalisation bounds of the distance and price components.
type Limits struct {
	MaxDistanceKm float64 `json:"max_distance_km"` // Distance at which the distance score reaches 0 (default: 50)
	MaxPrice      float64 `json:"max_price"`       // Price at which the price score reaches 0 (default: 5000)
}

// Calibration holds a full scoring configuration.
type Calibration struct {
	Weights Weights `json:"weights"`
	Limits  Limits  `json:"limits"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"`
	Limits  Limits  `json:"limits"`
}

// ErrWeightContract is returned by Weights.Validate when the weights could
// push a match score outside [0, 100].
var ErrWeightContract = errors.New("weights must be non-negative and sum to at most 1")

// DefaultWeights returns the default weight configuration.
//
// Formula: match_score = (distance * 0.4) + (price * 0.3) + (rating * 0.3)
func DefaultWeights() Weights {
	return Weights{
		Distance: 0.4,
		Price:    0.3,
		Rating:   0.3,
	}
}

// DefaultLimits returns the default normalisation bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxDistanceKm: 50,
		MaxPrice:      5000,
	}
}

// DefaultCalibration returns the default weights and limits.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Weights: DefaultWeights(),
		Limits:  DefaultLimits(),
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Distance + w.Price + w.Rating
}

// Validate reports whether w keeps match scores within [0, 100].
func (w Weights) Validate() error {
	if w.Distance < 0 || w.Price < 0 || w.Rating < 0 {
		return fmt.Errorf("%w: got distance=%.2f price=%.2f rating=%.2f",
			ErrWeightContract, w.Distance, w.Price, w.Rating)
	}
	// Allow for float noise in values such as 0.4 + 0.3 + 0.3.
	if w.Sum() > 1+1e-9 {
		return fmt.Errorf("%w: sum is %.4f", ErrWeightContract, w.Sum())
	}
	return nil
}

// LoadCalibration loads weights and limits from a JSON calibration file.
// If the file doesn't exist or can't be parsed, returns the defaults with an
// error so callers can keep serving. Partial configurations are merged with
// defaults.
//
// A file whose weights break the [0, 100] contract is still applied; the
// problem is logged as a warning.
func LoadCalibration(filePath string) (*Calibration, error) {
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultCalibration()
	merged := MergeCalibration(defaults, &Calibration{Weights: config.Weights, Limits: config.Limits})
	logCalibrationOverrides(defaults, merged)

	if err := merged.Weights.Validate(); err != nil {
		slog.Warn("calibration weights may produce scores outside [0, 100]",
			"path", filePath,
			"version", config.Version,
			"error", err)
	}

	return merged, nil
}

// MergeCalibration merges override values into base.
// Only non-zero values from the override are applied, so a calibration file
// may name a single weight. Neither argument is modified.
func MergeCalibration(base *Calibration, override *Calibration) *Calibration {
	if base == nil {
		return DefaultCalibration()
	}

	result := *base
	if override == nil {
		return &result
	}

	if override.Weights.Distance != 0 {
		result.Weights.Distance = override.Weights.Distance
	}
	if override.Weights.Price != 0 {
		result.Weights.Price = override.Weights.Price
	}
	if override.Weights.Rating != 0 {
		result.Weights.Rating = override.Weights.Rating
	}

	if override.Limits.MaxDistanceKm > 0 {
		result.Limits.MaxDistanceKm = override.Limits.MaxDistanceKm
	}
	if override.Limits.MaxPrice > 0 {
		result.Limits.MaxPrice = override.Limits.MaxPrice
	}

	return &result
}

// logCalibrationOverrides logs which values were overridden from defaults.
func logCalibrationOverrides(defaults *Calibration, loaded *Calibration) {
	var overrides []string

	if loaded.Weights.Distance != defaults.Weights.Distance {
		overrides = append(overrides, fmt.Sprintf("weights.distance: %.2f -> %.2f",
			defaults.Weights.Distance, loaded.Weights.Distance))
	}
	if loaded.Weights.Price != defaults.Weights.Price {
		overrides = append(overrides, fmt.Sprintf("weights.price: %.2f -> %.2f",
			defaults.Weights.Price, loaded.Weights.Price))
	}
	if loaded.Weights.Rating != defaults.Weights.Rating {
		overrides = append(overrides, fmt.Sprintf("weights.rating: %.2f -> %.2f",
			defaults.Weights.Rating, loaded.Weights.Rating))
	}
	if loaded.Limits.MaxDistanceKm != defaults.Limits.MaxDistanceKm {
		overrides = append(overrides, fmt.Sprintf("limits.max_distance_km: %.0f -> %.0f",
			defaults.Limits.MaxDistanceKm, loaded.Limits.MaxDistanceKm))
	}
	if loaded.Limits.MaxPrice != defaults.Limits.MaxPrice {
		overrides = append(overrides, fmt.Sprintf("limits.max_price: %.0f -> %.0f",
			defaults.Limits.MaxPrice, loaded.Limits.MaxPrice))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
