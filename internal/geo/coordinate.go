// Package geo provides coordinate handling, great-circle distance and coarse
// geohash encoding for pandit and client locations.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a latitude/longitude pair in decimal degrees.
//
// A location that has not been set is represented by a nil *Coordinate, never
// by the zero value: (0, 0) is a real point in the Gulf of Guinea.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// NewCoordinate returns a pointer to a validated coordinate.
func NewCoordinate(lat, lng float64) (*Coordinate, error) {
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that latitude is within [-90, 90] and longitude within [-180, 180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// Geohash returns the coarse public geohash of c at DefaultPrecision.
// A nil coordinate yields an empty string.
func (c *Coordinate) Geohash() string {
	if c == nil {
		return ""
	}
	return Encode(c.Lat, c.Lng, DefaultPrecision)
}
