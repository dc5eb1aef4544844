// Package pandit provides the directory of service providers: profiles,
// locations, verification status and aggregate rating.
package pandit

import (
	"errors"
	"time"

	"github.com/onnwee/panditseva/internal/geo"
	"github.com/onnwee/panditseva/internal/ranking"
)

// Repository errors
var (
	ErrNotFound        = errors.New("pandit not found")
	ErrExists          = errors.New("pandit profile already exists for this user")
	ErrAlreadyVerified = errors.New("pandit is already verified")
)

// Pandit is a service provider profile.
type Pandit struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	FullName        string          `json:"full_name"`
	Region          string          `json:"region"`
	Languages       []string        `json:"languages"`
	Bio             string          `json:"bio"`
	ExperienceYears int             `json:"experience_years"`
	Location        *geo.Coordinate `json:"location,omitempty"`
	LocationName    string          `json:"location_name,omitempty"`
	PricePerService float64         `json:"price_per_service"`
	RatingAvg       float64         `json:"rating_avg"`
	Verified        bool            `json:"is_verified"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Candidate returns the ranking view of p.
func (p *Pandit) Candidate() ranking.Candidate {
	return ranking.Candidate{
		ID:       p.ID,
		Location: p.Location,
		Price:    p.PricePerService,
		Rating:   p.RatingAvg,
		Verified: p.Verified,
	}
}

// Clone returns a deep copy of p.
func (p *Pandit) Clone() *Pandit {
	if p == nil {
		return nil
	}
	c := *p
	if p.Languages != nil {
		c.Languages = append([]string(nil), p.Languages...)
	}
	if p.Location != nil {
		loc := *p.Location
		c.Location = &loc
	}
	return &c
}

// VerificationFilter narrows admin listings by verification status.
type VerificationFilter int

const (
	FilterAll VerificationFilter = iota
	FilterVerified
	FilterPending
)

// Matches reports whether p passes the filter.
func (f VerificationFilter) Matches(p *Pandit) bool {
	switch f {
	case FilterVerified:
		return p.Verified
	case FilterPending:
		return !p.Verified
	default:
		return true
	}
}

// ListOptions controls admin listings. Results are newest first.
type ListOptions struct {
	Filter VerificationFilter
	Offset int
	Limit  int // 0 means DefaultListLimit
}

// Listing limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Stats holds directory counts for the admin dashboard.
type Stats struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Pending  int `json:"pending_verification"`
}
