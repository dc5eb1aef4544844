// Package catalog holds the services each pandit offers, such as a Griha
// Pravesh puja at a fixed price. A booking may name one of the pandit's
// services, in which case the service's base price is charged.
package catalog

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Catalog errors
var (
	ErrNotFound       = errors.New("service not found")
	ErrInvalidService = errors.New("invalid service")
	ErrInvalidSort    = errors.New("sort_by must be one of price_asc, price_desc, name_asc, name_desc")
)

// Field limits.
const (
	MaxNameLength     = 100
	MaxCategoryLength = 50
	MaxDurationMin    = 24 * 60
	MaxListLimit      = 100
)

// Service is an offering listed by a pandit. Name is unique per pandit.
type Service struct {
	ID              string    `json:"id"`
	PanditID        string    `json:"pandit_id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	BasePrice       float64   `json:"base_price"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Normalize trims the text fields and lower-cases the category.
func (s *Service) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Category = strings.ToLower(strings.TrimSpace(s.Category))
}

// Validate checks a normalized service.
func (s *Service) Validate() error {
	switch {
	case s.PanditID == "":
		return errors.Join(ErrInvalidService, errors.New("pandit_id is required"))
	case s.Name == "" || utf8.RuneCountInString(s.Name) > MaxNameLength:
		return errors.Join(ErrInvalidService, errors.New("name must be 1 to 100 characters"))
	case utf8.RuneCountInString(s.Category) > MaxCategoryLength:
		return errors.Join(ErrInvalidService, errors.New("category must be at most 50 characters"))
	case s.BasePrice < 0:
		return errors.Join(ErrInvalidService, errors.New("base_price must be non-negative"))
	case s.DurationMinutes < 0 || s.DurationMinutes > MaxDurationMin:
		return errors.Join(ErrInvalidService, errors.New("duration_minutes must be between 0 and 1440"))
	}
	return nil
}

// UpsertResult reports whether Upsert created or updated a service.
type UpsertResult struct {
	Inserted bool
	ID       string
}

// ListOptions filters List. Empty fields match everything.
type ListOptions struct {
	PanditID string
	Category string
	Limit    int // clamped to MaxListLimit; 0 means MaxListLimit
	Offset   int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > MaxListLimit {
		return MaxListLimit
	}
	return o.Limit
}

// SortOrder orders search results.
type SortOrder string

const (
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortNameAsc   SortOrder = "name_asc"
	SortNameDesc  SortOrder = "name_desc"
)

// ParseSortOrder maps a sort_by value to a SortOrder. An empty value sorts
// by ascending price.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.TrimSpace(s)); o {
	case "":
		return SortPriceAsc, nil
	case SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc:
		return o, nil
	}
	return "", ErrInvalidSort
}

// SearchOptions filters Search. Keyword matches name or category and
// Category matches the category, both as case-insensitive substrings.
// Nil price bounds are open; a zero MaxPrice only matches free services.
type SearchOptions struct {
	Keyword  string
	Category string
	MinPrice *float64
	MaxPrice *float64
	SortBy   SortOrder // zero value sorts by ascending price
	Limit    int       // clamped to MaxListLimit; 0 means MaxListLimit
	Offset   int
}

func (o SearchOptions) limit() int {
	return ListOptions{Limit: o.Limit}.limit()
}

// SearchResult is one page of matches. Total counts every match.
type SearchResult struct {
	Total int        `json:"total"`
	Items []*Service `json:"items"`
}
