// Package rating validates reviews and maintains the mean rating of the
// pandits and users they are written about.
package rating

import (
	"errors"
	"strings"
	"time"
)

// SubjectType identifies what kind of account a review is written about.
type SubjectType string

// Subject and reviewer types. A user reviews a pandit and a pandit reviews a user.
const (
	TypePandit SubjectType = "pandit"
	TypeUser   SubjectType = "user"
)

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// Validation errors
var (
	ErrInvalidRating   = errors.New("rating must be an integer between 1 and 5")
	ErrDuplicateReview = errors.New("review already submitted for this booking")
	ErrInvalidSubject  = errors.New("invalid review subject")
	ErrSelfReview      = errors.New("reviewer and subject must be different parties")
)

// Valid reports whether t is a known subject type.
func (t SubjectType) Valid() bool {
	return t == TypePandit || t == TypeUser
}

// Subject is the pandit or user a review is about.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id"`
}

// Key returns a string form of s suitable for map keys and lock names.
func (s Subject) Key() string {
	return string(s.Type) + ":" + s.ID
}

// ParseSubjectKey is the inverse of Subject.Key.
func ParseSubjectKey(key string) (Subject, error) {
	typ, id, ok := strings.Cut(key, ":")
	s := Subject{Type: SubjectType(typ), ID: id}
	if !ok || !s.Type.Valid() || s.ID == "" {
		return Subject{}, ErrInvalidSubject
	}
	return s, nil
}

// Review is an immutable rating left by one party of a booking about the other.
type Review struct {
	ID           string      `json:"id"`
	BookingID    string      `json:"booking_id"`
	SubjectID    string      `json:"subject_id"`
	SubjectType  SubjectType `json:"subject_type"`
	ReviewerID   string      `json:"reviewer_id"`
	ReviewerType SubjectType `json:"reviewer_type"`
	Rating       int         `json:"rating"`
	Comment      string      `json:"comment,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Subject returns the subject the review is about.
func (r Review) Subject() Subject {
	return Subject{Type: r.SubjectType, ID: r.SubjectID}
}

// Submission is a review that has not been accepted yet.
type Submission struct {
	SubjectID    string
	SubjectType  SubjectType
	BookingID    string
	ReviewerID   string
	ReviewerType SubjectType
	Rating       int
	Comment      string
}

// Subject returns the subject the submission is about.
func (s Submission) Subject() Subject {
	return Subject{Type: s.SubjectType, ID: s.SubjectID}
}

// ValidateRating checks that r is within [MinRating, MaxRating].
// Out of range values are rejected, never clamped.
func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return ErrInvalidRating
	}
	return nil
}
