// Package booking tracks service appointments between users and pandits.
// A completed booking is what entitles either party to review the other.
package booking

import (
	"errors"
	"fmt"
	"time"
)

// Booking errors
var (
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrNotParticipant    = errors.New("booking does not belong to reviewer")
	ErrNotCompleted      = errors.New("booking is not completed")
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the booking still has work outstanding.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// allowedFrom lists the states a booking may move to `to` from.
func allowedFrom(to Status) []Status {
	switch to {
	case StatusConfirmed:
		return []Status{StatusPending}
	case StatusCompleted:
		return []Status{StatusConfirmed}
	case StatusCancelled:
		return []Status{StatusPending, StatusConfirmed}
	}
	return nil
}

// CanTransition reports whether a booking in state s may move to state to.
func (s Status) CanTransition(to Status) bool {
	for _, from := range allowedFrom(to) {
		if s == from {
			return true
		}
	}
	return false
}

// Booking is an appointment of a pandit by a user.
type Booking struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	PanditID    string     `json:"pandit_id"`
	ServiceID   string     `json:"service_id,omitempty"`
	Status      Status     `json:"status"`
	TotalAmount float64    `json:"total_amount"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Clone returns a deep copy of b.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.ScheduledAt != nil {
		t := *b.ScheduledAt
		c.ScheduledAt = &t
	}
	return &c
}

// ReviewableByUser checks that userID booked b and the service is done.
func (b *Booking) ReviewableByUser(userID string) error {
	return b.reviewable(b.UserID == userID)
}

// ReviewableByPandit checks that panditID served b and the service is done.
func (b *Booking) ReviewableByPandit(panditID string) error {
	return b.reviewable(b.PanditID == panditID)
}

func (b *Booking) reviewable(participant bool) error {
	if !participant {
		return ErrNotParticipant
	}
	if b.Status != StatusCompleted {
		return fmt.Errorf("%w: status is %s", ErrNotCompleted, b.Status)
	}
	return nil
}

// Stats counts bookings by status for the admin dashboard.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

func (s *Stats) add(status Status, n int) {
	s.Total += n
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusConfirmed:
		s.Confirmed += n
	case StatusCompleted:
		s.Completed += n
	case StatusCancelled:
		s.Cancelled += n
	}
}
