// Package user stores client accounts and their locations.
package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/panditseva/internal/geo"
	"github.com/onnwee/panditseva/internal/validate"
)

// Repository errors
var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("email already registered")
	ErrInvalidRole = errors.New("invalid role")
)

// Role identifies what an account may do.
type Role string

const (
	RoleUser   Role = "user"
	RolePandit Role = "pandit"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RolePandit, RoleAdmin:
		return true
	}
	return false
}

// User is an account on the platform.
type User struct {
	ID           string          `json:"id"`
	FullName     string          `json:"full_name"`
	Email        string          `json:"email"`
	Role         Role            `json:"role"`
	Location     *geo.Coordinate `json:"location,omitempty"`
	LocationName string          `json:"location_name,omitempty"`
	RatingAvg    float64         `json:"rating_avg"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Location != nil {
		loc := *u.Location
		c.Location = &loc
	}
	return &c
}

// prepareInsert normalizes the email and fills defaults before a user is stored.
func (u *User) prepareInsert() error {
	email, err := validate.Email(u.Email)
	if err != nil {
		return fmt.Errorf("user email: %w", err)
	}
	u.Email = email
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, u.Role)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return nil
}
