// Package audit records administrative actions and access to exact
// locations for compliance and incident response.
package audit

import (
	"time"
)

// Entity types that can appear in the audit log.
const (
	EntityPandit  = "pandit"
	EntityUser    = "user"
	EntityBooking = "booking"
)

// Actions that can appear in the audit log.
const (
	ActionAccessPreciseLocation = "access_precise_location"
	ActionApprovePandit         = "approve_pandit"
	ActionRejectPandit          = "reject_pandit"
	ActionDeletePandit          = "delete_pandit"
)

// Outcomes of an audited action.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Log is a single stored audit event.
type Log struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Entry is the input for recording an audit event.
type Entry struct {
	ActorID    string
	ActorRole  string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // defaults to OutcomeSuccess
	Detail     string // free text such as a rejection reason

	RequestID string
	IPAddress string
	UserAgent string
}
