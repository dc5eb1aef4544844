package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/onnwee/panditseva/internal/middleware"
)

var (
	// ErrNilRepository is returned when a nil repository is passed to logging functions.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned when an invalid entity type is provided.
	ErrInvalidEntityType = errors.New("invalid audit entity type")
	// ErrInvalidEntityID is returned when an invalid entity ID is provided.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned when an invalid action is provided.
	ErrInvalidAction = errors.New("invalid audit action")
	// ErrInvalidOutcome is returned when the outcome is neither success nor failure.
	ErrInvalidOutcome = errors.New("invalid audit outcome")
)

// ValidEntityTypes defines the allowed entity types for audit logging.
var ValidEntityTypes = map[string]bool{
	EntityPandit:  true,
	EntityUser:    true,
	EntityBooking: true,
}

// ValidActions defines the allowed actions for audit logging.
var ValidActions = map[string]bool{
	ActionAccessPreciseLocation: true,
	ActionApprovePandit:         true,
	ActionRejectPandit:          true,
	ActionDeletePandit:          true,
}

// Validate checks the required fields of an entry against the whitelists and
// fills in the default outcome.
func (e *Entry) Validate() error {
	if !ValidEntityTypes[e.EntityType] {
		return ErrInvalidEntityType
	}
	if e.EntityID == "" {
		return ErrInvalidEntityID
	}
	if !ValidActions[e.Action] {
		return ErrInvalidAction
	}
	switch e.Outcome {
	case "":
		e.Outcome = OutcomeSuccess
	case OutcomeSuccess, OutcomeFailure:
	default:
		return ErrInvalidOutcome
	}
	return nil
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order and
// strips any port.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return stripPort(first)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripPort(xri)
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Record stores an audit event, taking the actor and request ID from ctx.
//
// Recording is fail-closed: errors are returned so callers guarding a read
// can refuse to serve data whose access could not be logged.
func Record(ctx context.Context, repo Repository, entry Entry) (*Log, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if entry.ActorID == "" {
		entry.ActorID = middleware.GetUserID(ctx)
	}
	if entry.ActorRole == "" {
		entry.ActorRole = middleware.GetUserRole(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = middleware.GetRequestID(ctx)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return repo.Record(ctx, entry)
}

// RecordFromRequest is Record with the client IP address and user agent
// taken from r.
func RecordFromRequest(r *http.Request, repo Repository, entry Entry) (*Log, error) {
	entry.IPAddress = extractIPAddress(r)
	entry.UserAgent = r.UserAgent()
	return Record(r.Context(), repo, entry)
}
