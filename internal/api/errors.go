// Package api provides the HTTP handlers of the PanditSeva API and its
// standardized JSON error envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/panditseva/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeIncompleteLocation indicates the caller has not set a location yet.
	ErrCodeIncompleteLocation = "incomplete_location"

	// ErrCodeInvalidLocation indicates a latitude or longitude out of range.
	ErrCodeInvalidLocation = "invalid_location"

	// ErrCodeInvalidSortKey indicates an unknown sort_by value.
	ErrCodeInvalidSortKey = "invalid_sort_key"

	// ErrCodeInvalidRating indicates a rating outside 1..5.
	ErrCodeInvalidRating = "invalid_rating"

	// ErrCodeDuplicateReview indicates the booking was already reviewed by this party.
	ErrCodeDuplicateReview = "duplicate_review"

	// ErrCodeBookingNotCompleted indicates a review for a booking that is not completed.
	ErrCodeBookingNotCompleted = "booking_not_completed"

	// ErrCodeInvalidTransition indicates a booking status change its current status forbids.
	ErrCodeInvalidTransition = "invalid_transition"

	// ErrCodeAlreadyVerified indicates approval of an already verified pandit.
	ErrCodeAlreadyVerified = "already_verified"

	// ErrCodePanditNotVerified indicates a booking request for an unverified pandit.
	ErrCodePanditNotVerified = "pandit_not_verified"

	// ErrCodeActiveBookings indicates deletion of a pandit with pending or confirmed bookings.
	ErrCodeActiveBookings = "active_bookings"

	// ErrCodeProfileMissing indicates a pandit account without a pandit profile.
	ErrCodeProfileMissing = "profile_missing"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is logged by the logging middleware for 4xx and 5xx
// responses when the context carries it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Pandit not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer if supported (for logging middleware)
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeCodedError sets the error code on the request context and writes the
// error using the status StatusCodeMapping recommends for code.
func writeCodedError(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err, "path", r.URL.Path)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeIncompleteLocation, ErrCodeInvalidLocation,
		ErrCodeInvalidSortKey, ErrCodeInvalidRating, ErrCodeBookingNotCompleted:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodePanditNotVerified, ErrCodeProfileMissing:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeDuplicateReview, ErrCodeInvalidTransition, ErrCodeAlreadyVerified,
		ErrCodeActiveBookings:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
