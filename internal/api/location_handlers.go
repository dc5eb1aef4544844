package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/panditseva/internal/geo"
	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/user"
	"github.com/onnwee/panditseva/internal/validate"
)

// UpdateLocationRequest is the body of PUT /user/location and PUT /pandit/location.
type UpdateLocationRequest struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LocationName string   `json:"location_name"`
}

// LocationResponse echoes the stored location back to its owner.
type LocationResponse struct {
	Msg          string          `json:"msg"`
	Location     *geo.Coordinate `json:"location"`
	LocationName string          `json:"location_name,omitempty"`
}

// LocationHandlers updates where clients and pandits are and shows clients
// their own profile.
type LocationHandlers struct {
	users   user.Repository
	pandits pandit.Repository
}

// NewLocationHandlers creates a new LocationHandlers instance.
func NewLocationHandlers(users user.Repository, pandits pandit.Repository) *LocationHandlers {
	return &LocationHandlers{users: users, pandits: pandits}
}

// parseLocation decodes and validates a location update. Both coordinates
// are required. On failure the error response has already been written.
func parseLocation(w http.ResponseWriter, r *http.Request) (*geo.Coordinate, string, bool) {
	var req UpdateLocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCodedError(w, r, ErrCodeBadRequest, err.Error())
		return nil, "", false
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeCodedError(w, r, ErrCodeValidation, "latitude and longitude are required")
		return nil, "", false
	}

	loc, err := geo.NewCoordinate(*req.Latitude, *req.Longitude)
	if err != nil {
		writeCodedError(w, r, ErrCodeInvalidLocation, err.Error())
		return nil, "", false
	}

	name, err := validate.LocationName(req.LocationName)
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return nil, "", false
	}
	return loc, name, true
}

// UpdateUserLocation handles PUT /user/location.
func (h *LocationHandlers) UpdateUserLocation(w http.ResponseWriter, r *http.Request) {
	loc, name, ok := parseLocation(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.users.UpdateLocation(r.Context(), userID, loc, name); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update user location", "error", err, "user_id", userID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to update location")
		return
	}

	writeJSON(w, r, http.StatusOK, LocationResponse{Msg: "Location updated", Location: loc, LocationName: name})
}

// UserProfile handles GET /user/profile. The owner sees the exact stored
// location along with the rating pandits have given them.
func (h *LocationHandlers) UserProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load user profile", "error", err, "user_id", userID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load profile")
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// UpdatePanditLocation handles PUT /pandit/location for the caller's own profile.
func (h *LocationHandlers) UpdatePanditLocation(w http.ResponseWriter, r *http.Request) {
	loc, name, ok := parseLocation(w, r)
	if !ok {
		return
	}

	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}

	if err := h.pandits.UpdateLocation(r.Context(), p.ID, loc, name); err != nil {
		slog.ErrorContext(r.Context(), "failed to update pandit location", "error", err, "pandit_id", p.ID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to update location")
		return
	}

	writeJSON(w, r, http.StatusOK, LocationResponse{Msg: "Location updated", Location: loc, LocationName: name})
}

// currentPandit resolves the pandit profile owned by the authenticated account.
func currentPandit(w http.ResponseWriter, r *http.Request, pandits pandit.Repository) (*pandit.Pandit, bool) {
	userID := middleware.GetUserID(r.Context())
	p, err := pandits.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pandit.ErrNotFound) {
			writeCodedError(w, r, ErrCodeProfileMissing, "Pandit profile not found for this account")
			return nil, false
		}
		slog.ErrorContext(r.Context(), "failed to load pandit profile", "error", err, "user_id", userID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load pandit profile")
		return nil, false
	}
	return p, true
}
