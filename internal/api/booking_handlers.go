package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/panditseva/internal/booking"
	"github.com/onnwee/panditseva/internal/catalog"
	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
)

// CreateBookingRequest is the body of POST /user/bookings.
type CreateBookingRequest struct {
	PanditID    string     `json:"pandit_id"`
	ServiceID   string     `json:"service_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreateBookingResponse is returned when a booking is created.
type CreateBookingResponse struct {
	Msg       string `json:"msg"`
	BookingID string `json:"booking_id"`
}

// BookingStatusResponse is returned after a status change.
type BookingStatusResponse struct {
	Msg     string           `json:"msg"`
	Booking *booking.Booking `json:"booking"`
}

// BookingHandlers serves the booking lifecycle for both parties.
type BookingHandlers struct {
	bookings booking.Repository
	pandits  pandit.Repository
	services catalog.Repository
	now      func() time.Time
}

// NewBookingHandlers creates a new BookingHandlers instance.
func NewBookingHandlers(bookings booking.Repository, pandits pandit.Repository, services catalog.Repository) *BookingHandlers {
	return &BookingHandlers{bookings: bookings, pandits: pandits, services: services, now: time.Now}
}

// CreateBooking handles POST /user/bookings. The pandit must exist and be
// verified. When service_id names one of the pandit's services its base
// price is charged; otherwise the pandit's price per service is.
func (h *BookingHandlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCodedError(w, r, ErrCodeBadRequest, err.Error())
		return
	}
	req.PanditID = strings.TrimSpace(req.PanditID)
	if req.PanditID == "" {
		writeCodedError(w, r, ErrCodeValidation, "pandit_id is required")
		return
	}
	if req.ScheduledAt != nil && req.ScheduledAt.Before(h.now()) {
		writeCodedError(w, r, ErrCodeValidation, "scheduled_at must be in the future")
		return
	}

	p, err := h.pandits.Get(ctx, req.PanditID)
	if err != nil {
		if errors.Is(err, pandit.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "Pandit not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load pandit", "error", err, "pandit_id", req.PanditID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to create booking")
		return
	}
	if !p.Verified {
		writeCodedError(w, r, ErrCodePanditNotVerified, "Pandit is not verified")
		return
	}

	total := p.PricePerService
	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID != "" {
		svc, err := h.services.Get(ctx, serviceID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				writeCodedError(w, r, ErrCodeNotFound, "Service not found")
				return
			}
			slog.ErrorContext(ctx, "failed to load service", "error", err, "service_id", serviceID)
			writeCodedError(w, r, ErrCodeInternal, "Failed to create booking")
			return
		}
		if svc.PanditID != p.ID {
			writeCodedError(w, r, ErrCodeValidation, "Service is not offered by the specified pandit")
			return
		}
		total = svc.BasePrice
	}

	b := &booking.Booking{
		UserID:      middleware.GetUserID(ctx),
		PanditID:    p.ID,
		ServiceID:   serviceID,
		Status:      booking.StatusPending,
		TotalAmount: total,
		ScheduledAt: req.ScheduledAt,
	}
	if err := h.bookings.Insert(ctx, b); err != nil {
		slog.ErrorContext(ctx, "failed to insert booking", "error", err, "pandit_id", p.ID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to create booking")
		return
	}

	slog.InfoContext(ctx, "booking created", "booking_id", b.ID, "pandit_id", p.ID, "total_amount", b.TotalAmount)
	writeJSON(w, r, http.StatusCreated, CreateBookingResponse{Msg: "Booking created", BookingID: b.ID})
}

// parseStatusFilter reads the optional status query parameter.
func parseStatusFilter(r *http.Request) (booking.Status, error) {
	s := booking.Status(r.URL.Query().Get("status"))
	if s != "" && !s.Valid() {
		return "", errors.New("status must be one of pending, confirmed, completed, cancelled")
	}
	return s, nil
}

func filterByStatus(list []*booking.Booking, status booking.Status) []*booking.Booking {
	if status == "" {
		return list
	}
	out := make([]*booking.Booking, 0, len(list))
	for _, b := range list {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

// ListUserBookings handles GET /user/bookings, newest first.
func (h *BookingHandlers) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatusFilter(r)
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}

	userID := middleware.GetUserID(r.Context())
	list, err := h.bookings.ListByUser(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list bookings", "error", err, "user_id", userID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to list bookings")
		return
	}
	writeJSON(w, r, http.StatusOK, filterByStatus(list, status))
}

// ListPanditBookings handles GET /pandit/bookings, newest first.
func (h *BookingHandlers) ListPanditBookings(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatusFilter(r)
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}

	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}
	list, err := h.bookings.ListByPandit(r.Context(), p.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list bookings", "error", err, "pandit_id", p.ID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to list bookings")
		return
	}
	writeJSON(w, r, http.StatusOK, filterByStatus(list, status))
}

// CancelBooking handles PUT /user/bookings/{id}/cancel.
func (h *BookingHandlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.transition(w, r, booking.StatusCancelled, func(b *booking.Booking) bool {
		return b.UserID == userID
	})
}

// ConfirmBooking handles PUT /pandit/bookings/{id}/confirm.
func (h *BookingHandlers) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}
	h.transition(w, r, booking.StatusConfirmed, func(b *booking.Booking) bool {
		return b.PanditID == p.ID
	})
}

// CompleteBooking handles PUT /pandit/bookings/{id}/complete.
func (h *BookingHandlers) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}
	h.transition(w, r, booking.StatusCompleted, func(b *booking.Booking) bool {
		return b.PanditID == p.ID
	})
}

// transition moves the booking named in the path to status to. Bookings the
// caller does not own are reported as not found.
func (h *BookingHandlers) transition(w http.ResponseWriter, r *http.Request, to booking.Status, owns func(*booking.Booking) bool) {
	ctx := r.Context()
	id := r.PathValue("id")

	b, err := h.bookings.Get(ctx, id)
	if err != nil && !errors.Is(err, booking.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to load booking", "error", err, "booking_id", id)
		writeCodedError(w, r, ErrCodeInternal, "Failed to update booking")
		return
	}
	if err != nil || !owns(b) {
		writeCodedError(w, r, ErrCodeNotFound, "Booking not found")
		return
	}

	updated, err := h.bookings.Transition(ctx, id, to)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidTransition):
			writeCodedError(w, r, ErrCodeInvalidTransition, "Cannot move booking from "+string(b.Status)+" to "+string(to))
		case errors.Is(err, booking.ErrNotFound):
			writeCodedError(w, r, ErrCodeNotFound, "Booking not found")
		default:
			slog.ErrorContext(ctx, "failed to transition booking", "error", err, "booking_id", id, "to", string(to))
			writeCodedError(w, r, ErrCodeInternal, "Failed to update booking")
		}
		return
	}

	slog.InfoContext(ctx, "booking status changed", "booking_id", id, "from", string(b.Status), "to", string(to))
	writeJSON(w, r, http.StatusOK, BookingStatusResponse{Msg: "Booking " + string(to), Booking: updated})
}
