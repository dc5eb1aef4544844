package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/onnwee/panditseva/internal/booking"
	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/rating"
	"github.com/onnwee/panditseva/internal/validate"
)

// SubmitReviewRequest is the body of the review endpoints.
// Rating is decoded as a number so 4.5 is reported as an invalid rating
// rather than a malformed body.
type SubmitReviewRequest struct {
	Rating  *float64 `json:"rating"`
	Comment string   `json:"comment"`
}

// SubmitReviewResponse is returned when a review is accepted.
type SubmitReviewResponse struct {
	Msg       string  `json:"msg"`
	ReviewID  string  `json:"review_id"`
	RatingAvg float64 `json:"rating_avg"`
}

// ReviewHandlers lets each party of a completed booking review the other.
type ReviewHandlers struct {
	bookings booking.Repository
	pandits  pandit.Repository
	reviews  *rating.Service
}

// NewReviewHandlers creates a new ReviewHandlers instance.
func NewReviewHandlers(bookings booking.Repository, pandits pandit.Repository, reviews *rating.Service) *ReviewHandlers {
	return &ReviewHandlers{bookings: bookings, pandits: pandits, reviews: reviews}
}

// parseReview decodes the body and returns the integer rating and the
// sanitized comment. On failure the error response has already been written.
func parseReview(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	var req SubmitReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCodedError(w, r, ErrCodeBadRequest, err.Error())
		return 0, "", false
	}
	if req.Rating == nil || *req.Rating != math.Trunc(*req.Rating) ||
		*req.Rating < rating.MinRating || *req.Rating > rating.MaxRating {
		writeCodedError(w, r, ErrCodeInvalidRating, rating.ErrInvalidRating.Error())
		return 0, "", false
	}

	comment, err := validate.ReviewComment(req.Comment)
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return 0, "", false
	}
	return int(*req.Rating), comment, true
}

// loadReviewable fetches the booking in the path and checks that check
// allows a review of it. On failure the error response has already been written.
func (h *ReviewHandlers) loadReviewable(w http.ResponseWriter, r *http.Request, check func(*booking.Booking) error) (*booking.Booking, bool) {
	id := r.PathValue("id")
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "Booking not found")
			return nil, false
		}
		slog.ErrorContext(r.Context(), "failed to load booking", "error", err, "booking_id", id)
		writeCodedError(w, r, ErrCodeInternal, "Failed to submit review")
		return nil, false
	}

	switch err := check(b); {
	case err == nil:
		return b, true
	case errors.Is(err, booking.ErrNotParticipant):
		writeCodedError(w, r, ErrCodeNotFound, "Booking not found")
	case errors.Is(err, booking.ErrNotCompleted):
		writeCodedError(w, r, ErrCodeBookingNotCompleted, "Only completed bookings can be reviewed")
	default:
		writeCodedError(w, r, ErrCodeInternal, "Failed to submit review")
	}
	return nil, false
}

// UserReview handles POST /user/bookings/{id}/review: a client rates the
// pandit who served the booking.
func (h *ReviewHandlers) UserReview(w http.ResponseWriter, r *http.Request) {
	score, comment, ok := parseReview(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	b, ok := h.loadReviewable(w, r, func(b *booking.Booking) error {
		return b.ReviewableByUser(userID)
	})
	if !ok {
		return
	}

	h.submit(w, r, rating.Submission{
		SubjectID:    b.PanditID,
		SubjectType:  rating.TypePandit,
		BookingID:    b.ID,
		ReviewerID:   userID,
		ReviewerType: rating.TypeUser,
		Rating:       score,
		Comment:      comment,
	})
}

// PanditReview handles POST /pandit/bookings/{id}/review: a pandit rates the
// client of a booking they served.
func (h *ReviewHandlers) PanditReview(w http.ResponseWriter, r *http.Request) {
	score, comment, ok := parseReview(w, r)
	if !ok {
		return
	}

	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}
	b, ok := h.loadReviewable(w, r, func(b *booking.Booking) error {
		return b.ReviewableByPandit(p.ID)
	})
	if !ok {
		return
	}

	h.submit(w, r, rating.Submission{
		SubjectID:    b.UserID,
		SubjectType:  rating.TypeUser,
		BookingID:    b.ID,
		ReviewerID:   p.ID,
		ReviewerType: rating.TypePandit,
		Rating:       score,
		Comment:      comment,
	})
}

func (h *ReviewHandlers) submit(w http.ResponseWriter, r *http.Request, in rating.Submission) {
	review, aggregate, err := h.reviews.Submit(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, rating.ErrInvalidRating):
			writeCodedError(w, r, ErrCodeInvalidRating, err.Error())
		case errors.Is(err, rating.ErrDuplicateReview):
			writeCodedError(w, r, ErrCodeDuplicateReview, "This booking has already been reviewed")
		case errors.Is(err, rating.ErrSelfReview), errors.Is(err, rating.ErrInvalidSubject):
			writeCodedError(w, r, ErrCodeValidation, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to submit review", "error", err, "booking_id", in.BookingID)
			writeCodedError(w, r, ErrCodeInternal, "Failed to submit review")
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, SubmitReviewResponse{
		Msg:       "Review submitted",
		ReviewID:  review.ID,
		RatingAvg: aggregate,
	})
}
