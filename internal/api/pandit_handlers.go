package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/onnwee/panditseva/internal/catalog"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/rating"
)

// PublicPandit is the view of a pandit shown to clients. The exact coordinate
// is replaced by a coarse geohash.
type PublicPandit struct {
	ID              string   `json:"id"`
	FullName        string   `json:"full_name"`
	Region          string   `json:"region"`
	Languages       []string `json:"languages"`
	Bio             string   `json:"bio"`
	ExperienceYears int      `json:"experience_years"`
	LocationName    string   `json:"location_name,omitempty"`
	Geohash         string   `json:"geohash,omitempty"`
	PricePerService float64  `json:"price_per_service"`
	RatingAvg       float64  `json:"rating_avg"`
	Verified        bool     `json:"is_verified"`
}

func toPublicPandit(p *pandit.Pandit) PublicPandit {
	languages := p.Languages
	if languages == nil {
		languages = []string{}
	}
	return PublicPandit{
		ID:              p.ID,
		FullName:        p.FullName,
		Region:          p.Region,
		Languages:       languages,
		Bio:             p.Bio,
		ExperienceYears: p.ExperienceYears,
		LocationName:    p.LocationName,
		Geohash:         p.Location.Geohash(),
		PricePerService: p.PricePerService,
		RatingAvg:       p.RatingAvg,
		Verified:        p.Verified,
	}
}

// ReviewListResponse is returned by GET /pandits/{id}/reviews.
type ReviewListResponse struct {
	PanditID  string          `json:"pandit_id"`
	RatingAvg float64         `json:"rating_avg"`
	Count     int             `json:"count"`
	Reviews   []rating.Review `json:"reviews"`
}

// PanditHandlers serves the public pandit directory.
type PanditHandlers struct {
	pandits  pandit.Repository
	reviews  *rating.Service
	services catalog.Repository
}

// NewPanditHandlers creates a new PanditHandlers instance.
func NewPanditHandlers(pandits pandit.Repository, reviews *rating.Service, services catalog.Repository) *PanditHandlers {
	return &PanditHandlers{pandits: pandits, reviews: reviews, services: services}
}

// lookupVerified loads a pandit for public display. Unverified pandits are
// reported as not found.
func (h *PanditHandlers) lookupVerified(w http.ResponseWriter, r *http.Request) (*pandit.Pandit, bool) {
	id := r.PathValue("id")
	p, err := h.pandits.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pandit.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "Pandit not found")
			return nil, false
		}
		slog.ErrorContext(r.Context(), "failed to load pandit", "error", err, "pandit_id", id)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load pandit")
		return nil, false
	}
	if !p.Verified {
		writeCodedError(w, r, ErrCodeNotFound, "Pandit not found")
		return nil, false
	}
	return p, true
}

// GetPandit handles GET /pandits/{id}: the public profile with rating_avg.
func (h *PanditHandlers) GetPandit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupVerified(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, toPublicPandit(p))
}

// ListReviews handles GET /pandits/{id}/reviews, newest first.
func (h *PanditHandlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupVerified(w, r)
	if !ok {
		return
	}

	reviews, err := h.reviews.Reviews(r.Context(), rating.Subject{Type: rating.TypePandit, ID: p.ID})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list reviews", "error", err, "pandit_id", p.ID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to list reviews")
		return
	}
	if reviews == nil {
		reviews = []rating.Review{}
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})

	writeJSON(w, r, http.StatusOK, ReviewListResponse{
		PanditID:  p.ID,
		RatingAvg: p.RatingAvg,
		Count:     len(reviews),
		Reviews:   reviews,
	})
}

// ListServices handles GET /pandits/{id}/services?category=&skip=&limit=.
func (h *PanditHandlers) ListServices(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupVerified(w, r)
	if !ok {
		return
	}
	listServices(w, r, h.services, p.ID)
}
