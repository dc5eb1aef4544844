package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/ranking"
	"github.com/onnwee/panditseva/internal/user"
)

// PanditMatch is a search result: the public profile plus its ranking.
type PanditMatch struct {
	PublicPandit
	DistanceKm float64 `json:"distance_km"`
	MatchScore float64 `json:"match_score"`
}

// SearchHandlers serves pandit search for clients.
type SearchHandlers struct {
	users   user.Repository
	pandits pandit.Repository
	ranker  *ranking.Ranker
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(users user.Repository, pandits pandit.Repository, ranker *ranking.Ranker) *SearchHandlers {
	return &SearchHandlers{users: users, pandits: pandits, ranker: ranker}
}

// parseSearchQuery reads max_distance_km, min_rating, max_price and sort_by.
// It returns the error code to report alongside any error.
func parseSearchQuery(r *http.Request) (ranking.Query, string, error) {
	q := ranking.Query{MaxDistanceKm: ranking.DefaultMaxDistanceKm}
	params := r.URL.Query()

	if s := params.Get("max_distance_km"); s != "" {
		v, err := parseFloat(s, "max_distance_km")
		if err != nil {
			return q, ErrCodeValidation, err
		}
		if v <= 0 {
			return q, ErrCodeValidation, errors.New("max_distance_km must be greater than 0")
		}
		q.MaxDistanceKm = v
	}

	if s := params.Get("min_rating"); s != "" {
		v, err := parseFloatInRange(s, "min_rating", 0, 5)
		if err != nil {
			return q, ErrCodeValidation, err
		}
		q.MinRating = v
	}

	if s := params.Get("max_price"); s != "" {
		v, err := parseFloat(s, "max_price")
		if err != nil {
			return q, ErrCodeValidation, err
		}
		if v < 0 {
			return q, ErrCodeValidation, errors.New("max_price must not be negative")
		}
		q.MaxPrice = &v
	}

	sortBy, err := ranking.ParseSortKey(params.Get("sort_by"))
	if err != nil {
		return q, ErrCodeInvalidSortKey, errors.New("sort_by must be one of distance, price, rating, match_score")
	}
	q.SortBy = sortBy

	return q, "", nil
}

// Search handles GET /user/pandits/search.
//
// Candidates are every verified pandit; the ranker applies the radius, rating
// and price filters and orders the result by sort_by (match_score by default).
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, code, err := parseSearchQuery(r)
	if err != nil {
		writeCodedError(w, r, code, err.Error())
		return
	}

	userID := middleware.GetUserID(ctx)
	client, err := h.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load user", "error", err, "user_id", userID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load user")
		return
	}
	if client.Location == nil {
		writeCodedError(w, r, ErrCodeIncompleteLocation, "Please set your location before searching")
		return
	}

	pool, err := h.pandits.ListVerified(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list pandits", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to search pandits")
		return
	}

	byID := make(map[string]*pandit.Pandit, len(pool))
	candidates := make([]ranking.Candidate, 0, len(pool))
	for _, p := range pool {
		byID[p.ID] = p
		candidates = append(candidates, p.Candidate())
	}

	ranked, err := h.ranker.Rank(client.Location, candidates, q)
	if err != nil {
		if errors.Is(err, ranking.ErrIncompleteLocation) {
			writeCodedError(w, r, ErrCodeIncompleteLocation, "Please set your location before searching")
			return
		}
		slog.ErrorContext(ctx, "failed to rank pandits", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to search pandits")
		return
	}

	results := make([]PanditMatch, 0, len(ranked))
	for _, sc := range ranked {
		p, ok := byID[sc.ID]
		if !ok {
			continue
		}
		results = append(results, PanditMatch{
			PublicPandit: toPublicPandit(p),
			DistanceKm:   sc.DistanceKm,
			MatchScore:   sc.MatchScore,
		})
	}

	slog.DebugContext(ctx, "pandit search",
		"user_id", userID,
		"sort_by", string(q.SortBy),
		"candidates", len(candidates),
		"results", len(results))

	writeJSON(w, r, http.StatusOK, results)
}
