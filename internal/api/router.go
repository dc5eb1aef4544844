package api

import (
	"net/http"

	"github.com/onnwee/panditseva/internal/audit"
	"github.com/onnwee/panditseva/internal/auth"
	"github.com/onnwee/panditseva/internal/booking"
	"github.com/onnwee/panditseva/internal/catalog"
	"github.com/onnwee/panditseva/internal/idempotency"
	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/ranking"
	"github.com/onnwee/panditseva/internal/rating"
	"github.com/onnwee/panditseva/internal/user"
)

// ServiceName and Version are reported by the root endpoint.
const (
	ServiceName = "panditseva-api"
	Version     = "0.1.0"
)

// RateLimit pairs a store with the limit applied to one group of routes.
// A nil Store disables the limit.
type RateLimit struct {
	Store  middleware.RateLimitStore
	Config middleware.RateLimitConfig
}

// RouterConfig holds the dependencies of every route.
type RouterConfig struct {
	Tokens   middleware.TokenValidator
	Users    user.Repository
	Pandits  pandit.Repository
	Bookings booking.Repository
	Services catalog.Repository // defaults to an empty in-memory catalog
	Ranker   *ranking.Ranker
	Reviews  *rating.Service
	Audit    audit.Repository // defaults to an in-memory log

	// Idempotency replays retried booking requests. Nil disables it.
	Idempotency idempotency.Store

	Health  *HealthHandlers
	Metrics http.Handler // nil leaves /metrics unmounted

	SearchLimit       RateLimit
	ReviewLimit       RateLimit
	MiddlewareMetrics *middleware.Metrics // rate limit and idempotency counters; may be nil
}

// NewRouter builds the route table. Role checks run after authentication
// and rate limits after both, so limits are keyed by user.
func NewRouter(config RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if config.Services == nil {
		config.Services = catalog.NewInMemoryRepository()
	}

	search := NewSearchHandlers(config.Users, config.Pandits, config.Ranker)
	location := NewLocationHandlers(config.Users, config.Pandits)
	bookings := NewBookingHandlers(config.Bookings, config.Pandits, config.Services)
	reviews := NewReviewHandlers(config.Bookings, config.Pandits, config.Reviews)
	pandits := NewPanditHandlers(config.Pandits, config.Reviews, config.Services)
	services := NewServiceHandlers(config.Services, config.Pandits)
	auditLog := config.Audit
	if auditLog == nil {
		auditLog = audit.NewInMemoryRepository()
	}
	admin := NewAdminHandlers(config.Users, config.Pandits, config.Bookings, auditLog)

	authn := middleware.RequireAuth(config.Tokens)
	as := func(role string, h http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
		var handler http.Handler = h
		for i := len(extra) - 1; i >= 0; i-- {
			handler = extra[i](handler)
		}
		return authn(middleware.RequireRole(role)(handler))
	}
	limit := func(l RateLimit) []func(http.Handler) http.Handler {
		if l.Store == nil {
			return nil
		}
		return []func(http.Handler) http.Handler{
			middleware.RateLimiter(l.Store, l.Config, middleware.UserKeyFunc(), config.MiddlewareMetrics),
		}
	}

	var idempotent []func(http.Handler) http.Handler
	if config.Idempotency != nil {
		idempotent = append(idempotent, middleware.Idempotency(config.Idempotency, nil, config.MiddlewareMetrics))
	}

	health := config.Health
	if health == nil {
		health = NewHealthHandlers(HealthHandlersConfig{MetricsEnabled: config.Metrics != nil})
	}
	mux.HandleFunc("/health", health.Health)
	mux.HandleFunc("/ready", health.Ready)
	if config.Metrics != nil {
		mux.Handle("GET /metrics", config.Metrics)
	}

	// Public directory.
	mux.HandleFunc("GET /pandits/{id}", pandits.GetPandit)
	mux.HandleFunc("GET /pandits/{id}/reviews", pandits.ListReviews)
	mux.HandleFunc("GET /pandits/{id}/services", pandits.ListServices)

	// Clients.
	client := string(auth.RoleUser)
	mux.Handle("GET /user/profile", as(client, location.UserProfile))
	mux.Handle("PUT /user/location", as(client, location.UpdateUserLocation))
	mux.Handle("GET /user/services", as(client, services.BrowseServices))
	mux.Handle("GET /user/services/search", as(client, services.SearchServices, limit(config.SearchLimit)...))
	mux.Handle("GET /user/pandits/search", as(client, search.Search, limit(config.SearchLimit)...))
	mux.Handle("POST /user/bookings", as(client, bookings.CreateBooking, idempotent...))
	mux.Handle("GET /user/bookings", as(client, bookings.ListUserBookings))
	mux.Handle("PUT /user/bookings/{id}/cancel", as(client, bookings.CancelBooking))
	mux.Handle("POST /user/bookings/{id}/review", as(client, reviews.UserReview, limit(config.ReviewLimit)...))

	// Pandits.
	pnd := string(auth.RolePandit)
	mux.Handle("PUT /pandit/location", as(pnd, location.UpdatePanditLocation))
	mux.Handle("GET /pandit/services", as(pnd, services.ListOwnServices))
	mux.Handle("POST /pandit/services", as(pnd, services.UpsertService))
	mux.Handle("DELETE /pandit/services/{id}", as(pnd, services.DeleteService))
	mux.Handle("GET /pandit/bookings", as(pnd, bookings.ListPanditBookings))
	mux.Handle("PUT /pandit/bookings/{id}/confirm", as(pnd, bookings.ConfirmBooking))
	mux.Handle("PUT /pandit/bookings/{id}/complete", as(pnd, bookings.CompleteBooking))
	mux.Handle("POST /pandit/bookings/{id}/review", as(pnd, reviews.PanditReview, limit(config.ReviewLimit)...))

	// Admins.
	adm := string(auth.RoleAdmin)
	mux.Handle("GET /admin/pandits", as(adm, admin.ListPandits))
	mux.Handle("GET /admin/pandits/pending", as(adm, admin.ListPending))
	mux.Handle("GET /admin/pandits/{id}", as(adm, admin.GetPandit))
	mux.Handle("PUT /admin/pandits/{id}/approve", as(adm, admin.Approve))
	mux.Handle("PUT /admin/pandits/{id}/reject", as(adm, admin.Reject))
	mux.Handle("DELETE /admin/pandits/{id}", as(adm, admin.DeletePandit))
	mux.Handle("GET /admin/stats", as(adm, admin.Stats))
	mux.Handle("GET /admin/audit", as(adm, admin.ListAudit))

	mux.HandleFunc("/", root)
	return mux
}

// root answers the bare root path and reports everything else unmatched as
// a JSON 404.
func root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeCodedError(w, r, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"service": ServiceName, "version": Version})
}
