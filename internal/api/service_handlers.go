package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/onnwee/panditseva/internal/catalog"
	"github.com/onnwee/panditseva/internal/pandit"
)

// UpsertServiceRequest is the body of POST /pandit/services.
type UpsertServiceRequest struct {
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	BasePrice       *float64 `json:"base_price"`
	DurationMinutes int      `json:"duration_minutes"`
}

// UpsertServiceResponse is returned after a service is listed or updated.
type UpsertServiceResponse struct {
	Msg     string           `json:"msg"`
	Service *catalog.Service `json:"service"`
}

// ServiceHandlers lets a pandit manage the services they offer and lets
// clients browse the whole catalog.
type ServiceHandlers struct {
	services catalog.Repository
	pandits  pandit.Repository
}

// NewServiceHandlers creates a new ServiceHandlers instance.
func NewServiceHandlers(services catalog.Repository, pandits pandit.Repository) *ServiceHandlers {
	return &ServiceHandlers{services: services, pandits: pandits}
}

// UpsertService handles POST /pandit/services. Posting a name the pandit
// already lists updates that service and answers 200 instead of 201.
func (h *ServiceHandlers) UpsertService(w http.ResponseWriter, r *http.Request) {
	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}

	var req UpsertServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCodedError(w, r, ErrCodeBadRequest, err.Error())
		return
	}
	if req.BasePrice == nil {
		writeCodedError(w, r, ErrCodeValidation, "base_price is required")
		return
	}

	s := &catalog.Service{
		PanditID:        p.ID,
		Name:            req.Name,
		Category:        req.Category,
		BasePrice:       *req.BasePrice,
		DurationMinutes: req.DurationMinutes,
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}

	res, err := h.services.Upsert(r.Context(), s)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to upsert service", "error", err, "pandit_id", p.ID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to save service")
		return
	}

	slog.InfoContext(r.Context(), "service saved",
		"service_id", res.ID,
		"pandit_id", p.ID,
		"inserted", res.Inserted)
	if res.Inserted {
		writeJSON(w, r, http.StatusCreated, UpsertServiceResponse{Msg: "Service created", Service: s})
		return
	}
	writeJSON(w, r, http.StatusOK, UpsertServiceResponse{Msg: "Service updated", Service: s})
}

// ListOwnServices handles GET /pandit/services.
func (h *ServiceHandlers) ListOwnServices(w http.ResponseWriter, r *http.Request) {
	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}
	listServices(w, r, h.services, p.ID)
}

// DeleteService handles DELETE /pandit/services/{id}. Another pandit's
// service is reported as not found.
func (h *ServiceHandlers) DeleteService(w http.ResponseWriter, r *http.Request) {
	p, ok := currentPandit(w, r, h.pandits)
	if !ok {
		return
	}
	ctx := r.Context()
	id := r.PathValue("id")

	s, err := h.services.Get(ctx, id)
	if err == nil && s.PanditID != p.ID {
		err = catalog.ErrNotFound
	}
	if err == nil {
		err = h.services.Delete(ctx, id)
	}
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "Service not found")
			return
		}
		slog.ErrorContext(ctx, "failed to delete service", "error", err, "service_id", id)
		writeCodedError(w, r, ErrCodeInternal, "Failed to delete service")
		return
	}

	slog.InfoContext(ctx, "service deleted", "service_id", id, "pandit_id", p.ID)
	writeJSON(w, r, http.StatusOK, map[string]string{"msg": "Service deleted"})
}

// BrowseServices handles GET /user/services?category=&skip=&limit=, listing
// every pandit's services by name.
func (h *ServiceHandlers) BrowseServices(w http.ResponseWriter, r *http.Request) {
	listServices(w, r, h.services, "")
}

// SearchServices handles GET /user/services/search with the keyword,
// category, min_price, max_price, sort_by, skip and limit query parameters.
func (h *ServiceHandlers) SearchServices(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	opts := catalog.SearchOptions{
		Keyword:  strings.TrimSpace(params.Get("keyword")),
		Category: strings.TrimSpace(params.Get("category")),
	}

	var err error
	if opts.SortBy, err = catalog.ParseSortOrder(params.Get("sort_by")); err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}
	for _, bound := range []struct {
		name string
		dst  **float64
	}{{"min_price", &opts.MinPrice}, {"max_price", &opts.MaxPrice}} {
		s := params.Get(bound.name)
		if s == "" {
			continue
		}
		v, err := parseFloatInRange(s, bound.name, 0, math.MaxFloat64)
		if err != nil {
			writeCodedError(w, r, ErrCodeValidation, err.Error())
			return
		}
		*bound.dst = &v
	}
	if opts.MinPrice != nil && opts.MaxPrice != nil && *opts.MinPrice > *opts.MaxPrice {
		writeCodedError(w, r, ErrCodeValidation, "min_price must not exceed max_price")
		return
	}
	if opts.Offset, opts.Limit, err = parsePage(params.Get("skip"), params.Get("limit")); err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}

	res, err := h.services.Search(r.Context(), opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to search services", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to search services")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// parsePage parses the optional skip and limit query values of a catalog
// listing. Zero values mean the defaults.
func parsePage(skip, limit string) (offset, n int, err error) {
	if skip != "" {
		if offset, err = parseIntInRange(skip, "skip", 0, 1<<31-1); err != nil {
			return 0, 0, err
		}
	}
	if limit != "" {
		if n, err = parseIntInRange(limit, "limit", 1, catalog.MaxListLimit); err != nil {
			return 0, 0, err
		}
	}
	return offset, n, nil
}

// listServices writes the pandit's services, or every service when
// panditID is empty, filtered by the optional category, skip and limit
// query parameters.
func listServices(w http.ResponseWriter, r *http.Request, services catalog.Repository, panditID string) {
	params := r.URL.Query()
	opts := catalog.ListOptions{PanditID: panditID, Category: strings.ToLower(strings.TrimSpace(params.Get("category")))}

	var err error
	if opts.Offset, opts.Limit, err = parsePage(params.Get("skip"), params.Get("limit")); err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}

	list, err := services.List(r.Context(), opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list services", "error", err, "pandit_id", panditID)
		writeCodedError(w, r, ErrCodeInternal, "Failed to list services")
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}
