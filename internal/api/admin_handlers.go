package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/panditseva/internal/audit"
	"github.com/onnwee/panditseva/internal/booking"
	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/user"
	"github.com/onnwee/panditseva/internal/validate"
)

// maxRejectReasonLength caps the optional reason given when rejecting a pandit.
const maxRejectReasonLength = 500

// VerificationResponse is returned by approve and reject.
type VerificationResponse struct {
	Msg    string         `json:"msg"`
	Pandit *pandit.Pandit `json:"pandit"`
	Reason string         `json:"reason,omitempty"`
}

// UserStats counts accounts.
type UserStats struct {
	Total int `json:"total"`
}

// StatsResponse is the admin dashboard summary.
type StatsResponse struct {
	Users    UserStats     `json:"users"`
	Pandits  pandit.Stats  `json:"pandits"`
	Bookings booking.Stats `json:"bookings"`
}

// AdminHandlers serves pandit verification and platform statistics.
// Admins see full pandit records including exact coordinates; every such
// read and every verification decision is written to the audit log.
type AdminHandlers struct {
	users    user.Repository
	pandits  pandit.Repository
	bookings booking.Repository
	audit    audit.Repository
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(users user.Repository, pandits pandit.Repository, bookings booking.Repository, auditLog audit.Repository) *AdminHandlers {
	return &AdminHandlers{users: users, pandits: pandits, bookings: bookings, audit: auditLog}
}

// ListPandits handles GET /admin/pandits?is_verified=&skip=&limit=, newest first.
func (h *AdminHandlers) ListPandits(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	opts := pandit.ListOptions{Filter: pandit.FilterAll}

	verified, err := parseOptionalBool(params.Get("is_verified"), "is_verified")
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}
	if verified != nil {
		opts.Filter = pandit.FilterPending
		if *verified {
			opts.Filter = pandit.FilterVerified
		}
	}

	if s := params.Get("skip"); s != "" {
		if opts.Offset, err = parseIntInRange(s, "skip", 0, 1<<31-1); err != nil {
			writeCodedError(w, r, ErrCodeValidation, err.Error())
			return
		}
	}
	if s := params.Get("limit"); s != "" {
		if opts.Limit, err = parseIntInRange(s, "limit", 1, pandit.MaxListLimit); err != nil {
			writeCodedError(w, r, ErrCodeValidation, err.Error())
			return
		}
	}

	h.list(w, r, opts)
}

// ListPending handles GET /admin/pandits/pending.
func (h *AdminHandlers) ListPending(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, pandit.ListOptions{Filter: pandit.FilterPending, Limit: pandit.MaxListLimit})
}

// list answers with geohash views; the precise location is only served by
// GetPandit, which audits the read.
func (h *AdminHandlers) list(w http.ResponseWriter, r *http.Request, opts pandit.ListOptions) {
	list, err := h.pandits.List(r.Context(), opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list pandits", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to list pandits")
		return
	}
	views := make([]PublicPandit, 0, len(list))
	for _, p := range list {
		views = append(views, toPublicPandit(p))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// GetPandit handles GET /admin/pandits/{id}, verified or not. The record is
// withheld if the location access cannot be audited.
func (h *AdminHandlers) GetPandit(w http.ResponseWriter, r *http.Request) {
	p, err := h.pandits.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writePanditError(w, r, err, "Failed to load pandit")
		return
	}

	if p.Location != nil {
		if _, err := audit.RecordFromRequest(r, h.audit, audit.Entry{
			EntityType: audit.EntityPandit,
			EntityID:   p.ID,
			Action:     audit.ActionAccessPreciseLocation,
		}); err != nil {
			slog.ErrorContext(r.Context(), "failed to audit location access", "error", err, "pandit_id", p.ID)
			writeCodedError(w, r, ErrCodeInternal, "Failed to load pandit")
			return
		}
	}
	writeJSON(w, r, http.StatusOK, p)
}

// record writes a successful admin action to the audit log. The action has
// already happened, so a failure is logged rather than returned.
func (h *AdminHandlers) record(r *http.Request, action, panditID, detail string) {
	if _, err := audit.RecordFromRequest(r, h.audit, audit.Entry{
		EntityType: audit.EntityPandit,
		EntityID:   panditID,
		Action:     action,
		Detail:     detail,
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to write audit log", "error", err, "action", action, "pandit_id", panditID)
	}
}

// Approve handles PUT /admin/pandits/{id}/approve.
func (h *AdminHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := pandit.Approve(r.Context(), h.pandits, id)
	if err != nil {
		if errors.Is(err, pandit.ErrAlreadyVerified) {
			writeCodedError(w, r, ErrCodeAlreadyVerified, "Pandit is already verified")
			return
		}
		h.writePanditError(w, r, err, "Failed to approve pandit")
		return
	}

	h.record(r, audit.ActionApprovePandit, id, "")
	slog.InfoContext(r.Context(), "pandit approved",
		"pandit_id", id,
		"admin_id", middleware.GetUserID(r.Context()))
	writeJSON(w, r, http.StatusOK, VerificationResponse{Msg: "Pandit approved", Pandit: p})
}

// Reject handles PUT /admin/pandits/{id}/reject?reason=. The account is kept
// but hidden from search.
func (h *AdminHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reason, err := validate.SanitizeString(r.URL.Query().Get("reason"), validate.StringConstraints{
		MaxLength:  maxRejectReasonLength,
		AllowEmpty: true,
		TrimSpace:  true,
	})
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}

	p, err := pandit.Reject(r.Context(), h.pandits, id)
	if err != nil {
		h.writePanditError(w, r, err, "Failed to reject pandit")
		return
	}

	h.record(r, audit.ActionRejectPandit, id, reason)
	slog.InfoContext(r.Context(), "pandit rejected",
		"pandit_id", id,
		"admin_id", middleware.GetUserID(r.Context()),
		"reason", reason)
	writeJSON(w, r, http.StatusOK, VerificationResponse{Msg: "Pandit rejected", Pandit: p, Reason: reason})
}

// DeletePandit handles DELETE /admin/pandits/{id}. Pandits with pending or
// confirmed bookings cannot be deleted.
func (h *AdminHandlers) DeletePandit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := h.pandits.Get(ctx, id); err != nil {
		h.writePanditError(w, r, err, "Failed to delete pandit")
		return
	}

	active, err := h.bookings.HasActiveForPandit(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check active bookings", "error", err, "pandit_id", id)
		writeCodedError(w, r, ErrCodeInternal, "Failed to delete pandit")
		return
	}
	if active {
		writeCodedError(w, r, ErrCodeActiveBookings, "Pandit has pending or confirmed bookings")
		return
	}

	if err := h.pandits.Delete(ctx, id); err != nil {
		h.writePanditError(w, r, err, "Failed to delete pandit")
		return
	}

	h.record(r, audit.ActionDeletePandit, id, "")
	slog.InfoContext(ctx, "pandit deleted", "pandit_id", id, "admin_id", middleware.GetUserID(ctx))
	writeJSON(w, r, http.StatusOK, map[string]string{"msg": "Pandit deleted"})
}

// Stats handles GET /admin/stats.
func (h *AdminHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count users", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load stats")
		return
	}
	pandits, err := h.pandits.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count pandits", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load stats")
		return
	}
	bookings, err := h.bookings.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count bookings", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load stats")
		return
	}

	writeJSON(w, r, http.StatusOK, StatsResponse{
		Users:    UserStats{Total: users},
		Pandits:  pandits,
		Bookings: bookings,
	})
}

// ListAudit handles GET /admin/audit?actor_id=&entity_type=&entity_id=&limit=,
// newest first.
func (h *AdminHandlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := audit.Query{
		ActorID:    params.Get("actor_id"),
		EntityType: params.Get("entity_type"),
		EntityID:   params.Get("entity_id"),
	}
	if q.EntityType != "" && !audit.ValidEntityTypes[q.EntityType] {
		writeCodedError(w, r, ErrCodeValidation, "entity_type must be one of pandit, user, booking")
		return
	}
	if s := params.Get("limit"); s != "" {
		limit, err := parseIntInRange(s, "limit", 1, audit.MaxQueryLimit)
		if err != nil {
			writeCodedError(w, r, ErrCodeValidation, err.Error())
			return
		}
		q.Limit = limit
	}

	logs, err := h.audit.Query(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to query audit log", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load audit log")
		return
	}
	writeJSON(w, r, http.StatusOK, logs)
}

func (h *AdminHandlers) writePanditError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, pandit.ErrNotFound) {
		writeCodedError(w, r, ErrCodeNotFound, "Pandit not found")
		return
	}
	slog.ErrorContext(r.Context(), msg, "error", err, "pandit_id", r.PathValue("id"))
	writeCodedError(w, r, ErrCodeInternal, msg)
}
