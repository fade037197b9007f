package capability

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
	"github.com/auditdesk/auditdesk/internal/rbac"
)

// Handler exposes the actor's capabilities and the impersonation switch.
type Handler struct {
	logger *slog.Logger
	rbac   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, rbac: rbac}
}

// MountRoutes registers /me routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Requirement{}))
		r.Get("/capabilities", h.capabilities)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(rbac.RoleDeveloper))
		r.Post("/impersonation", h.impersonate)
		r.Delete("/impersonation", h.revert)
		r.Post("/impersonation/form", h.impersonateForm)
		r.Post("/impersonation/revert", h.revertForm)
	})
}

type impersonateRequest struct {
	Role string `json:"role"`
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, FromContext(r.Context()).Snapshot())
}

func (h *Handler) impersonate(w http.ResponseWriter, r *http.Request) {
	var req impersonateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	caps := FromContext(r.Context())
	if err := caps.Impersonate(r.Context(), rbac.Role(req.Role)); err != nil {
		h.respond(w, err)
		return
	}
	if h.logger != nil {
		h.logger.Info("impersonation started", slog.String("real_role", caps.RealRole()), slog.String("role", caps.EffectiveRole()))
	}
	httpx.JSON(w, http.StatusOK, caps.Snapshot())
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	caps := FromContext(r.Context())
	if err := caps.Revert(r.Context()); err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, caps.Snapshot())
}

func (h *Handler) impersonateForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := FromContext(r.Context()).Impersonate(r.Context(), rbac.Role(r.PostFormValue("role"))); err != nil {
		h.respond(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) revertForm(w http.ResponseWriter, r *http.Request) {
	if err := FromContext(r.Context()).Revert(r.Context()); err != nil {
		h.respond(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidImpersonation):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrNotDeveloper):
		httpx.RespondError(w, httpx.ErrForbidden)
	default:
		if h.logger != nil {
			h.logger.Error("impersonation", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
