// Package rbachttp exposes role-permission management over HTTP.
package rbachttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auditdesk/auditdesk/internal/capability"
	"github.com/auditdesk/auditdesk/internal/rbac"
	"github.com/auditdesk/auditdesk/internal/shared"
	"github.com/auditdesk/auditdesk/internal/view"
)

// Handler renders the role-permission matrix and the impersonation picker.
type Handler struct {
	logger    *slog.Logger
	service   *rbac.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers page routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermRolePermissionGetAll))
		r.Use(capability.RequireCapability(rbac.PermNavAdminRolePermissions, http.HandlerFunc(h.notAuthorized)))
		r.Get("/role-permissions", h.listMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(rbac.RoleDeveloper))
		r.Get("/dev/impersonation", h.showImpersonation)
	})
}

type formErrors map[string]string

type matrixCell struct {
	Granted bool
	Drift   bool
}

type matrixRow struct {
	Permission rbac.Permission
	Known      bool
	Cells      []matrixCell
}

func (h *Handler) listMatrix(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list role permissions", slog.Any("error", err))
		h.render(w, r, "pages/role_permissions.html", map[string]any{"Errors": formErrors{"general": "Unable to load role permissions"}}, http.StatusInternalServerError)
		return
	}
	roles := rbac.Roles()
	granted := make(map[rbac.Permission]map[string]bool)
	for _, row := range rows {
		if granted[row.Permission] == nil {
			granted[row.Permission] = make(map[string]bool)
		}
		granted[row.Permission][row.Role] = true
	}
	perms := rbac.NewPermissionSet(rbac.AllPermissions()...)
	for p := range granted {
		perms[p] = struct{}{}
	}
	matrix := make([]matrixRow, 0, perms.Len())
	for _, p := range perms.Sorted() {
		row := matrixRow{Permission: p, Known: rbac.IsKnownPermission(p)}
		for _, role := range roles {
			has := granted[p][string(role)]
			static := rbac.PermissionsFor(string(role)).Has(p)
			row.Cells = append(row.Cells, matrixCell{Granted: has, Drift: has != static})
		}
		matrix = append(matrix, row)
	}
	h.render(w, r, "pages/role_permissions.html", map[string]any{"Roles": roles, "Rows": matrix}, http.StatusOK)
}

func (h *Handler) showImpersonation(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/impersonation.html", map[string]any{"Roles": rbac.ImpersonableRoles()}, http.StatusOK)
}

func (h *Handler) notAuthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/not_authorized.html", nil, http.StatusForbidden)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Role permissions",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Caps:        capability.FromContext(r.Context()),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
