package capability

import (
	"html/template"
	"net/http"

	"github.com/auditdesk/auditdesk/internal/rbac"
)

// NotAuthorizedMessage is the generic text shown by guards.
const NotAuthorizedMessage = "You are not authorized to view this page."

// NotAuthorized renders the generic message with status 403.
var NotAuthorized http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	http.Error(w, NotAuthorizedMessage, http.StatusForbidden)
})

// RequireCapability is a route guard for pages. It hides pages the
// effective role cannot see, including while a Developer impersonates.
// A nil fallback renders NotAuthorized.
func RequireCapability(p rbac.Permission, fallback http.Handler) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = NotAuthorized
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()).Can(p) {
				next.ServeHTTP(w, r)
				return
			}
			fallback.ServeHTTP(w, r)
		})
	}
}

// FuncMap exposes guard helpers to templates that receive *Capabilities
// as their first argument.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"can": func(c *Capabilities, p string) bool {
			if c == nil {
				return false
			}
			return c.Can(rbac.Permission(p))
		},
		"cannot": func(c *Capabilities, p string) bool {
			if c == nil {
				return true
			}
			return c.Cannot(rbac.Permission(p))
		},
		"hasRole": func(c *Capabilities, roles ...string) bool {
			if c == nil {
				return false
			}
			return c.HasRole(roles...)
		},
		"notAuthorized": func() string {
			return NotAuthorizedMessage
		},
	}
}
