package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
	"github.com/auditdesk/auditdesk/internal/shared"
)

// Middleware wires RBAC enforcement into HTTP route groups.
type Middleware struct {
	Enforcer *Enforcer
	Logger   *slog.Logger
}

// Require gates the wrapped handler on req.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromSession(shared.SessionFromContext(r.Context()))
			if err := m.Enforcer.Authorize(r.Context(), principal, req); err != nil {
				m.fail(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates on a single persisted permission.
func (m Middleware) RequirePermission(p Permission) func(http.Handler) http.Handler {
	return m.Require(RequirePermission(p))
}

// RequireRoles gates on a role allow-list.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return m.Require(RequireRoles(roles...))
}

// RequireAny ensures the current user holds at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromSession(shared.SessionFromContext(r.Context()))
			if len(normalized) == 0 {
				if err := m.Enforcer.Authorize(r.Context(), principal, Requirement{}); err != nil {
					m.fail(w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			var lastErr error
			for _, p := range normalized {
				err := m.Enforcer.Authorize(r.Context(), principal, RequirePermission(p))
				if err == nil {
					next.ServeHTTP(w, r)
					return
				}
				if kind, ok := KindOf(err); !ok || kind == KindUnauthenticated {
					m.fail(w, err)
					return
				}
				lastErr = err
			}
			m.fail(w, lastErr)
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, err error) {
	if _, ok := KindOf(err); !ok && m.Logger != nil {
		m.Logger.Error("rbac enforce", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func normalizePermissions(perms []Permission) []Permission {
	unique := make(map[Permission]struct{}, len(perms))
	normalized := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p = Permission(strings.TrimSpace(string(p)))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
