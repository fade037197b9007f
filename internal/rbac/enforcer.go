package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// MappingReader answers membership queries against role_permissions.
type MappingReader interface {
	RoleHasPermission(ctx context.Context, role string, perm Permission) (bool, error)
}

// Requirement is what a procedure or route declares. Both fields may be set,
// in which case both must pass. The zero value only requires a session.
type Requirement struct {
	Roles      []Role
	Permission Permission
}

// RequireRoles builds a role allow-list requirement.
func RequireRoles(roles ...Role) Requirement {
	return Requirement{Roles: roles}
}

// RequirePermission builds a single-permission requirement.
func RequirePermission(p Permission) Requirement {
	return Requirement{Permission: p}
}

// Action returns the identifier logged for the requirement.
func (r Requirement) Action() string {
	switch {
	case r.Permission != "" && len(r.Roles) > 0:
		return string(r.Permission) + " " + rolesLabel(r.Roles)
	case r.Permission != "":
		return string(r.Permission)
	case len(r.Roles) > 0:
		return rolesLabel(r.Roles)
	default:
		return "session"
	}
}

func rolesLabel(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return "role:" + strings.Join(names, "|")
}

// Enforcer makes server-side authorization decisions from the session's real
// role and the persisted mapping. It never applies impersonation.
type Enforcer struct {
	mappings MappingReader
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewEnforcer constructs an Enforcer.
func NewEnforcer(mappings MappingReader, recorder DecisionRecorder, logger *slog.Logger) *Enforcer {
	return &Enforcer{mappings: mappings, recorder: recorder, logger: logger}
}

// Authorize returns nil when principal satisfies req. Authentication is
// checked first; an anonymous caller never reaches the permission lookup.
func (e *Enforcer) Authorize(ctx context.Context, principal *Principal, req Requirement) error {
	action := req.Action()
	if !principal.Authenticated() {
		e.record(ctx, Decision{Outcome: OutcomeDeny, Mode: ModeAuthenticated, Action: action, Kind: KindUnauthenticated})
		return &Error{Kind: KindUnauthenticated, Action: action}
	}
	decision := Decision{UserID: principal.UserID, Role: principal.Role, Action: action, Mode: ModeAuthenticated}
	role, known := ParseRole(principal.Role)

	if len(req.Roles) > 0 {
		decision.Mode = ModeRoles
		if !known || !containsRole(req.Roles, role) {
			return e.deny(ctx, decision)
		}
	}

	if req.Permission != "" {
		decision.Mode = ModePermission
		if !known {
			return e.deny(ctx, decision)
		}
		if e.mappings == nil {
			decision.Outcome = OutcomeError
			e.record(ctx, decision)
			return fmt.Errorf("rbac: mapping reader not configured")
		}
		ok, err := e.mappings.RoleHasPermission(ctx, string(role), req.Permission)
		if err != nil {
			decision.Outcome = OutcomeError
			e.record(ctx, decision)
			if e.logger != nil {
				e.logger.Error("rbac permission lookup", slog.String("action", action), slog.Any("error", err))
			}
			return fmt.Errorf("rbac: permission lookup: %w", err)
		}
		if !ok {
			return e.deny(ctx, decision)
		}
	}

	decision.Outcome = OutcomeAllow
	e.record(ctx, decision)
	return nil
}

func (e *Enforcer) deny(ctx context.Context, d Decision) error {
	d.Outcome = OutcomeDeny
	d.Kind = KindForbidden
	e.record(ctx, d)
	return &Error{Kind: KindForbidden, Action: d.Action}
}

func (e *Enforcer) record(ctx context.Context, d Decision) {
	safeRecord(ctx, e.recorder, d)
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if canonical, ok := ParseRole(string(r)); ok && canonical == role {
			return true
		}
	}
	return false
}
