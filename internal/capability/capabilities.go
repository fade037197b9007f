// Package capability distributes the evaluated permission set to the
// server-rendered UI and API clients. Its guards decide what to render only;
// procedures are still enforced by rbac.Enforcer.
package capability

import (
	"context"
	"errors"
	"html/template"

	"github.com/auditdesk/auditdesk/internal/rbac"
)

// ErrNotDeveloper is returned when a non-Developer tries to impersonate.
var ErrNotDeveloper = errors.New("capability: impersonation requires the Developer role")

// ErrImpersonationUnavailable is returned when no impersonation store backs
// the request, so a switch could not outlive it.
var ErrImpersonationUnavailable = errors.New("capability: impersonation store unavailable")

// Capabilities is the per-request view of what the actor may see.
type Capabilities struct {
	realRole      string
	hint          string
	impersonation *rbac.Impersonation
	ability       *rbac.Ability
}

// New builds Capabilities for a real session role. hint is the untrusted
// impersonation header; it only counts for Developers.
func New(realRole string, imp *rbac.Impersonation, hint string, source rbac.PolicySource, opts ...rbac.AbilityOption) *Capabilities {
	c := &Capabilities{
		realRole:      realRole,
		impersonation: imp,
		ability:       rbac.NewAbility(source, opts...),
	}
	if role, ok := rbac.ParseImpersonableRole(hint); ok {
		c.hint = string(role)
	}
	c.refresh()
	return c
}

// Anonymous returns capabilities that deny everything.
func Anonymous() *Capabilities {
	return New("", nil, "", rbac.StaticPolicy{})
}

func (c *Capabilities) refresh() {
	if role := c.EffectiveRole(); role != "" {
		c.ability.SetRoles(role)
		return
	}
	c.ability.SetRoles()
}

// RealRole is the authenticated session role.
func (c *Capabilities) RealRole() string {
	return c.realRole
}

// EffectiveRole is the role evaluation uses after impersonation.
func (c *Capabilities) EffectiveRole() string {
	if c.hint != "" && rbac.IsDeveloper(c.realRole) {
		return c.hint
	}
	return rbac.EffectiveRole(c.realRole, c.impersonation)
}

// Impersonating reports whether a Developer is viewing as another role.
func (c *Capabilities) Impersonating() bool {
	return rbac.IsDeveloper(c.realRole) && !rbac.IsDeveloper(c.EffectiveRole())
}

// Can reports whether the effective role holds p.
func (c *Capabilities) Can(p rbac.Permission) bool {
	return c.ability.Can(p)
}

// Cannot is the negation of Can.
func (c *Capabilities) Cannot(p rbac.Permission) bool {
	return c.ability.Cannot(p)
}

// HasRole reports whether the effective role is one of roles.
func (c *Capabilities) HasRole(roles ...string) bool {
	effective, ok := rbac.ParseRole(c.EffectiveRole())
	if !ok {
		return false
	}
	for _, raw := range roles {
		if r, ok := rbac.ParseRole(raw); ok && r == effective {
			return true
		}
	}
	return false
}

// Permissions lists the effective permission set.
func (c *Capabilities) Permissions() []rbac.Permission {
	return c.ability.Permissions()
}

// Version changes whenever the effective identity changes.
func (c *Capabilities) Version() uint64 {
	return c.ability.Version()
}

// Impersonate switches a Developer's view to role.
func (c *Capabilities) Impersonate(ctx context.Context, role rbac.Role) error {
	if !rbac.IsDeveloper(c.realRole) {
		return ErrNotDeveloper
	}
	if c.impersonation == nil {
		return ErrImpersonationUnavailable
	}
	if err := c.impersonation.Impersonate(ctx, role); err != nil {
		return err
	}
	c.hint = ""
	c.refresh()
	return nil
}

// Revert ends impersonation.
func (c *Capabilities) Revert(ctx context.Context) error {
	if c.impersonation != nil {
		if err := c.impersonation.Revert(ctx); err != nil {
			return err
		}
	}
	c.hint = ""
	c.refresh()
	return nil
}

// Guard renders content when the effective role holds p, fallback otherwise.
func (c *Capabilities) Guard(p rbac.Permission, content, fallback template.HTML) template.HTML {
	if c.Can(p) {
		return content
	}
	return fallback
}

// Snapshot is the JSON shape served to API clients.
type Snapshot struct {
	RealRole          string            `json:"realRole"`
	EffectiveRole     string            `json:"effectiveRole"`
	Impersonating     bool              `json:"impersonating"`
	ImpersonableRoles []rbac.Role       `json:"impersonableRoles,omitempty"`
	Permissions       []rbac.Permission `json:"permissions"`
}

// Snapshot captures the current state.
func (c *Capabilities) Snapshot() Snapshot {
	s := Snapshot{
		RealRole:      c.realRole,
		EffectiveRole: c.EffectiveRole(),
		Impersonating: c.Impersonating(),
		Permissions:   c.Permissions(),
	}
	if rbac.IsDeveloper(c.realRole) {
		s.ImpersonableRoles = rbac.ImpersonableRoles()
	}
	return s
}
