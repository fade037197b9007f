package rbac

import (
	"context"
	"log/slog"
	"strings"
)

// AbilityOption customises an Ability.
type AbilityOption func(*Ability)

// WithTrace logs every evaluation at debug level. Install it only outside
// production.
func WithTrace(logger *slog.Logger) AbilityOption {
	return func(a *Ability) {
		a.trace = logger
	}
}

// Ability answers can/cannot for one actor. It belongs to a single request
// or capability context and is not safe for concurrent use.
//
// Results are memoised per permission for the current identity version;
// SetRoles and SetPermissions bump the version so nothing cached for a
// previous identity is ever served.
type Ability struct {
	source PolicySource
	trace  *slog.Logger

	roles    []string
	explicit PermissionSet

	version       uint64
	cachedVersion uint64
	resolved      PermissionSet
	memo          map[Permission]bool
}

// NewAbility constructs an Ability with no roles.
func NewAbility(source PolicySource, opts ...AbilityOption) *Ability {
	if source == nil {
		source = StaticPolicy{}
	}
	a := &Ability{source: source, version: 1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetRoles replaces the actor's roles and invalidates cached answers.
func (a *Ability) SetRoles(roles ...string) {
	a.roles = append([]string(nil), roles...)
	a.explicit = nil
	a.version++
}

// SetPermissions switches to an explicit permission list, bypassing the
// policy source. Roles are kept for the Developer check.
func (a *Ability) SetPermissions(perms ...Permission) {
	a.explicit = NewPermissionSet(perms...)
	a.version++
}

// Version returns the identity version the memo is keyed by.
func (a *Ability) Version() uint64 {
	return a.version
}

// Roles returns the roles currently evaluated.
func (a *Ability) Roles() []string {
	return append([]string(nil), a.roles...)
}

// Can reports whether the actor holds p. Developer always can.
func (a *Ability) Can(p Permission) bool {
	a.sync()
	if result, ok := a.memo[p]; ok {
		return result
	}
	result := HasDeveloper(a.roles) || a.permissionSet().Has(p)
	a.memo[p] = result
	if a.trace != nil {
		a.trace.LogAttrs(context.Background(), slog.LevelDebug, "rbac evaluate",
			slog.String("role", strings.Join(a.roles, ",")),
			slog.String("permission", string(p)),
			slog.Bool("result", result),
		)
	}
	return result
}

// Cannot is the exact negation of Can.
func (a *Ability) Cannot(p Permission) bool {
	return !a.Can(p)
}

// Permissions returns the resolved permission set, sorted. Developer gets
// the full catalog.
func (a *Ability) Permissions() []Permission {
	a.sync()
	if HasDeveloper(a.roles) {
		return AllPermissions()
	}
	return a.permissionSet().Sorted()
}

func (a *Ability) sync() {
	if a.memo != nil && a.cachedVersion == a.version {
		return
	}
	a.memo = make(map[Permission]bool)
	a.resolved = nil
	a.cachedVersion = a.version
}

func (a *Ability) permissionSet() PermissionSet {
	if a.resolved != nil {
		return a.resolved
	}
	if a.explicit != nil {
		a.resolved = a.explicit
		return a.resolved
	}
	set := PermissionSet{}
	for _, role := range a.roles {
		set = set.Union(a.source.PermissionsFor(role))
	}
	a.resolved = set
	return a.resolved
}
