package rbac

import (
	"regexp"
	"sort"
	"strings"
)

// Permission identifies an atomic capability, namespaced as resource:action.
// Values are persisted in role_permissions; renaming one is a data migration.
type Permission string

// String implements fmt.Stringer.
func (p Permission) String() string {
	return string(p)
}

// Resource returns the namespace segment of the permission.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

var permissionNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*(:[a-zA-Z0-9_-]+)+$`)

// ValidPermissionName reports whether raw has the resource:action[:sub] shape.
// It does not require the permission to exist in the catalog.
func ValidPermissionName(raw string) bool {
	return permissionNamePattern.MatchString(raw)
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return len(s)
}

// Union returns a new set holding the permissions of s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the members ordered by name.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var catalog = NewPermissionSet(concatScopes(
	AuditScopes(),
	TaskScopes(),
	DocumentScopes(),
	PhoneScopes(),
	ClientScopes(),
	RolePermissionScopes(),
	NavScopes(),
)...)

// AllPermissions lists every permission in the catalog, sorted.
func AllPermissions() []Permission {
	return catalog.Sorted()
}

// IsKnownPermission reports whether p has a compile-time constant.
func IsKnownPermission(p Permission) bool {
	return catalog.Has(p)
}

func concatScopes(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
