package rbac

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role is a named bundle of permissions assigned to a session identity.
type Role string

// The closed set of roles. Adding one is a code change.
const (
	RoleDeveloper Role = "Developer"
	RoleAdmin     Role = "Admin"
	RoleManager   Role = "Manager"
	RoleAuditor   Role = "Auditor"
	RoleStaff     Role = "Staff"
	RoleClient    Role = "Client"
)

var allRoles = []Role{RoleDeveloper, RoleAdmin, RoleManager, RoleAuditor, RoleStaff, RoleClient}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// Roles returns every role, most privileged first.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ImpersonableRoles returns the roles a Developer may view the portal as.
func ImpersonableRoles() []Role {
	out := make([]Role, 0, len(allRoles)-1)
	for _, r := range allRoles {
		if r != RoleDeveloper {
			out = append(out, r)
		}
	}
	return out
}

// ParseRole maps raw session or database data onto a known role. Matching
// ignores surrounding whitespace and letter case.
func ParseRole(raw string) (Role, bool) {
	folded := foldRole(raw)
	if folded == "" {
		return "", false
	}
	for _, r := range allRoles {
		if foldRole(string(r)) == folded {
			return r, true
		}
	}
	return "", false
}

// IsDeveloper reports whether raw names the Developer role in any casing.
func IsDeveloper(raw string) bool {
	return foldRole(raw) == foldRole(string(RoleDeveloper))
}

// HasDeveloper reports whether any of roles is Developer.
func HasDeveloper(roles []string) bool {
	for _, r := range roles {
		if IsDeveloper(r) {
			return true
		}
	}
	return false
}

// cases.Caser keeps state, so each call gets its own.
func foldRole(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}
