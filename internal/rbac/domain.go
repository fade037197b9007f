package rbac

import (
	"strconv"
	"strings"
	"time"

	"github.com/auditdesk/auditdesk/internal/shared"
)

// Assignment ties a permission to a role in role_permissions.
type Assignment struct {
	Role       string
	Permission Permission
	CreatedAt  time.Time
}

// Principal describes the authenticated actor. Role is the real session
// role, never an impersonated one.
type Principal struct {
	UserID int64
	Role   string
}

// Authenticated reports whether the principal carries a user and a role.
func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID > 0 && strings.TrimSpace(p.Role) != ""
}

// PrincipalFromSession derives the principal from the server-side session.
// Request headers are never consulted.
func PrincipalFromSession(sess *shared.Session) *Principal {
	if sess == nil {
		return nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &Principal{UserID: id, Role: sess.Role()}
}
