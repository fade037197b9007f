package rbac

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
)

// mappingStub answers from a static role -> permissions table and counts lookups.
type mappingStub struct {
	mu      sync.Mutex
	grants  map[string]PermissionSet
	err     error
	lookups int
}

func newMappingStub(grants map[string][]Permission) *mappingStub {
	m := &mappingStub{grants: make(map[string]PermissionSet)}
	for role, perms := range grants {
		m.grants[role] = NewPermissionSet(perms...)
	}
	return m
}

func (m *mappingStub) RoleHasPermission(ctx context.Context, role string, perm Permission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return false, m.err
	}
	return m.grants[role].Has(perm), nil
}

type decisionLog struct {
	mu        sync.Mutex
	decisions []Decision
}

func (l *decisionLog) RecordDecision(ctx context.Context, d Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
}

func (l *decisionLog) last(t *testing.T) Decision {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.decisions)
	return l.decisions[len(l.decisions)-1]
}

func TestAuthorizeUnauthenticatedFirst(t *testing.T) {
	mappings := newMappingStub(nil)
	log := &decisionLog{}
	enforcer := NewEnforcer(mappings, log, nil)

	for _, principal := range []*Principal{nil, {}, {UserID: 3}, {Role: "Admin"}} {
		err := enforcer.Authorize(context.Background(), principal, RequirePermission(PermAuditCreate))
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, httpx.ErrUnauthorized)
		assert.False(t, errors.Is(err, ErrForbidden))
	}
	assert.Zero(t, mappings.lookups, "anonymous callers never reach the mapping")
	d := log.last(t)
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Equal(t, ModeAuthenticated, d.Mode)
	assert.Equal(t, KindUnauthenticated, d.Kind)
}

func TestAuthorizeAuthenticatedOnly(t *testing.T) {
	enforcer := NewEnforcer(newMappingStub(nil), nil, nil)
	require.NoError(t, enforcer.Authorize(context.Background(), &Principal{UserID: 1, Role: "Client"}, Requirement{}))
}

func TestAuthorizeRoleSet(t *testing.T) {
	ctx := context.Background()
	enforcer := NewEnforcer(newMappingStub(nil), nil, nil)
	req := RequireRoles(RoleAdmin, RoleManager)

	require.NoError(t, enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "Admin"}, req))
	require.NoError(t, enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "manager"}, req))

	err := enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "Staff"}, req)
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	require.ErrorIs(t, enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "Intern"}, req), ErrForbidden)
}

func TestAuthorizePermissionMode(t *testing.T) {
	ctx := context.Background()
	mappings := newMappingStub(map[string][]Permission{
		"Admin": {PermAuditCreate, PermRolePermissionAssign},
		"Staff": {PermAuditGetAll},
	})
	log := &decisionLog{}
	enforcer := NewEnforcer(mappings, log, nil)

	require.NoError(t, enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "Admin"}, RequirePermission(PermAuditCreate)))
	d := log.last(t)
	assert.Equal(t, OutcomeAllow, d.Outcome)
	assert.Equal(t, ModePermission, d.Mode)
	assert.Equal(t, "audit:create", d.Action)
	assert.Equal(t, int64(1), d.UserID)

	err := enforcer.Authorize(ctx, &Principal{UserID: 2, Role: "Staff"}, RequirePermission(PermAuditCreate))
	require.ErrorIs(t, err, ErrForbidden)
	d = log.last(t)
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Equal(t, "Staff", d.Role)
}

func TestAuthorizeUnknownRoleSkipsLookup(t *testing.T) {
	mappings := newMappingStub(map[string][]Permission{"Intern": {PermAuditCreate}})
	enforcer := NewEnforcer(mappings, nil, nil)

	err := enforcer.Authorize(context.Background(), &Principal{UserID: 1, Role: "Intern"}, RequirePermission(PermAuditCreate))
	require.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, mappings.lookups)
}

func TestAuthorizeNoServerSideDeveloperBypass(t *testing.T) {
	ctx := context.Background()
	mappings := newMappingStub(map[string][]Permission{"Developer": {PermAuditGetAll}})
	enforcer := NewEnforcer(mappings, nil, nil)
	dev := &Principal{UserID: 9, Role: "Developer"}

	require.NoError(t, enforcer.Authorize(ctx, dev, RequirePermission(PermAuditGetAll)))
	require.ErrorIs(t, enforcer.Authorize(ctx, dev, RequirePermission(PermAuditDelete)), ErrForbidden)

	ability := NewAbility(nil)
	ability.SetRoles(dev.Role)
	assert.True(t, ability.Can(PermAuditDelete), "the client-side ability still bypasses")
}

func TestAuthorizeCombinedRequirement(t *testing.T) {
	ctx := context.Background()
	mappings := newMappingStub(map[string][]Permission{
		"Admin": {PermRolePermissionAssign},
		"Staff": {PermRolePermissionAssign},
	})
	enforcer := NewEnforcer(mappings, nil, nil)
	req := Requirement{Roles: []Role{RoleAdmin}, Permission: PermRolePermissionAssign}

	require.NoError(t, enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "Admin"}, req))
	require.ErrorIs(t, enforcer.Authorize(ctx, &Principal{UserID: 1, Role: "Staff"}, req), ErrForbidden)
	assert.Equal(t, 1, mappings.lookups, "role-set failure short-circuits the lookup")
}

func TestAuthorizeLookupErrorIsNotAnAuthzError(t *testing.T) {
	boom := errors.New("connection refused")
	mappings := newMappingStub(nil)
	mappings.err = boom
	log := &decisionLog{}
	enforcer := NewEnforcer(mappings, log, nil)

	err := enforcer.Authorize(context.Background(), &Principal{UserID: 1, Role: "Admin"}, RequirePermission(PermAuditCreate))
	require.ErrorIs(t, err, boom)
	_, isAuthz := KindOf(err)
	assert.False(t, isAuthz)
	assert.Equal(t, OutcomeError, log.last(t).Outcome)
}

func TestAuthorizeWithoutMappingsFails(t *testing.T) {
	enforcer := NewEnforcer(nil, nil, nil)
	err := enforcer.Authorize(context.Background(), &Principal{UserID: 1, Role: "Admin"}, RequirePermission(PermAuditCreate))
	require.Error(t, err)
	_, isAuthz := KindOf(err)
	assert.False(t, isAuthz)
}

func TestAuthorizeRecorderPanicIsIsolated(t *testing.T) {
	recorder := DecisionRecorderFunc(func(ctx context.Context, d Decision) {
		panic("recorder exploded")
	})
	enforcer := NewEnforcer(newMappingStub(map[string][]Permission{"Admin": {PermAuditCreate}}), recorder, nil)

	require.NotPanics(t, func() {
		require.NoError(t, enforcer.Authorize(context.Background(), &Principal{UserID: 1, Role: "Admin"}, RequirePermission(PermAuditCreate)))
	})
}

func TestLogRecorderFormat(t *testing.T) {
	var buf bytes.Buffer
	recorder := LogRecorder{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	enforcer := NewEnforcer(newMappingStub(nil), MultiRecorder{recorder, nil}, nil)

	_ = enforcer.Authorize(context.Background(), &Principal{UserID: 4, Role: "Staff"}, RequirePermission(PermAuditCreate))
	_ = enforcer.Authorize(context.Background(), nil, RequireRoles(RoleAdmin))

	out := buf.String()
	assert.Contains(t, out, `msg="deny Staff -> audit:create"`)
	assert.Contains(t, out, `msg="deny anonymous -> role:Admin"`)
	assert.Contains(t, out, "level=WARN")
}

func TestRequirementAction(t *testing.T) {
	assert.Equal(t, "session", Requirement{}.Action())
	assert.Equal(t, "audit:create", RequirePermission(PermAuditCreate).Action())
	assert.Equal(t, "role:Admin|Manager", RequireRoles(RoleAdmin, RoleManager).Action())
	assert.Equal(t, "audit:create role:Admin", Requirement{Roles: []Role{RoleAdmin}, Permission: PermAuditCreate}.Action())
}

func TestErrorDoesNotLeakAction(t *testing.T) {
	err := &Error{Kind: KindForbidden, Action: "rolePermission:assign"}
	assert.Equal(t, "rbac: forbidden", err.Error())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, kind)
}
