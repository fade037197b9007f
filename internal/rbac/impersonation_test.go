package rbac

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditdesk/auditdesk/internal/shared"
)

func newTestSession(t *testing.T, userID, role string) *shared.Session {
	t.Helper()
	manager := shared.NewSessionManager(nil, "test_session", "secret", time.Hour, false)
	sess, err := manager.Load(context.Background(), httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	if userID != "" {
		sess.SetIdentity(userID, role)
	}
	return sess
}

type failingStore struct {
	MemoryStore
	err error
}

func (s *failingStore) Save(ctx context.Context, role string) error {
	return s.err
}

func TestImpersonationStateMachine(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	imp, err := NewImpersonation(ctx, store)
	require.NoError(t, err)

	_, active := imp.Active()
	require.False(t, active)

	require.NoError(t, imp.Impersonate(ctx, RoleStaff))
	role, active := imp.Active()
	require.True(t, active)
	assert.Equal(t, RoleStaff, role)
	stored, _ := store.Load(ctx)
	assert.Equal(t, "Staff", stored)

	require.NoError(t, imp.Impersonate(ctx, "client"))
	role, _ = imp.Active()
	assert.Equal(t, RoleClient, role)

	require.NoError(t, imp.Revert(ctx))
	_, active = imp.Active()
	assert.False(t, active)
	stored, _ = store.Load(ctx)
	assert.Empty(t, stored)
}

func TestImpersonationRejectsDeveloperAndUnknown(t *testing.T) {
	ctx := context.Background()
	imp, err := NewImpersonation(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, imp.Impersonate(ctx, RoleAuditor))

	for _, role := range []Role{RoleDeveloper, "developer", "Intern", ""} {
		err := imp.Impersonate(ctx, role)
		require.ErrorIs(t, err, ErrInvalidImpersonation, string(role))
	}
	current, active := imp.Active()
	assert.True(t, active)
	assert.Equal(t, RoleAuditor, current, "failed transitions keep the previous state")
}

func TestImpersonationRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	require.NoError(t, store.Save(ctx, "manager"))

	imp, err := NewImpersonation(ctx, store)
	require.NoError(t, err)
	role, active := imp.Active()
	require.True(t, active)
	assert.Equal(t, RoleManager, role)
}

func TestImpersonationClearsInvalidStoredValue(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{"Developer", "Intern"} {
		store := &MemoryStore{}
		require.NoError(t, store.Save(ctx, raw))

		imp, err := NewImpersonation(ctx, store)
		require.NoError(t, err)
		_, active := imp.Active()
		assert.False(t, active, raw)
		stored, _ := store.Load(ctx)
		assert.Empty(t, stored, raw)
	}
}

func TestImpersonationStoreFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("storage unavailable")
	imp, err := NewImpersonation(ctx, &failingStore{err: boom})
	require.NoError(t, err)

	require.ErrorIs(t, imp.Impersonate(ctx, RoleStaff), boom)
	_, active := imp.Active()
	assert.False(t, active)
}

func TestEffectiveRoleOnlyForDeveloper(t *testing.T) {
	ctx := context.Background()
	imp, err := NewImpersonation(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, imp.Impersonate(ctx, RoleClient))

	assert.Equal(t, "Client", EffectiveRole("Developer", imp))
	assert.Equal(t, "Client", EffectiveRole("developer", imp))
	assert.Equal(t, "Admin", EffectiveRole("Admin", imp))
	assert.Equal(t, "Staff", EffectiveRole("Staff", imp))
	assert.Equal(t, "Developer", EffectiveRole("Developer", nil))

	require.NoError(t, imp.Revert(ctx))
	assert.Equal(t, "Developer", EffectiveRole("Developer", imp))
}

func TestImpersonatedAbilityUsesTargetPolicy(t *testing.T) {
	ctx := context.Background()
	imp, err := NewImpersonation(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, imp.Impersonate(ctx, RoleClient))

	ability := NewAbility(nil)
	ability.SetRoles(EffectiveRole("Developer", imp))
	assert.True(t, ability.Can(PermDocumentUpload))
	assert.False(t, ability.Can(PermAuditGetAll))
	assert.False(t, ability.Can(PermNavDevImpersonation))
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t, "1", "Developer")
	store := SessionStore{Session: sess}

	imp, err := NewImpersonation(ctx, store)
	require.NoError(t, err)
	require.NoError(t, imp.Impersonate(ctx, RoleStaff))
	assert.Equal(t, "Staff", sess.Get(ImpersonationSessionKey))

	restored, err := NewImpersonation(ctx, SessionStore{Session: sess})
	require.NoError(t, err)
	role, active := restored.Active()
	require.True(t, active)
	assert.Equal(t, RoleStaff, role)

	require.NoError(t, restored.Revert(ctx))
	assert.Empty(t, sess.Get(ImpersonationSessionKey))
}

func TestSessionStoreWithoutSession(t *testing.T) {
	ctx := context.Background()
	store := SessionStore{}
	raw, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw)
	require.ErrorIs(t, store.Save(ctx, "Staff"), shared.ErrSessionMissing)
	require.NoError(t, store.Clear(ctx))
}

func TestSignOutDropsImpersonation(t *testing.T) {
	ctx := context.Background()
	manager := shared.NewSessionManager(nil, "test_session", "secret", time.Hour, false)
	sess, err := manager.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	sess.SetIdentity("1", "Developer")

	imp, err := NewImpersonation(ctx, SessionStore{Session: sess})
	require.NoError(t, err)
	require.NoError(t, imp.Impersonate(ctx, RoleClient))

	manager.Destroy(sess)
	restored, err := NewImpersonation(ctx, SessionStore{Session: sess})
	require.NoError(t, err)
	_, active := restored.Active()
	assert.False(t, active)
}
