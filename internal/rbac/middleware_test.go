package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
	"github.com/auditdesk/auditdesk/internal/shared"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, sess *shared.Session, header http.Header) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/rpc/audit.create", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func newTestMiddleware(grants map[string][]Permission) Middleware {
	return Middleware{Enforcer: NewEnforcer(newMappingStub(grants), nil, nil)}
}

func TestMiddlewareUnauthenticated(t *testing.T) {
	mw := newTestMiddleware(map[string][]Permission{"Admin": {PermAuditCreate}})

	rec, called := serve(t, mw.RequirePermission(PermAuditCreate), nil, nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "unauthenticated", problem.Type)
	assert.NotContains(t, rec.Body.String(), "audit:create")

	rec, called = serve(t, mw.RequirePermission(PermAuditCreate), newTestSession(t, "", ""), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareForbiddenDoesNotLeakRule(t *testing.T) {
	mw := newTestMiddleware(map[string][]Permission{"Admin": {PermAuditCreate}})

	rec, called := serve(t, mw.RequirePermission(PermAuditCreate), newTestSession(t, "5", "Staff"), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "forbidden", problem.Type)
	assert.Equal(t, "not authorized", problem.Detail)
	assert.NotContains(t, rec.Body.String(), "audit:create")
	assert.NotContains(t, rec.Body.String(), "Staff")
}

func TestMiddlewareAllows(t *testing.T) {
	mw := newTestMiddleware(map[string][]Permission{"Admin": {PermAuditCreate}})
	rec, called := serve(t, mw.RequirePermission(PermAuditCreate), newTestSession(t, "1", "Admin"), nil)
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareIgnoresImpersonationHeader(t *testing.T) {
	mw := newTestMiddleware(map[string][]Permission{"Admin": {PermAuditCreate}})
	header := http.Header{"X-Impersonate-Role": []string{"Admin"}}

	rec, called := serve(t, mw.RequirePermission(PermAuditCreate), newTestSession(t, "2", "Staff"), header)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sess := newTestSession(t, "9", "Developer")
	sess.Set(ImpersonationSessionKey, "Admin")
	rec, called = serve(t, mw.RequirePermission(PermAuditCreate), sess, header)
	assert.False(t, called, "enforcement uses the real role only")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareRequireRoles(t *testing.T) {
	mw := newTestMiddleware(nil)

	_, called := serve(t, mw.RequireRoles(RoleDeveloper), newTestSession(t, "1", "developer"), nil)
	assert.True(t, called)

	rec, called := serve(t, mw.RequireRoles(RoleDeveloper), newTestSession(t, "1", "Admin"), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareRequireAny(t *testing.T) {
	mw := newTestMiddleware(map[string][]Permission{"Staff": {PermTaskComplete}})

	_, called := serve(t, mw.RequireAny(PermAuditCreate, " task:complete ", PermAuditCreate), newTestSession(t, "1", "Staff"), nil)
	assert.True(t, called)

	rec, called := serve(t, mw.RequireAny(PermAuditCreate, PermAuditDelete), newTestSession(t, "1", "Staff"), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, called = serve(t, mw.RequireAny(), newTestSession(t, "1", "Client"), nil)
	assert.True(t, called, "an empty list only requires a session")

	rec, called = serve(t, mw.RequireAny(), nil, nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareLookupFailureIs500(t *testing.T) {
	mappings := newMappingStub(nil)
	mappings.err = assert.AnError
	mw := Middleware{Enforcer: NewEnforcer(mappings, nil, nil)}

	rec, called := serve(t, mw.RequirePermission(PermAuditCreate), newTestSession(t, "1", "Admin"), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestNormalizePermissions(t *testing.T) {
	got := normalizePermissions([]Permission{" audit:create", "", "audit:create", "task:assign "})
	assert.Equal(t, []Permission{PermAuditCreate, PermTaskAssign}, got)
}
