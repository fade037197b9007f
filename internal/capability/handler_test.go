package capability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditdesk/auditdesk/internal/rbac"
	"github.com/auditdesk/auditdesk/internal/shared"
)

func newMeRouter() chi.Router {
	mw := rbac.Middleware{Enforcer: rbac.NewEnforcer(nil, nil, nil)}
	provider := &Provider{}
	r := chi.NewRouter()
	r.Use(provider.Middleware)
	r.Route("/me", NewHandler(nil, mw).MountRoutes)
	return r
}

func serveMe(t *testing.T, sess *shared.Session, method, path, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	newMeRouter().ServeHTTP(rec, req)
	return rec
}

func TestCapabilitiesEndpoint(t *testing.T) {
	rec := serveMe(t, newSession(t, "4", "Staff"), http.MethodGet, "/me/capabilities", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Staff", snap.EffectiveRole)
	assert.Equal(t, rbac.PermissionsFor("Staff").Sorted(), snap.Permissions)

	rec = serveMe(t, nil, http.MethodGet, "/me/capabilities", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImpersonationEndpoints(t *testing.T) {
	sess := newSession(t, "1", "Developer")

	rec := serveMe(t, sess, http.MethodPost, "/me/impersonation", `{"role":"Client"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Client", snap.EffectiveRole)
	assert.True(t, snap.Impersonating)
	assert.Equal(t, "Client", sess.Get(rbac.ImpersonationSessionKey))

	rec = serveMe(t, sess, http.MethodGet, "/me/capabilities", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Client", snap.EffectiveRole)

	rec = serveMe(t, sess, http.MethodDelete, "/me/impersonation", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Developer", snap.EffectiveRole)
	assert.Empty(t, sess.Get(rbac.ImpersonationSessionKey))
}

func TestImpersonationRejectsDeveloperTarget(t *testing.T) {
	sess := newSession(t, "1", "Developer")
	rec := serveMe(t, sess, http.MethodPost, "/me/impersonation", `{"role":"Developer"}`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serveMe(t, sess, http.MethodPost, "/me/impersonation", `{"role":`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImpersonationForbiddenForOthers(t *testing.T) {
	rec := serveMe(t, newSession(t, "2", "Admin"), http.MethodPost, "/me/impersonation", `{"role":"Client"}`, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"forbidden"`)
}

func TestImpersonationForms(t *testing.T) {
	sess := newSession(t, "1", "Developer")
	form := url.Values{"role": {"Auditor"}}.Encode()
	rec := serveMe(t, sess, http.MethodPost, "/me/impersonation/form", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Auditor", sess.Get(rbac.ImpersonationSessionKey))

	rec = serveMe(t, sess, http.MethodPost, "/me/impersonation/revert", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, sess.Get(rbac.ImpersonationSessionKey))
}
