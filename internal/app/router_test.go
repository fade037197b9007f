package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditdesk/auditdesk/internal/auth"
	"github.com/auditdesk/auditdesk/internal/capability"
	"github.com/auditdesk/auditdesk/internal/observability"
	"github.com/auditdesk/auditdesk/internal/rbac"
	"github.com/auditdesk/auditdesk/internal/rpc"
	"github.com/auditdesk/auditdesk/internal/shared"
	"github.com/auditdesk/auditdesk/internal/view"
)

type noUsers struct{}

func (noUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return nil, shared.ErrNotFound
}

func (noUsers) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (noUsers) DeleteSession(ctx context.Context, id string) error { return nil }

type grants map[string][]rbac.Permission

func (g grants) RoleHasPermission(ctx context.Context, role string, perm rbac.Permission) (bool, error) {
	for _, p := range g[role] {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

type routerFixture struct {
	handler  http.Handler
	metrics  *observability.Metrics
	sessions *shared.SessionManager
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "development", AppRequestTimeout: 5 * time.Second}
	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	metrics := observability.NewMetrics()

	enforcer := rbac.NewEnforcer(grants{"Admin": {rbac.PermAuditCreate}}, rbac.MultiRecorder{rbac.LogRecorder{Logger: logger}, metrics}, logger)
	mw := rbac.Middleware{Enforcer: enforcer, Logger: logger}

	procedures := rpc.NewRouter(enforcer, logger)
	procedures.Register(rpc.Procedure{
		Name:        "audit.create",
		Requirement: rbac.RequirePermission(rbac.PermAuditCreate),
		Handler: func(ctx context.Context, call rpc.Call) (any, error) {
			return "created", nil
		},
	})

	handler := NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		Templates:         templates,
		SessionManager:    sessions,
		CSRFManager:       csrf,
		Capabilities:      &capability.Provider{Logger: logger},
		AuthHandler:       auth.NewHandler(logger, auth.NewService(noUsers{}), templates, sessions, csrf),
		CapabilityHandler: capability.NewHandler(logger, mw),
		Procedures:        procedures,
		Metrics:           metrics,
	})
	return &routerFixture{handler: handler, metrics: metrics, sessions: sessions}
}

// signIn persists an authenticated session and returns its cookie and CSRF token.
func (f *routerFixture) signIn(t *testing.T, userID, role string) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetIdentity(userID, role)
	sess.Set(shared.CSRFSessionKey, "csrf-token")
	require.NoError(t, f.sessions.Commit(context.Background(), httptest.NewRecorder(), req, sess))
	return &http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID}, "csrf-token"
}

func (f *routerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthz(t *testing.T) {
	f := newTestRouter(t)
	rec := f.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterHomeSetsSecurityHeaders(t *testing.T) {
	f := newTestRouter(t)
	rec := f.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Result().Cookies())
	assert.NotContains(t, rec.Body.String(), `href="/role-permissions"`)
}

func TestRouterAnonymousCapabilitiesDenied(t *testing.T) {
	f := newTestRouter(t)
	rec := f.serve(httptest.NewRequest(http.MethodGet, "/me/capabilities", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"unauthenticated"`)

	rec = f.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auditdesk_authz_decisions_total{mode="authenticated",outcome="deny",role="anonymous"} 1`)
}

func TestRouterAnonymousProcedureIsUnauthenticated(t *testing.T) {
	f := newTestRouter(t)
	rec := f.serve(httptest.NewRequest(http.MethodPost, "/rpc/audit.create", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"unauthenticated"`)

	rec = f.serve(httptest.NewRequest(http.MethodPost, "/me/impersonation", strings.NewReader(`{"role":"Client"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAuthenticatedPostNeedsCSRF(t *testing.T) {
	f := newTestRouter(t)
	cookie, token := f.signIn(t, "1", "Admin")

	req := httptest.NewRequest(http.MethodPost, "/rpc/audit.create", strings.NewReader(`{}`))
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusForbidden, f.serve(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/rpc/audit.create", strings.NewReader(`{}`))
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", token)
	rec := f.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"result":"created"}`, rec.Body.String())
}

func TestRouterLoginFormStillNeedsCSRF(t *testing.T) {
	f := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=a%40b.c&password=whatever1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusForbidden, f.serve(req).Code)
}

func TestMiddlewareStackRecoversCapabilityPanic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := &capability.Provider{Options: []rbac.AbilityOption{func(*rbac.Ability) { panic("ability option") }}}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &Config{AppEnv: "development"},
		SessionManager: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf"),
		Capabilities:   provider,
	}) {
		r.Use(mw)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
