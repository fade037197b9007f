package capability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/auditdesk/auditdesk/internal/rbac"
	"github.com/auditdesk/auditdesk/internal/shared"
)

// DefaultHeader carries the impersonated role on API calls.
const DefaultHeader = "X-Impersonate-Role"

type capabilitiesContextKey struct{}

// WithCapabilities stores caps in ctx.
func WithCapabilities(ctx context.Context, caps *Capabilities) context.Context {
	return context.WithValue(ctx, capabilitiesContextKey{}, caps)
}

// FromContext returns the request's capabilities, or deny-all ones.
func FromContext(ctx context.Context) *Capabilities {
	if caps, ok := ctx.Value(capabilitiesContextKey{}).(*Capabilities); ok && caps != nil {
		return caps
	}
	return Anonymous()
}

// Provider computes Capabilities once per request from the session and the
// impersonation state.
type Provider struct {
	Source  rbac.PolicySource
	Header  string
	Logger  *slog.Logger
	Options []rbac.AbilityOption
}

// Middleware installs Capabilities into the request context.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caps := p.Build(r)
		next.ServeHTTP(w, r.WithContext(WithCapabilities(r.Context(), caps)))
	})
}

// Build resolves Capabilities for r.
func (p *Provider) Build(r *http.Request) *Capabilities {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	principal := rbac.PrincipalFromSession(sess)
	if principal == nil {
		return New("", nil, "", p.source(), p.Options...)
	}
	var imp *rbac.Impersonation
	var hint string
	if rbac.IsDeveloper(principal.Role) {
		restored, err := rbac.NewImpersonation(ctx, rbac.SessionStore{Session: sess})
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("restore impersonation", slog.Any("error", err))
			}
		} else {
			imp = restored
		}
		hint = r.Header.Get(p.header())
	}
	return New(principal.Role, imp, hint, p.source(), p.Options...)
}

func (p *Provider) source() rbac.PolicySource {
	if p.Source == nil {
		return rbac.StaticPolicy{}
	}
	return p.Source
}

func (p *Provider) header() string {
	if p.Header == "" {
		return DefaultHeader
	}
	return p.Header
}
