// Package rpc serves named remote procedures over HTTP. Every procedure
// declares an rbac.Requirement that is enforced before its body runs.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
	"github.com/auditdesk/auditdesk/internal/rbac"
	"github.com/auditdesk/auditdesk/internal/shared"
)

const maxInputBytes = 1 << 20

// ErrProcedureNotFound is returned for unregistered procedure names.
var ErrProcedureNotFound = fmt.Errorf("rpc: procedure %w", httpx.ErrNotFound)

// Call carries one invocation into a procedure body.
type Call struct {
	Principal *rbac.Principal
	Input     json.RawMessage
	Request   *http.Request
}

// Decode unmarshals the input into v. Bad input is a validation failure.
func (c Call) Decode(v any) error {
	if len(c.Input) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Input, v); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

// HandlerFunc is a procedure body.
type HandlerFunc func(ctx context.Context, call Call) (any, error)

// Procedure is a named, guarded handler. Public procedures skip enforcement.
type Procedure struct {
	Name        string
	Requirement rbac.Requirement
	Public      bool
	Handler     HandlerFunc
}

// Router holds the procedure registry.
type Router struct {
	procedures map[string]Procedure
	enforcer   *rbac.Enforcer
	logger     *slog.Logger
}

// NewRouter constructs a Router.
func NewRouter(enforcer *rbac.Enforcer, logger *slog.Logger) *Router {
	return &Router{procedures: make(map[string]Procedure), enforcer: enforcer, logger: logger}
}

// Register adds procedures. It panics on an empty or duplicate name, as
// registration happens once at start-up.
func (r *Router) Register(procs ...Procedure) {
	for _, p := range procs {
		if p.Name == "" || p.Handler == nil {
			panic("rpc: procedure requires a name and a handler")
		}
		if _, dup := r.procedures[p.Name]; dup {
			panic("rpc: duplicate procedure " + p.Name)
		}
		r.procedures[p.Name] = p
	}
}

// Names lists registered procedures, sorted.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call authorizes principal for the named procedure and runs it.
func (r *Router) Call(ctx context.Context, name string, call Call) (any, error) {
	proc, err := r.authorize(ctx, name, call.Principal)
	if err != nil {
		return nil, err
	}
	return proc.Handler(ctx, call)
}

// authorize resolves name and enforces its requirement. Unknown names are
// only reported to authenticated callers.
func (r *Router) authorize(ctx context.Context, name string, principal *rbac.Principal) (Procedure, error) {
	proc, ok := r.procedures[name]
	if !ok {
		if err := r.enforcer.Authorize(ctx, principal, rbac.Requirement{}); err != nil {
			return Procedure{}, err
		}
		return Procedure{}, ErrProcedureNotFound
	}
	if !proc.Public {
		if err := r.enforcer.Authorize(ctx, principal, proc.Requirement); err != nil {
			return Procedure{}, err
		}
	}
	return proc, nil
}

// MountRoutes registers POST /{procedure}.
func (r *Router) MountRoutes(cr chi.Router) {
	cr.Post("/{procedure}", r.serve)
}

type envelope struct {
	Result any `json:"result"`
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "procedure")
	ctx := req.Context()
	principal := rbac.PrincipalFromSession(shared.SessionFromContext(ctx))

	proc, err := r.authorize(ctx, name, principal)
	if err != nil {
		r.fail(w, name, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxInputBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			r.fail(w, name, fmt.Errorf("%w: input exceeds %d bytes", httpx.ErrValidation, tooLarge.Limit))
			return
		}
		r.fail(w, name, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		r.fail(w, name, fmt.Errorf("%w: malformed json", httpx.ErrValidation))
		return
	}

	result, err := proc.Handler(ctx, Call{Principal: principal, Input: body, Request: req})
	if err != nil {
		r.fail(w, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, envelope{Result: result})
}

func (r *Router) fail(w http.ResponseWriter, name string, err error) {
	if _, isAuthz := rbac.KindOf(err); !isAuthz && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) && r.logger != nil {
		r.logger.Error("rpc call", slog.String("procedure", name), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
