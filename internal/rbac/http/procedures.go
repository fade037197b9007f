package rbachttp

import (
	"context"
	"errors"
	"fmt"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
	"github.com/auditdesk/auditdesk/internal/rbac"
	"github.com/auditdesk/auditdesk/internal/rpc"
)

// DriftEnqueuer schedules an asynchronous drift check.
type DriftEnqueuer interface {
	EnqueueDriftCheck(ctx context.Context, requestedBy int64) (string, error)
}

// Procedures returns the mapping-management procedures. enqueuer may be nil.
func Procedures(service *rbac.Service, enforcer *rbac.Enforcer, enqueuer DriftEnqueuer) []rpc.Procedure {
	p := procedures{service: service, enforcer: enforcer, enqueuer: enqueuer}
	procs := []rpc.Procedure{
		{Name: "rolePermission.list", Requirement: rbac.RequirePermission(rbac.PermRolePermissionGetAll), Handler: p.list},
		{Name: "rolePermission.byRole", Requirement: rbac.RequirePermission(rbac.PermRolePermissionGetAll), Handler: p.byRole},
		{Name: "rolePermission.assign", Requirement: rbac.RequirePermission(rbac.PermRolePermissionAssign), Handler: p.assign},
		{Name: "rolePermission.revoke", Requirement: rbac.RequirePermission(rbac.PermRolePermissionDelete), Handler: p.revoke},
		{Name: "rolePermission.drift", Requirement: rbac.RequireRoles(rbac.RoleDeveloper, rbac.RoleAdmin), Handler: p.drift},
		{Name: "permission.check", Handler: p.check},
	}
	if enqueuer != nil {
		procs = append(procs, rpc.Procedure{
			Name:        "rolePermission.scheduleDriftCheck",
			Requirement: rbac.RequireRoles(rbac.RoleDeveloper, rbac.RoleAdmin),
			Handler:     p.scheduleDrift,
		})
	}
	return procs
}

type procedures struct {
	service  *rbac.Service
	enforcer *rbac.Enforcer
	enqueuer DriftEnqueuer
}

type assignmentView struct {
	Role       string          `json:"role"`
	Permission rbac.Permission `json:"permission"`
	Known      bool            `json:"known"`
}

func (p procedures) list(ctx context.Context, call rpc.Call) (any, error) {
	rows, err := p.service.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]assignmentView, 0, len(rows))
	for _, row := range rows {
		out = append(out, assignmentView{Role: row.Role, Permission: row.Permission, Known: rbac.IsKnownPermission(row.Permission)})
	}
	return out, nil
}

type byRoleInput struct {
	Role string `json:"role"`
}

func (p procedures) byRole(ctx context.Context, call rpc.Call) (any, error) {
	var in byRoleInput
	if err := call.Decode(&in); err != nil {
		return nil, err
	}
	perms, err := p.service.ListByRole(ctx, in.Role)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return perms, nil
}

func (p procedures) assign(ctx context.Context, call rpc.Call) (any, error) {
	var in rbac.MappingInput
	if err := call.Decode(&in); err != nil {
		return nil, err
	}
	a, err := p.service.Assign(ctx, call.Principal, in)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return assignmentView{Role: a.Role, Permission: a.Permission, Known: rbac.IsKnownPermission(a.Permission)}, nil
}

func (p procedures) revoke(ctx context.Context, call rpc.Call) (any, error) {
	var in rbac.MappingInput
	if err := call.Decode(&in); err != nil {
		return nil, err
	}
	if err := p.service.Revoke(ctx, call.Principal, in); err != nil {
		return nil, mapServiceError(err)
	}
	return map[string]bool{"revoked": true}, nil
}

func (p procedures) drift(ctx context.Context, call rpc.Call) (any, error) {
	return p.service.Drift(ctx)
}

type checkInput struct {
	Permission string `json:"permission"`
}

// check answers from the persisted mapping and the real session role, so a
// client can confirm what the server will enforce.
func (p procedures) check(ctx context.Context, call rpc.Call) (any, error) {
	var in checkInput
	if err := call.Decode(&in); err != nil {
		return nil, err
	}
	if !rbac.ValidPermissionName(in.Permission) {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, rbac.ErrInvalidPermission)
	}
	err := p.enforcer.Authorize(ctx, call.Principal, rbac.RequirePermission(rbac.Permission(in.Permission)))
	if errors.Is(err, rbac.ErrForbidden) {
		return map[string]bool{"allowed": false}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]bool{"allowed": true}, nil
}

func (p procedures) scheduleDrift(ctx context.Context, call rpc.Call) (any, error) {
	id, err := p.enqueuer.EnqueueDriftCheck(ctx, call.Principal.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"taskId": id}, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, rbac.ErrUnknownRole), errors.Is(err, rbac.ErrInvalidPermission):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, rbac.ErrLockout):
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, rbac.ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	default:
		return err
	}
}
