package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/auditdesk/auditdesk/internal/shared"
)

var (
	// ErrUnknownRole rejects mapping edits for roles outside the closed set.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrInvalidPermission rejects malformed permission identifiers.
	ErrInvalidPermission = errors.New("rbac: invalid permission identifier")
	// ErrLockout rejects revoking the last holder of the mapping-management permission.
	ErrLockout = errors.New("rbac: revoke would leave no role able to manage role permissions")
	// ErrNotFound indicates that the requested assignment does not exist.
	ErrNotFound = errors.New("rbac: not found")
)

// AuditRecorder persists durable audit records for mapping edits.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached mapping reads after an edit.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// MappingInput is the payload of assign and revoke.
type MappingInput struct {
	Role       string `json:"role" validate:"required,max=64"`
	Permission string `json:"permission" validate:"required,max=128,permission"`
}

// DriftReport lists differences between the static policy and role_permissions.
type DriftReport struct {
	Missing map[string][]Permission `json:"missing"`
	Extra   map[string][]Permission `json:"extra"`
}

// Empty reports whether both sources agree.
func (d DriftReport) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0
}

// Service orchestrates management of the persisted role-permission mapping.
type Service struct {
	store     Store
	cache     Invalidator
	audit     AuditRecorder
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService constructs a Service. cache and audit may be nil.
func NewService(store Store, cache Invalidator, audit AuditRecorder, logger *slog.Logger) *Service {
	v := validator.New()
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return ValidPermissionName(fl.Field().String())
	})
	return &Service{store: store, cache: cache, audit: audit, logger: logger, validator: v}
}

// List returns every persisted assignment.
func (s *Service) List(ctx context.Context) ([]Assignment, error) {
	return s.store.ListAll(ctx)
}

// ListByRole returns the persisted permissions of role.
func (s *Service) ListByRole(ctx context.Context, role string) ([]Permission, error) {
	parsed, ok := ParseRole(role)
	if !ok {
		return nil, ErrUnknownRole
	}
	return s.store.ListByRole(ctx, string(parsed))
}

// Assign grants a permission to a role. Assigning an existing pair is a no-op.
func (s *Service) Assign(ctx context.Context, actor *Principal, in MappingInput) (Assignment, error) {
	role, perm, err := s.validate(in)
	if err != nil {
		return Assignment{}, err
	}
	created, err := s.store.Assign(ctx, string(role), perm)
	if err != nil {
		return Assignment{}, err
	}
	if created {
		s.afterEdit(ctx, actor, "role_permission.assign", role, perm)
	}
	return Assignment{Role: string(role), Permission: perm}, nil
}

// Revoke removes a permission from a role. Removing the last holder of
// rolePermission:assign is refused.
func (s *Service) Revoke(ctx context.Context, actor *Principal, in MappingInput) error {
	role, perm, err := s.validate(in)
	if err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if perm == PermRolePermissionAssign {
			if err := tx.LockMappings(ctx); err != nil {
				return err
			}
			holders, err := tx.CountRolesWith(ctx, perm)
			if err != nil {
				return err
			}
			has, err := tx.RoleHasPermission(ctx, string(role), perm)
			if err != nil {
				return err
			}
			if has && holders <= 1 {
				return ErrLockout
			}
		}
		deleted, err := tx.Revoke(ctx, string(role), perm)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.afterEdit(ctx, actor, "role_permission.revoke", role, perm)
	return nil
}

// BootstrapPermissions are seeded onto Admin so the management surface can
// never be locked out on a fresh database.
func BootstrapPermissions() []Permission {
	return RolePermissionScopes()
}

// Bootstrap idempotently grants Admin the mapping-management permissions.
func (s *Service) Bootstrap(ctx context.Context) error {
	granted := 0
	for _, p := range BootstrapPermissions() {
		created, err := s.store.Assign(ctx, string(RoleAdmin), p)
		if err != nil {
			return err
		}
		if created {
			granted++
		}
	}
	if granted > 0 {
		s.invalidate(ctx)
		if s.logger != nil {
			s.logger.Info("rbac bootstrap", slog.String("role", string(RoleAdmin)), slog.Int("granted", granted))
		}
	}
	return nil
}

// SeedFromPolicy writes the static policy table into role_permissions.
// Existing rows are kept; it returns the number of rows created.
func (s *Service) SeedFromPolicy(ctx context.Context) (int, error) {
	created := 0
	for _, role := range Roles() {
		for _, p := range PermissionsFor(string(role)).Sorted() {
			ok, err := s.store.Assign(ctx, string(role), p)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	if created > 0 {
		s.invalidate(ctx)
	}
	return created, nil
}

// Drift compares the static policy with role_permissions.
func (s *Service) Drift(ctx context.Context) (DriftReport, error) {
	rows, err := s.store.ListAll(ctx)
	if err != nil {
		return DriftReport{}, err
	}
	persisted := make(map[string]PermissionSet)
	for _, row := range rows {
		if persisted[row.Role] == nil {
			persisted[row.Role] = PermissionSet{}
		}
		persisted[row.Role][row.Permission] = struct{}{}
	}
	report := DriftReport{Missing: map[string][]Permission{}, Extra: map[string][]Permission{}}
	for _, role := range Roles() {
		static := PermissionsFor(string(role))
		stored := persisted[string(role)]
		var missing, extra []Permission
		for _, p := range static.Sorted() {
			if !stored.Has(p) {
				missing = append(missing, p)
			}
		}
		for _, p := range stored.Sorted() {
			if !static.Has(p) {
				extra = append(extra, p)
			}
		}
		if len(missing) > 0 {
			report.Missing[string(role)] = missing
		}
		if len(extra) > 0 {
			report.Extra[string(role)] = extra
		}
		delete(persisted, string(role))
	}
	unknown := make([]string, 0, len(persisted))
	for role := range persisted {
		unknown = append(unknown, role)
	}
	sort.Strings(unknown)
	for _, role := range unknown {
		report.Extra[role] = persisted[role].Sorted()
	}
	if report.Empty() {
		return DriftReport{}, nil
	}
	return report, nil
}

func (s *Service) validate(in MappingInput) (Role, Permission, error) {
	if err := s.validator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Permission" {
					return "", "", ErrInvalidPermission
				}
			}
			return "", "", ErrUnknownRole
		}
		return "", "", err
	}
	role, ok := ParseRole(in.Role)
	if !ok {
		return "", "", ErrUnknownRole
	}
	return role, Permission(in.Permission), nil
}

func (s *Service) afterEdit(ctx context.Context, actor *Principal, action string, role Role, perm Permission) {
	s.invalidate(ctx)
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor != nil {
		actorID = actor.UserID
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role_permission",
		EntityID: string(role) + ":" + string(perm),
		Meta: map[string]any{
			"role":       string(role),
			"permission": string(perm),
			"actor_role": actorRole(actor),
			"known":      strconv.FormatBool(IsKnownPermission(perm)),
		},
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("rbac audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache invalidate", slog.Any("error", err))
	}
}

func actorRole(actor *Principal) string {
	if actor == nil {
		return ""
	}
	return actor.Role
}
