package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/auditdesk/auditdesk/internal/shared"
)

// ImpersonationSessionKey is the session value holding the "view as" role.
const ImpersonationSessionKey = "impersonate_role"

// ErrInvalidImpersonation is returned when the requested role cannot be
// impersonated.
var ErrInvalidImpersonation = errors.New("rbac: invalid impersonation role")

// ImpersonationStore persists the override in ephemeral client storage.
type ImpersonationStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, role string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the override in memory.
type MemoryStore struct {
	mu   sync.Mutex
	role string
}

// Load implements ImpersonationStore.
func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, nil
}

// Save implements ImpersonationStore.
func (s *MemoryStore) Save(ctx context.Context, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
	return nil
}

// Clear implements ImpersonationStore.
func (s *MemoryStore) Clear(ctx context.Context) error {
	return s.Save(ctx, "")
}

// SessionStore keeps the override in the browser session. Destroying the
// session on sign-out drops it.
type SessionStore struct {
	Session *shared.Session
}

// Load implements ImpersonationStore.
func (s SessionStore) Load(ctx context.Context) (string, error) {
	if s.Session == nil {
		return "", nil
	}
	return s.Session.Get(ImpersonationSessionKey), nil
}

// Save implements ImpersonationStore.
func (s SessionStore) Save(ctx context.Context, role string) error {
	if s.Session == nil {
		return shared.ErrSessionMissing
	}
	s.Session.Set(ImpersonationSessionKey, role)
	return nil
}

// Clear implements ImpersonationStore.
func (s SessionStore) Clear(ctx context.Context) error {
	if s.Session == nil {
		return nil
	}
	if s.Session.Get(ImpersonationSessionKey) != "" {
		s.Session.Delete(ImpersonationSessionKey)
	}
	return nil
}

// Impersonation is the Inactive / Active(role) override state.
type Impersonation struct {
	store  ImpersonationStore
	role   Role
	active bool
}

// NewImpersonation restores the state from store. Stored values that are
// not impersonable come back Inactive and are cleared.
func NewImpersonation(ctx context.Context, store ImpersonationStore) (*Impersonation, error) {
	if store == nil {
		store = &MemoryStore{}
	}
	imp := &Impersonation{store: store}
	raw, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return imp, nil
	}
	role, ok := ParseImpersonableRole(raw)
	if !ok {
		if err := store.Clear(ctx); err != nil {
			return nil, err
		}
		return imp, nil
	}
	imp.role, imp.active = role, true
	return imp, nil
}

// ParseImpersonableRole parses raw and rejects Developer.
func ParseImpersonableRole(raw string) (Role, bool) {
	role, ok := ParseRole(raw)
	if !ok || role == RoleDeveloper {
		return "", false
	}
	return role, true
}

// Impersonate moves to Active(role).
func (i *Impersonation) Impersonate(ctx context.Context, role Role) error {
	parsed, ok := ParseImpersonableRole(string(role))
	if !ok {
		return ErrInvalidImpersonation
	}
	if err := i.store.Save(ctx, string(parsed)); err != nil {
		return err
	}
	i.role, i.active = parsed, true
	return nil
}

// Revert moves to Inactive.
func (i *Impersonation) Revert(ctx context.Context) error {
	if err := i.store.Clear(ctx); err != nil {
		return err
	}
	i.role, i.active = "", false
	return nil
}

// Active returns the impersonated role when one is set.
func (i *Impersonation) Active() (Role, bool) {
	if i == nil || !i.active {
		return "", false
	}
	return i.role, true
}

// EffectiveRole returns the role evaluation should use. The override is
// honoured only when the real role is Developer.
func EffectiveRole(realRole string, imp *Impersonation) string {
	if !IsDeveloper(realRole) {
		return realRole
	}
	if role, ok := imp.Active(); ok {
		return string(role)
	}
	return realRole
}
