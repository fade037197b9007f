package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auditdesk/auditdesk/internal/platform/db"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the persistence port for role_permissions.
type Store interface {
	MappingReader
	ListAll(ctx context.Context) ([]Assignment, error)
	ListByRole(ctx context.Context, role string) ([]Permission, error)
	Assign(ctx context.Context, role string, perm Permission) (bool, error)
	Revoke(ctx context.Context, role string, perm Permission) (bool, error)
	CountRolesWith(ctx context.Context, perm Permission) (int, error)
	// LockMappings serialises guarded edits for the rest of the transaction.
	LockMappings(ctx context.Context) error
	// WithinTx runs fn against a transactional view of the store.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// Repository provides PostgreSQL backed persistence for role_permissions.
type Repository struct {
	db DBTX
}

// NewRepository constructs a repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const (
	listAllSQL        = `SELECT role, permission, created_at FROM role_permissions ORDER BY role, permission`
	listByRoleSQL     = `SELECT permission FROM role_permissions WHERE role = $1 ORDER BY permission`
	hasPermissionSQL  = `SELECT EXISTS (SELECT 1 FROM role_permissions WHERE role = $1 AND permission = $2)`
	assignSQL         = `INSERT INTO role_permissions (role, permission) VALUES ($1, $2) ON CONFLICT (role, permission) DO NOTHING`
	revokeSQL         = `DELETE FROM role_permissions WHERE role = $1 AND permission = $2`
	countRolesWithSQL = `SELECT COUNT(DISTINCT role) FROM role_permissions WHERE permission = $1`
	lockMappingsSQL   = `SELECT pg_advisory_xact_lock(hashtext('role_permissions'))`
)

// ListAll returns every assignment ordered by role then permission.
func (r *Repository) ListAll(ctx context.Context) ([]Assignment, error) {
	rows, err := r.db.Query(ctx, listAllSQL)
	if err != nil {
		return nil, fmt.Errorf("rbac: list assignments: %w", err)
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		var perm string
		if err := rows.Scan(&a.Role, &perm, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Permission = Permission(perm)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByRole returns the persisted permissions of role.
func (r *Repository) ListByRole(ctx context.Context, role string) ([]Permission, error) {
	rows, err := r.db.Query(ctx, listByRoleSQL, role)
	if err != nil {
		return nil, fmt.Errorf("rbac: list role permissions: %w", err)
	}
	defer rows.Close()
	perms := make([]Permission, 0)
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, err
		}
		perms = append(perms, Permission(perm))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// RoleHasPermission implements MappingReader with a single indexed lookup.
func (r *Repository) RoleHasPermission(ctx context.Context, role string, perm Permission) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, hasPermissionSQL, role, string(perm)).Scan(&ok); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Assign inserts the pair, reporting whether a row was created.
func (r *Repository) Assign(ctx context.Context, role string, perm Permission) (bool, error) {
	tag, err := r.db.Exec(ctx, assignSQL, role, string(perm))
	if err != nil {
		return false, fmt.Errorf("rbac: assign: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Revoke deletes the pair, reporting whether a row was removed.
func (r *Repository) Revoke(ctx context.Context, role string, perm Permission) (bool, error) {
	tag, err := r.db.Exec(ctx, revokeSQL, role, string(perm))
	if err != nil {
		return false, fmt.Errorf("rbac: revoke: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountRolesWith returns how many roles hold perm.
func (r *Repository) CountRolesWith(ctx context.Context, perm Permission) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countRolesWithSQL, string(perm)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LockMappings takes a transaction-scoped advisory lock. Outside a
// transaction the lock is released as soon as the statement completes.
func (r *Repository) LockMappings(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, lockMappingsSQL); err != nil {
		return fmt.Errorf("rbac: lock mappings: %w", err)
	}
	return nil
}

// WithinTx runs fn in a read-committed transaction when the repository is
// backed by a pool, so reads after LockMappings see committed edits.
// Repositories already bound to a transaction run fn directly.
func (r *Repository) WithinTx(ctx context.Context, fn func(Store) error) error {
	pool, ok := r.db.(*pgxpool.Pool)
	if !ok {
		return fn(r)
	}
	return db.WithTxOptions(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(NewRepository(tx))
	})
}

var _ Store = (*Repository)(nil)
