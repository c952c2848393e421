package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-ops/aurora-ops/internal/platform/db"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// PostgresRepository provides PostgreSQL backed persistence.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListPermissions returns the whole permission universe ordered by name.
func (r *PostgresRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, category, display_name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.Name, &perm.Category, &perm.DisplayName); err != nil {
			return nil, fmt.Errorf("catalog: scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list permissions: %w", err)
	}
	return perms, nil
}

// UpsertPermission inserts the permission or refreshes its metadata. The
// name is the identity and is never rewritten.
func (r *PostgresRepository) UpsertPermission(ctx context.Context, perm Permission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permissions (name, category, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category, display_name = EXCLUDED.display_name`,
		perm.Name, perm.Category, perm.DisplayName)
	if err != nil {
		return fmt.Errorf("catalog: upsert permission %s: %w", perm.Name, err)
	}
	return nil
}

// ListRoles returns system roles plus, when tenantID is set, the tenant's
// custom roles.
func (r *PostgresRepository) ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, is_system, tenant_id, created_at, updated_at
		FROM roles
		WHERE is_system OR tenant_id = $1
		ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list roles: %w", err)
	}
	return roles, nil
}

// GetRole fetches a role with its permission names.
func (r *PostgresRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system, tenant_id, created_at, updated_at
		FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions, err = r.permissionNames(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// SystemRoleByName fetches a system role and its permissions by unique name.
func (r *PostgresRepository) SystemRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system, tenant_id, created_at, updated_at
		FROM roles WHERE is_system AND name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions, err = r.permissionNames(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// RolesWithPermissions loads the given roles together with their permission
// names in one round trip per table.
func (r *PostgresRepository) RolesWithPermissions(ctx context.Context, ids []uuid.UUID) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, is_system, tenant_id, created_at, updated_at
		FROM roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: load roles: %w", err)
	}
	defer rows.Close()
	byID := make(map[uuid.UUID]*Role, len(ids))
	var order []uuid.UUID
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		byID[role.ID] = &role
		order = append(order, role.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load roles: %w", err)
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT role_id, permission_name FROM role_permissions WHERE role_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: load role permissions: %w", err)
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID uuid.UUID
		var name string
		if err := permRows.Scan(&roleID, &name); err != nil {
			return nil, fmt.Errorf("catalog: scan role permission: %w", err)
		}
		if role, ok := byID[roleID]; ok {
			role.Permissions = append(role.Permissions, name)
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load role permissions: %w", err)
	}

	roles := make([]Role, 0, len(order))
	for _, id := range order {
		roles = append(roles, *byID[id])
	}
	return roles, nil
}

// CreateRole inserts a new role.
func (r *PostgresRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, is_system, tenant_id, created_at, updated_at)
		VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5, now(), now())
		RETURNING id, name, description, is_system, tenant_id, created_at, updated_at`,
		nilWhenZero(role.ID), role.Name, role.Description, role.IsSystem, role.TenantID)
	created, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("catalog: role %s: %w", role.Name, httpx.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("catalog: create role: %w", err)
	}
	return created, nil
}

// UpdateRole updates name and description of an existing role.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id uuid.UUID, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, is_system, tenant_id, created_at, updated_at`,
		id, name, description)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("catalog: role %s: %w", name, httpx.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("catalog: update role: %w", err)
	}
	return role, nil
}

// DeleteRole removes a role together with its permission edges and any
// assignments still pointing at it, in one transaction. Returns
// shared.ErrNotFound when the role does not exist.
func (r *PostgresRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("catalog: delete role permissions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_assignments WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("catalog: delete role assignments: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("catalog: delete role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// AttachPermission links a permission to a role; attaching twice is a no-op.
func (r *PostgresRepository) AttachPermission(ctx context.Context, roleID uuid.UUID, permission string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_name)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, permission)
	if err != nil {
		return fmt.Errorf("catalog: attach permission: %w", err)
	}
	return nil
}

// DetachPermission removes a permission from a role.
func (r *PostgresRepository) DetachPermission(ctx context.Context, roleID uuid.UUID, permission string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_name = $2`, roleID, permission)
	if err != nil {
		return fmt.Errorf("catalog: detach permission: %w", err)
	}
	return nil
}

func (r *PostgresRepository) permissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT permission_name FROM role_permissions WHERE role_id = $1 ORDER BY permission_name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("catalog: role permissions: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scan permission name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: role permissions: %w", err)
	}
	return names, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.TenantID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nilWhenZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
