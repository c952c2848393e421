package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-ops/aurora-ops/internal/authz"
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

const assignmentColumns = `id, principal_id, tenant_id, role_id, is_active, expires_at, assigned_by, created_at, updated_at`

// Get fetches a single assignment.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM role_assignments WHERE id = $1`, id)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, fmt.Errorf("assignment: get: %w", err)
	}
	return assignment, nil
}

// ListForPrincipal returns every assignment row of a principal in a tenant,
// newest first, including inactive and expired rows.
func (r *PostgresRepository) ListForPrincipal(ctx context.Context, principalID, tenantID uuid.UUID) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM role_assignments
		WHERE principal_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC`, principalID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("assignment: list: %w", err)
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("assignment: scan: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment: list: %w", err)
	}
	return assignments, nil
}

// ActiveGrants returns role grants of rows flagged active.
func (r *PostgresRepository) ActiveGrants(ctx context.Context, principalID, tenantID uuid.UUID) ([]authz.RoleGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, expires_at
		FROM role_assignments
		WHERE principal_id = $1 AND tenant_id = $2 AND is_active`, principalID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("assignment: active grants: %w", err)
	}
	defer rows.Close()
	var grants []authz.RoleGrant
	for rows.Next() {
		var grant authz.RoleGrant
		if err := rows.Scan(&grant.RoleID, &grant.ExpiresAt); err != nil {
			return nil, fmt.Errorf("assignment: scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment: active grants: %w", err)
	}
	return grants, nil
}

// Create inserts a new active assignment.
func (r *PostgresRepository) Create(ctx context.Context, assignment Assignment) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO role_assignments (id, principal_id, tenant_id, role_id, is_active, expires_at, assigned_by, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE, $4, $5, now(), now())
		RETURNING `+assignmentColumns,
		assignment.PrincipalID, assignment.TenantID, assignment.RoleID, assignment.ExpiresAt, assignment.AssignedBy)
	created, err := scanAssignment(row)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignment: create: %w", err)
	}
	return created, nil
}

// SetActive toggles the active flag.
func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_assignments SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("assignment: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an assignment row.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("assignment: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ExpiredActive lists active rows whose expiry has passed.
func (r *PostgresRepository) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM role_assignments
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("assignment: expired: %w", err)
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("assignment: scan: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment: expired: %w", err)
	}
	return assignments, nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	if err := row.Scan(&a.ID, &a.PrincipalID, &a.TenantID, &a.RoleID, &a.IsActive, &a.ExpiresAt, &a.AssignedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Assignment{}, err
	}
	return a, nil
}
