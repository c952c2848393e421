package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const userColumns = `id, tenant_id, email, display_name, classification, is_active, created_at, updated_at`

// Get fetches a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// ListByTenant returns a tenant's users ordered by display name.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1
		ORDER BY display_name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return users, nil
}

// Create inserts a user. Email is unique per tenant.
func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, tenant_id, email, display_name, classification, is_active, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, now(), now())
		RETURNING `+userColumns,
		user.TenantID, user.Email, user.DisplayName, user.Classification)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
		}
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return created, nil
}

// SetClassification updates a user's classification.
func (r *PostgresRepository) SetClassification(ctx context.Context, id uuid.UUID, classification string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET classification = $2, updated_at = now() WHERE id = $1`, id, classification)
	if err != nil {
		return fmt.Errorf("users: set classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.Classification, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
