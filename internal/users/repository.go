package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cylinderhub/cylinderhub/internal/access"
)

const userColumns = `id, email, name, phone, role, password_hash, password_changed_at, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUserByID fetches a user by id.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByEmail fetches a user by email, case insensitive.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// ListByRole returns users with the given role ordered by name.
func (r *Repository) ListByRole(ctx context.Context, role access.Role) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY name, id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePassword stores a new hash and password epoch marker and returns the
// updated record.
func (r *Repository) UpdatePassword(ctx context.Context, id, hash string, changedAt int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `UPDATE users
SET password_hash = $2, password_changed_at = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns, id, hash, changedAt)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user      User
		role      string
		phone     pgtype.Text
		changedAt pgtype.Int8
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &phone, &role, &user.PasswordHash, &changedAt, &user.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	user.Role = access.Role(role)
	user.Phone = phone.String
	user.PasswordChangedAt = changedAt.Int64
	user.CreatedAt = safeTime(createdAt)
	user.UpdatedAt = safeTime(updatedAt)
	return &user, nil
}

func safeTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}
