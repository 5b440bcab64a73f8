package subadmins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/platform/db"
)

const uniqueViolation = "23505"

const subAdminSelect = `SELECT u.id, s.admin_id, u.email, u.name, u.phone, s.permissions, u.is_active, s.created_at, s.updated_at
FROM subadmins s
JOIN users u ON u.id = s.user_id`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSubAdminByID fetches a sub-admin by user id.
func (r *Repository) GetSubAdminByID(ctx context.Context, id string) (*SubAdmin, error) {
	return scanSubAdmin(r.pool.QueryRow(ctx, subAdminSelect+` WHERE s.user_id = $1`, id))
}

// GetSubAdminsByAdmin lists the sub-admins owned by adminID.
func (r *Repository) GetSubAdminsByAdmin(ctx context.Context, adminID string) ([]SubAdmin, error) {
	rows, err := r.pool.Query(ctx, subAdminSelect+` WHERE s.admin_id = $1 ORDER BY u.name, u.id`, adminID)
	if err != nil {
		return nil, fmt.Errorf("subadmins: list: %w", err)
	}
	defer rows.Close()
	var out []SubAdmin
	for rows.Next() {
		sa, err := scanSubAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subadmins: list: %w", err)
	}
	return out, nil
}

// CreateSubAdmin inserts the user row and the grant record in one
// transaction.
func (r *Repository) CreateSubAdmin(ctx context.Context, params CreateParams) (*SubAdmin, error) {
	perms, err := encodePermissions(params.Permissions)
	if err != nil {
		return nil, err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO users (id, email, name, phone, role, password_hash, is_active, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, TRUE, NOW(), NOW())`,
			params.ID, params.Email, params.Name, params.Phone, string(access.RoleSubAdmin), params.PasswordHash); err != nil {
			return mapWriteErr(err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO subadmins (user_id, admin_id, permissions, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())`, params.ID, params.AdminID, perms); err != nil {
			return mapWriteErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetSubAdminByID(ctx, params.ID)
}

// UpdateSubAdminPermissions replaces the grant record of id.
func (r *Repository) UpdateSubAdminPermissions(ctx context.Context, id string, perms access.PermissionSet) (*SubAdmin, error) {
	data, err := encodePermissions(perms)
	if err != nil {
		return nil, err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE subadmins SET permissions = $2, updated_at = NOW() WHERE user_id = $1`, id, data)
	if err != nil {
		return nil, fmt.Errorf("subadmins: update permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetSubAdminByID(ctx, id)
}

// UpdateSubAdminProfile updates the display fields of id.
func (r *Repository) UpdateSubAdminProfile(ctx context.Context, id string, in ProfileInput) (*SubAdmin, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name = $2, phone = NULLIF($3, ''), updated_at = NOW()
WHERE id = $1 AND role = $4`, id, in.Name, in.Phone, string(access.RoleSubAdmin))
	if err != nil {
		return nil, fmt.Errorf("subadmins: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetSubAdminByID(ctx, id)
}

// DeactivateSubAdmin disables id and moves its password epoch marker to
// changedAt so live sessions of the account are dropped.
func (r *Repository) DeactivateSubAdmin(ctx context.Context, id string, changedAt int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = FALSE, password_changed_at = $2, updated_at = NOW()
WHERE id = $1 AND role = $3`, id, changedAt, string(access.RoleSubAdmin))
	if err != nil {
		return fmt.Errorf("subadmins: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubAdmin(row pgx.Row) (*SubAdmin, error) {
	var (
		sa        SubAdmin
		phone     pgtype.Text
		perms     []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&sa.ID, &sa.AdminID, &sa.Email, &sa.Name, &phone, &perms, &sa.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("subadmins: scan: %w", err)
	}
	sa.Phone = phone.String
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &sa.Permissions); err != nil {
			return nil, fmt.Errorf("subadmins: decode permissions: %w", err)
		}
	}
	sa.CreatedAt = safeTime(createdAt)
	sa.UpdatedAt = safeTime(updatedAt)
	return &sa, nil
}

func encodePermissions(perms access.PermissionSet) ([]byte, error) {
	if perms == nil {
		perms = access.PermissionSet{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("subadmins: encode permissions: %w", err)
	}
	return data, nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("subadmins: write: %w", err)
}

func safeTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}

var _ RepositoryPort = (*Repository)(nil)
