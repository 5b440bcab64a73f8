// Package subadmins manages permission-scoped sub-admin accounts owned by a
// full admin.
package subadmins

import (
	"fmt"
	"time"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/shared"
)

var (
	// ErrNotFound indicates the sub-admin does not exist or belongs to another admin.
	ErrNotFound = fmt.Errorf("subadmins: %w", shared.ErrNotFound)
	// ErrDuplicate indicates the email is already registered.
	ErrDuplicate = fmt.Errorf("subadmins: %w", shared.ErrDuplicate)
	// ErrValidation indicates rejected input.
	ErrValidation = fmt.Errorf("subadmins: %w", shared.ErrValidation)
)

// SubAdmin is a sub-admin account joined with its grant record.
type SubAdmin struct {
	ID          string               `json:"id"`
	AdminID     string               `json:"adminId"`
	Email       string               `json:"email"`
	Name        string               `json:"name"`
	Phone       string               `json:"phone,omitempty"`
	Permissions access.PermissionSet `json:"permissions"`
	IsActive    bool                 `json:"isActive"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// CreateInput carries the fields of a new sub-admin.
type CreateInput struct {
	AdminID     string
	Email       string
	Name        string
	Phone       string
	Password    string
	Permissions access.PermissionSet
}

// ProfileInput carries editable profile fields.
type ProfileInput struct {
	Name  string
	Phone string
}

// CreateParams is the persisted form of a new sub-admin.
type CreateParams struct {
	ID           string
	AdminID      string
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Permissions  access.PermissionSet
}
