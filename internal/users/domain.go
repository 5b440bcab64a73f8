package users

import (
	"fmt"
	"time"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/shared"
)

var (
	// ErrNotFound indicates the user record does not exist.
	ErrNotFound = fmt.Errorf("users: %w", shared.ErrNotFound)
	// ErrValidation indicates rejected input.
	ErrValidation = fmt.Errorf("users: %w", shared.ErrValidation)
)

// User represents a principal's backing record.
type User struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	Role         access.Role
	PasswordHash string
	// PasswordChangedAt is the Unix millisecond time of the last password
	// change; zero when the password was never changed.
	PasswordChangedAt int64
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Snapshot is the document published to record watchers.
type Snapshot struct {
	ID                string      `json:"id"`
	Role              access.Role `json:"role"`
	PasswordChangedAt int64       `json:"passwordChangedAt,omitempty"`
	IsActive          bool        `json:"isActive"`
}

// SnapshotOf builds the published snapshot of u.
func SnapshotOf(u *User) Snapshot {
	return Snapshot{ID: u.ID, Role: u.Role, PasswordChangedAt: u.PasswordChangedAt, IsActive: u.IsActive}
}

// Summary is the listing view of a user.
type Summary struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone,omitempty"`
	Role      access.Role `json:"role"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
}

// SummaryOf builds the listing view of u.
func SummaryOf(u User) Summary {
	return Summary{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}
