package subadmins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/session"
	"github.com/cylinderhub/cylinderhub/internal/users"
)

// RepositoryPort defines data access methods for sub-admins.
type RepositoryPort interface {
	GetSubAdminByID(ctx context.Context, id string) (*SubAdmin, error)
	GetSubAdminsByAdmin(ctx context.Context, adminID string) ([]SubAdmin, error)
	CreateSubAdmin(ctx context.Context, params CreateParams) (*SubAdmin, error)
	UpdateSubAdminPermissions(ctx context.Context, id string, perms access.PermissionSet) (*SubAdmin, error)
	UpdateSubAdminProfile(ctx context.Context, id string, in ProfileInput) (*SubAdmin, error)
	DeactivateSubAdmin(ctx context.Context, id string, changedAt int64) error
}

// PasswordResetter resets passwords and notifies record watchers.
type PasswordResetter interface {
	ResetPasswordForRole(ctx context.Context, id, newPassword string, role access.Role) error
}

// Service applies ownership and validation rules on top of the repository.
type Service struct {
	repo      RepositoryPort
	passwords PasswordResetter
	publisher users.SnapshotPublisher
	logger    *slog.Logger
	now       func() time.Time
	cost      int
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides the bcrypt cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService builds a Service. passwords and publisher may be nil, in which
// case password resets fail and deactivations are not broadcast.
func NewService(repo RepositoryPort, passwords PasswordResetter, publisher users.SnapshotPublisher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, passwords: passwords, publisher: publisher, logger: logger, now: time.Now, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the sub-admins owned by adminID.
func (s *Service) List(ctx context.Context, adminID string) ([]SubAdmin, error) {
	return s.repo.GetSubAdminsByAdmin(ctx, adminID)
}

// Get returns sub-admin id if it belongs to adminID.
func (s *Service) Get(ctx context.Context, adminID, id string) (*SubAdmin, error) {
	sa, err := s.repo.GetSubAdminByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sa.AdminID != adminID {
		return nil, ErrNotFound
	}
	return sa, nil
}

// Create registers a new sub-admin under in.AdminID.
func (s *Service) Create(ctx context.Context, in CreateInput) (*SubAdmin, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(in.Password) < users.MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, users.MinPasswordLength)
	}
	perms, err := normalizePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("subadmins: hash password: %w", err)
	}
	sa, err := s.repo.CreateSubAdmin(ctx, CreateParams{
		ID:           uuid.NewString(),
		AdminID:      in.AdminID,
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Permissions:  perms,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sub-admin created", slog.String("uid", sa.ID), slog.String("admin", in.AdminID))
	return sa, nil
}

// UpdatePermissions replaces the grants of sub-admin id. Live sessions pick
// the change up on their next rehydration or login.
func (s *Service) UpdatePermissions(ctx context.Context, adminID, id string, perms access.PermissionSet) (*SubAdmin, error) {
	normalized, err := normalizePermissions(perms)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, adminID, id); err != nil {
		return nil, err
	}
	return s.repo.UpdateSubAdminPermissions(ctx, id, normalized)
}

// UpdateProfile edits the display fields of sub-admin id.
func (s *Service) UpdateProfile(ctx context.Context, adminID, id string, in ProfileInput) (*SubAdmin, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, err := s.Get(ctx, adminID, id); err != nil {
		return nil, err
	}
	return s.repo.UpdateSubAdminProfile(ctx, id, in)
}

// Deactivate disables sub-admin id and broadcasts a new password epoch so
// any monitored session of the account ends.
func (s *Service) Deactivate(ctx context.Context, adminID, id string) error {
	sa, err := s.Get(ctx, adminID, id)
	if err != nil {
		return err
	}
	changedAt := s.now().UnixMilli()
	if err := s.repo.DeactivateSubAdmin(ctx, id, changedAt); err != nil {
		return err
	}
	if s.publisher != nil {
		snap := users.Snapshot{ID: sa.ID, Role: access.RoleSubAdmin, PasswordChangedAt: changedAt, IsActive: false}
		if err := s.publisher.Publish(ctx, snap); err != nil {
			s.logger.Warn("publish deactivation", slog.String("uid", id), slog.Any("error", err))
		}
	}
	s.logger.Info("sub-admin deactivated", slog.String("uid", id), slog.String("admin", adminID))
	return nil
}

// ResetPassword sets a new password for sub-admin id.
func (s *Service) ResetPassword(ctx context.Context, adminID, id, newPassword string) error {
	if s.passwords == nil {
		return errors.New("subadmins: password resets unavailable")
	}
	if _, err := s.Get(ctx, adminID, id); err != nil {
		return err
	}
	return s.passwords.ResetPasswordForRole(ctx, id, newPassword, access.RoleSubAdmin)
}

// GetGrants returns the permission set of sub-admin uid for session
// synthesis. An unknown or inactive sub-admin holds no grants.
func (s *Service) GetGrants(ctx context.Context, uid string) (access.PermissionSet, error) {
	sa, err := s.repo.GetSubAdminByID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !sa.IsActive {
		return nil, nil
	}
	return sa.Permissions.Clone(), nil
}

func normalizePermissions(perms access.PermissionSet) (access.PermissionSet, error) {
	out := make(access.PermissionSet, len(perms))
	for key, granted := range perms {
		if !key.Valid() {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrValidation, key)
		}
		if granted {
			out[key] = true
		}
	}
	return out, nil
}

var _ session.GrantSource = (*Service)(nil)
