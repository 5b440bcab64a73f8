package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

// MinPasswordLength is the shortest password accepted on reset.
const MinPasswordLength = 8

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByRole(ctx context.Context, role access.Role) ([]User, error)
	UpdatePassword(ctx context.Context, id, hash string, changedAt int64) (*User, error)
}

// SnapshotPublisher pushes record changes to live watchers.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	publisher SnapshotPublisher
	logger    *slog.Logger
	now       func() time.Time
	cost      int
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used to stamp password changes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides the bcrypt cost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, publisher SnapshotPublisher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, publisher: publisher, logger: logger, now: time.Now, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUserByID returns the user or ErrNotFound.
func (s *Service) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// FindByEmail returns the user registered with email or ErrNotFound.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// ListByRole returns every user holding role.
func (s *Service) ListByRole(ctx context.Context, role access.Role) ([]Summary, error) {
	rows, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("users: list %s: %w", role, err)
	}
	out := make([]Summary, 0, len(rows))
	for _, u := range rows {
		out = append(out, SummaryOf(u))
	}
	return out, nil
}

// UpdateUserPassword hashes newPassword, stamps the password epoch marker and
// notifies live watchers so sessions issued before the change are dropped.
func (s *Service) UpdateUserPassword(ctx context.Context, id, newPassword string) error {
	_, err := s.updatePassword(ctx, id, newPassword, "")
	return err
}

// ResetPasswordForRole behaves like UpdateUserPassword but refuses targets
// whose role differs from role.
func (s *Service) ResetPasswordForRole(ctx context.Context, id, newPassword string, role access.Role) error {
	_, err := s.updatePassword(ctx, id, newPassword, role)
	return err
}

func (s *Service) updatePassword(ctx context.Context, id, newPassword string, role access.Role) (*User, error) {
	if len(newPassword) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if role != "" {
		current, err := s.repo.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Role != role {
			return nil, ErrNotFound
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	updated, err := s.repo.UpdatePassword(ctx, id, string(hash), s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, SnapshotOf(updated)); err != nil {
			// Watchers still pick the marker up from their initial snapshot.
			s.logger.Warn("publish password change", slog.String("uid", id), slog.Any("error", err))
		}
	}
	return updated, nil
}

// GetProfile adapts the user record to the session profile contract. A
// missing user yields a nil profile.
func (s *Service) GetProfile(ctx context.Context, uid string) (*session.Profile, error) {
	u, err := s.repo.GetUserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session.Profile{
		UID:               u.ID,
		Email:             u.Email,
		DisplayName:       u.Name,
		PhoneNumber:       u.Phone,
		Role:              u.Role,
		PasswordChangedAt: u.PasswordChangedAt,
		Active:            u.IsActive,
	}, nil
}

var _ session.ProfileSource = (*Service)(nil)
