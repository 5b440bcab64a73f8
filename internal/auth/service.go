package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/session"
	"github.com/cylinderhub/cylinderhub/internal/users"
)

// UserFinder looks users up by login email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users  UserFinder
	grants session.GrantSource
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a new Service. A zero ttl selects session.DefaultTTL.
func NewService(finder UserFinder, grants session.GrantSource, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Service{users: finder, grants: grants, ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued session records.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueRecord builds a fresh session record for an authenticated user,
// attaching sub-admin grants when the role carries them.
func (s *Service) IssueRecord(ctx context.Context, user *users.User) (*session.Record, error) {
	var perms access.PermissionSet
	if user.Role == access.RoleSubAdmin && s.grants != nil {
		granted, err := s.grants.GetGrants(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("auth: load grants: %w", err)
		}
		perms = granted
	}
	profile := session.Profile{
		UID:               user.ID,
		Email:             user.Email,
		DisplayName:       user.Name,
		PhoneNumber:       user.Phone,
		Role:              user.Role,
		PasswordChangedAt: user.PasswordChangedAt,
		Active:            user.IsActive,
	}
	return session.NewRecord(profile, perms, session.GenerateSessionToken(), s.now(), s.ttl), nil
}
