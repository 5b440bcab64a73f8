package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/auth"
	"github.com/cylinderhub/cylinderhub/internal/session"
	"github.com/cylinderhub/cylinderhub/internal/shared"
	"github.com/cylinderhub/cylinderhub/internal/users"
)

type brokenFinder struct{}

func (brokenFinder) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, errors.New("db down")
}

type failingGrants struct{}

func (failingGrants) GetGrants(ctx context.Context, uid string) (access.PermissionSet, error) {
	return nil, errors.New("db down")
}

func TestAuthenticateErrors(t *testing.T) {
	svc := auth.NewService(brokenFinder{}, nil, 0)
	_, err := svc.Authenticate(context.Background(), "a@b.test", "whatever-pass")
	require.Error(t, err)
	assert.False(t, errors.Is(err, auth.ErrInvalidCredentials))

	svc = auth.NewService(&stubFinder{users: map[string]*users.User{}}, nil, 0)
	_, err = svc.Authenticate(context.Background(), "a@b.test", "whatever-pass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestIssueRecord(t *testing.T) {
	svc := auth.NewService(nil, stubGrants{"u-ops": {access.PermOrders: true}}, time.Hour)

	before := time.Now()
	rec, err := svc.IssueRecord(context.Background(), &users.User{ID: "u-ops", Email: "ops@cylinderhub.test", Role: access.RoleSubAdmin, PasswordChangedAt: 42, IsActive: true})
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	assert.Equal(t, access.PermissionSet{access.PermOrders: true}, rec.Permissions)
	assert.Equal(t, int64(42), rec.PasswordChangedAt)
	assert.Equal(t, time.Hour.Milliseconds(), rec.ExpiresAt-rec.IssuedAt)
	assert.GreaterOrEqual(t, rec.IssuedAt, before.UnixMilli())

	rec, err = svc.IssueRecord(context.Background(), &users.User{ID: "u-admin", Role: access.RoleAdmin, IsActive: true})
	require.NoError(t, err)
	assert.Nil(t, rec.Permissions)
	assert.Equal(t, session.DefaultTTL.Milliseconds(), auth.NewService(nil, nil, 0).TTL().Milliseconds())

	_, err = auth.NewService(nil, failingGrants{}, 0).IssueRecord(context.Background(), &users.User{ID: "u-ops", Role: access.RoleSubAdmin, IsActive: true})
	assert.Error(t, err)
}
