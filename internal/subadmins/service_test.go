package subadmins

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/shared"
	"github.com/cylinderhub/cylinderhub/internal/users"
)

type memoryRepo struct {
	mu      sync.Mutex
	rows    map[string]*SubAdmin
	hashes  map[string]string
	markers map[string]int64
	err     error
}

func newMemoryRepo(rows ...SubAdmin) *memoryRepo {
	repo := &memoryRepo{rows: make(map[string]*SubAdmin), hashes: make(map[string]string), markers: make(map[string]int64)}
	for i := range rows {
		sa := rows[i]
		repo.rows[sa.ID] = &sa
	}
	return repo
}

func (m *memoryRepo) GetSubAdminByID(ctx context.Context, id string) (*SubAdmin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	sa, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sa
	cp.Permissions = sa.Permissions.Clone()
	return &cp, nil
}

func (m *memoryRepo) GetSubAdminsByAdmin(ctx context.Context, adminID string) ([]SubAdmin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SubAdmin
	for _, sa := range m.rows {
		if sa.AdminID == adminID {
			out = append(out, *sa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) CreateSubAdmin(ctx context.Context, params CreateParams) (*SubAdmin, error) {
	m.mu.Lock()
	for _, sa := range m.rows {
		if sa.Email == params.Email {
			m.mu.Unlock()
			return nil, ErrDuplicate
		}
	}
	m.rows[params.ID] = &SubAdmin{
		ID:          params.ID,
		AdminID:     params.AdminID,
		Email:       params.Email,
		Name:        params.Name,
		Phone:       params.Phone,
		Permissions: params.Permissions.Clone(),
		IsActive:    true,
	}
	m.hashes[params.ID] = params.PasswordHash
	m.mu.Unlock()
	return m.GetSubAdminByID(ctx, params.ID)
}

func (m *memoryRepo) UpdateSubAdminPermissions(ctx context.Context, id string, perms access.PermissionSet) (*SubAdmin, error) {
	m.mu.Lock()
	sa, ok := m.rows[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	sa.Permissions = perms.Clone()
	m.mu.Unlock()
	return m.GetSubAdminByID(ctx, id)
}

func (m *memoryRepo) UpdateSubAdminProfile(ctx context.Context, id string, in ProfileInput) (*SubAdmin, error) {
	m.mu.Lock()
	sa, ok := m.rows[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	sa.Name, sa.Phone = in.Name, in.Phone
	m.mu.Unlock()
	return m.GetSubAdminByID(ctx, id)
}

func (m *memoryRepo) DeactivateSubAdmin(ctx context.Context, id string, changedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	sa.IsActive = false
	m.markers[id] = changedAt
	return nil
}

type recordingResetter struct {
	calls []string
	err   error
}

func (r *recordingResetter) ResetPasswordForRole(ctx context.Context, id, newPassword string, role access.Role) error {
	r.calls = append(r.calls, id+":"+string(role))
	return r.err
}

type recordingPublisher struct {
	snaps []users.Snapshot
}

func (p *recordingPublisher) Publish(ctx context.Context, snap users.Snapshot) error {
	p.snaps = append(p.snaps, snap)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedRows() []SubAdmin {
	return []SubAdmin{
		{ID: "sa-1", AdminID: "admin-1", Email: "ops@cylinderhub.test", Name: "Ops", Permissions: access.PermissionSet{access.PermOrders: true}, IsActive: true},
		{ID: "sa-2", AdminID: "admin-1", Email: "fleet@cylinderhub.test", Name: "Fleet", Permissions: access.PermissionSet{access.PermDelivery: true}, IsActive: false},
		{ID: "sa-3", AdminID: "admin-2", Email: "other@cylinderhub.test", Name: "Other", IsActive: true},
	}
}

type fixture struct {
	repo      *memoryRepo
	resetter  *recordingResetter
	publisher *recordingPublisher
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{repo: newMemoryRepo(seedRows()...), resetter: &recordingResetter{}, publisher: &recordingPublisher{}}
	f.svc = NewService(f.repo, f.resetter, f.publisher, nil, WithClock(func() time.Time { return fixedNow }), WithBcryptCost(bcrypt.MinCost))
	return f
}

func TestCreateSubAdmin(t *testing.T) {
	f := newFixture()

	sa, err := f.svc.Create(context.Background(), CreateInput{
		AdminID:     "admin-1",
		Email:       "  New.Person@CylinderHub.test ",
		Name:        " New Person ",
		Password:    "s3cret-pass",
		Permissions: access.PermissionSet{access.PermProducts: true, access.PermUsers: false},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sa.ID)
	assert.Equal(t, "new.person@cylinderhub.test", sa.Email)
	assert.Equal(t, "New Person", sa.Name)
	assert.Equal(t, access.PermissionSet{access.PermProducts: true}, sa.Permissions)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.hashes[sa.ID]), []byte("s3cret-pass")))
}

func TestCreateSubAdminValidation(t *testing.T) {
	f := newFixture()
	base := CreateInput{AdminID: "admin-1", Email: "x@cylinderhub.test", Name: "X", Password: "s3cret-pass"}

	cases := map[string]func(in *CreateInput){
		"bad email":      func(in *CreateInput) { in.Email = "nope" },
		"blank name":     func(in *CreateInput) { in.Name = "  " },
		"short password": func(in *CreateInput) { in.Password = "short" },
		"unknown key":    func(in *CreateInput) { in.Permissions = access.PermissionSet{"reports": true} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateSubAdminDuplicate(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), CreateInput{AdminID: "admin-1", Email: "ops@cylinderhub.test", Name: "Dup", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestOwnershipScopesEveryMutation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "admin-1", "sa-3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.UpdatePermissions(ctx, "admin-1", "sa-3", access.PermissionSet{access.PermOrders: true})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.UpdateProfile(ctx, "admin-1", "sa-3", ProfileInput{Name: "Renamed"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Deactivate(ctx, "admin-1", "sa-3"), ErrNotFound)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "admin-1", "sa-3", "s3cret-pass"), ErrNotFound)

	assert.Empty(t, f.resetter.calls)
	assert.Empty(t, f.publisher.snaps)
	assert.True(t, f.repo.rows["sa-3"].IsActive)
}

func TestUpdatePermissionsAndProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sa, err := f.svc.UpdatePermissions(ctx, "admin-1", "sa-1", access.PermissionSet{access.PermOrders: false, access.PermDelivery: true})
	require.NoError(t, err)
	assert.Equal(t, access.PermissionSet{access.PermDelivery: true}, sa.Permissions)

	sa, err = f.svc.UpdateProfile(ctx, "admin-1", "sa-1", ProfileInput{Name: " Ops Lead ", Phone: " +200 "})
	require.NoError(t, err)
	assert.Equal(t, "Ops Lead", sa.Name)
	assert.Equal(t, "+200", sa.Phone)

	_, err = f.svc.UpdateProfile(ctx, "admin-1", "sa-1", ProfileInput{Name: ""})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeactivateBroadcastsNewEpoch(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.Deactivate(context.Background(), "admin-1", "sa-1"))

	assert.False(t, f.repo.rows["sa-1"].IsActive)
	assert.Equal(t, fixedNow.UnixMilli(), f.repo.markers["sa-1"])
	require.Len(t, f.publisher.snaps, 1)
	assert.Equal(t, users.Snapshot{ID: "sa-1", Role: access.RoleSubAdmin, PasswordChangedAt: fixedNow.UnixMilli()}, f.publisher.snaps[0])
}

func TestResetPasswordDelegates(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.ResetPassword(context.Background(), "admin-1", "sa-1", "s3cret-pass"))
	assert.Equal(t, []string{"sa-1:sub-admin"}, f.resetter.calls)

	svc := NewService(f.repo, nil, nil, nil)
	assert.Error(t, svc.ResetPassword(context.Background(), "admin-1", "sa-1", "s3cret-pass"))
}

func TestGetGrants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	grants, err := f.svc.GetGrants(ctx, "sa-1")
	require.NoError(t, err)
	assert.Equal(t, access.PermissionSet{access.PermOrders: true}, grants)

	grants[access.PermUsers] = true
	assert.False(t, f.repo.rows["sa-1"].Permissions[access.PermUsers])

	grants, err = f.svc.GetGrants(ctx, "sa-2")
	require.NoError(t, err)
	assert.Nil(t, grants)

	grants, err = f.svc.GetGrants(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, grants)

	f.repo.err = errors.New("db down")
	_, err = f.svc.GetGrants(ctx, "sa-1")
	assert.Error(t, err)
}
