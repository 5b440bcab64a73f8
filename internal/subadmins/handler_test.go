package subadmins

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/guard"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

type staticSessions struct {
	rec   *session.Record
	ready chan struct{}
}

func signedIn(uid string, role access.Role, perms access.PermissionSet) *staticSessions {
	ready := make(chan struct{})
	close(ready)
	return &staticSessions{
		rec:   &session.Record{UID: uid, Role: role, Permissions: perms, SessionToken: "tok", IssuedAt: 1, ExpiresAt: 2},
		ready: ready,
	}
}

func (s *staticSessions) Snapshot() session.Snapshot {
	return session.Snapshot{Session: s.rec.Clone()}
}

func (s *staticSessions) Ready() <-chan struct{} {
	return s.ready
}

func newRouter(f *fixture, sessions guard.Sessions) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", NewHandler(nil, f.svc, guard.Middleware{Sessions: sessions}).MountRoutes)
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(res, req)
	return res
}

func TestSubAdminRoutesNeedFullAdmin(t *testing.T) {
	f := newFixture()
	allGranted := access.PermissionSet{access.PermOrders: true, access.PermProducts: true, access.PermDelivery: true, access.PermUsers: true}
	router := newRouter(f, signedIn("sa-1", access.RoleSubAdmin, allGranted))

	requests := []struct{ method, path, body string }{
		{http.MethodGet, "/admin/subadmins", ""},
		{http.MethodPost, "/admin/subadmins", `{"email":"a@b.test","name":"A","password":"s3cret-pass"}`},
		{http.MethodPut, "/admin/subadmins/sa-1/permissions", `{"permissions":{"users":true}}`},
		{http.MethodPut, "/admin/subadmins/sa-1/profile", `{"name":"A"}`},
		{http.MethodPost, "/admin/subadmins/sa-1/password", `{"password":"s3cret-pass"}`},
		{http.MethodDelete, "/admin/subadmins/sa-1", ""},
	}
	for _, rq := range requests {
		res := do(router, rq.method, rq.path, rq.body)
		assert.Equal(t, http.StatusForbidden, res.Code, "%s %s", rq.method, rq.path)
		assert.Equal(t, "/admin/routes/adminprofile", res.Header().Get("Location"))
	}
	assert.Len(t, f.repo.rows, 3)
	assert.True(t, f.repo.rows["sa-1"].IsActive)
}

func TestSubAdminListAndCreate(t *testing.T) {
	f := newFixture()
	router := newRouter(f, signedIn("admin-1", access.RoleAdmin, nil))

	res := do(router, http.MethodGet, "/admin/subadmins", "")
	require.Equal(t, http.StatusOK, res.Code)
	var list struct {
		Items []SubAdmin `json:"items"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Fleet", list.Items[0].Name)

	res = do(router, http.MethodPost, "/admin/subadmins", `{"email":"new@cylinderhub.test","name":"New","password":"s3cret-pass","permissions":{"products":true}}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var created SubAdmin
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	assert.Equal(t, "admin-1", created.AdminID)
	assert.True(t, created.Permissions[access.PermProducts])

	res = do(router, http.MethodPost, "/admin/subadmins", `{"email":"new@cylinderhub.test","name":"Again","password":"s3cret-pass"}`)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(router, http.MethodPost, "/admin/subadmins", `{"email":"broken","name":"Bad","password":"s3cret-pass"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSubAdminMutations(t *testing.T) {
	f := newFixture()
	router := newRouter(f, signedIn("admin-1", access.RoleAdmin, nil))

	res := do(router, http.MethodPut, "/admin/subadmins/sa-1/permissions", `{"permissions":{"users":true}}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, access.PermissionSet{access.PermUsers: true}, f.repo.rows["sa-1"].Permissions)

	res = do(router, http.MethodPut, "/admin/subadmins/sa-1/permissions", `{"permissions":{"reports":true}}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(router, http.MethodPut, "/admin/subadmins/sa-1/profile", `{"name":"Ops Lead","phone":"+300"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Ops Lead", f.repo.rows["sa-1"].Name)

	res = do(router, http.MethodPost, "/admin/subadmins/sa-1/password", `{"password":"s3cret-pass"}`)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, []string{"sa-1:sub-admin"}, f.resetter.calls)

	res = do(router, http.MethodDelete, "/admin/subadmins/sa-3", "")
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = do(router, http.MethodDelete, "/admin/subadmins/sa-1", "")
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.False(t, f.repo.rows["sa-1"].IsActive)
}
