package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	intconfig "hive/internal/config"
	"hive/internal/domain"
	h "hive/internal/http/handlers"
	"hive/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLister struct {
	page    domain.Page
	err     error
	lastRC  domain.RequestContext
	lastQ   domain.Query
	calls   int
}

func (f *fakeLister) Resolve(_ context.Context, rc domain.RequestContext, _ string, q domain.Query) (domain.Page, error) {
	f.calls++
	f.lastRC, f.lastQ = rc, q
	return f.page, f.err
}

type fakeExporter struct {
	art   services.Artifact
	err   error
	jobs  []domain.ExportJob
}

func (f *fakeExporter) Export(_ context.Context, _ domain.RequestContext, job domain.ExportJob) (services.Artifact, error) {
	f.jobs = append(f.jobs, job)
	return f.art, f.err
}

type fakeUsers struct {
	toggled []int64
	created []services.UserInput
	deleted []int64
	err     error
}

func (f *fakeUsers) Stats(context.Context) (domain.UserStats, error) {
	return domain.UserStats{TotalUsers: 3, ActiveUsers: 2, NewThisWeek: 1}, nil
}

func (f *fakeUsers) Profile(_ context.Context, rc domain.RequestContext) (domain.User, error) {
	return domain.User{ID: int64(rc.UserID), Name: "Ana", Roles: []string{rc.Role}, IsActive: true}, nil
}

func (f *fakeUsers) ToggleStatus(_ context.Context, _ domain.RequestContext, id int64) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	f.toggled = append(f.toggled, id)
	return domain.User{ID: id, IsActive: false}, nil
}

func (f *fakeUsers) Show(_ context.Context, id int64) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	return domain.User{ID: id, Name: "Ana", IsActive: true}, nil
}

func (f *fakeUsers) Create(_ context.Context, _ domain.RequestContext, in services.UserInput) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	f.created = append(f.created, in)
	return domain.User{ID: 40, Name: in.Name, Email: in.Email, Roles: []string{in.Role}, IsActive: true}, nil
}

func (f *fakeUsers) Update(_ context.Context, _ domain.RequestContext, id int64, in services.UserInput) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	return domain.User{ID: id, Name: in.Name, IsActive: true}, nil
}

func (f *fakeUsers) Delete(_ context.Context, _ domain.RequestContext, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRoles struct {
	perms   []domain.Permission
	inputs  []domain.RoleInput
	deleted []int64
	err     error
}

func (f *fakeRoles) ListPermissions(context.Context, domain.RequestContext) ([]domain.Permission, error) {
	return f.perms, f.err
}

func (f *fakeRoles) Create(_ context.Context, rc domain.RequestContext, in domain.RoleInput) (domain.Role, error) {
	if f.err != nil {
		return domain.Role{}, f.err
	}
	f.inputs = append(f.inputs, in)
	return domain.Role{ID: 11, Name: in.Name, GuardName: rc.GuardOrDefault()}, nil
}

func (f *fakeRoles) Update(_ context.Context, rc domain.RequestContext, id int64, in domain.RoleInput) (domain.Role, error) {
	if f.err != nil {
		return domain.Role{}, f.err
	}
	f.inputs = append(f.inputs, in)
	return domain.Role{ID: id, Name: in.Name, GuardName: rc.GuardOrDefault()}, nil
}

func (f *fakeRoles) Delete(_ context.Context, _ domain.RequestContext, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePermissions struct {
	deleted []int64
	err     error
}

func (f *fakePermissions) Create(_ context.Context, rc domain.RequestContext, in domain.PermissionInput) (domain.Permission, error) {
	if f.err != nil {
		return domain.Permission{}, f.err
	}
	return domain.Permission{ID: 30, Name: in.Name, GroupName: in.Group, GuardName: rc.GuardOrDefault()}, nil
}

func (f *fakePermissions) Update(_ context.Context, rc domain.RequestContext, id int64, in domain.PermissionInput) (domain.Permission, error) {
	if f.err != nil {
		return domain.Permission{}, f.err
	}
	return domain.Permission{ID: id, Name: in.Name, GuardName: rc.GuardOrDefault()}, nil
}

func (f *fakePermissions) Delete(_ context.Context, _ domain.RequestContext, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type harness struct {
	router   *gin.Engine
	auth     services.AuthService
	lister   *fakeLister
	exporter *fakeExporter
	users    *fakeUsers
	roles    *fakeRoles
	perms    *fakePermissions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	auth := services.AuthService{Secret: []byte("test"), TTL: time.Hour, Revoked: services.NewRevocations()}
	hs := &harness{
		auth:     auth,
		lister:   &fakeLister{},
		exporter: &fakeExporter{},
		users:    &fakeUsers{},
		roles:    &fakeRoles{},
		perms:    &fakePermissions{},
	}
	env := intconfig.Env{
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		TenantBaseDomain:   "localhost",
		ExportRatePerMin:   2,
	}
	hs.router = NewRouter(env, Deps{
		API: &h.API{
			Lister:      hs.lister,
			Exporter:    hs.exporter,
			Auth:        auth,
			Users:       hs.users,
			Roles:       hs.roles,
			Permissions: hs.perms,
		},
		Tokens: auth,
	})
	return hs
}

func (hs *harness) token(t *testing.T, role, tenant string) string {
	t.Helper()
	guard := domain.GuardCentral
	if tenant != "" {
		guard = domain.GuardTenant
	}
	tok, err := hs.auth.Issue(services.Claims{UserID: 7, Role: role, Guard: guard, Tenant: tenant})
	require.NoError(t, err)
	return tok
}

func (hs *harness) do(method, target, token string, hdr map[string]string) *httptest.ResponseRecorder {
	return hs.send(method, target, token, "", hdr)
}

func (hs *harness) send(method, target, token, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	hs.router.ServeHTTP(w, req)
	return w
}

func TestListEnvelope(t *testing.T) {
	hs := newHarness(t)
	hs.lister.page = domain.Page{
		Rows:  domain.NumberRows([]domain.Record{domain.User{ID: 9, Name: "Zed"}, domain.User{ID: 4, Name: "Ana"}}),
		Total: 12,
	}

	w := hs.do(http.MethodGet, "/api/users?page=2&pageSize=2&search=a&sortCol=name&sortDir=desc", hs.token(t, "Admin", ""), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body struct {
		Meta struct {
			Total    int              `json:"total"`
			Page     int              `json:"page"`
			PageSize int              `json:"pageSize"`
			LastPage int              `json:"lastPage"`
			Guard    string           `json:"guard"`
			Stats    domain.UserStats `json:"stats"`
		} `json:"meta"`
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 12, body.Meta.Total)
	assert.Equal(t, 2, body.Meta.Page)
	assert.Equal(t, 6, body.Meta.LastPage)
	assert.Equal(t, domain.GuardCentral, body.Meta.Guard)
	assert.Equal(t, 3, body.Meta.Stats.TotalUsers)
	require.Len(t, body.Data, 2)
	assert.EqualValues(t, 9, body.Data[0]["id"])
	assert.EqualValues(t, 1, body.Data[0]["serial_number"])
	assert.Equal(t, "desc", hs.lister.lastQ.SortDir)
	assert.Equal(t, domain.ID(7), hs.lister.lastRC.UserID)
}

func TestListEmptyDataIsArray(t *testing.T) {
	hs := newHarness(t)
	w := hs.do(http.MethodGet, "/api/roles", hs.token(t, "Admin", ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestListRequiresToken(t *testing.T) {
	hs := newHarness(t)
	w := hs.do(http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = hs.do(http.MethodGet, "/api/users", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, hs.lister.calls)
}

func TestTenantTokenMustMatchWorkspace(t *testing.T) {
	hs := newHarness(t)
	tok := hs.token(t, "Owner", "acme")

	w := hs.do(http.MethodGet, "/api/roles", tok, map[string]string{"X-Tenant": "acme"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.GuardTenant, hs.lister.lastRC.Guard)

	w = hs.do(http.MethodGet, "/api/roles", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListErrorsMapToStatus(t *testing.T) {
	hs := newHarness(t)
	tok := hs.token(t, "Admin", "")

	w := hs.do(http.MethodGet, "/api/users?pageSize=500", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hs.do(http.MethodGet, "/api/users?page=100000000000000000&pageSize=100", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	hs.lister.err = domain.SearchUnavailableError{Resource: "users"}
	w = hs.do(http.MethodGet, "/api/users", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"retryable":true`)
}

func TestExportBadTypeRejectedBeforeWork(t *testing.T) {
	hs := newHarness(t)
	w := hs.do(http.MethodGet, "/api/users/export?type=docx", hs.token(t, "Admin", ""), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, hs.exporter.jobs)
}

func TestExportFile(t *testing.T) {
	hs := newHarness(t)
	hs.exporter.art = services.Artifact{
		Filename:    "users_report_2024-05-06_070809.pdf",
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.3"),
		Rows:        5000,
		Truncated:   true,
	}

	w := hs.do(http.MethodGet, "/api/users/export?type=pdf&ids=3,1,2&search=x", hs.token(t, "Admin", ""), map[string]string{"Origin": "http://localhost:3000"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename=users_report_2024-05-06_070809.pdf`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "true", w.Header().Get(h.TruncatedHeader))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	require.Len(t, hs.exporter.jobs, 1)
	job := hs.exporter.jobs[0]
	assert.Equal(t, domain.FormatDocument, job.Format)
	assert.Equal(t, domain.ScopeExplicitIDs, job.Scope)
	assert.Equal(t, []int64{3, 1, 2}, job.Query.IDs)
}

func TestExportPayload(t *testing.T) {
	hs := newHarness(t)
	hs.exporter.art = services.Artifact{Payload: &services.Payload{
		Columns: []services.PayloadColumn{{Key: "serial_number", Header: "#"}, {Key: "name", Header: "Name"}},
		Data:    []map[string]any{{"serial_number": 1, "id": 4, "name": "Ana"}},
	}}

	w := hs.do(http.MethodGet, "/api/permissions/export?format=copy", hs.token(t, "Admin", ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	var body services.Payload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Ana", body.Data[0]["name"])
}

func TestExportRateLimited(t *testing.T) {
	hs := newHarness(t)
	hs.exporter.art = services.Artifact{Payload: &services.Payload{}}
	tok := hs.token(t, "Admin", "")

	for i := 0; i < 2; i++ {
		w := hs.do(http.MethodGet, "/api/users/export?type=print", tok, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := hs.do(http.MethodGet, "/api/users/export?type=print", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestToggleStatusRequiresAdmin(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(http.MethodPost, "/api/users/5/toggle-status", hs.token(t, "Member", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = hs.do(http.MethodPost, "/api/users/5/toggle-status", hs.token(t, "Admin", ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{5}, hs.users.toggled)
	assert.Contains(t, w.Body.String(), "user deactivated")

	hs.users.err = domain.ForbiddenError{Msg: "the super admin cannot be modified"}
	w = hs.do(http.MethodPost, "/api/users/1/toggle-status", hs.token(t, "Admin", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = hs.do(http.MethodPost, "/api/users/abc/toggle-status", hs.token(t, "Admin", ""), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginAndMe(t *testing.T) {
	hash, err := services.HashPassword("secret")
	require.NoError(t, err)
	auth := services.AuthService{
		Users: credStore{"ana@acme.test": {
			User:         domain.User{ID: 3, Name: "Ana", Email: "ana@acme.test", IsActive: true, Roles: []string{"Admin"}},
			PasswordHash: hash,
		}},
		Secret: []byte("test"),
		TTL:    time.Hour,
	}
	r := NewRouter(intconfig.Env{TenantBaseDomain: "localhost"}, Deps{
		API:    &h.API{Lister: &fakeLister{}, Exporter: &fakeExporter{}, Auth: auth, Users: &fakeUsers{}},
		Tokens: auth,
	})

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := login(`{"email":"ana@acme.test","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = login(`{"email":"ana@acme.test","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string     `json:"token"`
		User  h.AuthUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Admin", resp.User.Role)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":3`)
}

func TestSystemRoutes(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/check", nil)
	req.Host = "acme.localhost:8080"
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tenant":"acme"`)
	assert.Contains(t, rec.Body.String(), `"acme.localhost"`)

	w = hs.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateUserRoute(t *testing.T) {
	hs := newHarness(t)
	body := `{"name":"Ana","email":"ana@acme.test","role":"Editor"}`

	w := hs.send(http.MethodPost, "/api/users", hs.token(t, "Member", ""), body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = hs.send(http.MethodPost, "/api/users", hs.token(t, "Admin", ""), `{"name":"Ana","email":"not-an-email","role":"Editor"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, hs.users.created)

	w = hs.send(http.MethodPost, "/api/users", hs.token(t, "Admin", ""), body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "user created")
	require.Len(t, hs.users.created, 1)
	assert.Equal(t, "Editor", hs.users.created[0].Role)

	hs.users.err = domain.ConflictError{Resource: "user", Msg: "email is already taken"}
	w = hs.send(http.MethodPost, "/api/users", hs.token(t, "Admin", ""), body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "email is already taken")
}

func TestShowUpdateDeleteUserRoutes(t *testing.T) {
	hs := newHarness(t)
	admin := hs.token(t, "Admin", "")

	w := hs.do(http.MethodGet, "/api/users/4", hs.token(t, "Member", ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":4`)

	w = hs.send(http.MethodPut, "/api/users/4", admin, `{"name":"Bo"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "user updated")

	w = hs.send(http.MethodPut, "/api/users/4", admin, `{"password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hs.do(http.MethodDelete, "/api/users/4", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{4}, hs.users.deleted)

	hs.users.err = domain.NotFoundError{Resource: "user"}
	w = hs.do(http.MethodGet, "/api/users/99", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleRoutes(t *testing.T) {
	hs := newHarness(t)
	hs.roles.perms = []domain.Permission{{ID: 21, Name: "orders.view", GroupName: "Orders", GuardName: domain.GuardTenant}}
	tok := hs.token(t, "Admin", "acme")
	tenant := map[string]string{"X-Tenant": "acme"}

	w := hs.do(http.MethodGet, "/api/roles/permissions", tok, tenant)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"guard":"tenant"`)
	assert.Contains(t, w.Body.String(), "orders.view")

	w = hs.send(http.MethodPost, "/api/roles", tok, `{"name":"Cashier","permissions":["orders.view"]}`, tenant)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "role created for tenant guard")

	w = hs.send(http.MethodPut, "/api/roles/11", tok, `{"name":"Clerk"}`, tenant)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, hs.roles.inputs, 2)
	assert.True(t, hs.roles.inputs[0].SyncPermissions)
	assert.False(t, hs.roles.inputs[1].SyncPermissions, "omitted permissions keep the current set")

	hs.roles.err = domain.ForbiddenError{Msg: "this role cannot be deleted"}
	w = hs.do(http.MethodDelete, "/api/roles/1", tok, tenant)
	assert.Equal(t, http.StatusForbidden, w.Code)

	hs.roles.err = nil
	w = hs.do(http.MethodDelete, "/api/roles/11", tok, tenant)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{11}, hs.roles.deleted)
}

func TestPermissionRoutes(t *testing.T) {
	hs := newHarness(t)
	admin := hs.token(t, "Admin", "")

	w := hs.send(http.MethodPost, "/api/permissions", admin, `{"name":"users.export","group_name":"Users"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"group_name":"Users"`)

	w = hs.send(http.MethodPost, "/api/permissions", admin, `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hs.send(http.MethodPut, "/api/permissions/30", admin, `{"name":"users.download"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = hs.do(http.MethodDelete, "/api/permissions/30", hs.token(t, "Member", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = hs.do(http.MethodDelete, "/api/permissions/30", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{30}, hs.perms.deleted)
}

func TestLogoutRevokesToken(t *testing.T) {
	hs := newHarness(t)
	tok := hs.token(t, "Member", "")
	other := hs.token(t, "Member", "")

	w := hs.do(http.MethodGet, "/api/user", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = hs.do(http.MethodPost, "/api/logout", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "logged out")

	w = hs.do(http.MethodGet, "/api/user", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = hs.do(http.MethodGet, "/api/user", other, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type credStore map[string]services.Credentials

func (s credStore) FindCredentials(_ context.Context, email string) (services.Credentials, error) {
	c, ok := s[email]
	if !ok {
		return services.Credentials{}, domain.NotFoundError{Resource: "user"}
	}
	return c, nil
}
