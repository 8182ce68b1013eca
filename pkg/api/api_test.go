package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/api"
	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/ratelimit"
	"github.com/copr-farm/copr/pkg/store"
)

const backendPassword = "backend-pw"

type credentials struct {
	login, token string
}

type testServer struct {
	t      *testing.T
	ctx    context.Context
	logic  *logic.Logic
	router *mux.Router
	creds  map[string]credentials
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "copr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := &testServer{
		t:     t,
		ctx:   context.Background(),
		logic: logic.New(s, logic.Config{DistGitURL: "https://dist-git.example.com/git"}),
		creds: make(map[string]credentials),
	}

	for _, name := range []string{"fedora-18-x86_64", "fedora-rawhide-i386"} {
		_, err := ts.logic.MockChroots.Add(ts.ctx, name)
		require.NoError(t, err)
	}
	ts.addUser("user1", false)
	ts.addUser("user2", false)
	ts.addUser("adminuser", true)

	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(io.Discard)

	handler := api.NewHandler(ts.logic, logger, api.Config{BackendPassword: backendPassword, Limiter: limiter})
	ts.router = mux.NewRouter()
	handler.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) addUser(name string, admin bool) {
	user, err := ts.logic.Users.Add(ts.ctx, name, name+"@example.com", admin)
	require.NoError(ts.t, err)
	token, err := ts.logic.Users.GenerateToken(ts.ctx, user, 0)
	require.NoError(ts.t, err)
	ts.creds[name] = credentials{login: user.APILogin, token: token}
}

// do sends a request as user ("" is anonymous, "backend" uses the backend
// password). String bodies are sent raw, anything else as JSON.
func (ts *testServer) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	switch user {
	case "":
	case "backend":
		req.SetBasicAuth("backend", backendPassword)
	default:
		c, ok := ts.creds[user]
		require.True(ts.t, ok, "unknown user %s", user)
		req.SetBasicAuth(c.login, c.token)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func (ts *testServer) createCopr(user, name string) api.CoprResponse {
	rr := ts.do(http.MethodPost, "/api/coprs", user, api.CreateCoprRequest{
		Name:    name,
		Chroots: []string{"fedora-18-x86_64", "fedora-rawhide-i386"},
	})
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())
	var copr api.CoprResponse
	decode(ts.t, rr, &copr)
	return copr
}

func chrootStates(b api.BuildResponse) map[string]string {
	states := make(map[string]string, len(b.Chroots))
	for _, ch := range b.Chroots {
		states[ch.Name] = ch.Status
	}
	return states
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}

// TestRouteOrdering verifies that specific routes like /coprs/owned/{username}
// are registered before parameterized routes like /coprs/{owner}/{name}
func TestRouteOrdering(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	rr := ts.do(http.MethodGet, "/api/coprs/owned/user1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var page api.PageResponse
	decode(t, rr, &page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Coprs, 1)
	assert.Equal(t, "user1/foo", page.Coprs[0].FullName)

	rr = ts.do(http.MethodGet, "/api/coprs/search?q=user1/fo", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"full_name":"user1/foo"`)

	rr = ts.do(http.MethodGet, "/api/coprs/user1/foo", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateAndGetCopr(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.createCopr("user1", "foo")
	assert.Equal(t, "user1/foo", created.FullName)
	assert.ElementsMatch(t, []string{"fedora-18-x86_64", "fedora-rawhide-i386"}, created.Chroots)

	rr := ts.do(http.MethodGet, "/api/coprs/user1/foo", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var anon api.CoprResponse
	decode(t, rr, &anon)
	assert.Nil(t, anon.Permissions)

	rr = ts.do(http.MethodGet, "/api/coprs/user1/foo", "user2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var other api.CoprResponse
	decode(t, rr, &other)
	require.NotNil(t, other.Permissions)
	assert.False(t, other.Permissions.Builder)
	assert.False(t, other.Permissions.Owner)

	rr = ts.do(http.MethodGet, "/api/coprs/user1/foo", "user1", nil)
	var own api.CoprResponse
	decode(t, rr, &own)
	require.NotNil(t, own.Permissions)
	assert.True(t, own.Permissions.Owner)

	rr = ts.do(http.MethodPost, "/api/coprs", "user1", api.CreateCoprRequest{Name: "foo"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"duplicate"`)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   interface{}
		status int
		code   string
	}{
		{"anonymous write", http.MethodPost, "/api/coprs", "", api.CreateCoprRequest{Name: "x"}, http.StatusUnauthorized, "unauthorized"},
		{"persistent by non-admin", http.MethodPost, "/api/coprs", "user1", api.CreateCoprRequest{Name: "p", Persistent: true}, http.StatusForbidden, "insufficient_rights"},
		{"unknown project", http.MethodGet, "/api/coprs/user1/nope", "", nil, http.StatusNotFound, "not_found"},
		{"invalid body", http.MethodPost, "/api/coprs", "user1", "{not json", http.StatusBadRequest, "malformed_argument"},
		{"rename", http.MethodPut, "/api/coprs/user1/foo", "user1", map[string]string{"name": "bar"}, http.StatusBadRequest, "malformed_argument"},
		{"update by stranger", http.MethodPut, "/api/coprs/user1/foo", "user2", map[string]string{"description": "x"}, http.StatusForbidden, "insufficient_rights"},
		{"unknown build", http.MethodGet, "/api/builds/999", "", nil, http.StatusNotFound, "not_found"},
		{"bad action type", http.MethodGet, "/api/actions?type=bogus", "", nil, http.StatusBadRequest, "malformed_argument"},
		{"playground by user", http.MethodPut, "/api/coprs/user1/foo/playground", "user1", api.PlaygroundRequest{Playground: true}, http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			var body api.ErrorResponse
			decode(t, rr, &body)
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRejectedCredentials(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/coprs", nil)
	req.SetBasicAuth(ts.creds["user1"].login, "wrong-token")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDeleteCopr(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	rr := ts.do(http.MethodDelete, "/api/coprs/user1/foo", "user1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// the project is gone for lookups by name
	rr = ts.do(http.MethodGet, "/api/coprs/user1/foo", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodGet, "/api/actions?type=delete&result=waiting", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Actions []*models.Action `json:"actions"`
	}
	decode(t, rr, &body)
	require.Len(t, body.Actions, 1)
	assert.Equal(t, "user1/foo", body.Actions[0].OldValue)
}

func TestBuildLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	rr := ts.do(http.MethodPost, "/api/coprs/user1/foo/builds", "user1", api.CreateBuildRequest{
		Pkgs:       "http://example.com/foo-1.0-1.src.rpm",
		SkipImport: true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var build api.BuildResponse
	decode(t, rr, &build)
	assert.Equal(t, "pending", build.Status)
	assert.Equal(t, "foo", build.PackageName)
	assert.Equal(t, map[string]string{
		"fedora-18-x86_64":    "pending",
		"fedora-rawhide-i386": "pending",
	}, chrootStates(build))
	buildPath := fmt.Sprintf("/api/builds/%d", build.ID)

	rr = ts.do(http.MethodPost, "/api/coprs/user1/foo/builds", "user1", api.CreateBuildRequest{Pkgs: "a.src.rpm b.src.rpm"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// backend polls
	rr = ts.do(http.MethodGet, "/backend/waiting", "", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodGet, "/backend/waiting", "backend", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var waiting struct {
		Actions []*models.Action   `json:"actions"`
		Builds  []*api.BackendTask `json:"builds"`
	}
	decode(t, rr, &waiting)
	require.Len(t, waiting.Builds, 2)
	assert.Equal(t, "user1", waiting.Builds[0].ProjectOwner)
	assert.Equal(t, "foo", waiting.Builds[0].ProjectName)
	assert.Equal(t, "user1", waiting.Builds[0].Submitter)
	require.Len(t, waiting.Actions, 1)
	gpgAction := waiting.Actions[0]
	assert.Equal(t, models.ActionGenGPGKey, gpgAction.ActionType)

	rr = ts.do(http.MethodGet, fmt.Sprintf("/backend/actions/%d", gpgAction.ID), "backend", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodPost, "/backend/starting_build", "backend", api.StartingBuildRequest{BuildID: build.ID, Chroot: "fedora-18-x86_64"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"can_start": true}`, rr.Body.String())

	rr = ts.do(http.MethodPost, "/backend/update", "backend", api.BackendUpdateRequest{
		Actions: []models.ActionUpdate{
			{ID: gpgAction.ID, Result: models.ResultSuccess, EndedOn: 1700000000},
			{ID: 9999, Result: models.ResultSuccess},
		},
		Builds: []models.BuildChrootUpdate{
			{BuildID: build.ID, Chroot: "fedora-18-x86_64", Status: models.StatusSucceeded, EndedOn: 1700000100},
			{BuildID: 9999, Chroot: "fedora-18-x86_64", Status: models.StatusSucceeded},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated api.BackendUpdateResponse
	decode(t, rr, &updated)
	assert.Equal(t, []int64{gpgAction.ID}, updated.UpdatedActionsIDs)
	assert.Equal(t, []int64{9999}, updated.NonExistingActionsIDs)
	assert.Equal(t, []int64{build.ID}, updated.UpdatedBuildsIDs)
	assert.Equal(t, []int64{9999}, updated.NonExistingBuildsIDs)
	assert.Empty(t, updated.RejectedBuilds)

	// a finished chroot can't go back to running
	rr = ts.do(http.MethodPost, "/backend/update", "backend", api.BackendUpdateRequest{
		Builds: []models.BuildChrootUpdate{{BuildID: build.ID, Chroot: "fedora-18-x86_64", Status: models.StatusRunning}},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &updated)
	assert.Len(t, updated.RejectedBuilds, 1)

	// rawhide is still pending
	rr = ts.do(http.MethodDelete, buildPath, "user1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "action_in_progress")

	rr = ts.do(http.MethodPost, buildPath+"/cancel", "user2", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, buildPath+"/cancel", "user1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &build)
	assert.Equal(t, "canceled", build.Status)
	assert.Equal(t, map[string]string{
		"fedora-18-x86_64":    "succeeded",
		"fedora-rawhide-i386": "canceled",
	}, chrootStates(build))

	rr = ts.do(http.MethodPost, "/backend/starting_build", "backend", api.StartingBuildRequest{BuildID: build.ID, Chroot: "fedora-rawhide-i386"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"can_start": false}`, rr.Body.String())

	rr = ts.do(http.MethodDelete, buildPath, "user1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = ts.do(http.MethodGet, buildPath, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestImportingQueue(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	rr := ts.do(http.MethodPost, "/api/coprs/user1/foo/builds", "user1", api.CreateBuildRequest{
		Pkgs:    "http://example.com/foo-1.0-1.src.rpm",
		Chroots: []string{"fedora-18-x86_64"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodGet, "/backend/importing", "backend", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Builds []api.ImportTask `json:"builds"`
	}
	decode(t, rr, &body)
	require.Len(t, body.Builds, 1)
	assert.Equal(t, []string{"fedora-18-x86_64"}, body.Builds[0].Chroots)
	assert.Equal(t, "foo", body.Builds[0].PackageName)
}

func TestPermissionsFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")
	build := api.CreateBuildRequest{Pkgs: "http://example.com/foo-1.0-1.src.rpm", SkipImport: true}

	rr := ts.do(http.MethodPost, "/api/coprs/user1/foo/builds", "user2", build)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/api/coprs/user1/foo/permissions/request", "user2", api.RequestPermissionsRequest{CoprBuilder: models.PermissionRequest})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodPut, "/api/coprs/user1/foo/permissions", "user2", api.UpdatePermissionsRequest{
		Permissions: []api.PermissionChange{{Username: "user2", CoprBuilder: models.PermissionApproved}},
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPut, "/api/coprs/user1/foo/permissions", "user1", api.UpdatePermissionsRequest{
		Permissions: []api.PermissionChange{{Username: "user2", CoprBuilder: models.PermissionApproved}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodGet, "/api/coprs/user1/foo/permissions", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var perms struct {
		Permissions []*models.CoprPermission `json:"permissions"`
	}
	decode(t, rr, &perms)
	require.Len(t, perms.Permissions, 1)
	assert.Equal(t, models.PermissionApproved, perms.Permissions[0].CoprBuilder)

	rr = ts.do(http.MethodPost, "/api/coprs/user1/foo/builds", "user2", build)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodGet, "/api/coprs/allowed/user2", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page api.PageResponse
	decode(t, rr, &page)
	assert.Equal(t, 1, page.Total)
}

func TestRequestPermissionsCannotApprove(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	rr := ts.do(http.MethodPut, "/api/coprs/user1/foo", "user2", map[string]string{"description": "changed"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/api/coprs/user1/foo/permissions/request", "user2", api.RequestPermissionsRequest{
		CoprBuilder: models.PermissionApproved,
		CoprAdmin:   models.PermissionApproved,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var perm models.CoprPermission
	decode(t, rr, &perm)
	assert.Equal(t, models.PermissionRequest, perm.CoprBuilder)
	assert.Equal(t, models.PermissionRequest, perm.CoprAdmin)

	rr = ts.do(http.MethodPut, "/api/coprs/user1/foo", "user2", map[string]string{"description": "changed"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/api/coprs/user1/foo/builds", "user2", api.CreateBuildRequest{Pkgs: "http://example.com/foo-1.0-1.src.rpm"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestChrootFiles(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")
	compsPath := "/api/coprs/user1/foo/chroots/fedora-18-x86_64/comps"

	rr := ts.do(http.MethodGet, compsPath, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodPut, compsPath, "user2", "<comps/>")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPut, compsPath+"?filename=my-comps.xml", "user1", "<comps/>")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var cc api.CoprChrootResponse
	decode(t, rr, &cc)
	assert.Equal(t, "my-comps.xml", cc.CompsName)

	rr = ts.do(http.MethodGet, compsPath, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<comps/>", rr.Body.String())
	assert.Equal(t, "application/xml", rr.Header().Get("Content-Type"))

	rr = ts.do(http.MethodDelete, compsPath, "user1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(http.MethodGet, compsPath, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodGet, "/api/actions?type=update_comps", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Actions []*models.Action `json:"actions"`
	}
	decode(t, rr, &body)
	assert.Len(t, body.Actions, 2)

	rr = ts.do(http.MethodPut, "/api/coprs/user1/foo/chroots/fedora-18-x86_64", "user1", map[string]string{"repos": "http://a\nhttp://b"})
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &cc)
	assert.Equal(t, "http://a http://b", cc.Repos)

	rr = ts.do(http.MethodDelete, "/api/coprs/user1/foo/chroots/fedora-rawhide-i386", "user1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(http.MethodGet, "/api/coprs/user1/foo/chroots", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "fedora-rawhide-i386")
}

func TestMockChrootAdmin(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodPost, "/api/mock_chroots", "user1", api.MockChrootRequest{Name: "epel-7-x86_64"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/api/mock_chroots", "adminuser", api.MockChrootRequest{Name: "epel-7-x86_64"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"name":"epel-7-x86_64"`)

	rr = ts.do(http.MethodPost, "/api/mock_chroots", "adminuser", api.MockChrootRequest{Name: "epel-7-x86_64"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	inactive := false
	rr = ts.do(http.MethodPut, "/api/mock_chroots/epel-7-x86_64", "adminuser", api.MockChrootRequest{IsActive: &inactive})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"is_active":false`)

	rr = ts.do(http.MethodGet, "/api/mock_chroots?active_only=true", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "epel-7-x86_64")

	rr = ts.do(http.MethodDelete, "/api/mock_chroots/epel-7-x86_64", "adminuser", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(http.MethodDelete, "/api/mock_chroots/epel-7-x86_64", "adminuser", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestForkAndRawhide(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createCopr("user1", "foo")

	rr := ts.do(http.MethodPost, "/api/coprs/user1/foo/fork", "user2", api.ForkRequest{Name: "foo-fork"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var fork api.CoprResponse
	decode(t, rr, &fork)
	assert.Equal(t, "user2/foo-fork", fork.FullName)

	rr = ts.do(http.MethodPost, "/api/mock_chroots", "adminuser", api.MockChrootRequest{Name: "fedora-19-i386"})
	require.Equal(t, http.StatusCreated, rr.Code)

	req := api.RawhideToReleaseRequest{RawhideChroot: "fedora-rawhide-i386", DestChroot: "fedora-19-i386"}
	rr = ts.do(http.MethodPost, "/api/admin/rawhide_to_release", "user1", req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/api/admin/rawhide_to_release", "adminuser", req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"branched": 2}`, rr.Body.String())
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, ratelimit.NewLimiter(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(http.MethodGet, "/api/coprs", "", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health is not throttled
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", nil).Code)
}
