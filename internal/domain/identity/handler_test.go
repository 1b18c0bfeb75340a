package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinops/clinops/internal/platform/auth"
	"github.com/clinops/clinops/internal/platform/errs"
)

func newTestServer(f *fixture) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = errs.HTTPErrorHandler(e.DefaultHTTPErrorHandler)
	NewHandler(f.resolver).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func doAs(e *echo.Echo, userID uuid.UUID, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlerGrantRole(t *testing.T) {
	f := newFixture()
	admin := f.addUser(true)
	adminRole := f.addRole(RoleAdmin, true, PermRoleAdminister)
	f.assign(admin, adminRole, time.Now().Add(-time.Hour), nil)
	target := f.addUser(true)
	f.addRole(RoleNurse, true, PermPlanManage)

	e := newTestServer(f)
	body := `{"user_id":"` + target.String() + `","role_code":"NURSE"}`
	rec := doAs(e, admin, http.MethodPost, "/api/v1/role-assignments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var a RoleAssignment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if a.UserID != target || a.GrantedBy != admin {
		t.Errorf("unexpected assignment: %+v", a)
	}
}

func TestHandlerGrantRole_RequiresAdministerPermission(t *testing.T) {
	f := newFixture()
	nurse := f.addUser(true)
	nurseRole := f.addRole(RoleNurse, true, PermPlanManage)
	f.assign(nurse, nurseRole, time.Now().Add(-time.Hour), nil)
	target := f.addUser(true)

	e := newTestServer(f)
	body := `{"user_id":"` + target.String() + `","role_code":"NURSE"}`
	rec := doAs(e, nurse, http.MethodPost, "/api/v1/role-assignments", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandlerRevoke(t *testing.T) {
	f := newFixture()
	admin := f.addUser(true)
	adminRole := f.addRole(RoleAdmin, true, PermRoleAdminister)
	f.assign(admin, adminRole, time.Now().Add(-time.Hour), nil)
	user := f.addUser(true)
	role := f.addRole(RoleNurse, true)
	a := f.assign(user, role, time.Now().Add(-time.Hour), nil)

	e := newTestServer(f)
	rec := doAs(e, admin, http.MethodPost, "/api/v1/role-assignments/"+a.ID.String()+"/revoke", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second revoke surfaces the conflict to the client.
	rec = doAs(e, admin, http.MethodPost, "/api/v1/role-assignments/"+a.ID.String()+"/revoke", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double revoke, got %d", rec.Code)
	}
}

func TestHandlerEffectivePermissions_SelfAndOther(t *testing.T) {
	f := newFixture()
	user := f.addUser(true)
	role := f.addRole(RoleClinician, true, PermEncounterSignOff)
	f.assign(user, role, time.Now().Add(-time.Hour), nil)
	other := f.addUser(true)

	e := newTestServer(f)

	rec := doAs(e, user, http.MethodGet, "/api/v1/users/"+user.String()+"/permissions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("self lookup: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var g Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !g.HasPermission(PermEncounterSignOff) {
		t.Errorf("expected sign-off permission, got %v", g.Permissions)
	}

	rec = doAs(e, other, http.MethodGet, "/api/v1/users/"+user.String()+"/permissions", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin lookup of another user: expected 403, got %d", rec.Code)
	}
}

func TestHandlerEffectivePermissions_AsOf(t *testing.T) {
	f := newFixture()
	user := f.addUser(true)
	role := f.addRole(RoleNurse, true, PermPlanManage)
	until := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	f.assign(user, role, until.Add(-30*24*time.Hour), &until)

	e := newTestServer(f)

	before := until.Add(-time.Hour).Format(time.RFC3339)
	rec := doAs(e, user, http.MethodGet, "/api/v1/users/"+user.String()+"/permissions?as_of="+before, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var g Grant
	_ = json.Unmarshal(rec.Body.Bytes(), &g)
	if !g.HasPermission(PermPlanManage) {
		t.Error("expected permission before expiry")
	}

	rec = doAs(e, user, http.MethodGet, "/api/v1/users/"+user.String()+"/permissions?as_of="+until.Format(time.RFC3339), "")
	var g2 Grant
	_ = json.Unmarshal(rec.Body.Bytes(), &g2)
	if g2.HasPermission(PermPlanManage) {
		t.Error("expiry instant must exclude the assignment")
	}

	rec = doAs(e, user, http.MethodGet, "/api/v1/users/"+user.String()+"/permissions?as_of=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed as_of, got %d", rec.Code)
	}
}
