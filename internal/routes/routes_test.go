package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	rbac "github.com/bohemiyan/orgauthz"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	return newTestAppWith(t, nil)
}

func newTestAppWith(t *testing.T, employees EmployeeStore) *fiber.App {
	t.Helper()
	src := rbac.NewMemorySource()
	src.DefineRole("role-lead", "employees.view.personal.direct_reports", "employees.edit.basic.direct_reports")
	src.DefineRole("role-admin", "rbac.manage.company", "employees.view.sensitive.company")
	src.AssignRole("lead", rbac.AssignedRole{ID: "role-lead", Code: "lead"})
	src.AssignRole("admin", rbac.AssignedRole{ID: "role-admin", Code: "admin"})
	src.SetReportingLine("emp-1", "lead")

	reg := prometheus.NewRegistry()
	svc, err := rbac.NewRBACService(context.Background(), rbac.Config{Source: src, Metrics: rbac.NewMetrics(reg)})
	require.NoError(t, err)

	app := fiber.New()
	Setup(app, Deps{RBAC: svc, Employees: employees, Gatherer: reg})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, userID, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestHealthz(t *testing.T) {
	code, body := do(t, newTestApp(t), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestCheckPermission(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name     string
		userID   string
		body     string
		wantCode int
		want     checkResponse
	}{
		{"report", "lead", `{"permission":"employees.edit.basic","target_user_id":"emp-1"}`, http.StatusOK,
			checkResponse{Allowed: true, EffectiveScope: "direct_reports", EffectiveDataLevel: "basic"}},
		{"peer", "lead", `{"permission":"employees.edit.basic","target_user_id":"emp-2"}`, http.StatusOK,
			checkResponse{}},
		{"malformed", "lead", `{"permission":"employees"}`, http.StatusBadRequest, checkResponse{}},
		{"anonymous", "", `{"permission":"employees.view"}`, http.StatusUnauthorized, checkResponse{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, app, http.MethodPost, "/api/v1/permissions/check", tt.userID, tt.body)
			require.Equal(t, tt.wantCode, code, body)
			if code != http.StatusOK {
				return
			}
			var got checkResponse
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, body, "reason")
		})
	}
}

func TestMaxLevel(t *testing.T) {
	app := newTestApp(t)

	code, body := do(t, app, http.MethodGet, "/api/v1/permissions/max-level?resource=employees&target_user_id=emp-1", "lead", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"data_level":"personal"}`, body)

	code, body = do(t, app, http.MethodGet, "/api/v1/permissions/max-level?resource=employees&target_user_id=emp-2", "lead", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"data_level":null}`, body)

	code, _ = do(t, app, http.MethodGet, "/api/v1/permissions/max-level", "lead", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminRoutes(t *testing.T) {
	app := newTestApp(t)

	code, _ := do(t, app, http.MethodPost, "/api/v1/admin/cache/invalidate/lead", "lead", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, app, http.MethodPost, "/api/v1/admin/cache/invalidate/lead", "admin", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, app, http.MethodPost, "/api/v1/admin/cache/invalidate", "admin", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, body := do(t, app, http.MethodPut, "/api/v1/admin/field-sensitivities", "admin",
		`[{"table_name":"employees","field_name":"ssn","sensitivity":"basic"},{"table_name":"employees","field_name":"email","sensitivity":"top"}]`)
	require.Equal(t, http.StatusBadRequest, code)
	var resp struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Len(t, resp.Errors, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	do(t, app, http.MethodPost, "/api/v1/permissions/check", "lead", `{"permission":"employees.view"}`)

	code, body := do(t, app, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `rbac_decisions_total{action="view",outcome="denied",resource="employees"} 1`)
}

// fakeEmployees serves rows in insertion order.
type fakeEmployees []map[string]any

func (f fakeEmployees) Get(_ context.Context, id string) (map[string]any, bool, error) {
	for _, row := range f {
		if row["id"] == id {
			return row, true, nil
		}
	}
	return nil, false, nil
}

func (f fakeEmployees) List(_ context.Context, limit int) ([]map[string]any, error) {
	if limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

func TestListEmployees_ScopedGrantsSeeOwnRows(t *testing.T) {
	app := newTestAppWith(t, fakeEmployees{
		{"id": "emp-1", "first_name": "Ann", "password_hash": "x"},
		{"id": "emp-2", "first_name": "Bob", "password_hash": "y"},
		{"id": "lead", "first_name": "Lea", "password_hash": "z"},
	})

	ids := func(body string) []string {
		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &rows))
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			assert.NotContains(t, r, "password_hash")
			out = append(out, r["id"].(string))
		}
		return out
	}

	code, body := do(t, app, http.MethodGet, "/api/v1/employees", "lead", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []string{"emp-1", "lead"}, ids(body))

	code, body = do(t, app, http.MethodGet, "/api/v1/employees", "admin", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []string{"emp-1", "emp-2", "lead"}, ids(body))

	code, body = do(t, app, http.MethodGet, "/api/v1/employees", "emp-2", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []string{"emp-2"}, ids(body))

	code, _ = do(t, app, http.MethodGet, "/api/v1/employees", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestGetEmployee(t *testing.T) {
	app := newTestAppWith(t, fakeEmployees{
		{"id": "emp-1", "first_name": "Ann"},
		{"id": "emp-2", "first_name": "Bob"},
	})

	code, body := do(t, app, http.MethodGet, "/api/v1/employees/emp-1", "lead", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"emp-1","first_name":"Ann"}`, body)

	code, _ = do(t, app, http.MethodGet, "/api/v1/employees/emp-2", "lead", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, app, http.MethodGet, "/api/v1/employees/emp-3", "admin", "")
	assert.Equal(t, http.StatusNotFound, code)
}
