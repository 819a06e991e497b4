package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRBACService_ConfigErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no source", Config{}},
		{"audit without db", Config{Source: NewMemorySource(), EnableAuditLogging: true}},
		{"redis without client", Config{Source: NewMemorySource(), CacheBackend: CacheBackendRedis}},
		{"unknown backend", Config{Source: NewMemorySource(), CacheBackend: "disk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRBACService(ctx, tt.cfg)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRBACService_CheckAndInvalidate(t *testing.T) {
	ctx := context.Background()
	src := newOrgSource()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc, err := NewRBACService(ctx, Config{Source: src, Metrics: metrics})
	require.NoError(t, err)

	target := CheckContext{TargetUserID: "emp-1"}
	res, err := svc.CheckPermission(ctx, "mgr", "employees.edit.basic", target)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, ScopeDirectReports, res.EffectiveScope)

	_, err = svc.CheckPermission(ctx, "mgr", "employees", target)
	require.ErrorIs(t, err, ErrMalformedPermission)

	src.SetTags("mgr", "probation")
	src.AddTagRule(TagRule{ID: 1, Tag: "probation", PermissionCode: "employees.edit", Effect: TagEffectDeny})

	// the snapshot is reused until invalidated
	res, err = svc.CheckPermission(ctx, "mgr", "employees.edit.basic", target)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, svc.InvalidateUser(ctx, "mgr"))
	res, err = svc.CheckPermission(ctx, "mgr", "employees.edit.basic", target)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.decisions.WithLabelValues("employees", "edit", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues("employees", "edit", "denied")))
	require.ErrorIs(t, svc.InvalidateUser(ctx, ""), ErrInvalidInput)
}

func TestRBACService_DataLevels(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newOrgSource())
	peer := CheckContext{TargetUserID: "emp-7", TargetDepartmentID: "dept-eng"}

	ok, err := svc.CanAccessDataLevel(ctx, "mgr", "employees", "view", DataLevelPersonal, peer)
	require.NoError(t, err)
	assert.True(t, ok)

	level, ok, err := svc.GetMaxDataLevel(ctx, "mgr", "employees", "view", peer)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DataLevelPersonal, level)

	fields, err := svc.AllowedFields(ctx, "mgr", "employees", []string{"first_name", "email", "salary"}, peer)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name", "email"}, fields)

	fields, err = svc.EditableFields(ctx, "mgr", "employees", []string{"first_name", "email"}, CheckContext{TargetUserID: "emp-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name"}, fields)

	canEdit, err := svc.CanEditColumn(ctx, "mgr", "employees", "first_name", peer)
	require.NoError(t, err)
	assert.False(t, canEdit)
}

func TestRBACService_MaskUsersData(t *testing.T) {
	ctx := context.Background()
	src := newOrgSource()
	src.AddMembership("emp-1", OrgUnitDepartment, "dept-eng")
	src.AddMembership("emp-9", OrgUnitDepartment, "dept-sales")
	svc := newTestService(t, src)

	records := []map[string]any{
		{"id": "emp-1", "first_name": "Ann", "email": "ann.lee@example.com", "password_hash": "x"},
		{"id": "emp-9", "first_name": "Bob", "email": "bob.ray@example.com", "password_hash": "y"},
		{"first_name": "Cy", "email": "cy@example.com"},
	}
	got, err := svc.MaskUsersData(ctx, "mgr", "employees", "id", records, MaskOptions{OmitFields: []string{"password_hash"}})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "ann.lee@example.com", got[0]["email"])
	assert.Equal(t, "b••••y@example.com", got[1]["email"])
	assert.Equal(t, "c••••@example.com", got[2]["email"])
	assert.Equal(t, "Bob", got[1]["first_name"])
	for _, r := range got {
		assert.NotContains(t, r, "password_hash")
	}

	// viewing yourself reveals personal fields without any grant
	self, err := svc.MaskUserData(ctx, "emp-9", "employees", records[1], CheckContext{TargetUserID: "emp-9"}, MaskOptions{})
	require.NoError(t, err)
	assert.Equal(t, "bob.ray@example.com", self["email"])
}

func TestRBACService_VisibleUsersData(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	src.DefineRole("role-helpdesk", "employees.view.basic.department")
	src.AssignRole("desk", AssignedRole{ID: "role-helpdesk", Code: "helpdesk", ScopeType: ScopeDepartment, ScopeID: lo.ToPtr("dept-sales")})
	src.AddMembership("desk", OrgUnitDepartment, "dept-it")
	src.AddMembership("s1", OrgUnitDepartment, "dept-sales")
	src.AddMembership("i1", OrgUnitDepartment, "dept-it")
	svc := newTestService(t, src)

	records := []map[string]any{
		{"id": "s1", "email": "sam@example.com"},
		{"id": "i1", "email": "ivy@example.com"},
		{"id": "desk", "email": "desk@example.com"},
		{"email": "nobody@example.com"},
	}
	got, err := svc.VisibleUsersData(ctx, "desk", "employees", "id", records, MaskOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0]["id"])
	assert.Equal(t, "s••••m@example.com", got[0]["email"])
	assert.Equal(t, "desk@example.com", got[1]["email"])

	masked, err := svc.MaskUsersData(ctx, "desk", "employees", "id", records, MaskOptions{})
	require.NoError(t, err)
	assert.Len(t, masked, len(records))
}

func TestRBACService_CheckBulkPermissions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newOrgSource())

	var checks []BulkPermissionCheck
	for i := 0; i < 25; i++ {
		code := "employees.edit.basic"
		target := CheckContext{TargetUserID: "emp-1"}
		switch i % 3 {
		case 1:
			target = CheckContext{TargetUserID: "stranger"}
		case 2:
			code = "employees"
		}
		checks = append(checks, BulkPermissionCheck{UserID: "mgr", Permission: code, Target: target})
	}

	results := svc.CheckBulkPermissions(ctx, checks)
	require.Len(t, results, len(checks))
	for i, r := range results {
		assert.Equal(t, checks[i].Permission, r.Permission)
		switch i % 3 {
		case 0:
			assert.True(t, r.Result.Allowed, i)
		case 1:
			assert.False(t, r.Result.Allowed, i)
			assert.NoError(t, r.Error, i)
		case 2:
			assert.ErrorIs(t, r.Error, ErrMalformedPermission, i)
		}
	}
	assert.Empty(t, svc.CheckBulkPermissions(ctx, nil))
	require.NoError(t, svc.InvalidateUsers(ctx, []string{"mgr", "emp-1"}))
}

func TestRBACService_RedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewRBACService(ctx, Config{
		Source:       newOrgSource(),
		RedisClient:  client,
		CacheBackend: CacheBackendRedis,
		CachePrefix:  "test:",
		CacheTTL:     time.Minute,
	})
	require.NoError(t, err)

	res, err := svc.CheckPermission(ctx, "mgr", "employees.edit.basic", CheckContext{TargetUserID: "emp-2"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, mr.Exists("test:perm:user:mgr"))

	require.NoError(t, svc.InvalidateAll(ctx))
	assert.False(t, mr.Exists("test:perm:user:mgr"))
}

func TestRBACService_RegistryRefreshOnStart(t *testing.T) {
	src := NewMemorySource()
	src.SetOverrides(FieldSensitivity{TableName: "employees", FieldName: "job_title", Sensitivity: DataLevelCompany})
	svc := newTestService(t, src)

	assert.Equal(t, DataLevelCompany, svc.Registry().Lookup("employees", "job_title").Sensitivity)
}
