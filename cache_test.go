package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCache(userID string, ttl time.Duration) *PermissionCache {
	c := EmptyPermissionCache(userID, time.Now(), ttl)
	c.Permissions = NewStringSet("employees.view.personal.department", "employees.*")
	c.UnitGrants = []UnitGrant{{Kind: OrgUnitLOB, UnitID: "lob-tech", Permissions: NewStringSet("employees.view.basic.lob")}}
	c.Roles = []AssignedRole{{
		ID:                "role-mgr",
		Code:              "manager",
		ScopeType:         ScopeDepartment,
		ScopeID:           lo.ToPtr("dept-eng"),
		SensitivityAccess: DataLevelPersonal,
	}}
	c.Tags = NewStringSet("contractor")
	c.TagDenies = []TagRule{{ID: 9, Tag: "contractor", TargetTags: []string{"exec"}, PermissionCode: "employees.edit", Effect: TagEffectDeny, Priority: 3}}
	c.OrgContext.Departments = NewStringSet("dept-eng")
	c.OrgContext.DirectReports = NewStringSet("emp-1", "emp-2")
	c.OrgContext.Supervisors = NewStringSet("vp")
	return c
}

func TestMemoryCacheStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCacheStore(4, time.Minute)

	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)

	c := sampleCache("u1", time.Minute)
	require.NoError(t, s.Set(ctx, c))
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, c, got)

	require.NoError(t, s.Set(ctx, sampleCache("u2", time.Minute)))
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Invalidate(ctx, "u1"))
	_, err = s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryCacheStore_SkipsExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCacheStore(0, 0)

	require.NoError(t, s.Set(ctx, sampleCache("u1", -time.Second)))
	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.ErrorIs(t, s.Set(ctx, &PermissionCache{}), ErrInvalidInput)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCacheStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisCacheStore(client, "")

	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)

	want := sampleCache("u1", time.Minute)
	require.NoError(t, s.Set(ctx, want))
	assert.True(t, mr.Exists("rbac:perm:user:u1"))
	assert.Greater(t, mr.TTL("rbac:perm:user:u1"), time.Duration(0))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.True(t, want.LoadedAt.Equal(got.LoadedAt))
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, want.Permissions.Sorted(), got.Permissions.Sorted())
	assert.Equal(t, want.Tags.Sorted(), got.Tags.Sorted())
	assert.Equal(t, want.OrgContext.Departments.Sorted(), got.OrgContext.Departments.Sorted())
	assert.Equal(t, want.OrgContext.DirectReports.Sorted(), got.OrgContext.DirectReports.Sorted())
	assert.Equal(t, want.OrgContext.Supervisors.Sorted(), got.OrgContext.Supervisors.Sorted())
	assert.Empty(t, got.OrgContext.LOBs)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, "dept-eng", *got.Roles[0].ScopeID)
	require.Len(t, got.TagDenies, 1)
	assert.Equal(t, want.TagDenies[0].TargetTags, got.TagDenies[0].TargetTags)
	assert.Equal(t, TagEffectDeny, got.TagDenies[0].Effect)
	assert.Equal(t, want.UnitGrants, got.UnitGrants)

	// the decoded snapshot answers checks like the original
	cctx := CheckContext{TargetUserID: "emp-9", TargetDepartmentID: "dept-eng"}
	assert.Equal(t, Check(want, MustParsePermission("employees.view.personal"), cctx),
		Check(got, MustParsePermission("employees.view.personal"), cctx))
	inLOB := CheckContext{TargetUserID: "emp-9", TargetLOBID: "lob-tech"}
	res := Check(got, MustParsePermission("employees.view.basic"), inLOB)
	assert.True(t, res.Allowed)
	assert.Equal(t, ScopeLOB, res.EffectiveScope)
}

func TestRedisCacheStore_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisCacheStore(client, "app:")

	require.NoError(t, mr.Set("app:perm:user:u1", "not msgpack"))
	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheStore_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisCacheStore(client, "app:")

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.Set(ctx, sampleCache(id, time.Minute)))
	}
	require.NoError(t, mr.Set("app:other", "keep"))

	require.NoError(t, s.Invalidate(ctx, "u1"))
	assert.False(t, mr.Exists("app:perm:user:u1"))
	assert.True(t, mr.Exists("app:perm:user:u2"))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("app:perm:user:u2"))
	assert.False(t, mr.Exists("app:perm:user:u3"))
	assert.True(t, mr.Exists("app:other"))
}

func TestRedisCacheStore_ExpiredNotStored(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisCacheStore(client, "")

	require.NoError(t, s.Set(ctx, sampleCache("u1", -time.Second)))
	assert.False(t, mr.Exists("rbac:perm:user:u1"))
}
