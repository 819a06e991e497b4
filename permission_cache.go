package rbac

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// DefaultCacheTTL is how long a loaded PermissionCache stays valid.
const DefaultCacheTTL = 5 * time.Minute

// StringSet is an unordered set of identifiers.
type StringSet map[string]struct{}

// NewStringSet builds a set from items, skipping empty strings.
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, item := range items {
		if item != "" {
			s[item] = struct{}{}
		}
	}
	return s
}

// Has reports whether v is in the set. A nil set contains nothing.
func (s StringSet) Has(v string) bool {
	if v == "" {
		return false
	}
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s StringSet) Sorted() []string {
	out := lo.Keys(s)
	slices.Sort(out)
	return out
}

// Intersects reports whether any of values is a member.
func (s StringSet) Intersects(values []string) bool {
	return lo.SomeBy(values, s.Has)
}

// OrgContext is the organizational position of a user at load time.
type OrgContext struct {
	UserID        string
	Departments   StringSet
	LOBs          StringSet
	Divisions     StringSet
	Locations     StringSet
	DirectReports StringSet
	Supervisors   StringSet
}

// NewOrgContext returns an OrgContext with every set initialised.
func NewOrgContext(userID string) OrgContext {
	return OrgContext{
		UserID:        userID,
		Departments:   StringSet{},
		LOBs:          StringSet{},
		Divisions:     StringSet{},
		Locations:     StringSet{},
		DirectReports: StringSet{},
		Supervisors:   StringSet{},
	}
}

// AssignedRole is a role as held by one user, possibly limited to an org unit
// and possibly time bounded.
type AssignedRole struct {
	ID                string
	Code              string
	Name              string
	ScopeType         Scope
	ScopeID           *string
	HierarchyLevel    int
	SensitivityAccess DataLevel
	ExpiresAt         *time.Time
}

// Active reports whether the assignment is still in force at now.
func (r AssignedRole) Active(now time.Time) bool {
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// unitKind returns the org unit a scoped assignment is limited to, if any.
func (r AssignedRole) unitKind() (OrgUnitKind, bool) {
	if r.ScopeID == nil || *r.ScopeID == "" {
		return "", false
	}
	switch r.ScopeType {
	case ScopeDepartment:
		return OrgUnitDepartment, true
	case ScopeLOB:
		return OrgUnitLOB, true
	case ScopeDivision:
		return OrgUnitDivision, true
	}
	return "", false
}

// UnitGrant holds the permissions of role assignments limited to one org
// unit. They only ever reach targets inside that unit.
type UnitGrant struct {
	Kind        OrgUnitKind
	UnitID      string
	Permissions StringSet
}

func (g UnitGrant) scope() Scope {
	switch g.Kind {
	case OrgUnitLOB:
		return ScopeLOB
	case OrgUnitDivision:
		return ScopeDivision
	}
	return ScopeDepartment
}

// covers validates a grant held at scope s through this unit. The target
// must sit inside the unit itself; the user's own memberships and reports
// never widen it. A narrower s must also hold on its own terms.
func (g UnitGrant) covers(base OrgContext, s Scope, cctx CheckContext) (Scope, bool, string) {
	eff := g.scope()
	unit := NewOrgContext("")
	unit.add(g.Kind, g.UnitID)
	if ok, why := ValidateScope(unit, eff, cctx); !ok {
		return eff, false, why
	}
	if s == "" || s.Covers(eff) {
		return eff, true, ""
	}
	ok, why := ValidateScope(base, s, cctx)
	return s, ok, why
}

// PermissionCache is an immutable snapshot of everything needed to answer
// authorization questions for one user. A stale snapshot is replaced, never
// updated in place.
type PermissionCache struct {
	UserID      string
	LoadedAt    time.Time
	ExpiresAt   time.Time
	Permissions StringSet
	UnitGrants  []UnitGrant
	Roles       []AssignedRole
	Tags        StringSet
	TagGrants   []TagRule
	TagDenies   []TagRule
	OrgContext  OrgContext
}

// EmptyPermissionCache is the snapshot of a user with nothing granted.
func EmptyPermissionCache(userID string, loadedAt time.Time, ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		UserID:      userID,
		LoadedAt:    loadedAt,
		ExpiresAt:   loadedAt.Add(ttl),
		Permissions: StringSet{},
		Tags:        StringSet{},
		OrgContext:  NewOrgContext(userID),
	}
}

// Expired reports whether the snapshot must be rebuilt.
func (c *PermissionCache) Expired(now time.Time) bool {
	return c == nil || now.After(c.ExpiresAt)
}

// Empty reports whether the snapshot can never allow anything.
func (c *PermissionCache) Empty() bool {
	return c == nil || (len(c.Permissions) == 0 && len(c.UnitGrants) == 0 && len(c.TagGrants) == 0)
}

// Has reports whether the exact permission code was granted by a role.
func (c *PermissionCache) Has(code string) bool {
	return c != nil && c.Permissions.Has(code)
}

// RoleCodes lists the codes of the user's roles.
func (c *PermissionCache) RoleCodes() []string {
	if c == nil {
		return nil
	}
	return lo.Map(c.Roles, func(r AssignedRole, _ int) string { return r.Code })
}
