package rbac

import "context"

// OrgUnitKind names the kind of organizational unit a membership refers to.
type OrgUnitKind string

const (
	OrgUnitDepartment OrgUnitKind = "department"
	OrgUnitLOB        OrgUnitKind = "lob"
	OrgUnitDivision   OrgUnitKind = "division"
	OrgUnitLocation   OrgUnitKind = "location"
)

// OrgMembership records that a user belongs to an org unit.
type OrgMembership struct {
	Kind   OrgUnitKind
	UnitID string
}

// DataSource is the read-only port the Loader builds snapshots from.
//
// Relations that are not provisioned in the backing store must yield empty
// results, not errors. Errors are reserved for real failures.
type DataSource interface {
	// ActiveRoleAssignments returns the user's non-expired role assignments.
	ActiveRoleAssignments(ctx context.Context, userID string) ([]AssignedRole, error)
	// RolePermissions maps role IDs to the permission codes they grant.
	RolePermissions(ctx context.Context, roleIDs []string) (map[string][]string, error)
	UserTags(ctx context.Context, userID string) ([]string, error)
	// TagRules returns grant and deny rules activated by any of tags.
	TagRules(ctx context.Context, tags []string) ([]TagRule, error)
	OrgMemberships(ctx context.Context, userID string) ([]OrgMembership, error)
	DirectReports(ctx context.Context, userID string) ([]string, error)
	Supervisors(ctx context.Context, userID string) ([]string, error)
	FieldSensitivityOverrides(ctx context.Context) ([]FieldSensitivity, error)
	// TargetContext describes a user as the target of a check: primary org
	// placement and tags. Unknown users yield a context with only the ID set.
	TargetContext(ctx context.Context, userID string) (CheckContext, error)
}
