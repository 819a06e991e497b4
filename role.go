package rbac

import (
	"context"
	"time"
)

type roleAssignmentRow struct {
	RoleID            string
	Code              string
	Name              string
	HierarchyLevel    int
	SensitivityAccess DataLevel
	ScopeType         Scope
	ScopeID           *string
	ExpiresAt         *time.Time
}

// ActiveRoleAssignments returns the roles userID holds right now.
func (s *GormSource) ActiveRoleAssignments(ctx context.Context, userID string) ([]AssignedRole, error) {
	var rows []roleAssignmentRow
	err := s.db.WithContext(ctx).
		Table("employee_roles AS er").
		Select("er.role_id, r.code, r.name, r.hierarchy_level, r.sensitivity_access, er.scope_type, er.scope_id, er.expires_at").
		Joins("JOIN roles r ON r.id = er.role_id AND r.deleted_at IS NULL").
		Where("er.employee_id = ? AND er.deleted_at IS NULL", userID).
		Where("(er.expires_at IS NULL OR er.expires_at > ?)", s.now()).
		Order("r.hierarchy_level DESC, r.code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	roles := make([]AssignedRole, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, AssignedRole{
			ID:                row.RoleID,
			Code:              row.Code,
			Name:              row.Name,
			ScopeType:         row.ScopeType,
			ScopeID:           row.ScopeID,
			HierarchyLevel:    row.HierarchyLevel,
			SensitivityAccess: row.SensitivityAccess,
			ExpiresAt:         row.ExpiresAt,
		})
	}
	return roles, nil
}

// RolePermissions maps each role ID to the permission codes it grants.
func (s *GormSource) RolePermissions(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return out, nil
	}
	var rows []RolePermission
	if err := s.db.WithContext(ctx).
		Where("role_id IN ?", roleIDs).
		Order("role_id, permission_code").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, rp := range rows {
		out[rp.RoleID] = append(out[rp.RoleID], rp.PermissionCode)
	}
	return out, nil
}
