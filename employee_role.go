package rbac

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AssignRole creates a new employee-role mapping and drops the employee's
// permission cache.
func (s *RBACService) AssignRole(ctx context.Context, actorID string, assignment EmployeeRole) (*EmployeeRole, error) {
	if s.db == nil || assignment.EmployeeID == "" || assignment.RoleID == "" {
		return nil, ErrInvalidInput
	}
	if assignment.ScopeType != "" && !assignment.ScopeType.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, assignment.ScopeType)
	}

	// Validate role exists
	var role Role
	if err := s.db.WithContext(ctx).First(&role, "id = ?", assignment.RoleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	if err := s.InvalidateUser(ctx, assignment.EmployeeID); err != nil {
		return nil, err
	}
	if s.auditEnabled {
		s.logAudit(ctx, actorID, "assign_role", "employee_role", assignment.EmployeeID, true, "Assigned role "+role.Code)
	}
	return &assignment, nil
}

// RevokeRole soft-deletes every assignment of roleID to employeeID.
func (s *RBACService) RevokeRole(ctx context.Context, actorID, employeeID, roleID string) error {
	if s.db == nil || employeeID == "" || roleID == "" {
		return ErrInvalidInput
	}

	res := s.db.WithContext(ctx).
		Where("employee_id = ? AND role_id = ?", employeeID, roleID).
		Delete(&EmployeeRole{})
	if res.Error != nil {
		return fmt.Errorf("failed to revoke role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if err := s.InvalidateUser(ctx, employeeID); err != nil {
		return err
	}
	if s.auditEnabled {
		s.logAudit(ctx, actorID, "revoke_role", "employee_role", employeeID, true, "Removed role "+roleID)
	}
	return nil
}

// ListEmployeeRoles retrieves all current role assignments for an employee.
func (s *RBACService) ListEmployeeRoles(ctx context.Context, employeeID string) ([]EmployeeRole, error) {
	if s.db == nil || employeeID == "" {
		return nil, ErrInvalidInput
	}

	var empRoles []EmployeeRole
	if err := s.db.WithContext(ctx).Where("employee_id = ?", employeeID).Find(&empRoles).Error; err != nil {
		return nil, err
	}
	return empRoles, nil
}
