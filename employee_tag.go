package rbac

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// AddTag attaches tag to an employee and drops their permission cache.
func (s *RBACService) AddTag(ctx context.Context, actorID, employeeID, tag string) error {
	tag = strings.TrimSpace(tag)
	if s.db == nil || employeeID == "" || tag == "" {
		return ErrInvalidInput
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&EmployeeTag{EmployeeID: employeeID, Tag: tag}).Error; err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}

	if err := s.InvalidateUser(ctx, employeeID); err != nil {
		return err
	}
	if s.auditEnabled {
		s.logAudit(ctx, actorID, "add_tag", "employee_tag", employeeID, true, "Added tag "+tag)
	}
	return nil
}

// RemoveTag detaches tag from an employee and drops their permission cache.
func (s *RBACService) RemoveTag(ctx context.Context, actorID, employeeID, tag string) error {
	if s.db == nil || employeeID == "" || tag == "" {
		return ErrInvalidInput
	}

	res := s.db.WithContext(ctx).
		Where("employee_id = ? AND tag = ?", employeeID, tag).
		Delete(&EmployeeTag{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if err := s.InvalidateUser(ctx, employeeID); err != nil {
		return err
	}
	if s.auditEnabled {
		s.logAudit(ctx, actorID, "remove_tag", "employee_tag", employeeID, true, "Removed tag "+tag)
	}
	return nil
}

// UpdateFieldSensitivities validates and upserts overrides, then reloads the
// registry and drops every permission cache. Nothing is stored when any
// override is invalid.
func (s *RBACService) UpdateFieldSensitivities(ctx context.Context, actorID string, configs []FieldSensitivity) error {
	if err := s.registry.Validate(configs); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("%w: field sensitivities need a database", ErrInvalidInput)
	}

	rows := make([]FieldSensitivityOverride, 0, len(configs))
	for _, fs := range configs {
		table := fs.TableName
		if table == "" {
			table = AnyTable
		}
		masking := fs.MaskingType
		if masking == "" {
			masking = MaskFull
		}
		rows = append(rows, FieldSensitivityOverride{
			Table:          table,
			FieldName:      strings.ToLower(fs.FieldName),
			Sensitivity:    fs.Sensitivity,
			MaskingType:    masking,
			MinSensitivity: fs.MinSensitivity,
			DisplayOrder:   fs.DisplayOrder,
		})
	}
	if len(rows) > 0 {
		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to store field sensitivities: %w", err)
		}
	}

	if err := s.registry.Refresh(ctx); err != nil {
		return err
	}
	if err := s.InvalidateAll(ctx); err != nil {
		return err
	}
	if s.auditEnabled {
		s.logAudit(ctx, actorID, "update_field_sensitivities", "field_sensitivity", "", true,
			fmt.Sprintf("Updated %d field sensitivities", len(rows)))
	}
	return nil
}
