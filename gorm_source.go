package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// capabilities records which optional relations exist in the database.
// Absent relations read as empty without issuing a query.
type capabilities struct {
	tags           bool
	tagRules       bool
	orgAssignments bool
	reportingLines bool
	departments    bool
	lobs           bool
	overrides      bool
}

// GormSource is the DataSource backed by a gorm database.
type GormSource struct {
	db     *gorm.DB
	caps   capabilities
	logger *zap.Logger
	now    func() time.Time
}

// NewGormSource probes the schema once and returns a source over db. Role
// tables are required; every other relation is optional.
func NewGormSource(db *gorm.DB, logger *zap.Logger) (*GormSource, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is required", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := db.Migrator()
	for _, required := range []any{&Role{}, &RolePermission{}, &EmployeeRole{}} {
		if !m.HasTable(required) {
			return nil, fmt.Errorf("required table for %T is missing", required)
		}
	}
	s := &GormSource{
		db: db,
		caps: capabilities{
			tags:           m.HasTable(&EmployeeTag{}),
			tagRules:       m.HasTable(&TagRule{}),
			orgAssignments: m.HasTable(&OrgAssignment{}),
			reportingLines: m.HasTable(&ReportingLine{}),
			departments:    m.HasTable(&Department{}),
			lobs:           m.HasTable(&LineOfBusiness{}),
			overrides:      m.HasTable(&FieldSensitivityOverride{}),
		},
		logger: logger,
		now:    time.Now,
	}
	logger.Info("gorm data source ready",
		zap.Bool("tags", s.caps.tags),
		zap.Bool("tag_rules", s.caps.tagRules),
		zap.Bool("org_assignments", s.caps.orgAssignments),
		zap.Bool("reporting_lines", s.caps.reportingLines),
		zap.Bool("field_overrides", s.caps.overrides))
	return s, nil
}

// UserTags returns the tags attached to userID.
func (s *GormSource) UserTags(ctx context.Context, userID string) ([]string, error) {
	if !s.caps.tags {
		return nil, nil
	}
	var tags []string
	if err := s.db.WithContext(ctx).Model(&EmployeeTag{}).
		Where("employee_id = ?", userID).
		Pluck("tag", &tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// TagRules returns the rules activated by any of tags.
func (s *GormSource) TagRules(ctx context.Context, tags []string) ([]TagRule, error) {
	if !s.caps.tagRules || len(tags) == 0 {
		return nil, nil
	}
	var rules []TagRule
	if err := s.db.WithContext(ctx).
		Where("tag IN ?", tags).
		Order("priority DESC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// FieldSensitivityOverrides returns every stored override.
func (s *GormSource) FieldSensitivityOverrides(ctx context.Context) ([]FieldSensitivity, error) {
	if !s.caps.overrides {
		return nil, nil
	}
	var rows []FieldSensitivityOverride
	if err := s.db.WithContext(ctx).Order("table_name, display_order, field_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Map(rows, func(o FieldSensitivityOverride, _ int) FieldSensitivity {
		return o.toFieldSensitivity()
	}), nil
}
