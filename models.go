package rbac

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Division is the broadest org unit below the company.
type Division struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string `gorm:"unique;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// LineOfBusiness groups departments within a division.
type LineOfBusiness struct {
	ID         string  `gorm:"primaryKey;type:varchar(64)"`
	Name       string  `gorm:"not null"`
	DivisionID *string `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (LineOfBusiness) TableName() string { return "lines_of_business" }

// Department represents a logical group (e.g., Sales, HR).
type Department struct {
	ID        string  `gorm:"primaryKey;type:varchar(64)"`
	Name      string  `gorm:"not null"`
	LOBID     *string `gorm:"column:lob_id;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Location is a physical site.
type Location struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Role is a named bundle of permission codes.
type Role struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)"`
	Code              string    `gorm:"unique;not null"`
	Name              string    `gorm:"not null"`
	HierarchyLevel    int       `gorm:"not null;default:0"`
	SensitivityAccess DataLevel `gorm:"type:varchar(16);not null;default:basic"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

// RolePermission grants a permission code to a role.
type RolePermission struct {
	RoleID         string `gorm:"primaryKey;type:varchar(64)"`
	PermissionCode string `gorm:"primaryKey"`
	CreatedAt      time.Time
}

// EmployeeRole assigns a role to an employee, optionally limited to one org
// unit and optionally expiring.
type EmployeeRole struct {
	ID         string  `gorm:"primaryKey;type:varchar(64)"`
	EmployeeID string  `gorm:"index;not null"`
	RoleID     string  `gorm:"index;not null"`
	ScopeType  Scope   `gorm:"type:varchar(32)"`
	ScopeID    *string `gorm:"index"`
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// BeforeCreate assigns an ID when none was given.
func (e *EmployeeRole) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// EmployeeTag attaches a tag to an employee.
type EmployeeTag struct {
	EmployeeID string `gorm:"primaryKey;type:varchar(64)"`
	Tag        string `gorm:"primaryKey;index"`
	CreatedAt  time.Time
}

// OrgAssignment places an employee in the org structure. Unset unit IDs are
// derived from the department where possible.
type OrgAssignment struct {
	ID           uint    `gorm:"primaryKey"`
	EmployeeID   string  `gorm:"index;not null"`
	DepartmentID *string `gorm:"index"`
	LOBID        *string `gorm:"column:lob_id;index"`
	DivisionID   *string `gorm:"index"`
	LocationID   *string `gorm:"index"`
	IsPrimary    bool    `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// ReportingLine links an employee to a supervisor.
type ReportingLine struct {
	EmployeeID   string `gorm:"primaryKey;type:varchar(64)"`
	SupervisorID string `gorm:"primaryKey;type:varchar(64);index"`
	CreatedAt    time.Time
}

// FieldSensitivityOverride is the stored form of a FieldSensitivity.
type FieldSensitivityOverride struct {
	Table          string      `gorm:"column:table_name;primaryKey;type:varchar(64)"`
	FieldName      string      `gorm:"primaryKey;type:varchar(64)"`
	Sensitivity    DataLevel   `gorm:"type:varchar(16);not null"`
	MaskingType    MaskingType `gorm:"type:varchar(16);not null;default:full"`
	MinSensitivity *DataLevel  `gorm:"type:varchar(16)"`
	DisplayOrder   int         `gorm:"not null;default:0"`
	UpdatedAt      time.Time
}

func (o FieldSensitivityOverride) toFieldSensitivity() FieldSensitivity {
	return FieldSensitivity{
		TableName:      o.Table,
		FieldName:      o.FieldName,
		Sensitivity:    o.Sensitivity,
		MaskingType:    o.MaskingType,
		MinSensitivity: o.MinSensitivity,
		DisplayOrder:   o.DisplayOrder,
	}
}

// AuditLog tracks authorization decisions and permission-affecting changes.
type AuditLog struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	ActorID    string `gorm:"index;not null"`
	Action     string `gorm:"not null"`
	TargetType string `gorm:"not null"`
	TargetID   string `gorm:"index"`
	Allowed    bool
	Details    string
	CreatedAt  time.Time
}

// BeforeCreate assigns an ID when none was given.
func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func allModels() []any {
	return []any{
		&Division{}, &LineOfBusiness{}, &Department{}, &Location{},
		&Role{}, &RolePermission{}, &EmployeeRole{}, &EmployeeTag{}, &TagRule{},
		&OrgAssignment{}, &ReportingLine{}, &FieldSensitivityOverride{}, &AuditLog{},
	}
}
