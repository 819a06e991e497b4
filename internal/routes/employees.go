package routes

import (
	"context"

	"gorm.io/gorm"
)

// EmployeeStore reads raw employee rows. Rows are masked before they leave
// the API.
type EmployeeStore interface {
	Get(ctx context.Context, id string) (map[string]any, bool, error)
	List(ctx context.Context, limit int) ([]map[string]any, error)
}

type gormEmployees struct {
	db *gorm.DB
}

// NewGormEmployeeStore reads employees from the employees table.
func NewGormEmployeeStore(db *gorm.DB) EmployeeStore {
	return gormEmployees{db: db}
}

func (s gormEmployees) Get(ctx context.Context, id string) (map[string]any, bool, error) {
	row := map[string]any{}
	res := s.db.WithContext(ctx).Table(employeesTable).Where("id = ?", id).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return row, res.RowsAffected > 0, nil
}

func (s gormEmployees) List(ctx context.Context, limit int) ([]map[string]any, error) {
	var rows []map[string]any
	if err := s.db.WithContext(ctx).Table(employeesTable).Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
