package rbac

import "context"

// DirectReports returns the IDs of employees reporting to userID.
func (s *GormSource) DirectReports(ctx context.Context, userID string) ([]string, error) {
	if !s.caps.reportingLines {
		return nil, nil
	}
	var ids []string
	if err := s.db.WithContext(ctx).Model(&ReportingLine{}).
		Where("supervisor_id = ?", userID).
		Distinct("employee_id").
		Pluck("employee_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Supervisors returns the IDs of employees userID reports to.
func (s *GormSource) Supervisors(ctx context.Context, userID string) ([]string, error) {
	if !s.caps.reportingLines {
		return nil, nil
	}
	var ids []string
	if err := s.db.WithContext(ctx).Model(&ReportingLine{}).
		Where("employee_id = ?", userID).
		Distinct("supervisor_id").
		Pluck("supervisor_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
