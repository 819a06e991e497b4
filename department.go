package rbac

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// OrgMemberships returns every org unit userID belongs to. Units not set on
// an assignment are derived from the department's line of business and that
// line's division.
func (s *GormSource) OrgMemberships(ctx context.Context, userID string) ([]OrgMembership, error) {
	if !s.caps.orgAssignments {
		return nil, nil
	}
	var assignments []OrgAssignment
	if err := s.db.WithContext(ctx).
		Where("employee_id = ?", userID).
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	var out []OrgMembership
	for _, a := range assignments {
		if err := s.completeAssignment(ctx, &a); err != nil {
			return nil, err
		}
		out = appendUnit(out, OrgUnitDepartment, a.DepartmentID)
		out = appendUnit(out, OrgUnitLOB, a.LOBID)
		out = appendUnit(out, OrgUnitDivision, a.DivisionID)
		out = appendUnit(out, OrgUnitLocation, a.LocationID)
	}
	return lo.Uniq(out), nil
}

// TargetContext describes userID as the target of a check, using the
// primary org assignment (or the oldest one) and the user's tags.
func (s *GormSource) TargetContext(ctx context.Context, userID string) (CheckContext, error) {
	cctx := CheckContext{TargetUserID: userID}

	if s.caps.orgAssignments {
		var a OrgAssignment
		err := s.db.WithContext(ctx).
			Where("employee_id = ?", userID).
			Order("is_primary DESC, created_at ASC").
			First(&a).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return cctx, err
		default:
			if err := s.completeAssignment(ctx, &a); err != nil {
				return cctx, err
			}
			cctx.TargetDepartmentID = lo.FromPtr(a.DepartmentID)
			cctx.TargetLOBID = lo.FromPtr(a.LOBID)
			cctx.TargetDivisionID = lo.FromPtr(a.DivisionID)
			cctx.TargetLocationID = lo.FromPtr(a.LocationID)
		}
	}

	tags, err := s.UserTags(ctx, userID)
	if err != nil {
		return cctx, err
	}
	cctx.TargetTags = tags
	return cctx, nil
}

// completeAssignment fills LOB and division from the department hierarchy.
func (s *GormSource) completeAssignment(ctx context.Context, a *OrgAssignment) error {
	if a.LOBID == nil && a.DepartmentID != nil && s.caps.departments {
		var dept Department
		err := s.db.WithContext(ctx).Select("id", "lob_id").First(&dept, "id = ?", *a.DepartmentID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		a.LOBID = dept.LOBID
	}
	if a.DivisionID == nil && a.LOBID != nil && s.caps.lobs {
		var lob LineOfBusiness
		err := s.db.WithContext(ctx).Select("id", "division_id").First(&lob, "id = ?", *a.LOBID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		a.DivisionID = lob.DivisionID
	}
	return nil
}

func appendUnit(out []OrgMembership, kind OrgUnitKind, id *string) []OrgMembership {
	if id == nil || *id == "" {
		return out
	}
	return append(out, OrgMembership{Kind: kind, UnitID: *id})
}
