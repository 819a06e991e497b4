package rbac

import "fmt"

// ValidateScope decides whether a grant held at scope s covers the target
// described by cctx. When it does not, the second return value explains why.
//
// Broader scopes subsume self and direct reports, and lob/division fall back
// to the narrower unit sets when the target's broader unit is unknown.
func ValidateScope(org OrgContext, s Scope, cctx CheckContext) (bool, string) {
	isSelf := cctx.TargetUserID != "" && cctx.TargetUserID == org.UserID
	isReport := org.DirectReports.Has(cctx.TargetUserID)

	switch s {
	case ScopeCompany:
		return true, ""
	case ScopeSelf:
		if cctx.TargetUserID == "" {
			return false, "self scope requires a target user"
		}
		if isSelf {
			return true, ""
		}
		return false, "target is not the requesting user"
	case ScopeDirectReports:
		if isSelf || isReport {
			return true, ""
		}
		if cctx.TargetUserID == "" {
			return false, "direct_reports scope requires a target user"
		}
		return false, "target is not a direct report"
	case ScopeDepartment:
		if isSelf || isReport {
			return true, ""
		}
		return inUnits(org.Departments, cctx.TargetDepartmentID, "department")
	case ScopeLOB:
		if isSelf || isReport {
			return true, ""
		}
		return anyUnit("lob", unitCheck{org.LOBs, cctx.TargetLOBID},
			unitCheck{org.Departments, cctx.TargetDepartmentID})
	case ScopeDivision:
		if isSelf || isReport {
			return true, ""
		}
		return anyUnit("division", unitCheck{org.Divisions, cctx.TargetDivisionID},
			unitCheck{org.LOBs, cctx.TargetLOBID},
			unitCheck{org.Departments, cctx.TargetDepartmentID})
	}
	return false, fmt.Sprintf("unknown scope %q", s)
}

type unitCheck struct {
	units  StringSet
	target string
}

func inUnits(units StringSet, target, kind string) (bool, string) {
	if target == "" {
		return false, fmt.Sprintf("%s scope requires a target %s", kind, kind)
	}
	if units.Has(target) {
		return true, ""
	}
	return false, fmt.Sprintf("target %s is outside the user's %s", kind, kind)
}

// anyUnit accepts when any unit set contains its target. Checks after the
// first are the narrower fallbacks.
func anyUnit(kind string, checks ...unitCheck) (bool, string) {
	anyTarget := false
	for _, c := range checks {
		if c.target == "" {
			continue
		}
		anyTarget = true
		if c.units.Has(c.target) {
			return true, ""
		}
	}
	if !anyTarget {
		return false, fmt.Sprintf("%s scope requires target org data", kind)
	}
	return false, fmt.Sprintf("target is outside the user's %s", kind)
}
