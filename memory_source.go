package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemorySource is an in-process DataSource, useful for tests and for
// embedding the engine without a database.
type MemorySource struct {
	mu              sync.RWMutex
	assignments     map[string][]AssignedRole
	rolePermissions map[string][]string
	tags            map[string][]string
	rules           []TagRule
	memberships     map[string][]OrgMembership
	supervisorsOf   map[string][]string
	overrides       []FieldSensitivity
	targets         map[string]CheckContext
	now             func() time.Time
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		assignments:     map[string][]AssignedRole{},
		rolePermissions: map[string][]string{},
		tags:            map[string][]string{},
		memberships:     map[string][]OrgMembership{},
		supervisorsOf:   map[string][]string{},
		targets:         map[string]CheckContext{},
		now:             time.Now,
	}
}

// DefineRole sets the permission codes a role grants.
func (s *MemorySource) DefineRole(roleID string, codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePermissions[roleID] = append([]string(nil), codes...)
}

// AssignRole gives userID the role.
func (s *MemorySource) AssignRole(userID string, role AssignedRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userID] = append(s.assignments[userID], role)
}

// RevokeRole removes every assignment of roleID from userID.
func (s *MemorySource) RevokeRole(userID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userID] = lo.Reject(s.assignments[userID], func(r AssignedRole, _ int) bool {
		return r.ID == roleID
	})
}

// SetTags replaces the tags of userID.
func (s *MemorySource) SetTags(userID string, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[userID] = append([]string(nil), tags...)
}

// AddTagRule appends a tag rule.
func (s *MemorySource) AddTagRule(rule TagRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
}

// AddMembership places userID in an org unit.
func (s *MemorySource) AddMembership(userID string, kind OrgUnitKind, unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[userID] = append(s.memberships[userID], OrgMembership{Kind: kind, UnitID: unitID})
}

// SetReportingLine records that employeeID reports to supervisorID.
func (s *MemorySource) SetReportingLine(employeeID, supervisorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supervisorsOf[employeeID] = lo.Uniq(append(s.supervisorsOf[employeeID], supervisorID))
}

// SetOverrides replaces the field sensitivity overrides.
func (s *MemorySource) SetOverrides(configs ...FieldSensitivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append([]FieldSensitivity(nil), configs...)
}

// SetTarget records how userID is described as a check target.
func (s *MemorySource) SetTarget(userID string, cctx CheckContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cctx.TargetUserID = userID
	s.targets[userID] = cctx
}

func (s *MemorySource) ActiveRoleAssignments(_ context.Context, userID string) ([]AssignedRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	return lo.Filter(s.assignments[userID], func(r AssignedRole, _ int) bool { return r.Active(now) }), nil
}

func (s *MemorySource) RolePermissions(_ context.Context, roleIDs []string) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(roleIDs))
	for _, id := range roleIDs {
		if codes, ok := s.rolePermissions[id]; ok {
			out[id] = append([]string(nil), codes...)
		}
	}
	return out, nil
}

func (s *MemorySource) UserTags(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tags[userID]...), nil
}

func (s *MemorySource) TagRules(_ context.Context, tags []string) ([]TagRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := NewStringSet(tags...)
	return lo.Filter(s.rules, func(r TagRule, _ int) bool { return set.Has(r.Tag) }), nil
}

func (s *MemorySource) OrgMemberships(_ context.Context, userID string) ([]OrgMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OrgMembership(nil), s.memberships[userID]...), nil
}

func (s *MemorySource) DirectReports(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var reports []string
	for employee, supervisors := range s.supervisorsOf {
		if lo.Contains(supervisors, userID) {
			reports = append(reports, employee)
		}
	}
	return reports, nil
}

func (s *MemorySource) Supervisors(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.supervisorsOf[userID]...), nil
}

func (s *MemorySource) FieldSensitivityOverrides(context.Context) ([]FieldSensitivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FieldSensitivity(nil), s.overrides...), nil
}

func (s *MemorySource) TargetContext(_ context.Context, userID string) (CheckContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cctx, ok := s.targets[userID]; ok {
		cctx.TargetTags = append([]string(nil), cctx.TargetTags...)
		return cctx, nil
	}
	cctx := CheckContext{TargetUserID: userID, TargetTags: append([]string(nil), s.tags[userID]...)}
	for _, m := range s.memberships[userID] {
		switch m.Kind {
		case OrgUnitDepartment:
			cctx.TargetDepartmentID = lo.CoalesceOrEmpty(cctx.TargetDepartmentID, m.UnitID)
		case OrgUnitLOB:
			cctx.TargetLOBID = lo.CoalesceOrEmpty(cctx.TargetLOBID, m.UnitID)
		case OrgUnitDivision:
			cctx.TargetDivisionID = lo.CoalesceOrEmpty(cctx.TargetDivisionID, m.UnitID)
		case OrgUnitLocation:
			cctx.TargetLocationID = lo.CoalesceOrEmpty(cctx.TargetLocationID, m.UnitID)
		}
	}
	return cctx, nil
}
