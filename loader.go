package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Loader builds PermissionCache snapshots from a DataSource.
type Loader struct {
	source DataSource
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewLoader creates a loader whose snapshots expire after ttl. A zero ttl
// uses DefaultCacheTTL.
func NewLoader(source DataSource, ttl time.Duration, logger *zap.Logger) *Loader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: source, ttl: ttl, logger: logger, now: time.Now}
}

// TTL returns the lifetime given to loaded snapshots.
func (l *Loader) TTL() time.Duration { return l.ttl }

// Load builds a fresh snapshot for userID. Unknown users yield an empty
// snapshot, not an error.
func (l *Loader) Load(ctx context.Context, userID string) (*PermissionCache, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := l.now()
	cache := EmptyPermissionCache(userID, now, l.ttl)

	roles, err := l.source.ActiveRoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load role assignments for %s: %w", userID, err)
	}
	cache.Roles = lo.Filter(roles, func(r AssignedRole, _ int) bool { return r.Active(now) })

	if len(cache.Roles) > 0 {
		roleIDs := lo.Uniq(lo.Map(cache.Roles, func(r AssignedRole, _ int) string { return r.ID }))
		byRole, err := l.source.RolePermissions(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("load role permissions for %s: %w", userID, err)
		}
		valid := make(map[string][]string, len(roleIDs))
		for _, roleID := range roleIDs {
			valid[roleID] = l.validCodes(roleID, byRole[roleID])
		}
		cache.Permissions, cache.UnitGrants = groupGrants(cache.Roles, valid)
	}

	tags, err := l.source.UserTags(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tags for %s: %w", userID, err)
	}
	cache.Tags = NewStringSet(tags...)

	if len(cache.Tags) > 0 {
		rules, err := l.source.TagRules(ctx, cache.Tags.Sorted())
		if err != nil {
			return nil, fmt.Errorf("load tag rules for %s: %w", userID, err)
		}
		cache.TagGrants, cache.TagDenies = l.splitRules(cache.Tags, rules)
	}

	org, err := l.loadOrgContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	cache.OrgContext = org

	l.logger.Debug("permission cache loaded",
		zap.String("user_id", userID),
		zap.Int("permissions", len(cache.Permissions)),
		zap.Int("roles", len(cache.Roles)),
		zap.Int("unit_grants", len(cache.UnitGrants)),
		zap.Int("tag_grants", len(cache.TagGrants)),
		zap.Int("tag_denies", len(cache.TagDenies)))
	return cache, nil
}

func (l *Loader) validCodes(roleID string, codes []string) []string {
	return lo.Filter(codes, func(code string, _ int) bool {
		if ValidPermissionCode(code) {
			return true
		}
		l.logger.Warn("dropping malformed permission code",
			zap.String("role_id", roleID), zap.String("code", code))
		return false
	})
}

// groupGrants puts the codes of unit-scoped assignments into one UnitGrant
// per unit, in assignment order, and everything else into the global set.
func groupGrants(roles []AssignedRole, codes map[string][]string) (StringSet, []UnitGrant) {
	global := StringSet{}
	var units []UnitGrant
	index := map[OrgMembership]int{}
	for _, r := range roles {
		kind, scoped := r.unitKind()
		if !scoped {
			for _, code := range codes[r.ID] {
				global[code] = struct{}{}
			}
			continue
		}
		key := OrgMembership{Kind: kind, UnitID: *r.ScopeID}
		i, ok := index[key]
		if !ok {
			i = len(units)
			index[key] = i
			units = append(units, UnitGrant{Kind: kind, UnitID: key.UnitID, Permissions: StringSet{}})
		}
		for _, code := range codes[r.ID] {
			units[i].Permissions[code] = struct{}{}
		}
	}
	return global, units
}

func (l *Loader) splitRules(tags StringSet, rules []TagRule) (grants, denies []TagRule) {
	for _, rule := range rules {
		if !tags.Has(rule.Tag) {
			continue
		}
		if !ValidPermissionCode(rule.PermissionCode) {
			l.logger.Warn("dropping tag rule with malformed permission code",
				zap.Uint("rule_id", rule.ID), zap.String("code", rule.PermissionCode))
			continue
		}
		switch rule.Effect {
		case TagEffectGrant:
			grants = append(grants, rule)
		case TagEffectDeny:
			denies = append(denies, rule)
		default:
			l.logger.Warn("dropping tag rule with unknown effect",
				zap.Uint("rule_id", rule.ID), zap.String("effect", string(rule.Effect)))
		}
	}
	sortTagRules(grants)
	sortTagRules(denies)
	return grants, denies
}

func (l *Loader) loadOrgContext(ctx context.Context, userID string) (OrgContext, error) {
	org := NewOrgContext(userID)

	memberships, err := l.source.OrgMemberships(ctx, userID)
	if err != nil {
		return org, fmt.Errorf("load org memberships for %s: %w", userID, err)
	}
	for _, m := range memberships {
		org.add(m.Kind, m.UnitID)
	}

	reports, err := l.source.DirectReports(ctx, userID)
	if err != nil {
		return org, fmt.Errorf("load direct reports for %s: %w", userID, err)
	}
	org.DirectReports = NewStringSet(reports...)

	supervisors, err := l.source.Supervisors(ctx, userID)
	if err != nil {
		return org, fmt.Errorf("load supervisors for %s: %w", userID, err)
	}
	org.Supervisors = NewStringSet(supervisors...)
	return org, nil
}

func (o *OrgContext) add(kind OrgUnitKind, id string) {
	if id == "" {
		return
	}
	switch kind {
	case OrgUnitDepartment:
		o.Departments[id] = struct{}{}
	case OrgUnitLOB:
		o.LOBs[id] = struct{}{}
	case OrgUnitDivision:
		o.Divisions[id] = struct{}{}
	case OrgUnitLocation:
		o.Locations[id] = struct{}{}
	}
}
