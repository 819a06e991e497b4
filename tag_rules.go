package rbac

import (
	"slices"
	"time"
)

// TagEffect is what a tag rule does when it matches.
type TagEffect string

const (
	TagEffectGrant TagEffect = "grant"
	TagEffectDeny  TagEffect = "deny"
)

// TagRule adds or removes a permission for every user carrying Tag,
// optionally only against targets carrying one of TargetTags.
// Empty TargetTags applies to all subjects.
type TagRule struct {
	ID             uint      `gorm:"primaryKey"`
	Tag            string    `gorm:"not null;index"`
	TargetTags     []string  `gorm:"serializer:json"`
	PermissionCode string    `gorm:"not null"`
	Effect         TagEffect `gorm:"type:varchar(8);not null"`
	Priority       int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// sortTagRules orders rules by descending priority; equal priorities keep
// their input order.
func sortTagRules(rules []TagRule) {
	slices.SortStableFunc(rules, func(a, b TagRule) int {
		return b.Priority - a.Priority
	})
}

func (r TagRule) appliesToTarget(cctx CheckContext) bool {
	if len(r.TargetTags) == 0 {
		return true
	}
	return NewStringSet(r.TargetTags...).Intersects(cctx.TargetTags)
}

// deniesRequest reports whether a deny rule covers p. Rules without a data
// level or scope cover every level or scope of the same resource.action.
func (r TagRule) deniesRequest(p Permission) bool {
	if IsWildcardCode(r.PermissionCode) {
		return matchWildcard(r.PermissionCode, p)
	}
	rp, err := ParsePermission(r.PermissionCode)
	if err != nil {
		return false
	}
	return rp.Covers(p)
}

// firstDeny returns the highest priority deny rule that applies.
func firstDeny(cache *PermissionCache, p Permission, cctx CheckContext) (TagRule, bool) {
	for _, rule := range cache.TagDenies {
		if rule.appliesToTarget(cctx) && rule.deniesRequest(p) {
			return rule, true
		}
	}
	return TagRule{}, false
}

// firstGrant returns the highest priority grant rule satisfying p together
// with the candidate it matched. Scoped grants must cover the target.
func firstGrant(cache *PermissionCache, p Permission, cctx CheckContext) (TagRule, Permission, bool) {
	candidates := p.Candidates()
	for _, rule := range cache.TagGrants {
		if !rule.appliesToTarget(cctx) {
			continue
		}
		if IsWildcardCode(rule.PermissionCode) {
			if matchWildcard(rule.PermissionCode, p) {
				return rule, p, true
			}
			continue
		}
		rp, err := ParsePermission(rule.PermissionCode)
		if err != nil {
			continue
		}
		for _, c := range candidates {
			if c != rp {
				continue
			}
			if c.Scope != "" {
				if ok, _ := ValidateScope(cache.OrgContext, c.Scope, cctx); !ok {
					continue
				}
			}
			return rule, c, true
		}
	}
	return TagRule{}, Permission{}, false
}
