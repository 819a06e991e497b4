package rbac

import "fmt"

// CheckContext describes the target of a permission check. Every field is
// optional; scopes that need a missing field deny.
type CheckContext struct {
	TargetUserID       string
	TargetDepartmentID string
	TargetLOBID        string
	TargetDivisionID   string
	TargetLocationID   string
	TargetTags         []string
}

// CheckResult is the outcome of a permission check. Reason is diagnostic
// and must not be shown to end users.
type CheckResult struct {
	Allowed            bool
	Reason             string
	MatchedPermission  string
	EffectiveScope     Scope
	EffectiveDataLevel DataLevel
}

// CheckPermission parses code and checks it against cache. Malformed codes
// return ErrMalformedPermission rather than a denial.
func CheckPermission(cache *PermissionCache, code string, cctx CheckContext) (CheckResult, error) {
	p, err := ParsePermission(code)
	if err != nil {
		return CheckResult{Reason: "malformed permission code"}, err
	}
	return Check(cache, p, cctx), nil
}

// Check resolves an already parsed permission. Tag denies are consulted
// first, then role grants (exact codes, unit-scoped assignments, wildcards),
// then tag grants.
func Check(cache *PermissionCache, p Permission, cctx CheckContext) CheckResult {
	if cache == nil {
		return CheckResult{Reason: "no permissions loaded"}
	}

	if rule, ok := firstDeny(cache, p, cctx); ok {
		return CheckResult{
			Reason:            fmt.Sprintf("denied by tag rule on %q", rule.Tag),
			MatchedPermission: rule.PermissionCode,
		}
	}

	scopeReason := ""
	for _, c := range p.Candidates() {
		code := c.String()
		if !cache.Has(code) {
			continue
		}
		if c.Scope != "" {
			if ok, why := ValidateScope(cache.OrgContext, c.Scope, cctx); !ok {
				if scopeReason == "" {
					scopeReason = fmt.Sprintf("%s: %s", code, why)
				}
				continue
			}
		}
		return allowed(p, c, code, "granted by role")
	}

	res, unitReason, ok := checkUnitGrants(cache, p, cctx)
	if ok {
		return res
	}
	if scopeReason == "" {
		scopeReason = unitReason
	}

	for _, w := range wildcardCodes(p) {
		if cache.Has(w) {
			return CheckResult{
				Allowed:            true,
				Reason:             "granted by role wildcard",
				MatchedPermission:  w,
				EffectiveDataLevel: p.DataLevel,
			}
		}
	}

	if rule, c, ok := firstGrant(cache, p, cctx); ok {
		return allowed(p, c, rule.PermissionCode, fmt.Sprintf("granted by tag rule on %q", rule.Tag))
	}

	if scopeReason != "" {
		return CheckResult{Reason: "scope does not cover target: " + scopeReason}
	}
	return CheckResult{Reason: fmt.Sprintf("no grant matches %s", p)}
}

// checkUnitGrants resolves p against unit-scoped role assignments. Each
// grant is validated against its own unit only. The second result is the
// first scope failure, for the denial reason.
func checkUnitGrants(cache *PermissionCache, p Permission, cctx CheckContext) (CheckResult, string, bool) {
	if len(cache.UnitGrants) == 0 {
		return CheckResult{}, "", false
	}
	reason := ""
	try := func(g UnitGrant, code string, s Scope) (Scope, bool) {
		eff, ok, why := g.covers(cache.OrgContext, s, cctx)
		if !ok && reason == "" {
			reason = fmt.Sprintf("%s (assigned in %s %s): %s", code, g.Kind, g.UnitID, why)
		}
		return eff, ok
	}

	for _, c := range p.Candidates() {
		code := c.String()
		for _, g := range cache.UnitGrants {
			if !g.Permissions.Has(code) {
				continue
			}
			if eff, ok := try(g, code, c.Scope); ok {
				res := allowed(p, c, code, fmt.Sprintf("granted by role in %s %s", g.Kind, g.UnitID))
				res.EffectiveScope = eff
				return res, "", true
			}
		}
	}
	for _, w := range wildcardCodes(p) {
		for _, g := range cache.UnitGrants {
			if !g.Permissions.Has(w) {
				continue
			}
			if eff, ok := try(g, w, ""); ok {
				return CheckResult{
					Allowed:            true,
					Reason:             fmt.Sprintf("granted by role wildcard in %s %s", g.Kind, g.UnitID),
					MatchedPermission:  w,
					EffectiveScope:     eff,
					EffectiveDataLevel: p.DataLevel,
				}, "", true
			}
		}
	}
	return CheckResult{}, reason, false
}

func allowed(req, matched Permission, code, reason string) CheckResult {
	level := matched.DataLevel
	if level == "" {
		level = req.DataLevel
	}
	return CheckResult{
		Allowed:            true,
		Reason:             reason,
		MatchedPermission:  code,
		EffectiveScope:     matched.Scope,
		EffectiveDataLevel: level,
	}
}

// CanAccessDataLevel reports whether resource.action.level is allowed.
func CanAccessDataLevel(cache *PermissionCache, resource, action string, level DataLevel, cctx CheckContext) bool {
	p := Permission{Resource: resource, Action: action, DataLevel: level}
	return Check(cache, p, cctx).Allowed
}

// GetMaxDataLevel returns the most restrictive tier the user may access for
// resource.action, probing from sensitive down. ok is false when even basic
// is denied.
func GetMaxDataLevel(cache *PermissionCache, resource, action string, cctx CheckContext) (DataLevel, bool) {
	for i := len(DataLevels) - 1; i >= 0; i-- {
		if CanAccessDataLevel(cache, resource, action, DataLevels[i], cctx) {
			return DataLevels[i], true
		}
	}
	return "", false
}
