package rbac

import (
	"fmt"
	"strings"
)

// Permission is a parsed permission code: resource.action[.dataLevel][.scope].
// DataLevel and Scope are empty when the code does not carry them.
type Permission struct {
	Resource  string
	Action    string
	DataLevel DataLevel
	Scope     Scope
}

// ParsePermission validates and parses a dot-delimited permission code.
func ParsePermission(code string) (Permission, error) {
	code = strings.TrimSpace(code)
	parts := strings.Split(code, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, code)
	}
	for _, part := range parts {
		if part == "" || part == "*" || strings.ContainsAny(part, " \t\n") {
			return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, code)
		}
	}

	p := Permission{Resource: parts[0], Action: parts[1]}
	rest := parts[2:]
	if len(rest) > 0 {
		if lvl, ok := ParseDataLevel(rest[0]); ok {
			p.DataLevel = lvl
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		s, ok := ParseScope(rest[0])
		if !ok {
			return Permission{}, fmt.Errorf("%w: unknown data level or scope %q in %q", ErrMalformedPermission, rest[0], code)
		}
		p.Scope = s
		rest = rest[1:]
	}
	if len(rest) > 0 {
		// data level must precede scope
		return Permission{}, fmt.Errorf("%w: unexpected segment %q in %q", ErrMalformedPermission, rest[0], code)
	}
	return p, nil
}

// MustParsePermission is like ParsePermission but panics on malformed codes.
// Use it only for codes fixed at configuration time.
func MustParsePermission(code string) Permission {
	p, err := ParsePermission(code)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the permission back into its dot-delimited form.
func (p Permission) String() string {
	var b strings.Builder
	b.WriteString(p.Resource)
	b.WriteByte('.')
	b.WriteString(p.Action)
	if p.DataLevel != "" {
		b.WriteByte('.')
		b.WriteString(string(p.DataLevel))
	}
	if p.Scope != "" {
		b.WriteByte('.')
		b.WriteString(string(p.Scope))
	}
	return b.String()
}

// Base returns the bare resource.action form.
func (p Permission) Base() Permission {
	return Permission{Resource: p.Resource, Action: p.Action}
}

// WithDataLevel returns a copy of p qualified by the given tier.
func (p Permission) WithDataLevel(l DataLevel) Permission {
	p.DataLevel = l
	return p
}

// WithScope returns a copy of p qualified by the given scope.
func (p Permission) WithScope(s Scope) Permission {
	p.Scope = s
	return p
}

// Candidates enumerates stored permission codes that satisfy p, most specific
// first. Scopes run from the requested scope (self when unset) up to company;
// for each scope, data levels run from the requested level (basic when unset)
// up to sensitive followed by the scope-only variant. Level-only variants and
// the bare resource.action close the list. Every candidate renders to a code
// that parses back to itself.
func (p Permission) Candidates() []Permission {
	base := p.Base()
	startScope := p.Scope
	if startScope == "" {
		startScope = ScopeSelf
	}
	startLevel := p.DataLevel
	if startLevel == "" {
		startLevel = DataLevelBasic
	}

	levels := levelsFrom(startLevel)
	scopes := scopesFrom(startScope)
	out := make([]Permission, 0, len(scopes)*(len(levels)+1)+len(levels)+1)
	for _, s := range scopes {
		for _, l := range levels {
			out = append(out, Permission{Resource: base.Resource, Action: base.Action, DataLevel: l, Scope: s})
		}
		// "r.a.company" reads as a data level, so the company scope has no
		// scope-only form
		if _, isLevel := ParseDataLevel(string(s)); !isLevel {
			out = append(out, base.WithScope(s))
		}
	}
	for _, l := range levels {
		out = append(out, base.WithDataLevel(l))
	}
	return append(out, base)
}

// Covers reports whether a rule written as p applies to the request req:
// same resource and action, and every qualifier set on p equals req's.
// An unqualified rule therefore covers every level and scope.
func (p Permission) Covers(req Permission) bool {
	if p.Resource != req.Resource || p.Action != req.Action {
		return false
	}
	if p.DataLevel != "" && p.DataLevel != req.DataLevel {
		return false
	}
	if p.Scope != "" && p.Scope != req.Scope {
		return false
	}
	return true
}

// wildcardCodes returns the wildcard forms that grant everything under p.
func wildcardCodes(p Permission) []string {
	return []string{
		p.Resource + "." + p.Action + ".*",
		p.Resource + ".*",
		"*",
	}
}

// IsWildcardCode reports whether code is one of the accepted wildcard forms:
// "*", "resource.*" or "resource.action.*".
func IsWildcardCode(code string) bool {
	if code == "*" {
		return true
	}
	if !strings.HasSuffix(code, ".*") {
		return false
	}
	parts := strings.Split(strings.TrimSuffix(code, ".*"), ".")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if part == "" || part == "*" {
			return false
		}
	}
	return true
}

// matchWildcard reports whether the wildcard code grants p.
func matchWildcard(code string, p Permission) bool {
	for _, w := range wildcardCodes(p) {
		if code == w {
			return true
		}
	}
	return false
}

// ValidPermissionCode reports whether code is either a parseable permission
// or an accepted wildcard form.
func ValidPermissionCode(code string) bool {
	if IsWildcardCode(code) {
		return true
	}
	_, err := ParsePermission(code)
	return err == nil
}
