package rbac

import "strings"

// Scope is the organizational breadth over which a permission applies.
type Scope string

const (
	ScopeSelf          Scope = "self"
	ScopeDirectReports Scope = "direct_reports"
	ScopeDepartment    Scope = "department"
	ScopeLOB           Scope = "lob"
	ScopeDivision      Scope = "division"
	ScopeCompany       Scope = "company"
)

// Scopes lists every scope from narrowest to broadest.
var Scopes = []Scope{ScopeSelf, ScopeDirectReports, ScopeDepartment, ScopeLOB, ScopeDivision, ScopeCompany}

// Rank returns the position of the scope in the breadth ordering, or -1 when unknown.
func (s Scope) Rank() int {
	for i, v := range Scopes {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Scope) Valid() bool { return s.Rank() >= 0 }

// Covers reports whether s is equally or more permissive than other.
func (s Scope) Covers(other Scope) bool {
	return s.Valid() && other.Valid() && s.Rank() >= other.Rank()
}

func (s Scope) String() string { return string(s) }

// ParseScope converts a string into a Scope.
func ParseScope(v string) (Scope, bool) {
	s := Scope(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

// scopesFrom returns the scopes from s (inclusive) up to company.
func scopesFrom(s Scope) []Scope {
	if !s.Valid() {
		return Scopes
	}
	return Scopes[s.Rank():]
}
