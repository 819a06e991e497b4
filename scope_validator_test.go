package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateScope(t *testing.T) {
	org := NewOrgContext("u1")
	org.Departments = NewStringSet("d1")
	org.LOBs = NewStringSet("l1")
	org.Divisions = NewStringSet("v1")
	org.DirectReports = NewStringSet("r1")

	tests := []struct {
		name  string
		scope Scope
		cctx  CheckContext
		want  bool
	}{
		{"self matches owner", ScopeSelf, CheckContext{TargetUserID: "u1"}, true},
		{"self rejects other", ScopeSelf, CheckContext{TargetUserID: "u2"}, false},
		{"self needs target", ScopeSelf, CheckContext{}, false},

		{"reports include self", ScopeDirectReports, CheckContext{TargetUserID: "u1"}, true},
		{"reports match report", ScopeDirectReports, CheckContext{TargetUserID: "r1"}, true},
		{"reports reject peer", ScopeDirectReports, CheckContext{TargetUserID: "p1"}, false},

		{"department same", ScopeDepartment, CheckContext{TargetUserID: "p1", TargetDepartmentID: "d1"}, true},
		{"department other", ScopeDepartment, CheckContext{TargetUserID: "p1", TargetDepartmentID: "d2"}, false},
		{"department report elsewhere", ScopeDepartment, CheckContext{TargetUserID: "r1", TargetDepartmentID: "d2"}, true},
		{"department without data", ScopeDepartment, CheckContext{TargetUserID: "p1"}, false},

		{"lob same", ScopeLOB, CheckContext{TargetLOBID: "l1"}, true},
		{"lob falls back to department", ScopeLOB, CheckContext{TargetLOBID: "l2", TargetDepartmentID: "d1"}, true},
		{"lob other", ScopeLOB, CheckContext{TargetLOBID: "l2", TargetDepartmentID: "d2"}, false},
		{"lob self", ScopeLOB, CheckContext{TargetUserID: "u1"}, true},
		{"lob without data", ScopeLOB, CheckContext{TargetUserID: "p1"}, false},

		{"division same", ScopeDivision, CheckContext{TargetDivisionID: "v1"}, true},
		{"division falls back to lob", ScopeDivision, CheckContext{TargetDivisionID: "v2", TargetLOBID: "l1"}, true},
		{"division falls back to department", ScopeDivision, CheckContext{TargetDivisionID: "v2", TargetLOBID: "l2", TargetDepartmentID: "d1"}, true},
		{"division other", ScopeDivision, CheckContext{TargetDivisionID: "v2", TargetLOBID: "l2", TargetDepartmentID: "d2"}, false},
		{"division report", ScopeDivision, CheckContext{TargetUserID: "r1"}, true},

		{"company without target", ScopeCompany, CheckContext{}, true},
		{"company any target", ScopeCompany, CheckContext{TargetUserID: "x", TargetDivisionID: "v9"}, true},

		{"unknown scope", Scope("galaxy"), CheckContext{TargetUserID: "u1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ValidateScope(org, tt.scope, tt.cctx)
			assert.Equal(t, tt.want, got)
			if !got {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestScope_Ordering(t *testing.T) {
	for i := 1; i < len(Scopes); i++ {
		assert.True(t, Scopes[i].Covers(Scopes[i-1]))
		assert.False(t, Scopes[i-1].Covers(Scopes[i]))
	}
	assert.False(t, Scope("nope").Valid())
}

func TestDataLevel_Ordering(t *testing.T) {
	for i := 1; i < len(DataLevels); i++ {
		assert.True(t, DataLevels[i].AtLeast(DataLevels[i-1]))
		assert.False(t, DataLevels[i-1].AtLeast(DataLevels[i]))
	}
	l, ok := ParseDataLevel(" Personal ")
	assert.True(t, ok)
	assert.Equal(t, DataLevelPersonal, l)
	assert.Equal(t, DataLevelSensitive, maxLevel(DataLevelBasic, DataLevelSensitive))
	assert.Equal(t, DataLevelCompany, maxLevel("", DataLevelCompany))
}
