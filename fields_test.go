package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var employeeFields = []string{"first_name", "email", "hire_date", "salary"}

func TestGetAllowedFields(t *testing.T) {
	reg := NewSensitivityRegistry(nil, nil)

	tests := []struct {
		name  string
		codes []string
		cctx  CheckContext
		want  []string
	}{
		{"no access", nil, CheckContext{TargetUserID: "e2"}, []string{"first_name"}},
		{"self sees personal", nil, CheckContext{TargetUserID: "u1"}, []string{"first_name", "email"}},
		{"company tier", []string{"employees.view.company.company"}, CheckContext{TargetUserID: "e2"}, []string{"first_name", "email", "hire_date"}},
		{"everything", []string{"employees.view"}, CheckContext{TargetUserID: "e2"}, employeeFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newTestCache("u1", tt.codes...)
			assert.Equal(t, tt.want, GetAllowedFields(cache, reg, "employees", employeeFields, tt.cctx))
		})
	}
}

func TestGetEditableFields_NoSelfException(t *testing.T) {
	reg := NewSensitivityRegistry(nil, nil)
	cache := newTestCache("u1", "employees.edit.basic.self")
	self := CheckContext{TargetUserID: "u1"}

	assert.Equal(t, []string{"first_name"}, GetEditableFields(cache, reg, "employees", employeeFields, self))
	assert.False(t, CanEditColumn(cache, reg, "employees", "email", self))
	assert.Empty(t, GetEditableFields(cache, reg, "employees", employeeFields, CheckContext{TargetUserID: "e2"}))

	cache = newTestCache("u1", "employees.edit.personal.self")
	assert.True(t, CanEditColumn(cache, reg, "employees", "email", self))
	assert.False(t, CanEditColumn(cache, reg, "employees", "hire_date", self))
}

func TestRecordMasker_MaskRecord(t *testing.T) {
	reg := NewSensitivityRegistry(nil, nil)
	cache := newTestCache("u1", "employees.view.personal.company")
	m := NewRecordMasker(cache, reg, "employees", CheckContext{TargetUserID: "e2"})

	assert.Equal(t, DataLevelPersonal, m.UserLevel)
	assert.True(t, m.HasUserLevel)
	assert.False(t, m.SelfAccess)

	record := map[string]any{
		"id":            "e2",
		"first_name":    "Jane",
		"email":         "jane.doe@example.com",
		"salary":        125000,
		"ssn":           "123-45-6789",
		"bonus":         nil,
		"phone":         nil,
		"password_hash": "$2a$10$abc",
	}
	got := m.MaskRecord(record, MaskOptions{
		AlwaysShowFields: []string{"id", "ssn", "password_hash"},
		OmitFields:       []string{"password_hash"},
	})

	assert.Equal(t, map[string]any{
		"id":         "e2",
		"first_name": "Jane",
		"email":      "jane.doe@example.com",
		"salary":     "$•••••",
		"ssn":        "123-45-6789",
		"bonus":      "",
		"phone":      nil,
	}, got)
	assert.Equal(t, "$2a$10$abc", record["password_hash"], "input must not be modified")
	assert.Nil(t, m.MaskRecord(nil, MaskOptions{}))
}

func TestRecordMasker_MaskRecords(t *testing.T) {
	reg := NewSensitivityRegistry(nil, nil)
	m := NewRecordMasker(newTestCache("u1"), reg, "employees", CheckContext{})

	got := m.MaskRecords([]map[string]any{
		{"first_name": "A", "ssn": "123456789"},
		{"first_name": "B", "ssn": "987654321"},
	}, MaskOptions{})

	assert.Len(t, got, 2)
	assert.Equal(t, "A", got[0]["first_name"])
	assert.Equal(t, "••••••6789", got[0]["ssn"])
	assert.Equal(t, "••••••4321", got[1]["ssn"])
}

func TestStringify(t *testing.T) {
	s := "ptr"
	var nilPtr *string
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "ptr", stringify(&s))
	assert.Equal(t, "", stringify(nilPtr))
	assert.Equal(t, "raw", stringify([]byte("raw")))
	assert.Equal(t, "42", stringify(42))
}
