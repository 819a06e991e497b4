package rbac

import (
	"fmt"

	"github.com/samber/lo"
)

const (
	actionView = "view"
	actionEdit = "edit"
)

// MaskOptions adjusts record masking. OmitFields wins over AlwaysShowFields.
type MaskOptions struct {
	AlwaysShowFields []string
	OmitFields       []string
}

// GetAllowedFields filters fields down to those the user may view unmasked
// on a target. Viewing your own personal fields is always allowed.
func GetAllowedFields(cache *PermissionCache, registry *SensitivityRegistry, resource string, fields []string, cctx CheckContext) []string {
	level, ok := GetMaxDataLevel(cache, resource, actionView, cctx)
	self := isSelfTarget(cache, cctx)
	return lo.Filter(fields, func(field string, _ int) bool {
		fs := registry.Lookup(resource, field)
		return !ShouldMask(fs.Sensitivity, level, ok, self)
	})
}

// GetEditableFields filters fields down to those the user may edit on a
// target. Unlike viewing there is no self exception.
func GetEditableFields(cache *PermissionCache, registry *SensitivityRegistry, resource string, fields []string, cctx CheckContext) []string {
	return lo.Filter(fields, func(field string, _ int) bool {
		return CanEditColumn(cache, registry, resource, field, cctx)
	})
}

// CanEditColumn reports whether the user may edit one field on a target.
func CanEditColumn(cache *PermissionCache, registry *SensitivityRegistry, resource, field string, cctx CheckContext) bool {
	fs := registry.Lookup(resource, field)
	return CanAccessDataLevel(cache, resource, actionEdit, fs.Sensitivity, cctx)
}

// RecordMasker masks records for a single viewer and target.
type RecordMasker struct {
	Registry     *SensitivityRegistry
	Resource     string
	UserLevel    DataLevel
	HasUserLevel bool
	SelfAccess   bool
}

// NewRecordMasker resolves the viewer's maximum tier for resource once so it
// can be applied to many records.
func NewRecordMasker(cache *PermissionCache, registry *SensitivityRegistry, resource string, cctx CheckContext) RecordMasker {
	level, ok := GetMaxDataLevel(cache, resource, actionView, cctx)
	return RecordMasker{
		Registry:     registry,
		Resource:     resource,
		UserLevel:    level,
		HasUserLevel: ok,
		SelfAccess:   isSelfTarget(cache, cctx),
	}
}

// MaskRecord returns a copy of record with hidden fields masked and omitted
// fields removed. nil values stay nil when visible and become "" when masked.
func (m RecordMasker) MaskRecord(record map[string]any, opts MaskOptions) map[string]any {
	if record == nil {
		return nil
	}
	omit := NewStringSet(opts.OmitFields...)
	show := NewStringSet(opts.AlwaysShowFields...)
	out := make(map[string]any, len(record))
	for field, value := range record {
		if omit.Has(field) {
			continue
		}
		if show.Has(field) {
			out[field] = value
			continue
		}
		fs := m.Registry.Lookup(m.Resource, field)
		if !ShouldMask(fs.Sensitivity, m.UserLevel, m.HasUserLevel, m.SelfAccess) {
			out[field] = value
			continue
		}
		out[field] = MaskValue(stringify(value), fs.MaskingType)
	}
	return out
}

// MaskRecords applies MaskRecord to every record.
func (m RecordMasker) MaskRecords(records []map[string]any, opts MaskOptions) []map[string]any {
	return lo.Map(records, func(r map[string]any, _ int) map[string]any {
		return m.MaskRecord(r, opts)
	})
}

func isSelfTarget(cache *PermissionCache, cctx CheckContext) bool {
	return cache != nil && cctx.TargetUserID != "" && cctx.TargetUserID == cache.UserID
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
