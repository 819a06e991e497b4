package rbac

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AnyTable matches a field regardless of the table it lives in.
const AnyTable = "*"

// FieldSensitivity classifies one field.
type FieldSensitivity struct {
	TableName      string      `json:"table_name"`
	FieldName      string      `json:"field_name"`
	Sensitivity    DataLevel   `json:"sensitivity"`
	MaskingType    MaskingType `json:"masking_type"`
	MinSensitivity *DataLevel  `json:"min_sensitivity,omitempty"`
	DisplayOrder   int         `json:"display_order"`
}

type fieldKey struct{ table, field string }

type prefixRule struct {
	prefix  string
	level   DataLevel
	masking MaskingType
}

// systemMinimums are floors no override may go below.
var systemMinimums = map[string]DataLevel{
	"ssn":                 DataLevelSensitive,
	"tax_id":              DataLevelSensitive,
	"national_id":         DataLevelSensitive,
	"bank_account_number": DataLevelSensitive,
	"routing_number":      DataLevelSensitive,
}

var builtinFields = []FieldSensitivity{
	{FieldName: "first_name", Sensitivity: DataLevelBasic, MaskingType: MaskFull},
	{FieldName: "last_name", Sensitivity: DataLevelBasic, MaskingType: MaskFull},
	{FieldName: "job_title", Sensitivity: DataLevelBasic, MaskingType: MaskFull},
	{FieldName: "email", Sensitivity: DataLevelPersonal, MaskingType: MaskEmail},
	{FieldName: "personal_email", Sensitivity: DataLevelPersonal, MaskingType: MaskEmail},
	{FieldName: "phone", Sensitivity: DataLevelPersonal, MaskingType: MaskPhone},
	{FieldName: "mobile_phone", Sensitivity: DataLevelPersonal, MaskingType: MaskPhone},
	{FieldName: "date_of_birth", Sensitivity: DataLevelPersonal, MaskingType: MaskDate},
	{FieldName: "home_address", Sensitivity: DataLevelPersonal, MaskingType: MaskPartial},
	{FieldName: "employee_number", Sensitivity: DataLevelCompany, MaskingType: MaskPartial},
	{FieldName: "hire_date", Sensitivity: DataLevelCompany, MaskingType: MaskDate},
	{FieldName: "performance_rating", Sensitivity: DataLevelCompany, MaskingType: MaskFull},
	{FieldName: "salary", Sensitivity: DataLevelSensitive, MaskingType: MaskCurrency},
	{FieldName: "bonus", Sensitivity: DataLevelSensitive, MaskingType: MaskCurrency},
	{FieldName: "ssn", Sensitivity: DataLevelSensitive, MaskingType: MaskLast4},
	{FieldName: "tax_id", Sensitivity: DataLevelSensitive, MaskingType: MaskLast4},
	{FieldName: "national_id", Sensitivity: DataLevelSensitive, MaskingType: MaskLast4},
	{FieldName: "bank_account_number", Sensitivity: DataLevelSensitive, MaskingType: MaskLast4},
	{FieldName: "routing_number", Sensitivity: DataLevelSensitive, MaskingType: MaskLast4},
}

// prefixRules classify unconfigured fields by name, first match wins.
var prefixRules = []prefixRule{
	{"bank_", DataLevelSensitive, MaskLast4},
	{"tax_", DataLevelSensitive, MaskLast4},
	{"ssn", DataLevelSensitive, MaskLast4},
	{"salary", DataLevelSensitive, MaskCurrency},
	{"compensation_", DataLevelSensitive, MaskCurrency},
	{"emergency_", DataLevelPersonal, MaskPartial},
	{"home_", DataLevelPersonal, MaskPartial},
	{"personal_", DataLevelPersonal, MaskPartial},
	{"birth", DataLevelPersonal, MaskDate},
	{"internal_", DataLevelCompany, MaskFull},
}

type sensitivitySnapshot struct {
	overrides map[fieldKey]FieldSensitivity
	loadedAt  time.Time
}

// SensitivityLoader supplies configured overrides.
type SensitivityLoader interface {
	FieldSensitivityOverrides(ctx context.Context) ([]FieldSensitivity, error)
}

// SensitivityRegistry maps fields to tiers and masking types. Lookups read
// an immutable snapshot that Refresh swaps atomically.
type SensitivityRegistry struct {
	loader   SensitivityLoader
	logger   *zap.Logger
	defaults map[fieldKey]FieldSensitivity
	snapshot atomic.Pointer[sensitivitySnapshot]
}

// NewSensitivityRegistry creates a registry holding only the built-in
// classifications. loader may be nil.
func NewSensitivityRegistry(loader SensitivityLoader, logger *zap.Logger) *SensitivityRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SensitivityRegistry{
		loader:   loader,
		logger:   logger,
		defaults: make(map[fieldKey]FieldSensitivity, len(builtinFields)),
	}
	for _, f := range builtinFields {
		f.TableName = AnyTable
		r.defaults[fieldKey{AnyTable, f.FieldName}] = f
	}
	r.snapshot.Store(&sensitivitySnapshot{overrides: map[fieldKey]FieldSensitivity{}})
	return r
}

// Lookup classifies table.field: configured override, then built-in
// classification, then name prefix, then basic with a full mask. The
// result is never below the field's minimum.
func (r *SensitivityRegistry) Lookup(table, field string) FieldSensitivity {
	field = strings.ToLower(strings.TrimSpace(field))
	snap := r.snapshot.Load()

	fs, ok := snap.overrides[fieldKey{table, field}]
	if !ok {
		fs, ok = snap.overrides[fieldKey{AnyTable, field}]
	}
	if !ok {
		fs, ok = r.defaults[fieldKey{AnyTable, field}]
	}
	if !ok {
		fs = classifyByName(field)
	}
	fs.TableName, fs.FieldName = table, field
	if !fs.MaskingType.Valid() {
		fs.MaskingType = MaskFull
	}
	if !fs.Sensitivity.Valid() {
		fs.Sensitivity = DataLevelBasic
	}
	if floor, ok := minimumFor(fs); ok && !fs.Sensitivity.AtLeast(floor) {
		fs.Sensitivity = floor
	}
	return fs
}

func classifyByName(field string) FieldSensitivity {
	for _, p := range prefixRules {
		if strings.HasPrefix(field, p.prefix) {
			return FieldSensitivity{Sensitivity: p.level, MaskingType: p.masking}
		}
	}
	return FieldSensitivity{Sensitivity: DataLevelBasic, MaskingType: MaskFull}
}

func minimumFor(fs FieldSensitivity) (DataLevel, bool) {
	floor, ok := systemMinimums[fs.FieldName]
	if fs.MinSensitivity != nil && fs.MinSensitivity.Valid() {
		floor = maxLevel(floor, *fs.MinSensitivity)
		ok = true
	}
	return floor, ok
}

// Validate checks overrides before they are stored. Every offending entry is
// reported.
func (r *SensitivityRegistry) Validate(configs []FieldSensitivity) error {
	var err error
	for _, fs := range configs {
		name := fs.TableName + "." + fs.FieldName
		if fs.FieldName == "" {
			err = multierr.Append(err, fmt.Errorf("%w: field name is required", ErrInvalidInput))
			continue
		}
		if !fs.Sensitivity.Valid() {
			err = multierr.Append(err, fmt.Errorf("%w: %s: unknown sensitivity %q", ErrInvalidInput, name, fs.Sensitivity))
			continue
		}
		if fs.MaskingType != "" && !fs.MaskingType.Valid() {
			err = multierr.Append(err, fmt.Errorf("%w: %s: unknown masking type %q", ErrInvalidInput, name, fs.MaskingType))
		}
		fs.FieldName = strings.ToLower(fs.FieldName)
		if floor, ok := minimumFor(fs); ok && !fs.Sensitivity.AtLeast(floor) {
			err = multierr.Append(err, fmt.Errorf("%w: %s: sensitivity %s is below minimum %s", ErrInvalidInput, name, fs.Sensitivity, floor))
		}
	}
	return err
}

// Refresh reloads overrides from the loader and swaps the snapshot. On
// failure the previous snapshot stays in place.
func (r *SensitivityRegistry) Refresh(ctx context.Context) error {
	if r.loader == nil {
		return nil
	}
	configs, err := r.loader.FieldSensitivityOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load field sensitivity overrides: %w", err)
	}
	r.Replace(configs)
	return nil
}

// Replace installs configs as the current overrides.
func (r *SensitivityRegistry) Replace(configs []FieldSensitivity) {
	overrides := make(map[fieldKey]FieldSensitivity, len(configs))
	for _, fs := range configs {
		table := fs.TableName
		if table == "" {
			table = AnyTable
		}
		fs.FieldName = strings.ToLower(strings.TrimSpace(fs.FieldName))
		overrides[fieldKey{table, fs.FieldName}] = fs
	}
	r.snapshot.Store(&sensitivitySnapshot{overrides: overrides, loadedAt: time.Now()})
	r.logger.Debug("field sensitivity snapshot replaced", zap.Int("overrides", len(overrides)))
}

// LoadedAt reports when the current override snapshot was installed.
func (r *SensitivityRegistry) LoadedAt() time.Time {
	return r.snapshot.Load().loadedAt
}

// Run refreshes the registry every interval until ctx is done.
func (r *SensitivityRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.loader == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("field sensitivity refresh failed", zap.Error(err))
			}
		}
	}
}
