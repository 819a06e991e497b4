package rbac

import "strings"

// DataLevel is the sensitivity tier of a field, ordered least to most restrictive.
type DataLevel string

const (
	DataLevelBasic     DataLevel = "basic"
	DataLevelPersonal  DataLevel = "personal"
	DataLevelCompany   DataLevel = "company"
	DataLevelSensitive DataLevel = "sensitive"
)

// DataLevels lists every tier from least to most restrictive.
var DataLevels = []DataLevel{DataLevelBasic, DataLevelPersonal, DataLevelCompany, DataLevelSensitive}

// Rank returns the position of the level in the tier ordering, or -1 when unknown.
func (l DataLevel) Rank() int {
	switch l {
	case DataLevelBasic:
		return 0
	case DataLevelPersonal:
		return 1
	case DataLevelCompany:
		return 2
	case DataLevelSensitive:
		return 3
	}
	return -1
}

// Valid reports whether l is one of the four known tiers.
func (l DataLevel) Valid() bool { return l.Rank() >= 0 }

// AtLeast reports whether l is equal to or more restrictive than other.
func (l DataLevel) AtLeast(other DataLevel) bool {
	return l.Valid() && other.Valid() && l.Rank() >= other.Rank()
}

func (l DataLevel) String() string { return string(l) }

// ParseDataLevel converts a string into a DataLevel.
func ParseDataLevel(s string) (DataLevel, bool) {
	l := DataLevel(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// levelsFrom returns the tiers from l (inclusive) up to sensitive.
func levelsFrom(l DataLevel) []DataLevel {
	if !l.Valid() {
		return DataLevels
	}
	return DataLevels[l.Rank():]
}

// maxLevel returns the more restrictive of two tiers.
func maxLevel(a, b DataLevel) DataLevel {
	if !a.Valid() {
		return b
	}
	if b.Valid() && b.Rank() > a.Rank() {
		return b
	}
	return a
}
