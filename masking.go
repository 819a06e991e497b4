package rbac

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaskingType selects how a hidden value is rendered.
type MaskingType string

const (
	MaskFull     MaskingType = "full"
	MaskPartial  MaskingType = "partial"
	MaskLast4    MaskingType = "last4"
	MaskEmail    MaskingType = "email"
	MaskPhone    MaskingType = "phone"
	MaskDate     MaskingType = "date"
	MaskCurrency MaskingType = "currency"
)

const bullet = "•"

var (
	fullMask = strings.Repeat(bullet, 8)
	yearRe   = regexp.MustCompile(`\d{4}`)
)

// Valid reports whether t is a known masking type.
func (t MaskingType) Valid() bool {
	switch t {
	case MaskFull, MaskPartial, MaskLast4, MaskEmail, MaskPhone, MaskDate, MaskCurrency:
		return true
	}
	return false
}

// MaskValue renders value hidden according to maskingType. Empty values
// become "" and unknown types fall back to a full mask. A value that already
// has the masked shape is fully masked rather than echoed back.
func MaskValue(value string, maskingType MaskingType) string {
	if value == "" {
		return ""
	}
	if out := maskAs(value, maskingType); out != value {
		return out
	}
	return fullMask
}

func maskAs(value string, maskingType MaskingType) string {
	switch maskingType {
	case MaskPartial:
		return maskPartial(value)
	case MaskLast4:
		return maskLast4(value)
	case MaskEmail:
		return maskEmail(value)
	case MaskPhone:
		return maskPhone(value)
	case MaskDate:
		return maskDate(value)
	case MaskCurrency:
		return "$" + strings.Repeat(bullet, 5)
	default:
		return fullMask
	}
}

func maskPartial(v string) string {
	r := []rune(v)
	if len(r) <= 4 {
		return fullMask
	}
	return string(r[:2]) + strings.Repeat(bullet, 4) + string(r[len(r)-2:])
}

func maskLast4(v string) string {
	r := []rune(v)
	if len(r) <= 4 {
		return strings.Repeat(bullet, 4) + v
	}
	return strings.Repeat(bullet, 6) + string(r[len(r)-4:])
}

func maskEmail(v string) string {
	at := strings.LastIndex(v, "@")
	if at <= 0 {
		return fullMask
	}
	local, domain := []rune(v[:at]), v[at:]
	if len(local) <= 2 {
		return string(local[0]) + strings.Repeat(bullet, 4) + domain
	}
	return string(local[0]) + strings.Repeat(bullet, 4) + string(local[len(local)-1]) + domain
}

func maskPhone(v string) string {
	digits := strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, v)
	if len(digits) < 4 {
		return fullMask
	}
	last4 := digits[len(digits)-4:]
	switch len(digits) {
	case 10:
		return "(•••) •••-" + last4
	case 11:
		return "+• (•••) •••-" + last4
	default:
		return "•••-" + last4
	}
}

func maskDate(v string) string {
	if year := yearRe.FindString(v); year != "" {
		return "••/••/" + year
	}
	return "••/••/••••"
}

// ShouldMask reports whether a field at fieldLevel must be hidden from a
// viewer whose maximum tier is userLevel. hasUserLevel is false when the
// viewer may not see even basic data. Unknown field tiers are treated as
// basic.
func ShouldMask(fieldLevel, userLevel DataLevel, hasUserLevel, selfAccess bool) bool {
	if !fieldLevel.Valid() || fieldLevel == DataLevelBasic {
		return false
	}
	if selfAccess && fieldLevel == DataLevelPersonal {
		return false
	}
	if hasUserLevel && userLevel.AtLeast(fieldLevel) {
		return false
	}
	return true
}

// MaskField returns value unchanged when the viewer may see it and its
// masked form otherwise.
func MaskField(value string, field FieldSensitivity, userLevel DataLevel, hasUserLevel, selfAccess bool) string {
	if !ShouldMask(field.Sensitivity, userLevel, hasUserLevel, selfAccess) {
		return value
	}
	return MaskValue(value, field.MaskingType)
}
