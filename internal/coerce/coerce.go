// Package coerce converts raw cell values into the canonical representation
// for a declared field type. Coercion never fails: a value that cannot be
// converted is left for the validation stage to flag.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tabflow/internal/domain"
)

// Excel stores dates as day counts from an epoch of 1899-12-30. Serials in
// (59, 600000) cover 1900-02-28 through the year 3542; numbers outside that
// window are treated as Unix-millisecond timestamps.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const (
	excelSerialMin = 59
	excelSerialMax = 600000
	msPerDay       = 86400000
)

// Value coerces a raw cell value to the given field type. Nil and empty-string
// values pass through unchanged for every type, as do values of unknown types.
func Value(v any, fieldType domain.FieldType) any {
	if IsEmpty(v) {
		return v
	}

	switch fieldType {
	case domain.FieldTypeString, domain.FieldTypeEmail:
		return strings.TrimSpace(String(v))
	case domain.FieldTypeNumber:
		if n := Number(v); !math.IsNaN(n) {
			return n
		}
		// NaN has no JSON representation; keep the raw form and let the
		// type check flag it.
		return v
	case domain.FieldTypeBoolean:
		s := strings.ToLower(strings.TrimSpace(String(v)))
		return s == "true" || s == "1" || s == "yes"
	case domain.FieldTypeDate:
		return date(v)
	default:
		return v
	}
}

func date(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64, float32, int, int32, int64:
		serial := Number(v)
		if serial > excelSerialMin && serial < excelSerialMax {
			ms := int64(math.Round(serial * msPerDay))
			return excelEpoch.Add(time.Duration(ms) * time.Millisecond).UTC().Format(time.RFC3339)
		}
		return time.UnixMilli(int64(serial)).UTC().Format(time.RFC3339)
	case string:
		if parsed, ok := ParseDate(t); ok {
			return parsed.UTC().Format(time.RFC3339)
		}
		return t
	default:
		return v
	}
}

// IsEmpty reports whether a raw value is nil or the empty string.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// String renders a raw cell value as a string.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Number converts a raw value to float64, yielding NaN when it does not
// parse. Booleans convert to 1 and 0.
func Number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN()
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
	time.RFC1123,
}

// ParseDate attempts to parse a date string against the supported layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
