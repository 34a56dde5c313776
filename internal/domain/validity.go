package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Default tolerances used to recognise the "could not classify" sentinel
// that several sources report instead of failing.
const (
	// DefaultTolerance is the distance from 0.5 below which a score on the
	// 0-1 scale is treated as the sentinel.
	DefaultTolerance = 0.01

	// DefaultPercentTolerance is the distance from 50 below which a score on
	// the 0-100 scale is treated as the sentinel.
	DefaultPercentTolerance = 1.0

	// sentinelScore and sentinelPercent are the two encodings of the
	// uninformative default.
	sentinelScore   = 0.5
	sentinelPercent = 50.0

	// floatSlack absorbs binary rounding so that configured bounds are
	// inclusive (|0.49-0.5| is slightly above 0.01 in float64).
	floatSlack = 1e-9
)

// ValidityFilter decides whether a value reported by a source is a genuine
// signal or the uninformative default (~0.5 / ~50%). It is a value type and
// safe for concurrent use.
type ValidityFilter struct {
	// Tolerance is the inclusive distance from 0.5 treated as default.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gte=0,lt=0.5"`

	// PercentTolerance is the inclusive distance from 50 treated as default
	// for values reported on the percentage scale.
	PercentTolerance float64 `yaml:"percent_tolerance" json:"percent_tolerance" validate:"gte=0,lt=50"`
}

// DefaultValidityFilter returns a filter with the standard tolerances.
func DefaultValidityFilter() ValidityFilter {
	return ValidityFilter{
		Tolerance:        DefaultTolerance,
		PercentTolerance: DefaultPercentTolerance,
	}
}

// IsDefault reports whether value must be discarded before weighting.
// The value may be absent (nil or a nil *float64), any Go numeric type,
// a json.Number, or a numeric string. Values of any other type, NaN,
// infinities and unparseable strings are never genuine signals.
//
//	f := domain.DefaultValidityFilter()
//	f.IsDefault(nil)    // true
//	f.IsDefault("0.5")  // true
//	f.IsDefault(50)     // true
//	f.IsDefault(0.505)  // true
//	f.IsDefault(0.8)    // false
func (f ValidityFilter) IsDefault(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case *float64:
		if v == nil {
			return true
		}
		return f.isDefaultNumber(*v)
	case json.Number:
		return f.isDefaultString(v.String())
	case string:
		return f.isDefaultString(v)
	}
	if n, ok := toFloat(value); ok {
		return f.isDefaultNumber(n)
	}
	return true
}

func (f ValidityFilter) isDefaultNumber(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	if v == sentinelScore || v == sentinelPercent {
		return true
	}
	if f.near(v, sentinelScore, f.Tolerance) {
		return true
	}
	// Values above 1 can only be on the percentage scale.
	return v > 1 && f.near(v, sentinelPercent, f.PercentTolerance)
}

func (f ValidityFilter) isDefaultString(s string) bool {
	n, percent, ok := parseNumeric(s)
	if !ok {
		return true
	}
	if percent {
		return f.near(n, sentinelPercent, f.PercentTolerance)
	}
	return f.near(n, sentinelScore, f.Tolerance) || f.near(n, sentinelPercent, f.PercentTolerance)
}

func (f ValidityFilter) near(v, target, tolerance float64) bool {
	return math.Abs(v-target) <= tolerance+floatSlack
}

// ParseScore converts a value reported by a source into a score on the
// 0-1 scale. Numbers and numeric strings in (1, 100] are read as
// percentages, and so is any string with a trailing percent sign. The
// second result is false when the value is absent, not numeric, or
// outside [0, 100].
func ParseScore(value any) (float64, bool) {
	var (
		n       float64
		percent bool
		ok      bool
	)
	switch v := value.(type) {
	case nil:
		return 0, false
	case *float64:
		if v == nil {
			return 0, false
		}
		n, ok = *v, true
	case json.Number:
		n, percent, ok = parseNumeric(v.String())
	case string:
		n, percent, ok = parseNumeric(v)
	default:
		n, ok = toFloat(value)
	}
	if !ok || math.IsNaN(n) || n < 0 || n > 100 {
		return 0, false
	}
	if percent || n > 1 {
		return n / 100, true
	}
	return n, true
}

// toFloat widens any Go integer or float kind.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uintptr:
		return float64(v), true
	default:
		return 0, false
	}
}

// parseNumeric parses a float allowing surrounding whitespace and a
// trailing percent sign. percent reports whether the sign was present,
// in which case the value is on the 0-100 scale.
func parseNumeric(s string) (n float64, percent bool, ok bool) {
	s = strings.TrimSpace(s)
	if trimmed, found := strings.CutSuffix(s, "%"); found {
		s, percent = strings.TrimSpace(trimmed), true
	}
	if s == "" {
		return 0, false, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, false
	}
	return n, percent, true
}
