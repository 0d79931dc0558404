package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MaxSmallInt is the largest value a smallint column accepts.
const MaxSmallInt = 32767

var (
	leadingIntRe   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloatRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// LeadingInt parses the integer at the start of s, ignoring surrounding
// whitespace and anything after the digits ("12kg" -> 12, "3.7" -> 3).
// ok is false when s does not start with an integer.
func LeadingInt(s string) (n int, ok bool) {
	m := leadingIntRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		// Out of int64 range: saturate, callers clamp anyway.
		if strings.HasPrefix(m, "-") {
			return math.MinInt, true
		}
		return math.MaxInt, true
	}
	return int(v), true
}

// LeadingFloat parses the decimal number at the start of s. A lone comma is
// accepted as the decimal separator ("0,3" -> 0.3).
func LeadingFloat(s string) (f float64, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	m := leadingFloatRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int converts a loosely typed value (JSON number, numeric string) to an int.
// Anything non-numeric yields 0.
func Int(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		t := math.Trunc(x)
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		if t < math.MinInt32 {
			return math.MinInt32
		}
		return int(t)
	case string:
		n, _ := LeadingInt(x)
		return n
	default:
		return 0
	}
}

// SmallInt is Int clamped to [0, MaxSmallInt].
func SmallInt(v any) int {
	return ClampSmallInt(Int(v))
}

// ClampSmallInt clamps n to [0, MaxSmallInt].
func ClampSmallInt(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxSmallInt {
		return MaxSmallInt
	}
	return n
}

// Float converts a loosely typed value to a float64, 0 when non-numeric.
func Float(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case int:
		return float64(x)
	case string:
		f, _ := LeadingFloat(x)
		return f
	default:
		return 0
	}
}
