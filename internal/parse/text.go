package parse

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var upper = cases.Upper(language.Italian)

// Text returns v as trimmed NFC text, or fallback when it is empty.
// Numbers are rendered in plain decimal form, never with an exponent.
func Text(v any, fallback string) string {
	var s string
	switch x := v.(type) {
	case nil:
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return fallback
	}
	return s
}

// Code is Text upper-cased, for identifiers such as client and coil codes.
func Code(v any, fallback string) string {
	s := Text(v, "")
	if s == "" {
		return fallback
	}
	return upper.String(s)
}

// Clip shortens s to at most n runes so it fits a varchar(n) column.
func Clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
