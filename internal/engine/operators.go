package engine

import (
	"fmt"
	"reflect"
)

// OperatorFn evaluates whether factValue satisfies compareValue.
type OperatorFn func(factValue, compareValue any) bool

// DefaultOperators returns the built-in comparison operators every engine
// instance carries regardless of which plugins are loaded, named after the
// condition-tree vocabulary used throughout §4.H and §9's examples.
func DefaultOperators() map[string]OperatorFn {
	return map[string]OperatorFn{
		"equal":                opEqual,
		"notEqual":             func(a, b any) bool { return !opEqual(a, b) },
		"in":                   opIn,
		"notIn":                func(a, b any) bool { return !opIn(a, b) },
		"contains":             opContains,
		"doesNotContain":       func(a, b any) bool { return !opContains(a, b) },
		"lessThan":             func(a, b any) bool { c, ok := compareNumbers(a, b); return ok && c < 0 },
		"lessThanInclusive":    func(a, b any) bool { c, ok := compareNumbers(a, b); return ok && c <= 0 },
		"greaterThan":          func(a, b any) bool { c, ok := compareNumbers(a, b); return ok && c > 0 },
		"greaterThanInclusive": func(a, b any) bool { c, ok := compareNumbers(a, b); return ok && c >= 0 },
	}
}

func opEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeNumber(a), normalizeNumber(b))
}

func opIn(factValue, compareValue any) bool {
	list, ok := compareValue.([]any)
	if !ok {
		return false
	}
	for _, v := range list {
		if opEqual(factValue, v) {
			return true
		}
	}
	return false
}

func opContains(factValue, compareValue any) bool {
	switch v := factValue.(type) {
	case []any:
		for _, item := range v {
			if opEqual(item, compareValue) {
				return true
			}
		}
		return false
	case string:
		s, ok := compareValue.(string)
		if !ok {
			return false
		}
		return len(s) > 0 && len(v) >= len(s) && indexOf(v, s) >= 0
	default:
		return false
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// compareNumbers converts both operands to float64 where possible and
// reports ok=false when either cannot be compared as a number, so every
// ordering operator is false against non-numeric input rather than a panic.
func compareNumbers(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func normalizeNumber(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

// FormatOperand renders an operand for a RuleFailure's conditionDetails when
// it isn't already a JSON-safe scalar.
func FormatOperand(v any) string {
	return fmt.Sprintf("%v", v)
}
