package engine

import "testing"

func TestDefaultOperatorsEqual(t *testing.T) {
	ops := DefaultOperators()
	if !ops["equal"]("foo", "foo") {
		t.Fatal("expected equal strings to match")
	}
	if ops["equal"]("foo", "bar") {
		t.Fatal("expected different strings not to match")
	}
	// Numeric types of different Go kinds should still compare equal.
	if !ops["equal"](1, 1.0) {
		t.Fatal("expected int and float64 representing the same number to be equal")
	}
}

func TestDefaultOperatorsNotEqual(t *testing.T) {
	ops := DefaultOperators()
	if !ops["notEqual"]("foo", "bar") {
		t.Fatal("expected different values to be notEqual")
	}
	if ops["notEqual"]("foo", "foo") {
		t.Fatal("expected equal values not to be notEqual")
	}
}

func TestDefaultOperatorsIn(t *testing.T) {
	ops := DefaultOperators()
	list := []any{"a", "b", "c"}
	if !ops["in"]("b", list) {
		t.Fatal("expected 'b' to be in the list")
	}
	if ops["in"]("z", list) {
		t.Fatal("expected 'z' not to be in the list")
	}
	if ops["in"]("b", "not a list") {
		t.Fatal("expected non-list compareValue to never match")
	}
}

func TestDefaultOperatorsNotIn(t *testing.T) {
	ops := DefaultOperators()
	list := []any{"a", "b"}
	if !ops["notIn"]("z", list) {
		t.Fatal("expected 'z' to satisfy notIn")
	}
	if ops["notIn"]("a", list) {
		t.Fatal("expected 'a' not to satisfy notIn")
	}
}

func TestDefaultOperatorsContainsString(t *testing.T) {
	ops := DefaultOperators()
	if !ops["contains"]("hello world", "world") {
		t.Fatal("expected substring match")
	}
	if ops["contains"]("hello", "world") {
		t.Fatal("expected no match for absent substring")
	}
}

func TestDefaultOperatorsContainsSlice(t *testing.T) {
	ops := DefaultOperators()
	list := []any{"a", "b", "c"}
	if !ops["contains"](list, "b") {
		t.Fatal("expected slice to contain 'b'")
	}
	if ops["contains"](list, "z") {
		t.Fatal("expected slice not to contain 'z'")
	}
}

func TestDefaultOperatorsDoesNotContain(t *testing.T) {
	ops := DefaultOperators()
	if !ops["doesNotContain"]("hello", "world") {
		t.Fatal("expected doesNotContain to hold")
	}
	if ops["doesNotContain"]("hello world", "world") {
		t.Fatal("expected doesNotContain to fail when substring present")
	}
}

func TestDefaultOperatorsNumericComparisons(t *testing.T) {
	ops := DefaultOperators()
	cases := []struct {
		op       string
		a, b     any
		expected bool
	}{
		{"lessThan", 1, 2, true},
		{"lessThan", 2, 1, false},
		{"lessThan", 2, 2, false},
		{"lessThanInclusive", 2, 2, true},
		{"greaterThan", 3, 2, true},
		{"greaterThan", 2, 3, false},
		{"greaterThanInclusive", 2, 2, true},
		{"greaterThanInclusive", 1, 2, false},
	}
	for _, c := range cases {
		if got := ops[c.op](c.a, c.b); got != c.expected {
			t.Errorf("%s(%v, %v) = %v, want %v", c.op, c.a, c.b, got, c.expected)
		}
	}
}

func TestDefaultOperatorsNumericComparisonNonNumeric(t *testing.T) {
	ops := DefaultOperators()
	if ops["lessThan"]("not a number", 5) {
		t.Fatal("expected non-numeric operand to never satisfy lessThan")
	}
}

func TestFormatOperand(t *testing.T) {
	if got := FormatOperand(42); got != "42" {
		t.Fatalf("expected %q, got %q", "42", got)
	}
	if got := FormatOperand("x"); got != "x" {
		t.Fatalf("expected %q, got %q", "x", got)
	}
}
