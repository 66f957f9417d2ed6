package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/almanac"
	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

func newTestAlmanac(base map[string]any) *almanac.Almanac {
	return almanac.New(base, nil)
}

func TestEvalConditionsAllMatchesWhenEveryLeafTrue(t *testing.T) {
	alm := newTestAlmanac(map[string]any{"fileName": "index.js", "lineCount": 10})
	cond := xfconfig.Conditions{
		All: []xfconfig.Condition{
			{Fact: "fileName", Operator: "equal", Value: "index.js"},
			{Fact: "lineCount", Operator: "lessThan", Value: 100},
		},
	}
	branch := &branchEval{}
	matched, kind := evalConditions(context.Background(), cond, alm, DefaultOperators(), zap.NewNop(), branch)
	if !matched {
		t.Fatal("expected all-branch to match")
	}
	if kind != "all" {
		t.Fatalf("expected conditionType 'all', got %q", kind)
	}
	if len(branch.leaves) != 2 {
		t.Fatalf("expected 2 recorded leaves, got %d", len(branch.leaves))
	}
}

func TestEvalConditionsAllFailsWhenOneLeafFalse(t *testing.T) {
	alm := newTestAlmanac(map[string]any{"fileName": "index.js"})
	cond := xfconfig.Conditions{
		All: []xfconfig.Condition{
			{Fact: "fileName", Operator: "equal", Value: "index.js"},
			{Fact: "fileName", Operator: "equal", Value: "other.js"},
		},
	}
	branch := &branchEval{}
	matched, _ := evalConditions(context.Background(), cond, alm, DefaultOperators(), zap.NewNop(), branch)
	if matched {
		t.Fatal("expected all-branch to fail when any leaf is false")
	}
}

func TestEvalConditionsAnyMatchesOnFirstTrueLeaf(t *testing.T) {
	alm := newTestAlmanac(map[string]any{"fileName": "index.js"})
	cond := xfconfig.Conditions{
		Any: []xfconfig.Condition{
			{Fact: "fileName", Operator: "equal", Value: "nope.js"},
			{Fact: "fileName", Operator: "equal", Value: "index.js"},
		},
	}
	branch := &branchEval{}
	matched, kind := evalConditions(context.Background(), cond, alm, DefaultOperators(), zap.NewNop(), branch)
	if !matched {
		t.Fatal("expected any-branch to match")
	}
	if kind != "any" {
		t.Fatalf("expected conditionType 'any', got %q", kind)
	}
}

func TestEvalConditionsUnknownShapeIsFalse(t *testing.T) {
	alm := newTestAlmanac(nil)
	branch := &branchEval{}
	matched, kind := evalConditions(context.Background(), xfconfig.Conditions{}, alm, DefaultOperators(), zap.NewNop(), branch)
	if matched {
		t.Fatal("expected empty conditions to not match")
	}
	if kind != "unknown" {
		t.Fatalf("expected conditionType 'unknown', got %q", kind)
	}
}

func TestEvalConditionNestedBranch(t *testing.T) {
	alm := newTestAlmanac(map[string]any{"fileName": "index.js", "size": 50})
	nested := xfconfig.Condition{
		All: []xfconfig.Condition{
			{Fact: "fileName", Operator: "equal", Value: "index.js"},
			{Fact: "size", Operator: "greaterThan", Value: 10},
		},
	}
	branch := &branchEval{}
	if !evalCondition(context.Background(), nested, alm, DefaultOperators(), zap.NewNop(), branch) {
		t.Fatal("expected nested all-branch to match")
	}
}

func TestEvalLeafUnknownFactIsFalse(t *testing.T) {
	alm := newTestAlmanac(nil)
	leaf := xfconfig.Condition{Fact: "doesNotExist", Operator: "equal", Value: "x"}
	branch := &branchEval{}
	if evalLeaf(context.Background(), leaf, alm, DefaultOperators(), zap.NewNop(), branch) {
		t.Fatal("expected unresolved fact to evaluate false")
	}
}

func TestEvalLeafUnknownOperatorIsFalse(t *testing.T) {
	alm := newTestAlmanac(map[string]any{"x": 1})
	leaf := xfconfig.Condition{Fact: "x", Operator: "bogusOperator", Value: 1}
	branch := &branchEval{}
	if evalLeaf(context.Background(), leaf, alm, DefaultOperators(), zap.NewNop(), branch) {
		t.Fatal("expected unknown operator to evaluate false")
	}
}

func TestEvalLeafWithPathNavigatesFactValue(t *testing.T) {
	alm := newTestAlmanac(map[string]any{
		"fileData": map[string]any{"meta": map[string]any{"lines": 42}},
	})
	leaf := xfconfig.Condition{Fact: "fileData", Path: "meta.lines", Operator: "equal", Value: 42}
	branch := &branchEval{}
	if !evalLeaf(context.Background(), leaf, alm, DefaultOperators(), zap.NewNop(), branch) {
		t.Fatal("expected leaf to match after path navigation")
	}
}

func TestEvalLeafWithBadPathIsFalse(t *testing.T) {
	alm := newTestAlmanac(map[string]any{
		"fileData": map[string]any{"meta": map[string]any{"lines": 42}},
	})
	leaf := xfconfig.Condition{Fact: "fileData", Path: "meta.missing", Operator: "equal", Value: 42}
	branch := &branchEval{}
	if evalLeaf(context.Background(), leaf, alm, DefaultOperators(), zap.NewNop(), branch) {
		t.Fatal("expected leaf to evaluate false when path does not resolve")
	}
}

func TestBranchEvalRecordsFirstLeafOnly(t *testing.T) {
	b := &branchEval{}
	b.record(LeafDetail{Fact: "a"})
	b.record(LeafDetail{Fact: "b"})
	if b.firstLeaf == nil || b.firstLeaf.Fact != "a" {
		t.Fatalf("expected firstLeaf to be 'a', got %+v", b.firstLeaf)
	}
	if len(b.leaves) != 2 {
		t.Fatalf("expected 2 leaves recorded, got %d", len(b.leaves))
	}
}
