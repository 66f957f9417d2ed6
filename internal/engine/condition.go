package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/almanac"
	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

// LeafDetail preserves one leaf condition's fields, used both for the first
// matched leaf (RuleFailure.ConditionDetails) and the flattened branch
// (RuleFailure.AllConditions).
type LeafDetail struct {
	Fact     string         `json:"fact"`
	Operator string         `json:"operator"`
	Value    any            `json:"value"`
	Params   map[string]any `json:"params,omitempty"`
	Path     string         `json:"path,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

// branchEval accumulates the result of evaluating one condition branch: the
// boolean outcome, every leaf encountered (for AllConditions), and the
// first leaf encountered (for ConditionDetails).
type branchEval struct {
	leaves    []LeafDetail
	firstLeaf *LeafDetail
}

func (b *branchEval) record(d LeafDetail) {
	b.leaves = append(b.leaves, d)
	if b.firstLeaf == nil {
		first := d
		b.firstLeaf = &first
	}
}

// evalConditions evaluates a top-level Conditions node (exactly one of
// All/Any populated, enforced by xfconfig.ValidateRule) and reports the
// branch type alongside the boolean result. A present but empty all is
// true and a present but empty any is false; a node with neither set
// reports "unknown" and false.
func evalConditions(ctx context.Context, cond xfconfig.Conditions, alm *almanac.Almanac, ops map[string]OperatorFn, logger *zap.Logger, branch *branchEval) (result bool, conditionType string) {
	switch {
	case cond.All != nil:
		return evalAll(ctx, cond.All, alm, ops, logger, branch), "all"
	case cond.Any != nil:
		return evalAny(ctx, cond.Any, alm, ops, logger, branch), "any"
	default:
		return false, "unknown"
	}
}

func evalAll(ctx context.Context, conds []xfconfig.Condition, alm *almanac.Almanac, ops map[string]OperatorFn, logger *zap.Logger, branch *branchEval) bool {
	for _, c := range conds {
		if !evalCondition(ctx, c, alm, ops, logger, branch) {
			return false
		}
	}
	return true
}

func evalAny(ctx context.Context, conds []xfconfig.Condition, alm *almanac.Almanac, ops map[string]OperatorFn, logger *zap.Logger, branch *branchEval) bool {
	for _, c := range conds {
		if evalCondition(ctx, c, alm, ops, logger, branch) {
			return true
		}
	}
	return false
}

func evalCondition(ctx context.Context, c xfconfig.Condition, alm *almanac.Almanac, ops map[string]OperatorFn, logger *zap.Logger, branch *branchEval) bool {
	if !c.IsLeaf() {
		if len(c.All) > 0 {
			return evalAll(ctx, c.All, alm, ops, logger, branch)
		}
		return evalAny(ctx, c.Any, alm, ops, logger, branch)
	}
	return evalLeaf(ctx, c, alm, ops, logger, branch)
}

func evalLeaf(ctx context.Context, c xfconfig.Condition, alm *almanac.Almanac, ops map[string]OperatorFn, logger *zap.Logger, branch *branchEval) bool {
	detail := LeafDetail{Fact: c.Fact, Operator: c.Operator, Value: c.Value, Params: c.Params, Path: c.Path, Priority: c.Priority}
	branch.record(detail)

	factValue, err := alm.FactValue(ctx, c.Fact, c.Params)
	if err != nil {
		logger.Debug("fact resolution failed, leaf evaluates false", zap.String("fact", c.Fact), zap.Error(err))
		return false
	}

	if c.Path != "" {
		expr, err := ParsePath(c.Path)
		if err != nil {
			logger.Debug("path parse failed, leaf evaluates false", zap.String("path", c.Path), zap.Error(err))
			return false
		}
		resolved, ok := Navigate(factValue, expr)
		if !ok {
			return false
		}
		factValue = resolved
	}

	op, ok := ops[c.Operator]
	if !ok {
		logger.Debug("unknown operator, leaf evaluates false", zap.String("operator", c.Operator))
		return false
	}
	return op(factValue, c.Value)
}
