package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/almanac"
	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

// EvalResult is one rule's outcome from a Run, named after §4.H's
// `EvalResult { name, result, event }` plus the flattened condition
// branch captured along the way for RuleFailure construction.
type EvalResult struct {
	Name             string
	Result           bool
	Event            xfconfig.RuleEvent
	ConditionDetails *LeafDetail
	AllConditions    []LeafDetail
	ConditionType    string
}

// Engine evaluates a fixed rule set against an almanac's facts, combining
// the built-in operator set with whatever a plugin registry contributed.
type Engine struct {
	Rules     []xfconfig.RuleConfig
	Operators map[string]OperatorFn
	Logger    *zap.Logger
}

// New builds an Engine for rules, merging DefaultOperators with any
// plugin-contributed operators (the latter take precedence on a name
// collision, letting a plugin refine a built-in comparison).
func New(rules []xfconfig.RuleConfig, pluginOperators map[string]OperatorFn, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ops := DefaultOperators()
	for name, fn := range pluginOperators {
		ops[name] = fn
	}
	return &Engine{Rules: rules, Operators: ops, Logger: logger}
}

// Run evaluates every rule against alm, returning one EvalResult per rule
// that evaluated true. Rules are evaluated independently; one rule's leaf
// errors never affect another's.
func (e *Engine) Run(ctx context.Context, alm *almanac.Almanac) []EvalResult {
	var out []EvalResult
	for _, rule := range e.Rules {
		branch := &branchEval{}
		matched, conditionType := evalConditions(ctx, rule.Conditions, alm, e.Operators, e.Logger, branch)
		if !matched {
			continue
		}
		out = append(out, EvalResult{
			Name:             rule.Name,
			Result:           true,
			Event:            rule.Event,
			ConditionDetails: branch.firstLeaf,
			AllConditions:    branch.leaves,
			ConditionType:    conditionType,
		})
	}
	return out
}
