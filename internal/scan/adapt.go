package scan

import (
	"context"

	"github.com/xfidelity/xfidelity/internal/almanac"
	"github.com/xfidelity/xfidelity/internal/engine"
	"github.com/xfidelity/xfidelity/internal/plugin"
)

// AdaptPluginFacts lifts the plugin registry's fact functions (which take
// the narrower plugin.Almanac interface) into the almanac package's own
// FactFn shape, so a *almanac.Almanac satisfies both call sites without
// either package importing the other.
func AdaptPluginFacts(facts map[string]plugin.FactFn) map[string]almanac.FactFn {
	out := make(map[string]almanac.FactFn, len(facts))
	for name, fn := range facts {
		fn := fn
		out[name] = func(ctx context.Context, params map[string]any, a *almanac.Almanac) (any, error) {
			return fn(ctx, params, a)
		}
	}
	return out
}

// AdaptPluginOperators converts the registry's operator functions into the
// engine package's OperatorFn type. Both share an identical underlying
// func(any, any) bool signature, so the conversion is purely nominal.
func AdaptPluginOperators(ops map[string]plugin.OperatorFn) map[string]engine.OperatorFn {
	out := make(map[string]engine.OperatorFn, len(ops))
	for name, fn := range ops {
		out[name] = engine.OperatorFn(fn)
	}
	return out
}
