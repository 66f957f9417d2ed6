// Package plugin implements the plugin registry (E) and loader (F)
// described in SPEC_FULL.md §4: plugins contribute facts, operators, and
// built-in rules to the engine, discovered either from the in-process
// builtin set or an external location named on the CLI.
//
// The plugin contract is adapted from pkg/catalog/plugin/plugin.go's
// CatalogPlugin interface (there, plugins mount HTTP routes onto a shared
// catalog server; here, they mount facts/operators onto a shared almanac and
// rule engine), including its pattern of a required core interface plus a
// family of optional capability interfaces checked with a type assertion.
package plugin

import "context"

// FactFn computes a fact's value given the almanac-provided parameters and
// the current rule-evaluation context (e.g. fileData).
type FactFn func(ctx context.Context, params map[string]any, almanac Almanac) (any, error)

// OperatorFn evaluates whether factValue satisfies compareValue.
type OperatorFn func(factValue, compareValue any) bool

// Almanac is the subset of the almanac (G) a fact function needs: fetching
// other facts by name, so one fact can depend on another.
type Almanac interface {
	FactValue(ctx context.Context, name string, params map[string]any) (any, error)
}

// FactDefn is one fact a plugin contributes.
type FactDefn struct {
	Name string
	Fn   FactFn
}

// OperatorDefn is one comparison operator a plugin contributes.
type OperatorDefn struct {
	Name string
	Fn   OperatorFn
}

// Plugin is the required interface every plugin implements, mirroring
// CatalogPlugin's Name/Version/Description/Init shape.
type Plugin interface {
	Name() string
	Version() string
	Description() string

	// Init is called once after the plugin is loaded, before any of its
	// facts/operators/rules are exercised; it may validate configuration
	// and establish long-lived resources (HTTP clients, caches).
	Init(ctx context.Context, params map[string]any) error
}

// FactProvider is an optional capability: most analysis plugins contribute
// at least one fact.
type FactProvider interface {
	Facts() []FactDefn
}

// OperatorProvider is an optional capability: plugins that add custom
// comparison semantics (glob matching, semver comparison) implement this.
type OperatorProvider interface {
	Operators() []OperatorDefn
}

// RuleProvider is an optional capability: a plugin may ship built-in rules
// that become available to any archetype that names the plugin.
type RuleProvider interface {
	Rules() []PluginRule
}

// PluginRule is a rule document contributed by a plugin, kept as a raw map
// so the plugin package does not import xfconfig (avoiding an import
// cycle). Registry.GetPluginRules returns it as-is; no code in this
// package converts it into an xfconfig.RuleConfig.
type PluginRule map[string]any

// ErrorBehaviorProvider is an optional capability: a plugin may decide how
// Registry.ExecutePluginFunction treats an error returned by one of its
// functions. A recovered panic is always a PluginExecutionFailedError.
type ErrorBehaviorProvider interface {
	// OnError is called with the failing function's name and the error it
	// returned; returning true makes ExecutePluginFunction treat the failure
	// as swallowed (log and continue) rather than surfacing a PluginExecutionFailedError.
	OnError(functionName string, err error) (swallow bool)
}

// SampleConfigProvider is an optional capability: a plugin may ship a
// default configuration document, the same role
// pkg/catalog/plugin/plugin.go's Config.SampleSourcesYAML plays for catalog
// plugins. The registry and loader do not read or merge it.
type SampleConfigProvider interface {
	SampleConfig() map[string]any
}
