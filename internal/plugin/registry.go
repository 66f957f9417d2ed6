package plugin

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/xferrors"
)

// Registry holds every loaded plugin and the facts/operators they expose,
// grounded on the mutex-protected map pattern used throughout the teacher's
// plugin and rule-registry code (pkg/catalog/plugin and the rules-engine
// reference in other_examples).
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]Plugin
	facts     map[string]FactFn
	operators map[string]OperatorFn
	logger    *zap.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		plugins:   make(map[string]Plugin),
		facts:     make(map[string]FactFn),
		operators: make(map[string]OperatorFn),
		logger:    logger,
	}
}

// Register adds p to the registry and, for every optional capability it
// implements, indexes its facts and operators. A plugin missing a Name or
// Version is logged as PluginInvalidFormatError and skipped rather than
// registered, matching §4.E's non-fatal validation policy. Registering a
// plugin whose name already exists is idempotent: it logs a warning and
// returns without calling Init again or otherwise changing registry state.
func (r *Registry) Register(ctx context.Context, p Plugin, params map[string]any) error {
	if p.Name() == "" || p.Version() == "" {
		err := &xferrors.PluginInvalidFormatError{Reason: "missing name or version"}
		r.logger.Warn(err.Error())
		return err
	}

	r.mu.RLock()
	_, exists := r.plugins[p.Name()]
	r.mu.RUnlock()
	if exists {
		r.logger.Warn("plugin already registered, skipping", zap.String("plugin", p.Name()))
		return nil
	}

	if err := p.Init(ctx, params); err != nil {
		return fmt.Errorf("init plugin %s: %w", p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name()]; exists {
		r.logger.Warn("plugin already registered, skipping", zap.String("plugin", p.Name()))
		return nil
	}
	r.plugins[p.Name()] = p

	if fp, ok := p.(FactProvider); ok {
		for _, f := range fp.Facts() {
			r.facts[f.Name] = f.Fn
		}
	}
	if op, ok := p.(OperatorProvider); ok {
		for _, o := range op.Operators() {
			r.operators[o.Name] = o.Fn
		}
	}
	r.logger.Info("plugin registered", zap.String("plugin", p.Name()), zap.String("version", p.Version()))
	return nil
}

// GetPlugin looks up a registered plugin by name.
func (r *Registry) GetPlugin(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, &xferrors.PluginNotFoundError{Name: name}
	}
	return p, nil
}

// GetPluginFacts returns every fact contributed by any registered plugin.
func (r *Registry) GetPluginFacts() map[string]FactFn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]FactFn, len(r.facts))
	for k, v := range r.facts {
		out[k] = v
	}
	return out
}

// GetPluginOperators returns every operator contributed by any registered
// plugin.
func (r *Registry) GetPluginOperators() map[string]OperatorFn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]OperatorFn, len(r.operators))
	for k, v := range r.operators {
		out[k] = v
	}
	return out
}

// GetPluginRules returns every rule contributed by a named, registered
// plugin that implements RuleProvider.
func (r *Registry) GetPluginRules(pluginName string) ([]PluginRule, error) {
	p, err := r.GetPlugin(pluginName)
	if err != nil {
		return nil, err
	}
	rp, ok := p.(RuleProvider)
	if !ok {
		return nil, nil
	}
	return rp.Rules(), nil
}

// ExecutePluginFunction invokes fn, converting a panic into a
// PluginExecutionFailedError so one misbehaving plugin cannot crash a scan;
// this mirrors the recover-at-the-boundary idiom the scan orchestrator uses
// around each file's engine run (scan.runOne).
func (r *Registry) ExecutePluginFunction(pluginName, functionName string, fn func() (any, error)) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &xferrors.PluginExecutionFailedError{Plugin: pluginName, Function: functionName, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	result, err = fn()
	if err != nil {
		if p, lookupErr := r.GetPlugin(pluginName); lookupErr == nil {
			if eb, ok := p.(ErrorBehaviorProvider); ok && eb.OnError(functionName, err) {
				r.logger.Debug("plugin swallowed error", zap.String("plugin", pluginName), zap.String("function", functionName), zap.Error(err))
				return result, nil
			}
		}
		return result, &xferrors.PluginExecutionFailedError{Plugin: pluginName, Function: functionName, Err: err}
	}
	return result, nil
}

// Names returns every registered plugin's name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		out = append(out, n)
	}
	return out
}
