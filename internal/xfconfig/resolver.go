package xfconfig

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/githubconfig"
	"github.com/xfidelity/xfidelity/internal/plugin"
	"github.com/xfidelity/xfidelity/internal/ratelimit"
	"github.com/xfidelity/xfidelity/internal/telemetry"
	"github.com/xfidelity/xfidelity/internal/xferrors"
)

var archetypeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Resolver implements §4.D: resolves an archetype's ExecutionConfig from
// remote, local, or builtin sources in that precedence order, memoizing the
// result per archetype name for the lifetime of a run.
type Resolver struct {
	mu      sync.RWMutex
	cache   map[string]*ExecutionConfig
	remote  *RemoteClient
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	// loader, if set, is invoked during initialize to load the archetype's
	// base/declared plugins plus any CLI-extra plugins into the process-wide
	// plugin registry, per §4.D. A nil loader skips plugin loading entirely
	// (useful for tests that only exercise config resolution).
	loader      *plugin.Loader
	basePlugins []string
	// github, if set, backs a githubConfigLocation option naming a Git
	// repository instead of a bare local directory: GetConfig clones/syncs
	// it on demand and treats the resulting checkout as the local config
	// source for this call.
	github *githubconfig.Manager
}

// NewResolver builds a Resolver. limiter may be nil to disable rate limiting
// of remote re-fetches.
func NewResolver(remote *RemoteClient, limiter *ratelimit.Limiter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cache:   make(map[string]*ExecutionConfig),
		remote:  remote,
		limiter: limiter,
		logger:  logger,
	}
}

// WithPluginLoader attaches a plugin loader and the host-reported "base"
// plugin names (§4.F step 1's builtin set, always loaded regardless of
// archetype) that GetConfig loads before returning an ExecutionConfig.
func (r *Resolver) WithPluginLoader(loader *plugin.Loader, basePlugins []string) *Resolver {
	r.loader = loader
	r.basePlugins = basePlugins
	return r
}

// WithGitHubManager attaches the clone manager GetConfig uses to resolve a
// githubConfigLocation repository option into a local checkout directory.
// A nil manager (the default) makes githubConfigLocation a no-op.
func (r *Resolver) WithGitHubManager(mgr *githubconfig.Manager) *Resolver {
	r.github = mgr
	return r
}

// GetConfig implements §4.D getConfig(options) -> ExecutionConfig. It
// rejects archetype names outside [A-Za-z0-9_-]+ before touching any source,
// returns a cached ExecutionConfig for a repeated archetype within the same
// resolver, and otherwise tries remote, then local, then builtin, in order.
func (r *Resolver) GetConfig(ctx context.Context, opts CoreOptions, telemetrySink *telemetry.Sink) (*ExecutionConfig, error) {
	if !archetypeKeyPattern.MatchString(opts.Archetype) {
		return nil, &xferrors.InvalidArchetypeNameError{Name: opts.Archetype}
	}

	r.mu.RLock()
	if cfg, ok := r.cache[opts.Archetype]; ok {
		r.mu.RUnlock()
		return cfg, nil
	}
	r.mu.RUnlock()

	if opts.LocalConfigPath == "" && opts.GithubConfigLocation != "" && r.github != nil {
		dir, _, err := r.github.EnsureCloned(ctx, opts.GithubConfigLocation, "", opts.FileCacheTTL, false)
		if err != nil {
			r.logger.Warn("failed to sync githubConfigLocation, falling back to builtin", zap.Error(err))
		} else {
			opts.LocalConfigPath = dir
		}
	}

	doc, err := r.resolveArchetype(ctx, opts)
	if err != nil {
		return nil, err
	}

	if r.loader != nil {
		// Base plugins are loaded first and their failures are only warned,
		// never fatal to getConfig (§4.D).
		if err := r.loader.LoadPlugins(ctx, r.basePlugins, nil); err != nil {
			r.logger.Warn("failed to load one or more base plugins", zap.Error(err))
		}
		extra := append(append([]string{}, opts.ExtraPlugins...), doc.Plugins...)
		if err := r.loader.LoadPlugins(ctx, extra, nil); err != nil {
			r.logger.Warn("failed to load one or more archetype/CLI plugins", zap.Error(err))
		}
	}

	rules := r.resolveRules(doc, opts)
	exemptions := LoadExemptions(opts.LocalConfigPath, opts.Archetype, r.logger)

	cfg := &ExecutionConfig{
		Archetype:  *doc,
		Rules:      rules,
		Exemptions: exemptions,
		CLIOptions: opts,
	}

	r.mu.Lock()
	r.cache[opts.Archetype] = cfg
	r.mu.Unlock()

	if telemetrySink != nil {
		telemetrySink.Emit(telemetry.Event{
			Type: "configResolved",
			Data: map[string]any{"archetype": opts.Archetype, "ruleCount": len(rules)},
		})
	}
	return cfg, nil
}

// resolveArchetype tries remote (if configServer is set and rate-limiter
// admits), then local, then builtin, in that order.
func (r *Resolver) resolveArchetype(ctx context.Context, opts CoreOptions) (*ArchetypeConfig, error) {
	if opts.ConfigServer != "" && r.remote != nil {
		admit := true
		if r.limiter != nil {
			admit, _ = r.limiter.Allow(ratelimit.Key(opts.ConfigServer, opts.Archetype))
		}
		if admit {
			doc, err := r.remote.FetchArchetype(ctx, opts.ConfigServer, opts.Archetype, opts.LogPrefix)
			if err == nil {
				return doc, nil
			}
			r.logger.Warn("remote archetype fetch failed, falling back to local/builtin", zap.Error(err))
		} else {
			r.logger.Debug("remote archetype fetch rate limited, falling back to local/builtin")
		}
	}

	if opts.LocalConfigPath != "" {
		doc, err := readLocalArchetype(opts.LocalConfigPath, opts.Archetype)
		if err == nil {
			if !ValidateArchetype(doc, r.logger) {
				return nil, &xferrors.InvalidArchetypeConfigError{Source: "local"}
			}
			return doc, nil
		}
	}

	doc, err := readBuiltinArchetype(opts.Archetype)
	if err != nil {
		return nil, err
	}
	if !ValidateArchetype(doc, r.logger) {
		return nil, &xferrors.InvalidArchetypeConfigError{Source: "builtin", Reason: "failed multi-layer validation"}
	}
	return doc, nil
}

// resolveRules derives the active rule set from an archetype's rules list,
// which may be a mix of legacy bare rule-name strings (resolved against
// localConfigPath, then dropped with a logged warning if absent) and inline
// RuleConfig objects, mirroring §4.D's "Derive rules" precedence exactly.
func (r *Resolver) resolveRules(doc *ArchetypeConfig, opts CoreOptions) []RuleConfig {
	rules := make([]RuleConfig, 0, len(doc.Rules))
	for _, entry := range doc.Rules {
		switch v := entry.(type) {
		case string:
			rc, err := readLocalRule(opts.LocalConfigPath, v)
			if err != nil {
				r.logger.Warn("dropping unresolved legacy rule reference", zap.String("rule", v), zap.Error(err))
				continue
			}
			if !ValidateRule(rc, r.logger) {
				r.logger.Warn("dropping invalid rule", zap.String("rule", v))
				continue
			}
			rules = append(rules, *rc)
		case map[string]any:
			rc, err := decodeInlineRule(v)
			if err != nil {
				r.logger.Warn("dropping malformed inline rule", zap.Error(err))
				continue
			}
			if !ValidateRule(rc, r.logger) {
				r.logger.Warn("dropping invalid inline rule", zap.String("rule", rc.Name))
				continue
			}
			rules = append(rules, *rc)
		}
	}
	return rules
}

// GetLoadedConfigs returns a snapshot of every ExecutionConfig resolved so
// far, keyed by archetype name.
func (r *Resolver) GetLoadedConfigs() map[string]*ExecutionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ExecutionConfig, len(r.cache))
	for k, v := range r.cache {
		out[k] = v
	}
	return out
}

// ClearLoadedConfigs empties the resolver's cache, forcing the next
// GetConfig call for any archetype to re-resolve from scratch.
func (r *Resolver) ClearLoadedConfigs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*ExecutionConfig)
}

func decodeInlineRule(raw map[string]any) (*RuleConfig, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rc RuleConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}
