package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/xferrors"
)

// Source supplies a plugin instance by canonical name; the loader tries
// each Source in order until one produces a plugin or all are exhausted.
type Source interface {
	Load(ctx context.Context, canonicalName string) (Plugin, error)
}

// camelBoundary recognizes the lower-to-upper case boundaries of the
// camelCase "xfiPluginFooBar" form the archetype's plugins list may use.
var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// CanonicalPluginName implements §4.F's name-canonicalization transform:
// "xfiPluginFooBar" -> "xfi-plugin-foo-bar". Names already in kebab-case
// pass through unchanged.
func CanonicalPluginName(name string) string {
	kebab := camelBoundary.ReplaceAllString(name, "${1}-${2}")
	return strings.ToLower(kebab)
}

// Loader resolves the plugin names named in an archetype's `plugins` list
// against an ordered list of Sources (e.g. a builtin in-process source
// followed by an external-directory source), de-duplicating by canonical
// name so "xfiPluginPatterns" and "xfi-plugin-patterns" in the same list
// load once.
type Loader struct {
	sources  []Source
	registry *Registry
	logger   *zap.Logger
}

// NewLoader builds a Loader backed by sources, tried in order.
func NewLoader(registry *Registry, logger *zap.Logger, sources ...Source) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{sources: sources, registry: registry, logger: logger}
}

// LoadPlugins resolves and registers every name in names, skipping names
// already registered. It returns the first PluginLoadFailedError encountered
// after the full name list has been attempted, but still registers every
// name that did resolve — a single missing plugin does not block the rest.
// A registration failure is returned as the registry's own error instead.
func (l *Loader) LoadPlugins(ctx context.Context, names []string, params map[string]any) error {
	seen := mapset.NewSet[string]()
	var firstErr error

	for _, raw := range names {
		canonical := CanonicalPluginName(raw)
		if seen.Contains(canonical) {
			continue
		}
		seen.Add(canonical)

		if _, err := l.registry.GetPlugin(canonical); err == nil {
			continue
		}

		p, err := l.loadFromSources(ctx, canonical)
		if err != nil {
			l.logger.Error("failed to load plugin from all locations", zap.String("plugin", canonical), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := l.registry.Register(ctx, p, params); err != nil {
			l.logger.Error("failed to register plugin", zap.String("plugin", canonical), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (l *Loader) loadFromSources(ctx context.Context, canonical string) (Plugin, error) {
	var lastErr error
	for _, src := range l.sources {
		p, err := src.Load(ctx, canonical)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, &xferrors.PluginLoadFailedError{Name: canonical, Err: lastErr}
}

// StaticSource is a Source backed by an in-memory map of constructors,
// used for the built-in plugin set bundled with the binary (component O).
type StaticSource struct {
	Constructors map[string]func() Plugin
}

// NewStaticSource builds a StaticSource from a name->constructor map.
func NewStaticSource(constructors map[string]func() Plugin) *StaticSource {
	return &StaticSource{Constructors: constructors}
}

// Load implements Source.
func (s *StaticSource) Load(_ context.Context, canonicalName string) (Plugin, error) {
	ctor, ok := s.Constructors[canonicalName]
	if !ok {
		return nil, fmt.Errorf("no builtin plugin named %s", canonicalName)
	}
	return ctor(), nil
}
