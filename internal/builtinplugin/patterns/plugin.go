// Package patterns implements component O: the one built-in plugin shipped
// with the engine, named "patterns" per §4.F's canonical-name resolution.
//
// YAML-catalog loading is adapted from catalog/plugins/guardrails/plugin.go's
// source-loading convention (a wrapper struct deserialized with
// gopkg.in/yaml.v3, indexed in memory under a mutex); the fact/operator
// shape replaces that plugin's HTTP-served guardrail entries with the
// engine's almanac-facing contract.
package patterns

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/xfidelity/xfidelity/internal/plugin"
)

const (
	// Name is the plugin's canonical identifier.
	Name = "patterns"
	// Version is the plugin's API version.
	Version = "v1"
)

// PatternEntry is one named glob/regex pattern in the catalog.
type PatternEntry struct {
	Name        string `yaml:"name"`
	Glob        string `yaml:"glob"`
	Description string `yaml:"description,omitempty"`
}

// patternCatalog is the YAML wrapper for deserialization, mirroring
// guardrailCatalog's `{kind: [entries]}` shape.
type patternCatalog struct {
	Patterns []PatternEntry `yaml:"patterns"`
}

// Plugin implements plugin.Plugin, plugin.FactProvider, and
// plugin.OperatorProvider.
type Plugin struct {
	mu       sync.RWMutex
	entries  []PatternEntry
	byGlob   map[string]PatternEntry
}

// New constructs an unconfigured Plugin; Init loads its pattern catalog.
func New() plugin.Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) Version() string     { return Version }
func (p *Plugin) Description() string { return "Built-in glob/semver pattern matching facts and operators" }

// Init loads the YAML pattern catalog named by params["catalogPath"], if
// any; a missing or empty path leaves the plugin with an empty catalog
// (its operators remain usable regardless — they don't depend on it).
func (p *Plugin) Init(ctx context.Context, params map[string]any) error {
	path, _ := params["catalogPath"].(string)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pattern catalog %s: %w", path, err)
	}
	var catalog patternCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse pattern catalog %s: %w", path, err)
	}

	byGlob := make(map[string]PatternEntry, len(catalog.Patterns))
	for _, e := range catalog.Patterns {
		byGlob[e.Glob] = e
	}

	p.mu.Lock()
	p.entries = catalog.Patterns
	p.byGlob = byGlob
	p.mu.Unlock()
	return nil
}

// Facts implements plugin.FactProvider.
func (p *Plugin) Facts() []plugin.FactDefn {
	return []plugin.FactDefn{
		{Name: "filePattern", Fn: p.filePatternFact},
	}
}

// filePatternFact returns the matched catalog entry for the current file's
// fileName base fact, or nil when nothing matches.
func (p *Plugin) filePatternFact(_ context.Context, _ map[string]any, alm plugin.Almanac) (any, error) {
	fileName, err := alm.FactValue(context.Background(), "fileName", nil)
	if err != nil {
		return nil, nil
	}
	name, ok := fileName.(string)
	if !ok {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if matched, _ := filepath.Match(e.Glob, name); matched {
			return map[string]any{"name": e.Name, "glob": e.Glob, "description": e.Description}, nil
		}
	}
	return nil, nil
}

// Operators implements plugin.OperatorProvider.
func (p *Plugin) Operators() []plugin.OperatorDefn {
	return []plugin.OperatorDefn{
		{Name: "matchesGlob", Fn: matchesGlob},
		{Name: "semverLessThan", Fn: semverLessThan},
	}
}

// matchesGlob glob-matches a string fact value against an expected
// pattern, generalizing the teacher's hand-rolled filter-condition
// operators ("=", "!=", "LIKE") into the engine's (factValue, expected)
// -> bool operator shape.
func matchesGlob(value, expected any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	pattern, ok := expected.(string)
	if !ok {
		return false
	}
	matched, err := filepath.Match(pattern, s)
	return err == nil && matched
}

// semverLessThan compares a fact value (a version string) against an
// expected semver version or range, the concrete mechanism
// minimumDependencyVersions checks are expected to use: true when the fact
// value's version is below the expected one. When expected is a range
// rather than a single version (e.g. ">=1.2.0"), it is treated as the
// lower bound and the result is the negation of the fact value satisfying it.
func semverLessThan(value, expected any) bool {
	versionStr, ok := value.(string)
	if !ok {
		return false
	}
	expectedStr, ok := expected.(string)
	if !ok {
		return false
	}
	version, err := semver.NewVersion(versionStr)
	if err != nil {
		return false
	}
	if expectedVersion, err := semver.NewVersion(expectedStr); err == nil {
		return version.LessThan(expectedVersion)
	}
	constraint, err := semver.NewConstraint(expectedStr)
	if err != nil {
		return false
	}
	return !constraint.Check(version)
}
