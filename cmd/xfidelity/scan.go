package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/builtinplugin/patterns"
	"github.com/xfidelity/xfidelity/internal/engine"
	"github.com/xfidelity/xfidelity/internal/githubconfig"
	"github.com/xfidelity/xfidelity/internal/logging"
	"github.com/xfidelity/xfidelity/internal/plugin"
	"github.com/xfidelity/xfidelity/internal/ratelimit"
	"github.com/xfidelity/xfidelity/internal/scan"
	"github.com/xfidelity/xfidelity/internal/telemetry"
	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

// baseBuiltinPlugins is the host-reported "builtin plugin names" set of
// §4.F step 1: plugins the resolver always loads for every archetype,
// before the archetype's own declared plugins and any CLI-extra ones.
var baseBuiltinPlugins = []string{"patterns"}

// configError marks an error that originated from archetype/rule
// resolution rather than from scanning itself, so main can map it to the
// §6 exit code 2 ("configuration error") instead of a generic failure.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error  { return e.err }

// errFindings signals that the scan completed but produced at least
// one finding of severity >= warning, mapping to §6 exit code 1.
var errFindings = fmt.Errorf("findings reported")

// runScan wires the config resolver, plugin registry, and scan
// orchestrator together: resolve the archetype's ExecutionConfig, discover
// repository files, run the rule engine across them, and print the result.
func runScan(ctx context.Context, v *viper.Viper) error {
	opts := optionsFromViper(v)

	repoPath, err := filepath.Abs(v.GetString("repo-path"))
	if err != nil {
		return fmt.Errorf("resolve repo path: %w", err)
	}

	logger, err := logging.New(opts.LogLevel, opts.Mode == "server")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	registry := plugin.NewRegistry(logger)
	staticSource := plugin.NewStaticSource(map[string]func() plugin.Plugin{
		"patterns": patterns.New,
	})
	loader := plugin.NewLoader(registry, logger, staticSource)

	remote := xfconfig.NewRemoteClient(logger)
	limiter := ratelimit.New(opts.JSONTTL)
	resolver := xfconfig.NewResolver(remote, limiter, logger).WithPluginLoader(loader, baseBuiltinPlugins)
	if githubMgr, err := githubconfig.NewManager("", logger); err != nil {
		logger.Warn("failed to initialize githubConfigLocation clone manager", zap.Error(err))
	} else {
		resolver.WithGitHubManager(githubMgr)
	}

	envelope := telemetry.CollectTelemetryData(ctx, repoPath, opts.ConfigServer, logger)
	sink := telemetry.NewSink(opts.TelemetryEnabled, opts.TelemetryCollector, envelope, logger)

	cfg, err := resolver.GetConfig(ctx, opts, sink)
	if err != nil {
		return &configError{err: fmt.Errorf("resolve configuration: %w", err)}
	}

	files, err := discoverFiles(repoPath, opts.MaxFileSize, cfg.Archetype.Config.BlacklistPatterns, cfg.Archetype.Config.WhitelistPatterns)
	if err != nil {
		return fmt.Errorf("discover files: %w", err)
	}

	installed := readInstalledDependencyVersions(repoPath)
	dependencyData := map[string]any{
		"installedDependencyVersions": installed,
		"minimumDependencyVersions":   cfg.Archetype.Config.MinimumDependencyVersions,
	}

	fileDatas := make([]scan.FileData, 0, len(files)+1)
	for _, f := range files {
		fileDatas = append(fileDatas, scan.FileData{
			FilePath:  f.path,
			FileName:  f.name,
			BaseFacts: baseFacts(f.path, f.name, f.content, dependencyData, cfg.Archetype.Config.StandardStructure),
		})
	}
	fileDatas = append(fileDatas, scan.FileData{
		FilePath:  scan.GlobalFileSentinel,
		FileName:  scan.GlobalFileSentinel,
		BaseFacts: baseFacts(scan.GlobalFileSentinel, scan.GlobalFileSentinel, "", dependencyData, cfg.Archetype.Config.StandardStructure),
	})

	newEngine := func() *engine.Engine {
		return engine.New(cfg.Rules, scan.AdaptPluginOperators(registry.GetPluginOperators()), logger)
	}

	results := scan.RunEngineOnFiles(ctx, newEngine, scan.RunOptions{
		Files:       fileDatas,
		RepoPath:    repoPath,
		Concurrency: opts.Concurrency,
		Logger:      logger,
		Facts:       scan.AdaptPluginFacts(registry.GetPluginFacts()),
	})

	results = filterExemptions(results, cfg.Exemptions, envelope.RepoURL, sink)

	if v.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
	} else {
		printSummary(os.Stdout, results)
	}

	if hasWarningOrAbove(results) {
		return errFindings
	}
	return nil
}

func baseFacts(path, name, content string, dependencyData map[string]any, standardStructure map[string]any) map[string]any {
	return map[string]any{
		"fileData": map[string]any{
			"filePath":    path,
			"fileName":    name,
			"fileContent": content,
		},
		"fileName":          name,
		"filePath":          path,
		"fileContent":       content,
		"dependencyData":    dependencyData,
		"standardStructure": standardStructure,
	}
}

// filterExemptions drops RuleFailures whose rule is exempt for the current
// repository, per §4.B isExempt, returning only ScanResults that still have
// at least one failure.
func filterExemptions(results []scan.ScanResult, exemptions []xfconfig.Exemption, repoURL string, sink *telemetry.Sink) []scan.ScanResult {
	if len(exemptions) == 0 {
		return results
	}
	out := make([]scan.ScanResult, 0, len(results))
	for _, r := range results {
		var kept []engine.RuleFailure
		for _, f := range r.Errors {
			if xfconfig.IsExempt(xfconfig.IsExemptInput{
				RuleName:   f.RuleFailure,
				RepoURL:    repoURL,
				Exemptions: exemptions,
				Telemetry:  sink,
			}) {
				continue
			}
			kept = append(kept, f)
		}
		if len(kept) > 0 {
			out = append(out, scan.ScanResult{FilePath: r.FilePath, Errors: kept})
		}
	}
	return out
}

func hasWarningOrAbove(results []scan.ScanResult) bool {
	for _, r := range results {
		for _, f := range r.Errors {
			switch f.Level {
			case xfconfig.LevelWarning, xfconfig.LevelError, xfconfig.LevelFatality:
				return true
			}
		}
	}
	return false
}

func printSummary(w *os.File, results []scan.ScanResult) {
	total := 0
	for _, r := range results {
		total += len(r.Errors)
	}
	if total == 0 {
		fmt.Fprintln(w, "xfidelity: no findings")
		return
	}
	fmt.Fprintf(w, "xfidelity: %d finding(s) across %d file(s)\n", total, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "\n%s\n", r.FilePath)
		for _, f := range r.Errors {
			fmt.Fprintf(w, "  [%s] %s: %s\n", f.Level, f.RuleFailure, f.Details.RuleDescription)
		}
	}
}

// discoveredFile is one file read off disk during repository discovery.
type discoveredFile struct {
	path    string
	name    string
	content string
}

// discoverFiles walks repoPath, skipping VCS/dependency directories, and
// returns every file that satisfies the archetype's blacklist/whitelist
// pattern lists (each accepted as either a regular expression or, should it
// fail to compile as one, a filepath.Match glob) and opts.MaxFileSize.
func discoverFiles(repoPath string, maxFileSize int64, blacklist, whitelist []string) ([]discoveredFile, error) {
	blackRe := compilePatterns(blacklist)
	whiteRe := compilePatterns(whitelist)

	var out []discoveredFile
	err := filepath.Walk(repoPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(repoPath, p)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			base := filepath.Base(p)
			if rel != "." && (strings.HasPrefix(base, ".") || base == "node_modules" || base == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if maxFileSize > 0 && info.Size() > maxFileSize {
			return nil
		}
		if matchesAny(blackRe, rel) {
			return nil
		}
		if len(whiteRe) > 0 && !matchesAny(whiteRe, rel) {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil // unreadable file, skip rather than abort the whole scan
		}
		out = append(out, discoveredFile{path: p, name: filepath.Base(p), content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// patternMatcher checks one blacklist/whitelist entry against a relative
// path, trying it first as a regular expression and falling back to a glob.
type patternMatcher struct {
	re   *regexp.Regexp
	glob string
}

func compilePatterns(patterns []string) []patternMatcher {
	out := make([]patternMatcher, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, patternMatcher{re: re})
			continue
		}
		out = append(out, patternMatcher{glob: p})
	}
	return out
}

func matchesAny(matchers []patternMatcher, rel string) bool {
	relSlash := filepath.ToSlash(rel)
	for _, m := range matchers {
		if m.re != nil {
			if m.re.MatchString(relSlash) {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(m.glob, relSlash); matched {
			return true
		}
		if matched, _ := filepath.Match(m.glob, filepath.Base(relSlash)); matched {
			return true
		}
	}
	return false
}

// readInstalledDependencyVersions best-effort reads a package.json's
// dependencies/devDependencies, the concrete dependency manifest shape the
// "node-fullstack" default archetype targets; any other ecosystem's
// manifest is left to a dedicated fact plugin (out of this package's scope).
func readInstalledDependencyVersions(repoPath string) map[string]string {
	data, err := os.ReadFile(filepath.Join(repoPath, "package.json"))
	if err != nil {
		return map[string]string{}
	}
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(doc.Dependencies)+len(doc.DevDependencies))
	for k, v := range doc.Dependencies {
		out[k] = v
	}
	for k, v := range doc.DevDependencies {
		out[k] = v
	}
	return out
}
