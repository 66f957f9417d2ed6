// Package scan implements component I: the orchestrator that drives the
// rule engine across a file set and assembles per-file ScanResults.
package scan

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/xfidelity/xfidelity/internal/almanac"
	"github.com/xfidelity/xfidelity/internal/engine"
)

// GlobalFileSentinel is the fileName that marks the repo-wide "virtual
// file" check (dependency versions, standard structure) rather than a
// per-file scan.
const GlobalFileSentinel = "REPO_GLOBAL_CHECK"

// FileData is one file (or the global sentinel) to evaluate, with whatever
// base facts the caller has already gathered for it.
type FileData struct {
	FilePath  string
	FileName  string
	BaseFacts map[string]any
}

// ScanResult is §3's ScanResult entity: emitted only when Errors is
// non-empty.
type ScanResult struct {
	FilePath string
	Errors   []engine.RuleFailure
}

// RunOptions configures one runEngineOnFiles invocation.
type RunOptions struct {
	Files       []FileData
	RepoPath    string
	Concurrency int // 0 or 1 = sequential; >1 enables the worker-pool mode.
	Logger      *zap.Logger
	// Facts are the plugin-contributed fact functions available to every
	// per-file almanac, in addition to that file's BaseFacts.
	Facts map[string]almanac.FactFn
}

// EngineFactory builds a fresh *engine.Engine, so RunEngineOnFiles and the
// worker pool share exactly one construction path; each file's almanac is
// built separately by runOne.
type EngineFactory func() *engine.Engine

// RunEngineOnFiles implements §4.I: partitions files into iterative and an
// optional global file, runs the engine over each (sequentially, or via the
// worker pool when opts.Concurrency > 1), deduplicates within-file results,
// and reports the slowest files.
func RunEngineOnFiles(ctx context.Context, newEngine EngineFactory, opts RunOptions) []ScanResult {
	if len(opts.Files) == 0 {
		return nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var iterative, global []FileData
	for _, f := range opts.Files {
		if f.FileName == GlobalFileSentinel {
			global = append(global, f)
			continue
		}
		iterative = append(iterative, f)
	}

	var timings []fileTiming
	var results []ScanResult

	if opts.Concurrency > 1 {
		results, timings = runParallel(ctx, newEngine, iterative, opts)
	} else {
		results, timings = runSequential(ctx, newEngine, iterative, opts)
	}

	for _, f := range global {
		res, elapsed := runOne(ctx, newEngine(), f, opts.RepoPath, opts.Facts)
		timings = append(timings, fileTiming{path: f.FilePath, elapsed: elapsed})
		if len(res.Errors) > 0 {
			results = append(results, res)
		}
	}

	reportSlowestFiles(logger, timings)
	return results
}

type fileTiming struct {
	path    string
	elapsed time.Duration
}

func runSequential(ctx context.Context, newEngine EngineFactory, files []FileData, opts RunOptions) ([]ScanResult, []fileTiming) {
	results := make([]ScanResult, 0, len(files))
	timings := make([]fileTiming, 0, len(files))
	eng := newEngine()
	for _, f := range files {
		res, elapsed := runOne(ctx, eng, f, opts.RepoPath, opts.Facts)
		timings = append(timings, fileTiming{path: f.FilePath, elapsed: elapsed})
		if len(res.Errors) > 0 {
			results = append(results, res)
		}
	}
	return results, timings
}

// runOne evaluates one file's rules and converts EvalResults into
// deduplicated RuleFailures, catching a per-file engine panic into the
// "engine-error" failure per §4.H's failure model.
func runOne(ctx context.Context, eng *engine.Engine, f FileData, repoPath string, facts map[string]almanac.FactFn) (result ScanResult, elapsed time.Duration) {
	start := time.Now()
	// Report the path relative to repoPath; a path that cannot be made
	// relative (such as the global sentinel) is kept as it is.
	displayPath := f.FilePath
	if repoPath != "" {
		if rel, err := filepath.Rel(repoPath, f.FilePath); err == nil {
			displayPath = rel
		}
	}
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			result = ScanResult{
				FilePath: displayPath,
				Errors:   []engine.RuleFailure{engine.EngineErrorFailure(f.FilePath, f.FileName, panicToError(r))},
			}
		}
	}()

	alm := almanac.New(f.BaseFacts, facts)
	evalResults := eng.Run(ctx, alm)

	seen := mapset.NewSet[string]()
	var failures []engine.RuleFailure
	for _, er := range evalResults {
		message, _ := er.Event.Params["message"].(string)
		failure := engine.BuildFailure(ctx, findRule(eng, er.Name), er, repoPath, f.FilePath, alm)
		key := engine.DedupeKey(failure, message)
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		failures = append(failures, failure)
	}

	return ScanResult{FilePath: displayPath, Errors: failures}, time.Since(start)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errString(r)
}

func reportSlowestFiles(logger *zap.Logger, timings []fileTiming) {
	const slowThreshold = 100 * time.Millisecond
	var slow []fileTiming
	for _, t := range timings {
		if t.elapsed > slowThreshold {
			slow = append(slow, t)
		}
	}
	if len(slow) == 0 {
		return
	}
	sort.Slice(slow, func(i, j int) bool { return slow[i].elapsed > slow[j].elapsed })
	if len(slow) > 10 {
		slow = slow[:10]
	}
	fields := make([]zap.Field, 0, len(slow))
	for _, t := range slow {
		fields = append(fields, zap.Duration(t.path, t.elapsed))
	}
	logger.Info("SLOWEST FILES", fields...)
}
