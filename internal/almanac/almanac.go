// Package almanac implements component G: per-scan fact memoization. Each
// file scanned gets its own Almanac so a fact computed once (e.g. parsing a
// file's AST) is reused across every rule condition that references it,
// without leaking state between files.
package almanac

import (
	"context"
	"fmt"
	"sync"

	"github.com/xfidelity/xfidelity/internal/cachekit"
)

// FactFn computes a fact's value. Plugins register these through the
// plugin registry; the almanac only knows how to call and memoize them.
type FactFn func(ctx context.Context, params map[string]any, a *Almanac) (any, error)

// factCall serializes concurrent requests for the same (name, params) pair
// so an expensive fact (e.g. reading+parsing a large file) computes once
// even if two rule conditions reference it in the same evaluation pass.
type factCall struct {
	once  sync.Once
	value any
	err   error
}

// Almanac holds the base facts seeded for one file plus the fact functions
// available to compute derived facts, and memoizes every (fact, params)
// pair it resolves.
type Almanac struct {
	mu        sync.Mutex
	base      map[string]any
	fns       map[string]FactFn
	cache     *cachekit.Cache
	inflight  map[string]*factCall
	inflightM sync.Mutex
}

// New builds an Almanac seeded with base (the run's fileData,
// dependencyData, standardStructure, etc.) and fns (every fact function
// contributed by the active plugin set, keyed by fact name).
func New(base map[string]any, fns map[string]FactFn) *Almanac {
	if base == nil {
		base = make(map[string]any)
	}
	if fns == nil {
		fns = make(map[string]FactFn)
	}
	return &Almanac{
		base:     base,
		fns:      fns,
		cache:    cachekit.New(256, cachekit.NoExpiry),
		inflight: make(map[string]*factCall),
	}
}

// AddRuntimeFact seeds a precomputed value directly, bypassing any
// registered FactFn for that name — used to inject per-file base facts
// (fileData, fileName, filePath) before rule evaluation begins.
func (a *Almanac) AddRuntimeFact(name string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base[name] = value
}

// FactValue implements plugin.Almanac: returns the base fact if present,
// otherwise computes (and memoizes) it via the registered FactFn. Concurrent
// callers requesting the same (name, params) key block on the same
// in-flight computation rather than each invoking the fact function.
func (a *Almanac) FactValue(ctx context.Context, name string, params map[string]any) (any, error) {
	a.mu.Lock()
	if v, ok := a.base[name]; ok {
		a.mu.Unlock()
		return v, nil
	}
	a.mu.Unlock()

	key := cacheKey(name, params)
	if v, ok := a.cache.Get(key); ok {
		return v, nil
	}

	a.inflightM.Lock()
	call, inProgress := a.inflight[key]
	if !inProgress {
		call = &factCall{}
		a.inflight[key] = call
	}
	a.inflightM.Unlock()

	call.once.Do(func() {
		fn, ok := a.fns[name]
		if !ok {
			call.err = fmt.Errorf("Fact '%s' not found", name)
			return
		}
		call.value, call.err = fn(ctx, params, a)
		if call.err == nil {
			a.cache.Set(key, call.value)
		}
		a.inflightM.Lock()
		delete(a.inflight, key)
		a.inflightM.Unlock()
	})

	return call.value, call.err
}

// HasFact reports whether name is available as either a base fact or a
// registered fact function, without computing it.
func (a *Almanac) HasFact(name string) bool {
	a.mu.Lock()
	_, inBase := a.base[name]
	a.mu.Unlock()
	if inBase {
		return true
	}
	_, inFns := a.fns[name]
	return inFns
}

func cacheKey(name string, params map[string]any) string {
	if len(params) == 0 {
		return name
	}
	return fmt.Sprintf("%s:%v", name, params)
}
