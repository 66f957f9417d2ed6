package scan

import (
	"context"
	"sync"
)

// runParallel implements §5's worker-pool mode: one goroutine per
// configured worker, each with its own Engine instance (via newEngine),
// pulling FileData off a shared channel. Unlike pkg/jobs/worker.go's
// WorkerPool (an indefinitely-running poll loop over a persistent job
// store), the full file list is known upfront here, so a closed channel
// signals completion instead of a ticker.
func runParallel(ctx context.Context, newEngine EngineFactory, files []FileData, opts RunOptions) ([]ScanResult, []fileTiming) {
	type indexed struct {
		idx    int
		result ScanResult
		timing fileTiming
		has    bool
	}

	jobs := make(chan struct {
		idx int
		fd  FileData
	})
	out := make(chan indexed, len(files))

	workers := opts.Concurrency
	if workers > len(files) {
		workers = len(files)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng := newEngine()
			for job := range jobs {
				res, elapsed := runOne(ctx, eng, job.fd, opts.RepoPath, opts.Facts)
				out <- indexed{
					idx:    job.idx,
					result: res,
					timing: fileTiming{path: job.fd.FilePath, elapsed: elapsed},
					has:    len(res.Errors) > 0,
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, f := range files {
			select {
			case jobs <- struct {
				idx int
				fd  FileData
			}{idx: i, fd: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	collected := make([]indexed, 0, len(files))
	for r := range out {
		collected = append(collected, r)
	}

	// Re-sequence into file order, preserving §5's ordering guarantee.
	byIdx := make(map[int]indexed, len(collected))
	for _, c := range collected {
		byIdx[c.idx] = c
	}

	results := make([]ScanResult, 0, len(files))
	timings := make([]fileTiming, 0, len(files))
	for i := range files {
		c, ok := byIdx[i]
		if !ok {
			continue
		}
		timings = append(timings, c.timing)
		if c.has {
			results = append(results, c.result)
		}
	}
	return results, timings
}
