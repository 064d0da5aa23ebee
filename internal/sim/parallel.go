package sim

import (
	"context"
	"runtime"
	"sync"
)

// Ensemble runs independent simulations from several initial states. Each
// run gets its own Simulator from the factory so metrics never share state.
type Ensemble struct {
	factory func() *Simulator
}

func NewEnsemble(factory func() *Simulator) *Ensemble {
	return &Ensemble{factory: factory}
}

func (e *Ensemble) Run(ctx context.Context, x0s []State, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(x0s))
	errs := make([]error, len(x0s))

	var wg sync.WaitGroup
	for i := range x0s {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := cfg
			cfgCopy.Seed = cfg.Seed + int64(idx)

			results[idx], errs[idx] = e.factory().Run(ctx, x0s[idx], cfgCopy)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// ParallelFor executes fn over contiguous chunks of [0, n).
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	numWorkers := runtime.GOMAXPROCS(0)
	if minChunk < 1 {
		minChunk = 1
	}
	if n <= minChunk || numWorkers <= 1 {
		fn(0, n)
		return
	}

	workers := numWorkers
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers < 1 {
		workers = 1
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}
