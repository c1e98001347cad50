// Package parallel splits independent loop iterations of the CPU kernels
// across goroutines.
//
// Parallelism is confined to a single kernel call: the caller blocks until
// every iteration has finished, so the order of tape operations and
// evaluator calls is unaffected.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers      int // Goroutines per loop; 1 or less runs sequentially.
	MinChunkSize int // Minimum iterations per goroutine.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		MinChunkSize: 1,
	}
}

// Sequential returns a Config that never spawns goroutines.
func Sequential() Config {
	return Config{Workers: 1, MinChunkSize: 1}
}

// WithWorkers returns DefaultConfig with the worker count replaced.
// Zero keeps the CPU count.
func WithWorkers(n int) Config {
	cfg := DefaultConfig()
	if n > 0 {
		cfg.Workers = n
	}
	return cfg
}

// For executes f(i) for i in [0, n).
// Iterations must write to disjoint memory.
func For(n int, cfg Config, f func(i int)) {
	chunk := max(cfg.MinChunkSize, 1)
	if cfg.Workers <= 1 || n <= chunk {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk = max((n+cfg.Workers-1)/cfg.Workers, chunk)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForPlanes runs f once per (batch, channel) plane.
func ForPlanes(batch, channels int, cfg Config, f func(n, c int)) {
	For(batch*channels, cfg, func(k int) {
		f(k/channels, k%channels)
	})
}
