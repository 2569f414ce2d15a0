// Package parallel provides chunked goroutine fan-out for data-plane
// loops such as tensor layout permutation.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls fan-out behavior.
type Config struct {
	// Workers is the goroutine count. Zero means GOMAXPROCS.
	Workers int
	// MinBatch is the smallest n worth splitting; below it the loop
	// runs sequentially on the caller's goroutine.
	MinBatch int
}

// Default returns a CPU-count based configuration.
func Default() Config {
	return Config{Workers: runtime.GOMAXPROCS(0), MinBatch: 64}
}

// For executes fn(i) for i in [0, n), splitting the range across the
// configured workers. fn must not assume any ordering across chunks.
func For(n int, cfg Config, fn func(i int)) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if n < cfg.MinBatch || workers < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	if chunk < cfg.MinBatch {
		chunk = cfg.MinBatch
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
