// Package parallel runs independent per-channel work across goroutines.
package parallel

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// Sequential runs every loop on the calling goroutine.
var Sequential = Config{}

// DefaultConfig sizes the pool to the physical core count.
// Per-channel convolution work is coarse, so chunks may hold a single item.
func DefaultConfig() Config {
	n := Workers()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// WithWorkers returns a config using n goroutines; n <= 1 disables parallelism.
func WithWorkers(n int) Config {
	if n <= 1 {
		return Sequential
	}
	return Config{Enabled: true, NumWorkers: n, MinChunkSize: 1}
}

// Workers reports the number of physical cores, falling back to the
// logical CPU count when the CPU does not expose its topology.
func Workers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Describe returns a one-line summary of the host CPU.
func Describe() string {
	return fmt.Sprintf("%s, %d physical / %d logical cores, avx2=%t fma3=%t",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.FMA3))
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
// Calls for distinct i must not write to shared memory.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*max(cfg.MinChunkSize, 1) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
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
