// Package parallel schedules kernel tasks on a bounded worker pool and orders
// them through buffer fences.
package parallel

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Batch sizes used by kernels.
const (
	// BatchElementwise suits cheap per-element bodies.
	BatchElementwise = 1024

	// BatchRow gives every index its own batch, for bodies with an internal
	// loop (a GEMM, a reduction row, a convolution image).
	BatchRow = 1

	// BatchSerial runs the whole index range as one batch. Used when batches
	// could write the same output element, e.g. scatter with Add or Mul.
	BatchSerial = math.MaxInt
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of batches that may run at once, engine wide.
	MinChunkSize int  // Index ranges shorter than this run as one batch.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// normalized fills in zero values.
func (c Config) normalized() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = runtime.NumCPU()
	}
	if c.MinChunkSize < 0 {
		c.MinChunkSize = 0
	}
	return c
}

// Batches returns the number of batches [0, n) splits into.
func Batches(n, batchSize int) int {
	if n <= 0 {
		return 0
	}
	if batchSize <= 0 || batchSize >= n {
		return 1
	}
	return (n + batchSize - 1) / batchSize
}

// ForBatches calls f(start, end) for consecutive ranges of batchSize indices
// covering [0, n) and returns the number of batches run. Batches run
// concurrently, each holding one slot of sem, in no particular order.
// Falls back to sequential execution if parallelism is disabled or n is
// below the minimum chunk size.
func ForBatches(n, batchSize int, f func(start, end int), cfg Config, sem *semaphore.Weighted) int {
	batches := Batches(n, batchSize)
	if batches == 0 {
		return 0
	}
	if n < cfg.MinChunkSize {
		batches, batchSize = 1, n
	}

	if !cfg.Enabled || batches == 1 {
		acquire(sem)
		defer release(sem)
		for b := 0; b < batches; b++ {
			start := b * batchSize
			f(start, min(start+batchSize, n))
		}
		return batches
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for b := 0; b < batches; b++ {
		start := b * batchSize
		end := min(start+batchSize, n)
		g.Go(func() error {
			acquire(sem)
			defer release(sem)
			f(start, end)
			return nil
		})
	}
	_ = g.Wait()
	return batches
}

func acquire(sem *semaphore.Weighted) {
	if sem != nil {
		// Background never cancels, so Acquire cannot fail.
		_ = sem.Acquire(context.Background(), 1)
	}
}

func release(sem *semaphore.Weighted) {
	if sem != nil {
		sem.Release(1)
	}
}
