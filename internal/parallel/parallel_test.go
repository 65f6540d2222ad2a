package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/semaphore"
)

func TestForBatches(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.NumWorkers = 4

	n := 10000
	seen := make([]int32, n)
	batches := ForBatches(n, BatchElementwise, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	}, cfg, nil)

	if batches != 10 {
		t.Errorf("Expected 10 batches, got %d", batches)
	}
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("Index %d visited %d times", i, v)
		}
	}
}

func TestForBatches_Sequential(t *testing.T) {
	cfg := Config{Enabled: false, NumWorkers: 1}

	var counter int64
	batches := ForBatches(100, 7, func(start, end int) {
		atomic.AddInt64(&counter, int64(end-start))
	}, cfg, nil)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
	if batches != 15 {
		t.Errorf("Expected 15 batches, got %d", batches)
	}
}

func TestForBatches_SmallChunk(t *testing.T) {
	// Ranges below the minimum chunk size run as a single batch.
	cfg := DefaultConfig()
	cfg.Enabled = true

	n := cfg.MinChunkSize - 1
	var calls int64
	ForBatches(n, BatchRow, func(start, end int) {
		atomic.AddInt64(&calls, 1)
		if start != 0 || end != n {
			t.Errorf("Expected [0, %d), got [%d, %d)", n, start, end)
		}
	}, cfg, nil)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestForBatches_Serial(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 8}

	var calls int64
	ForBatches(5000, BatchSerial, func(start, end int) {
		atomic.AddInt64(&calls, 1)
	}, cfg, nil)

	if calls != 1 {
		t.Errorf("Expected a single batch, got %d", calls)
	}
}

func TestForBatches_SemaphoreBoundsConcurrency(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 16}
	sem := semaphore.NewWeighted(2)

	var running, peak int64
	var mu sync.Mutex
	ForBatches(64, BatchRow, func(_, _ int) {
		cur := atomic.AddInt64(&running, 1)
		mu.Lock()
		peak = max(peak, cur)
		mu.Unlock()
		for i := 0; i < 1000; i++ {
			_ = i * i
		}
		atomic.AddInt64(&running, -1)
	}, cfg, sem)

	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent batches, saw %d", peak)
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 10, 0},
		{10, 10, 1},
		{11, 10, 2},
		{5, BatchSerial, 1},
		{5, BatchRow, 5},
	}
	for _, tt := range tests {
		if got := Batches(tt.n, tt.size); got != tt.want {
			t.Errorf("Batches(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}

func BenchmarkForBatches(b *testing.B) {
	cfg := DefaultConfig()
	n := 1 << 16

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			ForBatches(n, BatchElementwise, func(start, end int) {
				atomic.AddInt64(&sum, int64(end-start))
			}, cfg, nil)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			ForBatches(n, BatchElementwise, func(start, end int) {
				atomic.AddInt64(&sum, int64(end-start))
			}, cfgSeq, nil)
		}
	})
}
