// Package arena owns the raw byte buffers tensors are stored in.
//
// Buffers are carved from power-of-two slabs. Freed slabs are kept on a
// per-class free list, so allocations that do not need zeroed memory are
// served without touching the Go allocator. Every buffer carries a fence pair;
// freeing or growing a buffer first waits for its pending tasks.
package arena

import (
	"cmp"
	"context"
	"log/slog"
	"math/bits"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/metrics"
)

const (
	minSlabShift = 6 // 64 bytes
	maxSlabShift = 40

	// DefaultMaxRecycled is the number of free slabs kept per size class.
	DefaultMaxRecycled = 8
)

// Config controls arena limits.
type Config struct {
	MaxBytes    int64 // Upper bound on live slab bytes; 0 means unlimited
	MaxRecycled int   // Free slabs kept per size class; 0 uses DefaultMaxRecycled
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Stats is a snapshot of arena usage.
type Stats struct {
	LiveBuffers   int
	LiveBytes     int64
	RecycledBytes int64
	Allocations   uint64
	Recycled      uint64
}

// Arena allocates and frees fenced buffers.
type Arena struct {
	mu          sync.Mutex
	maxBytes    int64
	maxRecycled int
	nextID      uint64
	live        map[uint64]*Buffer
	liveBytes   int64
	free        [maxSlabShift + 1][][]byte
	freeBytes   int64
	allocs      uint64
	recycled    uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an arena.
func New(cfg Config) *Arena {
	if cfg.MaxRecycled <= 0 {
		cfg.MaxRecycled = DefaultMaxRecycled
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Arena{
		maxBytes:    cfg.MaxBytes,
		maxRecycled: cfg.MaxRecycled,
		live:        make(map[uint64]*Buffer),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// slabClass returns the size class holding size bytes.
func slabClass(size int) int {
	if size <= 1<<minSlabShift {
		return minSlabShift
	}
	return bits.Len(uint(size - 1))
}

// Allocate returns a buffer of count elements of elemSize bytes. With zero
// set the contents are zeroed; otherwise they are unspecified and the caller
// must overwrite every element before reading.
func (a *Arena) Allocate(count, elemSize int, zero bool) (*Buffer, error) {
	if count < 0 || elemSize <= 0 {
		return nil, errors.Errorf("arena: invalid allocation of %d x %d bytes", count, elemSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	slab, recycled, err := a.takeSlab(count * elemSize)
	if err != nil {
		return nil, err
	}
	if zero && recycled {
		clear(slab)
	}

	a.nextID++
	b := &Buffer{
		id:       a.nextID,
		data:     slab,
		count:    count,
		elemSize: elemSize,
		arena:    a,
	}
	a.live[b.id] = b
	return b, nil
}

// takeSlab returns a slab of at least size bytes. Callers hold a.mu.
func (a *Arena) takeSlab(size int) ([]byte, bool, error) {
	class := slabClass(size)
	if class > maxSlabShift {
		a.metrics.OutOfMemory()
		return nil, false, errors.Wrapf(ErrOutOfMemory, "%d bytes exceeds the largest slab", size)
	}
	slabSize := int64(1) << class
	if a.maxBytes > 0 && a.liveBytes+slabSize > a.maxBytes {
		a.metrics.OutOfMemory()
		return nil, false, errors.Wrapf(ErrOutOfMemory,
			"need %d bytes, %d of %d in use", slabSize, a.liveBytes, a.maxBytes)
	}

	if n := len(a.free[class]); n > 0 {
		slab := a.free[class][n-1]
		a.free[class] = a.free[class][:n-1]
		a.freeBytes -= slabSize
		a.liveBytes += slabSize
		a.allocs++
		a.recycled++
		a.metrics.Allocated(int(slabSize), true)
		return slab, true, nil
	}

	a.liveBytes += slabSize
	a.allocs++
	a.metrics.Allocated(int(slabSize), false)
	return make([]byte, slabSize), false, nil
}

func (a *Arena) dropFree() {
	for i := range a.free {
		a.free[i] = nil
	}
	a.freeBytes = 0
}

// putSlab parks a slab on the free list or drops it. Callers hold a.mu.
func (a *Arena) putSlab(slab []byte) {
	class := slabClass(cap(slab))
	slabSize := int64(1) << class
	a.liveBytes -= slabSize
	a.metrics.Freed(int(slabSize))
	if len(a.free[class]) < a.maxRecycled {
		a.free[class] = append(a.free[class], slab[:cap(slab)])
		a.freeBytes += slabSize
	}
}

// Reserve resizes b to hold count elements. Pending tasks on b complete
// first. Contents are not preserved when the buffer has to grow past its
// slab; callers copy explicitly if they need the old data.
func (a *Arena) Reserve(b *Buffer, count int) error {
	if err := b.Check(); err != nil {
		return err
	}
	b.fences.Wait()

	if count <= b.Capacity() {
		b.count = count
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	slab, _, err := a.takeSlab(count * b.elemSize)
	if err != nil {
		return err
	}
	a.putSlab(b.data)
	b.data = slab
	b.count = count
	return nil
}

// Free returns b to the arena. Tasks still using b are waited for first.
// Freeing a buffer twice is a no-op.
func (a *Arena) Free(b *Buffer) {
	if b == nil || b.freed {
		return
	}
	if !b.fences.Idle() {
		a.logger.Debug("free waits on pending tasks", "buffer", b.id, "fence", b.fences.All())
	}
	b.fences.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.release(b)
}

// release unlinks b. Callers hold a.mu and have waited on b's fences.
func (a *Arena) release(b *Buffer) {
	b.freed = true
	delete(a.live, b.id)
	a.putSlab(b.data)
	b.data = nil
}

// Live returns the number of buffers not yet freed.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Stats returns a usage snapshot.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		LiveBuffers:   len(a.live),
		LiveBytes:     a.liveBytes,
		RecycledBytes: a.freeBytes,
		Allocations:   a.allocs,
		Recycled:      a.recycled,
	}
}

// Shutdown waits for every live buffer's tasks, frees the buffers and drops
// the free lists. Buffers still live at shutdown were never released by
// their owners; each is logged and the result wraps ErrUnsafeDisposal.
// If ctx ends first, the remaining buffers are left untouched and ctx's
// error is returned.
func (a *Arena) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	leaked := make([]*Buffer, 0, len(a.live))
	for _, b := range a.live {
		leaked = append(leaked, b)
	}
	a.mu.Unlock()

	slices.SortFunc(leaked, func(x, y *Buffer) int {
		return cmp.Compare(x.id, y.id)
	})

	for _, b := range leaked {
		pending := !b.fences.Idle()
		if err := b.fences.All().WaitContext(ctx); err != nil {
			return errors.Wrap(err, "arena shutdown")
		}
		b.fences.Read, b.fences.Write = nil, nil
		a.logger.Warn("buffer still referenced at shutdown",
			"buffer", b.id, "bytes", b.count*b.elemSize, "pending_tasks", pending)

		a.mu.Lock()
		a.release(b)
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.dropFree()
	a.mu.Unlock()

	if len(leaked) > 0 {
		return errors.Wrapf(ErrUnsafeDisposal, "%d buffers still referenced", len(leaked))
	}
	return nil
}
