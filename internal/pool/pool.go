// Package pool recycles the scratch buffers operators use internally.
//
// A buffer returned to the pool keeps its fences: the next operator that
// borrows it is ordered after the previous user by the scheduler, so
// returning a buffer never blocks.
package pool

import (
	"log/slog"
	"sync"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/metrics"
)

// SizeClass groups pooled buffers by byte size.
type SizeClass int

const (
	// Small for buffers < 4KB.
	Small SizeClass = iota
	// Medium for buffers 4KB-1MB.
	Medium
	// Large for buffers > 1MB.
	Large
)

const (
	// Size thresholds for buffer classes.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB

	// DefaultMaxPerClass is the number of idle buffers kept per class.
	DefaultMaxPerClass = 100
)

// Config controls the reuse policy.
type Config struct {
	MaxBytes    int64 // Idle bytes the pool may hold; 0 means unlimited
	MaxPerClass int   // Idle buffers per size class; 0 uses DefaultMaxPerClass
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Stats reports pool usage.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Returned    uint64
	Dropped     uint64 // Returned buffers freed because they did not fit the policy
	Idle        int
	CachedBytes int64
}

// Pool hands out arena buffers for temporary use.
type Pool struct {
	arena *arena.Arena
	cfg   Config

	mu      sync.Mutex
	classes [3][]*arena.Buffer
	cached  int64
	stats   Stats
}

// New creates a pool drawing from a.
func New(a *arena.Arena, cfg Config) *Pool {
	if cfg.MaxPerClass <= 0 {
		cfg.MaxPerClass = DefaultMaxPerClass
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{arena: a, cfg: cfg}
}

// classify determines the size class for a byte size.
func classify(size int) SizeClass {
	if size < smallThreshold {
		return Small
	}
	if size < mediumThreshold {
		return Medium
	}
	return Large
}

func bufferBytes(b *arena.Buffer) int64 {
	return int64(b.Capacity() * b.ElemSize())
}

// Acquire returns a buffer of count elements of elemSize bytes. The contents
// are unspecified. A pooled buffer is reused when its element size matches
// and its slab holds count elements without wasting more than half of it.
func (p *Pool) Acquire(count, elemSize int) (*arena.Buffer, error) {
	p.mu.Lock()
	class := classify(count * elemSize)
	pool := p.classes[class]
	for i, b := range pool {
		if b.ElemSize() != elemSize || b.Capacity() < count || b.Capacity() > 2*max(count, 16) {
			continue
		}
		p.classes[class] = append(pool[:i], pool[i+1:]...)
		p.cached -= bufferBytes(b)
		p.stats.Hits++
		cached := p.cached
		p.mu.Unlock()

		b.Resize(count)
		p.cfg.Metrics.PoolRequest(true)
		p.cfg.Metrics.PoolCached(cached)
		return b, nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	p.cfg.Metrics.PoolRequest(false)
	return p.arena.Allocate(count, elemSize, false)
}

// Release returns b to the pool. If the pool is full, the buffer is freed.
func (p *Pool) Release(b *arena.Buffer) {
	if b == nil || b.Freed() {
		return
	}

	p.mu.Lock()
	p.stats.Returned++
	size := bufferBytes(b)
	class := classify(b.Count() * b.ElemSize())
	if len(p.classes[class]) >= p.cfg.MaxPerClass || (p.cfg.MaxBytes > 0 && p.cached+size > p.cfg.MaxBytes) {
		p.stats.Dropped++
		p.mu.Unlock()
		p.cfg.Logger.Debug("pool full, freeing buffer", "buffer", b.ID(), "bytes", size)
		p.arena.Free(b)
		return
	}
	p.classes[class] = append(p.classes[class], b)
	p.cached += size
	cached := p.cached
	p.mu.Unlock()

	p.cfg.Metrics.PoolCached(cached)
}

// Clear frees every idle buffer. Should be called before the arena shuts down.
func (p *Pool) Clear() {
	p.mu.Lock()
	var idle []*arena.Buffer
	for i := range p.classes {
		idle = append(idle, p.classes[i]...)
		p.classes[i] = nil
	}
	p.cached = 0
	p.mu.Unlock()

	for _, b := range idle {
		p.arena.Free(b)
	}
	p.cfg.Metrics.PoolCached(0)
}

// Stats returns statistics about pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.CachedBytes = p.cached
	for _, c := range p.classes {
		s.Idle += len(c)
	}
	return s
}

// Scope borrows buffers for one operator and returns them together.
type Scope struct {
	pool *Pool
	bufs []*arena.Buffer
}

// Scope starts a temporary allocation scope.
func (p *Pool) Scope() *Scope {
	return &Scope{pool: p}
}

// Alloc borrows a buffer until Close.
func (s *Scope) Alloc(count, elemSize int) (*arena.Buffer, error) {
	b, err := s.pool.Acquire(count, elemSize)
	if err != nil {
		return nil, err
	}
	s.bufs = append(s.bufs, b)
	return b, nil
}

// Close returns every borrowed buffer to the pool. Tasks scheduled against
// them keep running; later borrowers are ordered after them by their fences.
func (s *Scope) Close() {
	for _, b := range s.bufs {
		s.pool.Release(b)
	}
	s.bufs = nil
}
