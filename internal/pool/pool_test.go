package pool

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/fence"
	"github.com/born-ml/tensorexec/internal/metrics"
)

func TestPool_AcquireRelease(t *testing.T) {
	a := arena.New(arena.Config{})
	p := New(a, Config{})

	b1, err := p.Acquire(100, 4)
	require.NoError(t, err)
	p.Release(b1)

	b2, err := p.Acquire(90, 4)
	require.NoError(t, err)
	assert.Same(t, b1, b2, "a released buffer of the same class is reused")
	assert.Equal(t, 90, b2.Count())

	b3, err := p.Acquire(90, 4)
	require.NoError(t, err)
	assert.NotSame(t, b2, b3)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 0, stats.Idle)
}

func TestPool_ElementSizeMustMatch(t *testing.T) {
	a := arena.New(arena.Config{})
	p := New(a, Config{})

	b, err := p.Acquire(64, 4)
	require.NoError(t, err)
	p.Release(b)

	c, err := p.Acquire(128, 2)
	require.NoError(t, err)
	assert.NotSame(t, b, c)
}

func TestPool_KeepsFences(t *testing.T) {
	a := arena.New(arena.Config{})
	p := New(a, Config{})

	b, err := p.Acquire(16, 4)
	require.NoError(t, err)
	w, done := fence.New(1)
	defer done()
	b.Fences().SetWriter(w)

	p.Release(b)
	again, err := p.Acquire(16, 4)
	require.NoError(t, err)
	require.Same(t, b, again)
	assert.Same(t, w, again.Fences().WritePrerequisite(), "the next user is ordered after the previous one")
}

func TestPool_Policy(t *testing.T) {
	a := arena.New(arena.Config{})
	p := New(a, Config{MaxPerClass: 1})

	b1, err := p.Acquire(8, 4)
	require.NoError(t, err)
	b2, err := p.Acquire(8, 4)
	require.NoError(t, err)

	p.Release(b1)
	p.Release(b2)
	assert.False(t, b1.Freed())
	assert.True(t, b2.Freed(), "class is full, the second buffer goes back to the arena")

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 1, stats.Idle)

	p.Clear()
	assert.True(t, b1.Freed())
	assert.Equal(t, 0, a.Live())
}

func TestPool_MaxBytes(t *testing.T) {
	a := arena.New(arena.Config{})
	p := New(a, Config{MaxBytes: 1024})

	big, err := p.Acquire(1024, 4)
	require.NoError(t, err)
	p.Release(big)
	assert.True(t, big.Freed())
	assert.Equal(t, int64(0), p.Stats().CachedBytes)
}

func TestScope(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "pool-test")
	a := arena.New(arena.Config{Metrics: m})
	p := New(a, Config{Metrics: m})

	s := p.Scope()
	x, err := s.Alloc(10, 4)
	require.NoError(t, err)
	y, err := s.Alloc(1000, 4)
	require.NoError(t, err)
	s.Close()

	assert.False(t, x.Freed())
	assert.False(t, y.Freed())
	assert.Equal(t, 2, p.Stats().Idle)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoolRequests.WithLabelValues("miss")))
	assert.Equal(t, float64(p.Stats().CachedBytes), testutil.ToFloat64(m.PoolCachedBytes))

	s2 := p.Scope()
	z, err := s2.Alloc(1000, 4)
	require.NoError(t, err)
	assert.Same(t, y, z)
	s2.Close()

	p.Clear()
	assert.NoError(t, a.Shutdown(t.Context()))
}
