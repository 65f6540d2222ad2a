package arena

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/internal/fence"
)

func newTestArena(maxBytes int64) (*Arena, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(Config{MaxBytes: maxBytes, Logger: logger}), &logs
}

func TestAllocate(t *testing.T) {
	a, _ := newTestArena(0)

	b, err := a.Allocate(10, 4, true)
	require.NoError(t, err)
	assert.Equal(t, 10, b.Count())
	assert.Equal(t, 4, b.ElemSize())
	assert.Len(t, b.Bytes(), 40)
	assert.Equal(t, 16, b.Capacity(), "40 bytes round up to a 64 byte slab")
	for _, v := range b.Bytes() {
		require.Zero(t, v)
	}
	assert.NoError(t, b.Check())
	assert.Equal(t, 1, a.Live())

	_, err = a.Allocate(-1, 4, false)
	assert.Error(t, err)
}

func TestAllocate_RecyclesSlabs(t *testing.T) {
	a, _ := newTestArena(0)

	b, err := a.Allocate(256, 4, false)
	require.NoError(t, err)
	for i := range b.Bytes() {
		b.Bytes()[i] = 0xff
	}
	a.Free(b)
	assert.True(t, b.Freed())
	assert.ErrorIs(t, b.Check(), ErrUseAfterDispose)

	// Same size class, zeroing requested: recycled slab must be cleared.
	c, err := a.Allocate(200, 4, true)
	require.NoError(t, err)
	for _, v := range c.Bytes() {
		require.Zero(t, v)
	}

	stats := a.Stats()
	assert.Equal(t, uint64(2), stats.Allocations)
	assert.Equal(t, uint64(1), stats.Recycled)
	assert.Equal(t, int64(1024), stats.LiveBytes)
}

func TestAllocate_OutOfMemory(t *testing.T) {
	a, _ := newTestArena(1024)

	b, err := a.Allocate(256, 4, false)
	require.NoError(t, err)

	_, err = a.Allocate(1, 4, false)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	a.Free(b)
	_, err = a.Allocate(1, 4, false)
	assert.NoError(t, err)
}

func TestAllocate_RecycledSlabRespectsLimit(t *testing.T) {
	a, _ := newTestArena(128)

	small, err := a.Allocate(16, 4, false)
	require.NoError(t, err)
	a.Free(small)

	big, err := a.Allocate(32, 4, false)
	require.NoError(t, err)
	assert.Equal(t, int64(128), a.Stats().LiveBytes)

	// A 64 byte slab is parked on the free list but would exceed the cap.
	_, err = a.Allocate(16, 4, false)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, int64(128), a.Stats().LiveBytes)

	a.Free(big)
	_, err = a.Allocate(16, 4, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.Stats().Recycled)
}

func TestReserve(t *testing.T) {
	a, _ := newTestArena(0)
	b, err := a.Allocate(4, 4, true)
	require.NoError(t, err)

	require.NoError(t, a.Reserve(b, 16))
	assert.Equal(t, 16, b.Count(), "growth within the slab keeps the slab")
	assert.Equal(t, int64(64), a.Stats().LiveBytes)

	require.NoError(t, a.Reserve(b, 100))
	assert.Equal(t, 100, b.Count())
	assert.Len(t, b.Bytes(), 400)
	assert.Equal(t, int64(512), a.Stats().LiveBytes)

	a.Free(b)
	assert.ErrorIs(t, a.Reserve(b, 1), ErrUseAfterDispose)
}

func TestReserve_WaitsForPendingWriter(t *testing.T) {
	a, _ := newTestArena(0)
	b, err := a.Allocate(4, 4, true)
	require.NoError(t, err)

	w, done := fence.New(1)
	b.Fences().SetWriter(w)

	finished := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(finished)
		done()
	}()

	require.NoError(t, a.Reserve(b, 1000))
	select {
	case <-finished:
	default:
		t.Fatal("reserve returned before the pending writer finished")
	}
	assert.True(t, b.Fences().Idle())
}

func TestFree_WaitsForPendingReaders(t *testing.T) {
	a, logs := newTestArena(0)
	b, err := a.Allocate(4, 4, true)
	require.NoError(t, err)

	r, done := fence.New(1)
	b.Fences().AddReader(r)
	go func() {
		time.Sleep(5 * time.Millisecond)
		done()
	}()

	b.Free()
	assert.True(t, r.IsComplete())
	assert.Equal(t, 0, a.Live())
	assert.Contains(t, logs.String(), "free waits on pending tasks")

	assert.NotPanics(t, func() { a.Free(b) }, "double free is a no-op")
}

func TestShutdown_ReportsLeaks(t *testing.T) {
	a, logs := newTestArena(0)

	kept, err := a.Allocate(4, 4, false)
	require.NoError(t, err)
	released, err := a.Allocate(4, 4, false)
	require.NoError(t, err)
	a.Free(released)

	w, done := fence.New(1)
	kept.Fences().SetWriter(w)
	go done()

	err = a.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrUnsafeDisposal)
	assert.True(t, kept.Freed())
	assert.Equal(t, 0, a.Live())
	assert.Contains(t, logs.String(), "buffer still referenced at shutdown")
	assert.Equal(t, int64(0), a.Stats().RecycledBytes)
}

func TestShutdown_Clean(t *testing.T) {
	a, _ := newTestArena(0)
	b, err := a.Allocate(4, 4, false)
	require.NoError(t, err)
	a.Free(b)
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestShutdown_ContextCanceled(t *testing.T) {
	a, _ := newTestArena(0)
	b, err := a.Allocate(4, 4, false)
	require.NoError(t, err)

	w, done := fence.New(1)
	defer done()
	b.Fences().SetWriter(w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.Shutdown(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, b.Freed())
}

func TestSlabClass(t *testing.T) {
	assert.Equal(t, 6, slabClass(0))
	assert.Equal(t, 6, slabClass(64))
	assert.Equal(t, 7, slabClass(65))
	assert.Equal(t, 10, slabClass(1024))
	assert.Equal(t, 11, slabClass(1025))
}
