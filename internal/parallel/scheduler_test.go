package parallel

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/fence"
	"github.com/born-ml/tensorexec/internal/tensor"
)

func newTestScheduler(t *testing.T) (*Scheduler, *arena.Arena) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 0}
	return NewScheduler(cfg, logger, nil), arena.New(arena.Config{Logger: logger})
}

func TestSchedule_InstallsFences(t *testing.T) {
	s, a := newTestScheduler(t)
	in, err := a.Allocate(16, 4, true)
	require.NoError(t, err)
	out, err := a.Allocate(16, 4, false)
	require.NoError(t, err)

	gate, open := fence.New(0)
	task, err := s.Schedule(Job{
		Name:      "copy",
		Reads:     []*arena.Buffer{in},
		Writes:    []*arena.Buffer{out},
		After:     gate,
		Count:     16,
		BatchSize: 4,
		Body: func(start, end int) {
			copy(out.Bytes()[start*4:end*4], in.Bytes()[start*4:end*4])
		},
	})
	require.NoError(t, err)

	assert.Same(t, task, out.Fences().Write)
	assert.Same(t, task, out.Fences().Read)
	assert.Nil(t, in.Fences().Write, "reading does not touch the write fence")
	assert.Equal(t, task, in.Fences().Read)
	assert.False(t, task.IsComplete(), "task waits on its extra prerequisite")

	open()
	s.Wait()
	assert.True(t, task.IsComplete())

	tasks, batches := s.Stats()
	assert.Equal(t, uint64(1), tasks)
	assert.Equal(t, uint64(4), batches)
}

func TestSchedule_RejectsFreedBuffer(t *testing.T) {
	s, a := newTestScheduler(t)
	b, err := a.Allocate(4, 4, false)
	require.NoError(t, err)
	a.Free(b)

	_, err = s.Schedule(Job{Name: "neg", Reads: []*arena.Buffer{b}, Count: 4, Body: func(int, int) {}})
	assert.ErrorIs(t, err, arena.ErrUseAfterDispose)

	_, err = s.Schedule(Job{Name: "neg", Writes: []*arena.Buffer{b}, Count: 4, Body: func(int, int) {}})
	assert.ErrorIs(t, err, arena.ErrUseAfterDispose)
}

func TestSchedule_WriteAfterRead(t *testing.T) {
	s, a := newTestScheduler(t)
	buf, err := a.Allocate(1, 4, true)
	require.NoError(t, err)
	tensor.AsInt32(buf.Bytes())[0] = 1

	var seen int32
	_, err = s.Schedule(Job{
		Name: "slow-read", Reads: []*arena.Buffer{buf}, Count: 1, BatchSize: BatchRow,
		Body: func(int, int) {
			time.Sleep(20 * time.Millisecond)
			seen = tensor.AsInt32(buf.Bytes())[0]
		},
	})
	require.NoError(t, err)

	_, err = s.Schedule(Job{
		Name: "write", Writes: []*arena.Buffer{buf}, Count: 1, BatchSize: BatchRow,
		Body: func(int, int) { tensor.AsInt32(buf.Bytes())[0] = 2 },
	})
	require.NoError(t, err)

	s.Wait()
	assert.Equal(t, int32(1), seen, "the writer must wait for the earlier reader")
	assert.Equal(t, int32(2), tensor.AsInt32(buf.Bytes())[0])
}

// Random task graphs over a handful of buffers: every task's result must equal
// the result of running the same tasks one after another. Bodies sleep at
// random so batches of unrelated tasks interleave.
func TestSchedule_RandomGraphMatchesSequential(t *testing.T) {
	const (
		numBuffers = 6
		length     = 32
		numTasks   = 200
	)

	for seed := uint64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7))
		s, a := newTestScheduler(t)

		bufs := make([]*arena.Buffer, numBuffers)
		model := make([][]int32, numBuffers)
		for i := range bufs {
			b, err := a.Allocate(length, 4, true)
			require.NoError(t, err)
			bufs[i] = b
			model[i] = make([]int32, length)
		}

		type snapshot struct {
			got  []int32
			want []int32
		}
		var snaps []*snapshot

		for n := 0; n < numTasks; n++ {
			jitter := time.Duration(rng.IntN(50)) * time.Microsecond
			batch := 1 + rng.IntN(length)

			if rng.IntN(3) == 0 {
				src := rng.IntN(numBuffers)
				snap := &snapshot{got: make([]int32, length), want: append([]int32(nil), model[src]...)}
				snaps = append(snaps, snap)
				b := bufs[src]
				_, err := s.Schedule(Job{
					Name: "observe", Reads: []*arena.Buffer{b}, Count: length, BatchSize: batch,
					Body: func(start, end int) {
						time.Sleep(jitter)
						copy(snap.got[start:end], tensor.AsInt32(b.Bytes())[start:end])
					},
				})
				require.NoError(t, err)
				continue
			}

			dst, x, y := rng.IntN(numBuffers), rng.IntN(numBuffers), rng.IntN(numBuffers)
			k := int32(rng.IntN(100))
			for i := range model[dst] {
				model[dst][i] = model[x][i]*3 + model[y][i] + k + int32(i)
			}
			// model[dst] was updated in place; x or y may alias dst, which is
			// safe because each element only depends on the same index.

			bd, bx, by := bufs[dst], bufs[x], bufs[y]
			_, err := s.Schedule(Job{
				Name:      "fma",
				Reads:     []*arena.Buffer{bx, by},
				Writes:    []*arena.Buffer{bd},
				Count:     length,
				BatchSize: batch,
				Body: func(start, end int) {
					time.Sleep(jitter)
					d := tensor.AsInt32(bd.Bytes())
					xs := tensor.AsInt32(bx.Bytes())
					ys := tensor.AsInt32(by.Bytes())
					for i := start; i < end; i++ {
						d[i] = xs[i]*3 + ys[i] + k + int32(i)
					}
				},
			})
			require.NoError(t, err)
		}

		s.Wait()
		for i, b := range bufs {
			require.Equal(t, model[i], tensor.AsInt32(b.Bytes())[:length], "seed %d buffer %d", seed, i)
		}
		for i, snap := range snaps {
			require.Equal(t, snap.want, snap.got, "seed %d snapshot %d", seed, i)
		}
		for _, b := range bufs {
			a.Free(b)
		}
		assert.NoError(t, a.Shutdown(t.Context()))
	}
}

func TestScheduler_PendingPrunesFinished(t *testing.T) {
	s, a := newTestScheduler(t)
	b, err := a.Allocate(1, 4, false)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.Schedule(Job{Name: "noop", Writes: []*arena.Buffer{b}, Count: 1, Body: func(int, int) {}})
		require.NoError(t, err)
	}
	s.Wait()
	assert.Nil(t, s.Pending())
	require.NoError(t, s.WaitContext(t.Context()))
}
