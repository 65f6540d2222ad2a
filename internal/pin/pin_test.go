package pin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/tensor"
)

func newTestPinner() (*Pinner, *arena.Arena, *parallel.Scheduler) {
	a := arena.New(arena.Config{})
	s := parallel.NewScheduler(parallel.Config{Enabled: true, NumWorkers: 2}, nil, nil)
	return NewPinner(a, s, nil), a, s
}

func TestPin_HostTensor(t *testing.T) {
	p, a, _ := newTestPinner()
	x := tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})

	b, err := p.Pin(x, true)
	require.NoError(t, err)
	assert.Same(t, b, x.Data())
	assert.Equal(t, tensor.Float32, b.DType())
	assert.Equal(t, []float32{1, 2, 3, 4}, tensor.AsFloat32(b.Bytes()))

	again, err := p.Pin(x, true)
	require.NoError(t, err)
	assert.Same(t, b, again, "a compatible binding is returned unchanged")
	assert.Equal(t, 1, a.Live())
}

func TestPin_ConvertsStorage(t *testing.T) {
	p, _, _ := newTestPinner()

	h, err := tensor.FromFloat16(tensor.Shape{3}, []float32{0.5, -1, 8})
	require.NoError(t, err)
	b, err := p.Pin(h, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, h.DType())
	assert.Equal(t, []float32{0.5, -1, 8}, tensor.AsFloat32(b.Bytes()))

	i64, err := tensor.FromSlice([]int64{5, -6}, tensor.Shape{2})
	require.NoError(t, err)
	bi, err := p.Pin(i64, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, i64.DType())
	assert.Equal(t, []int32{5, -6}, tensor.AsInt32(bi.Bytes()))
}

func TestPin_NoStorageReadsZero(t *testing.T) {
	p, _, _ := newTestPinner()
	x, err := tensor.New(tensor.Shape{4}, tensor.Float32, nil)
	require.NoError(t, err)

	b, err := p.Pin(x, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, tensor.AsFloat32(b.Bytes()))
}

func TestPin_UseAfterDispose(t *testing.T) {
	p, _, _ := newTestPinner()
	x := tensor.FromFloat32(tensor.Shape{2}, []float32{1, 2})
	b, err := p.Pin(x, true)
	require.NoError(t, err)

	b.Release()
	_, err = p.Pin(x, true)
	assert.ErrorIs(t, err, arena.ErrUseAfterDispose)

	y := tensor.FromFloat32(tensor.Shape{2}, []float32{1, 2})
	y.Release()
	_, err = p.Pin(y, false)
	assert.ErrorIs(t, err, arena.ErrUseAfterDispose)

	_, err = Download(y)
	assert.ErrorIs(t, err, arena.ErrUseAfterDispose)
}

func TestPin_RepinSchedulesCopy(t *testing.T) {
	p, a, s := newTestPinner()

	// An int32 binding holding a tensor now declared float32 must be
	// converted by a scheduled copy.
	x := tensor.FromInt32(tensor.Shape{3}, []int32{1, 2, 3})
	old, err := p.Pin(x, true)
	require.NoError(t, err)
	x.SetDType(tensor.Float32)

	b, err := p.Pin(x, true)
	require.NoError(t, err)
	assert.NotSame(t, old, b)
	assert.True(t, old.Buffer().Freed())
	assert.NotNil(t, b.Buffer().Fences().Write, "the copy is a write task on the new buffer")

	got, err := Download(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)

	s.Wait()
	assert.Equal(t, 1, a.Live())
}

func TestOutputAndDownload(t *testing.T) {
	p, _, s := newTestPinner()

	out, b, err := p.Output(tensor.Shape{4}, tensor.Int32)
	require.NoError(t, err)
	dst := tensor.AsInt32(b.Bytes())
	_, err = s.Schedule(parallel.Job{
		Name:      "iota",
		Writes:    []*arena.Buffer{b.Buffer()},
		Count:     4,
		BatchSize: 2,
		Body: func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = int32(i * 10)
			}
		},
	})
	require.NoError(t, err)

	got, err := DownloadInt32(out)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 10, 20, 30}, got)

	f, err := Download(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 10, 20, 30}, f)

	_, _, err = p.Output(tensor.Shape{-1}, tensor.Float32)
	assert.ErrorIs(t, err, tensor.ErrInvalidArgument)
}
