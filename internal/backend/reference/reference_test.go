package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/internal/rng"
	"github.com/born-ml/tensorexec/internal/tensor"
)

func values(t *testing.T, x *tensor.Tensor) []float32 {
	t.Helper()
	out := make([]float32, x.Count())
	if len(out) > 0 {
		require.NoError(t, x.Data().ReadInto(tensor.BytesOf(out), tensor.Float32, len(out)))
	}
	return out
}

func TestBinaryBroadcast(t *testing.T) {
	r := New(nil)
	a := tensor.FromFloat32(tensor.Shape{2, 1}, []float32{1, 2})
	b := tensor.FromFloat32(tensor.Shape{3}, []float32{10, 20, 30})
	out, err := r.Binary(tensor.Add, a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 21, 31, 12, 22, 32}, values(t, out))

	_, err = r.Binary(tensor.Add, a, tensor.FromInt32(tensor.Shape{1}, []int32{1}))
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestReduce(t *testing.T) {
	r := New(nil)
	x := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	out, err := r.Reduce(tensor.ReduceSum, x, []int{1}, false)
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 15}, values(t, out))

	out, err = r.Reduce(tensor.ReduceMax, x, []int{0}, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3}, out.Shape())
	assert.Equal(t, []float32{4, 5, 6}, values(t, out))

	out, err = r.Reduce(tensor.ReduceMean, x, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []float32{3.5}, values(t, out))
}

func TestTopK(t *testing.T) {
	r := New(nil)
	x := tensor.FromFloat32(tensor.Shape{5}, []float32{5, 2, 7, 1, 9})
	v, i, err := r.TopK(x, 3, 0, true, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 7, 5}, values(t, v))
	assert.Equal(t, []float32{4, 2, 0}, values(t, i))
}

func TestPadModes(t *testing.T) {
	r := New(nil)
	x := tensor.FromFloat32(tensor.Shape{3}, []float32{1, 2, 3})
	cases := map[tensor.PadMode][]float32{
		tensor.PadConstant: {9, 9, 1, 2, 3, 9},
		tensor.PadReflect:  {3, 2, 1, 2, 3, 2},
		tensor.PadEdge:     {1, 1, 1, 2, 3, 3},
		tensor.PadWrap:     {2, 3, 1, 2, 3, 1},
	}
	for mode, want := range cases {
		out, err := r.Pad(x, []int{2, 1}, mode, 9)
		require.NoError(t, err, mode)
		assert.Equal(t, want, values(t, out), mode)
	}
}

func TestGemmWithBias(t *testing.T) {
	r := New(nil)
	a := tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	b := tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 0, 0, 1})
	c := tensor.FromFloat32(tensor.Shape{2}, []float32{10, 20})
	out, err := r.Gemm(a, b, c, true, false)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 23, 12, 24}, values(t, out))
}

func TestConvIdentityKernel(t *testing.T) {
	r := New(nil)
	x := tensor.FromFloat32(tensor.Shape{1, 1, 2, 2}, []float32{1, 2, 3, 4})
	w := tensor.FromFloat32(tensor.Shape{1, 1, 1, 1}, []float32{2})
	bias := tensor.FromFloat32(tensor.Shape{1}, []float32{1})
	out, err := r.Conv(x, w, bias, tensor.ConvParams{})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 5, 7, 9}, values(t, out))
}

func TestRandomSeeded(t *testing.T) {
	r := New(rng.NewSeeds(1).Source())
	seed := float32(3)
	a, err := r.RandomUniform(tensor.Shape{8}, 0, 1, &seed)
	require.NoError(t, err)
	b, err := r.RandomUniform(tensor.Shape{8}, 0, 1, &seed)
	require.NoError(t, err)
	assert.Equal(t, values(t, a), values(t, b))
}
