package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/tensor"
)

func TestHostTensors(t *testing.T) {
	x, err := tensor.FromSlice([]int32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, x.DType())

	got, err := tensor.Float32Values(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)

	h, err := tensor.FromFloat16(tensor.Shape{2}, []float32{0.5, -2})
	require.NoError(t, err)
	got, err = tensor.Float32Values(h)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -2}, got)

	_, err = tensor.FromSlice([]float32{1}, tensor.Shape{2})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	x.Release()
	_, err = tensor.Int32Values(x)
	assert.Error(t, err)
}
