package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnaryFunc(t *testing.T) {
	assert.Equal(t, int32(3), UnaryFunc[int32](Abs)(-3))
	assert.Equal(t, int32(0), UnaryFunc[int32](Relu)(-3))
	assert.Equal(t, float32(-1.5), UnaryFunc[float32](Neg)(1.5))
	assert.InDelta(t, 0.5, UnaryFunc[float32](Sigmoid)(0), 1e-7)
	assert.InDelta(t, 0.8413447, UnaryFunc[float32](Gelu)(1), 1e-6)
	assert.Equal(t, float32(-2), UnaryFunc[float32](Floor)(-1.5))
	assert.True(t, math.IsInf(float64(UnaryFunc[float32](Reciprocal)(0)), 1))
}

func TestBinaryFunc_IntegerDivision(t *testing.T) {
	div := BinaryFunc[int32](Div)
	assert.Equal(t, int32(-2), div(-7, 3))
	assert.Equal(t, int32(0), div(7, 0))

	mod := BinaryFunc[int32](Mod)
	assert.Equal(t, int32(2), mod(-7, 3))
	assert.Equal(t, int32(-2), mod(7, -3))
	assert.Equal(t, int32(0), mod(7, 0))
	assert.Equal(t, int32(0), mod(math.MinInt32, -1))
}

func TestBinaryFunc_Float(t *testing.T) {
	assert.InDelta(t, 2.0, BinaryFunc[float32](Mod)(-7, 3), 1e-6)
	assert.InDelta(t, 8.0, BinaryFunc[float32](Pow)(2, 3), 1e-6)
	assert.Equal(t, float32(2), BinaryFunc[float32](Max)(-1, 2))
	assert.True(t, math.IsInf(float64(BinaryFunc[float32](Div)(1, 0)), 1))
}

func TestComputeTypeOf(t *testing.T) {
	assert.Equal(t, Float32, ComputeTypeOf[float32]())
	assert.Equal(t, Int32, ComputeTypeOf[int32]())
}

func TestTensorReshape(t *testing.T) {
	x := FromFloat32(Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, x.Reshape(Shape{3, 2}))
	assert.Equal(t, Shape{3, 2}, x.Shape())

	err := x.Reshape(Shape{4})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, Shape{3, 2}, x.Shape())
}
