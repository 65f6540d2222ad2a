package cpu_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/backend/cpu"
	"github.com/born-ml/tensorexec/engine"
	"github.com/born-ml/tensorexec/tensor"
)

func TestPublicAPI(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig(), engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	backend := cpu.New(e)

	a := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := tensor.FromFloat32(tensor.Shape{3}, []float32{10, 20, 30})
	c, err := backend.Binary(tensor.Add, a, b)
	require.NoError(t, err)

	sum, err := backend.Reduce(tensor.ReduceSum, c, []int{1}, false)
	require.NoError(t, err)
	got, err := tensor.Float32Values(sum)
	require.NoError(t, err)
	assert.Equal(t, []float32{66, 75}, got)

	for _, x := range []*tensor.Tensor{a, b, c, sum} {
		x.Release()
	}
	require.NoError(t, e.Shutdown(context.Background()))

	_, err = backend.Unary(tensor.Neg, tensor.FromFloat32(tensor.Shape{1}, []float32{1}))
	assert.ErrorIs(t, err, engine.ErrClosed)
}
