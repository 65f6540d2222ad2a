package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/rng"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// RandomUniform returns a float32 tensor of the given shape with values
// drawn uniformly from [low, high).
//
// A non-nil seed makes the result reproducible: the same seed and shape
// always give the same tensor, however the work is split across workers.
// A nil seed draws a fresh seed from the engine's seed source.
func (cpu *CPUBackend) RandomUniform(shape tensor.Shape, low, high float32, seed *float32) (*tensor.Tensor, error) {
	if high < low {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "randomuniform: high %v < low %v", high, low)
	}
	return cpu.random("randomuniform", shape, seed, func(s uint64, i int) float32 {
		return rng.Uniform(s, i, low, high)
	})
}

// RandomNormal returns a float32 tensor of the given shape with values drawn
// from a normal distribution. Seeding works as in RandomUniform.
func (cpu *CPUBackend) RandomNormal(shape tensor.Shape, mean, scale float32, seed *float32) (*tensor.Tensor, error) {
	if scale < 0 {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "randomnormal: negative scale %v", scale)
	}
	return cpu.random("randomnormal", shape, seed, func(s uint64, i int) float32 {
		return rng.Normal(s, i, mean, scale)
	})
}

func (cpu *CPUBackend) random(name string, shape tensor.Shape, seed *float32, gen func(s uint64, i int) float32) (*tensor.Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, name)
	}
	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(shape, tensor.Float32)
	if err != nil {
		return nil, err
	}

	s := cpu.e.Seeds(seed)
	dst := tensor.View[float32](ob.Bytes())
	err = c.launch(name, nil, bufs(ob), ob.Capacity(), parallel.BatchElementwise,
		func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = gen(s, i)
			}
		})
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}
