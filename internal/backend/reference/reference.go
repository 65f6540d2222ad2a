// Package reference implements TensorBackend naively for correctness
// verification.
//
// Every operator runs synchronously on the caller's goroutine, walks full
// N-d coordinates and computes in float64. It shares only shape validation
// and the scalar operator definitions with the CPU backend; the iteration
// logic (broadcasting, axis fusion, strided views) is independent.
package reference

import (
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/rng"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Verify that Backend implements TensorBackend.
var _ tensor.TensorBackend = (*Backend)(nil)

// Backend is the reference backend.
type Backend struct {
	seeds rng.SeedSource
}

// New creates a reference backend resolving random seeds with seeds. nil
// selects a counter starting at 0.
func New(seeds rng.SeedSource) *Backend {
	if seeds == nil {
		seeds = rng.NewSeeds(0).Source()
	}
	return &Backend{seeds: seeds}
}

// Name returns the backend name.
func (r *Backend) Name() string {
	return "reference"
}

// array is a host copy of a tensor in float64.
type array struct {
	shape tensor.Shape
	dtype tensor.DataType // Compute type
	data  []float64
}

func newArray(shape tensor.Shape, dtype tensor.DataType) *array {
	return &array{shape: shape.Clone(), dtype: dtype.ComputeType(), data: make([]float64, shape.NumElements())}
}

// load reads t's elements. It waits for pending writes if t is bound to an
// engine buffer.
func load(op string, t *tensor.Tensor) (*array, error) {
	if t == nil {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "%s: nil operand", op)
	}
	if t.Released() {
		return nil, errors.Errorf("%s: operand %v was released", op, t)
	}
	a := newArray(t.Shape(), t.DType())
	n := len(a.data)
	if t.Data() == nil || n == 0 {
		return a, nil
	}
	switch a.dtype {
	case tensor.Float32:
		buf := make([]float32, n)
		if err := t.Data().ReadInto(tensor.BytesOf(buf), tensor.Float32, n); err != nil {
			return nil, errors.Wrap(err, op)
		}
		for i, v := range buf {
			a.data[i] = float64(v)
		}
	default:
		buf := make([]int32, n)
		if err := t.Data().ReadInto(tensor.BytesOf(buf), tensor.Int32, n); err != nil {
			return nil, errors.Wrap(err, op)
		}
		for i, v := range buf {
			a.data[i] = float64(v)
		}
	}
	return a, nil
}

func loadAll(op string, ts ...*tensor.Tensor) ([]*array, error) {
	out := make([]*array, len(ts))
	for i, t := range ts {
		a, err := load(op, t)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// tensor converts a back into a host tensor of its compute type.
func (a *array) tensor() (*tensor.Tensor, error) {
	if a.dtype == tensor.Float32 {
		out := make([]float32, len(a.data))
		for i, v := range a.data {
			out[i] = float32(v)
		}
		return tensor.FromSlice(out, a.shape)
	}
	out := make([]int32, len(a.data))
	for i, v := range a.data {
		out[i] = int32(v)
	}
	return tensor.FromSlice(out, a.shape)
}

func sameType(op string, arrays ...*array) error {
	for _, a := range arrays[1:] {
		if a.dtype != arrays[0].dtype {
			return errors.Wrapf(tensor.ErrUnsupportedDType, "%s: operand types %s and %s differ",
				op, arrays[0].dtype, a.dtype)
		}
	}
	return nil
}

// unravel converts a flat row-major index into coordinates.
func unravel(flat int, shape tensor.Shape) []int {
	coords := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] > 0 {
			coords[i] = flat % shape[i]
			flat /= shape[i]
		}
	}
	return coords
}

// ravel converts coordinates into a flat row-major index.
func ravel(coords []int, shape tensor.Shape) int {
	flat := 0
	for i, c := range coords {
		flat = flat*shape[i] + c
	}
	return flat
}

// broadcastIndex maps output coordinates to the flat index of an input of
// shape in that broadcasts to the output.
func broadcastIndex(coords []int, in tensor.Shape) int {
	offset := len(coords) - len(in)
	idx := 0
	for i, d := range in {
		c := coords[offset+i]
		if d == 1 {
			c = 0
		}
		idx = idx*d + c
	}
	return idx
}

// Unary applies op elementwise.
func (r *Backend) Unary(op tensor.UnaryOp, x *tensor.Tensor) (*tensor.Tensor, error) {
	a, err := load(op.String(), x)
	if err != nil {
		return nil, err
	}
	if op.FloatOnly() && a.dtype != tensor.Float32 {
		return nil, errors.Wrapf(tensor.ErrUnsupportedDType, "%s: requires floating point", op)
	}
	out := newArray(a.shape, a.dtype)
	if a.dtype == tensor.Float32 {
		f := tensor.UnaryFunc[float32](op)
		for i, v := range a.data {
			out.data[i] = float64(f(float32(v)))
		}
	} else {
		f := tensor.UnaryFunc[int32](op)
		for i, v := range a.data {
			out.data[i] = float64(f(int32(v)))
		}
	}
	return out.tensor()
}

// Binary applies op with broadcasting.
func (r *Backend) Binary(op tensor.BinaryOp, x, y *tensor.Tensor) (*tensor.Tensor, error) {
	name := op.String()
	arrays, err := loadAll(name, x, y)
	if err != nil {
		return nil, err
	}
	a, b := arrays[0], arrays[1]
	if err := sameType(name, a, b); err != nil {
		return nil, err
	}
	shape, _, err := tensor.BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}

	ff := tensor.BinaryFunc[float32](op)
	f := func(u, v float64) float64 { return float64(ff(float32(u), float32(v))) }
	if a.dtype != tensor.Float32 {
		g := tensor.BinaryFunc[int32](op)
		f = func(u, v float64) float64 { return float64(g(int32(u), int32(v))) }
	}

	out := newArray(shape, a.dtype)
	for i := range out.data {
		c := unravel(i, shape)
		out.data[i] = f(a.data[broadcastIndex(c, a.shape)], b.data[broadcastIndex(c, b.shape)])
	}
	return out.tensor()
}

// Where selects x where cond is non-zero and y elsewhere.
func (r *Backend) Where(cond, x, y *tensor.Tensor) (*tensor.Tensor, error) {
	arrays, err := loadAll("where", cond, x, y)
	if err != nil {
		return nil, err
	}
	c, a, b := arrays[0], arrays[1], arrays[2]
	if err := sameType("where", a, b); err != nil {
		return nil, err
	}
	shape, _, err := tensor.BroadcastShapes(c.shape, a.shape, b.shape)
	if err != nil {
		return nil, errors.Wrap(err, "where")
	}
	out := newArray(shape, a.dtype)
	for i := range out.data {
		coords := unravel(i, shape)
		if c.data[broadcastIndex(coords, c.shape)] != 0 {
			out.data[i] = a.data[broadcastIndex(coords, a.shape)]
		} else {
			out.data[i] = b.data[broadcastIndex(coords, b.shape)]
		}
	}
	return out.tensor()
}

// Cast converts x to dtype's compute type, truncating floats to integers.
func (r *Backend) Cast(x *tensor.Tensor, dtype tensor.DataType) (*tensor.Tensor, error) {
	a, err := load("cast", x)
	if err != nil {
		return nil, err
	}
	out := newArray(a.shape, dtype)
	for i, v := range a.data {
		if out.dtype == tensor.Float32 {
			out.data[i] = float64(float32(v))
		} else {
			out.data[i] = math.Trunc(v)
		}
	}
	return out.tensor()
}

// Reduce folds x over axes. Every output element gathers its inputs first
// and folds them in index order.
func (r *Backend) Reduce(op tensor.ReduceOp, x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error) {
	name := op.String()
	a, err := load(name, x)
	if err != nil {
		return nil, err
	}
	if op.FloatOnly() && a.dtype != tensor.Float32 {
		return nil, errors.Wrapf(tensor.ErrUnsupportedDType, "%s: requires floating point", name)
	}
	plan, err := tensor.PrepareReduce(a.shape, axes, keepDims)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}

	reduced := make([]bool, len(a.shape))
	for _, ax := range plan.Axes {
		reduced[ax] = true
	}
	kept := make(tensor.Shape, len(a.shape))
	for i, d := range a.shape {
		kept[i] = d
		if reduced[i] {
			kept[i] = 1
		}
	}

	groups := make([][]float64, plan.Out.NumElements())
	for i, v := range a.data {
		c := unravel(i, a.shape)
		for ax := range c {
			if reduced[ax] {
				c[ax] = 0
			}
		}
		o := ravel(c, kept)
		groups[o] = append(groups[o], v)
	}

	out := newArray(plan.Out, a.dtype)
	for o, g := range groups {
		out.data[o] = fold(op, g)
		if a.dtype != tensor.Float32 {
			out.data[o] = math.Trunc(out.data[o])
		}
	}
	return out.tensor()
}

func fold(op tensor.ReduceOp, values []float64) float64 {
	switch op {
	case tensor.ReduceMean:
		return sum(values, func(v float64) float64 { return v }) / float64(len(values))
	case tensor.ReduceProd:
		p := 1.0
		for _, v := range values {
			p *= v
		}
		return p
	case tensor.ReduceMin:
		m := math.Inf(1)
		for _, v := range values {
			m = math.Min(m, v)
		}
		return m
	case tensor.ReduceMax:
		m := math.Inf(-1)
		for _, v := range values {
			m = math.Max(m, v)
		}
		return m
	case tensor.ReduceSumSquare:
		return sum(values, func(v float64) float64 { return v * v })
	case tensor.ReduceL1:
		return sum(values, math.Abs)
	case tensor.ReduceL2:
		return math.Sqrt(sum(values, func(v float64) float64 { return v * v }))
	case tensor.ReduceLogSum:
		return math.Log(sum(values, func(v float64) float64 { return v }))
	case tensor.ReduceLogSumExp:
		m := math.Inf(-1)
		for _, v := range values {
			m = math.Max(m, v)
		}
		if math.IsInf(m, -1) {
			return m
		}
		return m + math.Log(sum(values, func(v float64) float64 { return math.Exp(v - m) }))
	default:
		return sum(values, func(v float64) float64 { return v })
	}
}

func sum(values []float64, f func(float64) float64) float64 {
	s := 0.0
	for _, v := range values {
		s += f(v)
	}
	return s
}

// ArgReduce returns the first index of the extreme value along axis.
func (r *Backend) ArgReduce(x *tensor.Tensor, axis int, keepDims, largest bool) (*tensor.Tensor, error) {
	a, err := load("argreduce", x)
	if err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareReduce(a.shape, []int{axis}, keepDims)
	if err != nil {
		return nil, errors.Wrap(err, "argreduce")
	}
	ax := plan.Axes[0]
	dim := a.shape[ax]
	kept := a.shape.Clone()
	kept[ax] = 1

	out := newArray(plan.Out, tensor.Int32)
	for o := range out.data {
		c := unravel(o, kept)
		best, at := 0.0, 0
		for k := 0; k < dim; k++ {
			c[ax] = k
			v := a.data[ravel(c, a.shape)]
			if k == 0 || (largest && v > best) || (!largest && v < best) {
				best, at = v, k
			}
		}
		out.data[o] = float64(at)
	}
	return out.tensor()
}

// TopK sorts every group along axis and keeps the first k. Ties keep index
// order.
func (r *Backend) TopK(x *tensor.Tensor, k, axis int, largest, sorted bool) (*tensor.Tensor, *tensor.Tensor, error) {
	a, err := load("topk", x)
	if err != nil {
		return nil, nil, err
	}
	plan, err := tensor.PrepareTopK(a.shape, k, axis)
	if err != nil {
		return nil, nil, err
	}
	ax := plan.Axis
	kept := a.shape.Clone()
	kept[ax] = 1

	values := newArray(plan.Out, a.dtype)
	indices := newArray(plan.Out, tensor.Int32)
	type entry struct {
		v float64
		i int
	}
	for o := 0; o < kept.NumElements(); o++ {
		c := unravel(o, kept)
		group := make([]entry, plan.Dim)
		for j := range group {
			c[ax] = j
			group[j] = entry{a.data[ravel(c, a.shape)], j}
		}
		slices.SortStableFunc(group, func(p, q entry) int {
			switch {
			case p.v == q.v:
				return 0
			case (p.v > q.v) == largest:
				return -1
			default:
				return 1
			}
		})
		for j := 0; j < k; j++ {
			c[ax] = j
			at := ravel(c, plan.Out)
			values.data[at] = group[j].v
			indices.data[at] = float64(group[j].i)
		}
	}

	vt, err := values.tensor()
	if err != nil {
		return nil, nil, err
	}
	it, err := indices.tensor()
	if err != nil {
		return nil, nil, err
	}
	return vt, it, nil
}

// RandomUniform draws from the same counter-based streams as the engine, so
// equal seeds give equal tensors on both backends.
func (r *Backend) RandomUniform(shape tensor.Shape, low, high float32, seed *float32) (*tensor.Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	s := r.seeds(seed)
	out := make([]float32, shape.NumElements())
	for i := range out {
		out[i] = rng.Uniform(s, i, low, high)
	}
	return tensor.FromSlice(out, shape)
}

// RandomNormal draws normally distributed values.
func (r *Backend) RandomNormal(shape tensor.Shape, mean, scale float32, seed *float32) (*tensor.Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	s := r.seeds(seed)
	out := make([]float32, shape.NumElements())
	for i := range out {
		out[i] = rng.Normal(s, i, mean, scale)
	}
	return tensor.FromSlice(out, shape)
}
