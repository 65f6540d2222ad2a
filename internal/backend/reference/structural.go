package reference

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/tensor"
)

// Reshape copies x into the inferred target shape.
func (r *Backend) Reshape(x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	a, err := load("reshape", x)
	if err != nil {
		return nil, err
	}
	target, err := tensor.InferReshape(a.shape, shape)
	if err != nil {
		return nil, err
	}
	out := newArray(target, a.dtype)
	copy(out.data, a.data)
	return out.tensor()
}

// Transpose permutes axes; an empty perm reverses them.
func (r *Backend) Transpose(x *tensor.Tensor, perm []int) (*tensor.Tensor, error) {
	a, err := load("transpose", x)
	if err != nil {
		return nil, err
	}
	view, err := tensor.PrepareTranspose(a.shape, perm)
	if err != nil {
		return nil, err
	}
	rank := len(a.shape)
	if len(perm) == 0 {
		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	out := newArray(view.Out, a.dtype)
	in := make([]int, rank)
	for i := range out.data {
		c := unravel(i, view.Out)
		for j, p := range perm {
			in[p] = c[j]
		}
		out.data[i] = a.data[ravel(in, a.shape)]
	}
	return out.tensor()
}

// Expand broadcasts x to shape.
func (r *Backend) Expand(x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	a, err := load("expand", x)
	if err != nil {
		return nil, err
	}
	view, err := tensor.PrepareExpand(a.shape, shape)
	if err != nil {
		return nil, errors.Wrap(err, "expand")
	}
	out := newArray(view.Out, a.dtype)
	for i := range out.data {
		out.data[i] = a.data[broadcastIndex(unravel(i, view.Out), a.shape)]
	}
	return out.tensor()
}

// Concat joins xs along axis.
func (r *Backend) Concat(xs []*tensor.Tensor, axis int) (*tensor.Tensor, error) {
	arrays, err := loadAll("concat", xs...)
	if err != nil {
		return nil, err
	}
	if len(arrays) == 0 {
		return nil, errors.Wrap(tensor.ErrInvalidArgument, "concat: no inputs")
	}
	if err := sameType("concat", arrays...); err != nil {
		return nil, err
	}
	shapes := make([]tensor.Shape, len(arrays))
	for i, a := range arrays {
		shapes[i] = a.shape
	}
	plan, err := tensor.PrepareConcat(shapes, axis)
	if err != nil {
		return nil, err
	}
	ax, err := plan.Out.NormalizeAxis(axis)
	if err != nil {
		return nil, err
	}

	out := newArray(plan.Out, arrays[0].dtype)
	for i := range out.data {
		c := unravel(i, plan.Out)
		k := 0
		for c[ax] >= arrays[k].shape[ax] {
			c[ax] -= arrays[k].shape[ax]
			k++
		}
		out.data[i] = arrays[k].data[ravel(c, arrays[k].shape)]
	}
	return out.tensor()
}

// Slice extracts a strided sub-tensor.
func (r *Backend) Slice(x *tensor.Tensor, starts, ends, axes, steps []int) (*tensor.Tensor, error) {
	a, err := load("slice", x)
	if err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareSlice(a.shape, starts, ends, axes, steps)
	if err != nil {
		return nil, err
	}
	out := newArray(plan.Out, a.dtype)
	for i := range out.data {
		c := unravel(i, plan.Out)
		for ax := range c {
			c[ax] = plan.Starts[ax] + c[ax]*plan.Steps[ax]
		}
		out.data[i] = a.data[ravel(c, a.shape)]
	}
	return out.tensor()
}

// Pad pads x; see padCoord for the non-constant modes.
func (r *Backend) Pad(x *tensor.Tensor, pads []int, mode tensor.PadMode, value float32) (*tensor.Tensor, error) {
	a, err := load("pad", x)
	if err != nil {
		return nil, err
	}
	plan, err := tensor.PreparePad(a.shape, pads, mode)
	if err != nil {
		return nil, err
	}
	fill := float64(value)
	if a.dtype != tensor.Float32 {
		fill = float64(int32(value))
	}

	out := newArray(plan.Out, a.dtype)
	for i := range out.data {
		c := unravel(i, plan.Out)
		inside := true
		for ax := range c {
			v, ok := padCoord(c[ax]-pads[ax], a.shape[ax], mode)
			if !ok {
				inside = false
				break
			}
			c[ax] = v
		}
		if inside {
			out.data[i] = a.data[ravel(c, a.shape)]
		} else {
			out.data[i] = fill
		}
	}
	return out.tensor()
}

// padCoord maps coordinate i relative to the start of an axis of length n
// to an input coordinate, or reports that the element is padding.
func padCoord(i, n int, mode tensor.PadMode) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	if n == 0 {
		return 0, false
	}
	switch mode {
	case tensor.PadEdge:
		return min(max(i, 0), n-1), true
	case tensor.PadWrap:
		return ((i % n) + n) % n, true
	case tensor.PadReflect:
		if n == 1 {
			return 0, true
		}
		for i < 0 || i >= n {
			if i < 0 {
				i = -i
			}
			if i >= n {
				i = 2*(n-1) - i
			}
		}
		return i, true
	default:
		return 0, false
	}
}

func wrapIndex(i, dim int) int {
	if i < 0 {
		i += dim
	}
	return min(max(i, 0), dim-1)
}

// Gather selects slices of x along axis.
func (r *Backend) Gather(x, indices *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	arrays, err := loadAll("gather", x, indices)
	if err != nil {
		return nil, err
	}
	a, idx := arrays[0], arrays[1]
	if indices.DType().IsFloat() {
		return nil, errors.Wrap(tensor.ErrUnsupportedDType, "gather: indices must be integers")
	}
	plan, err := tensor.PrepareGather(a.shape, idx.shape, axis)
	if err != nil {
		return nil, err
	}
	ax, _ := a.shape.NormalizeAxis(axis)
	ir := len(idx.shape)

	out := newArray(plan.Out, a.dtype)
	in := make([]int, len(a.shape))
	for i := range out.data {
		c := unravel(i, plan.Out)
		copy(in[:ax], c[:ax])
		copy(in[ax+1:], c[ax+ir:])
		in[ax] = wrapIndex(int(idx.data[ravel(c[ax:ax+ir], idx.shape)]), a.shape[ax])
		out.data[i] = a.data[ravel(in, a.shape)]
	}
	return out.tensor()
}

// GatherElements picks x[c with c[axis] = indices[c]] for every c.
func (r *Backend) GatherElements(x, indices *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	arrays, err := loadAll("gatherelements", x, indices)
	if err != nil {
		return nil, err
	}
	a, idx := arrays[0], arrays[1]
	if indices.DType().IsFloat() {
		return nil, errors.Wrap(tensor.ErrUnsupportedDType, "gatherelements: indices must be integers")
	}
	plan, err := tensor.PrepareElements("gatherelements", a.shape, idx.shape, axis)
	if err != nil {
		return nil, err
	}
	out := newArray(idx.shape, a.dtype)
	for i := range out.data {
		c := unravel(i, idx.shape)
		c[plan.Axis] = wrapIndex(int(idx.data[i]), a.shape[plan.Axis])
		out.data[i] = a.data[ravel(c, a.shape)]
	}
	return out.tensor()
}

// ScatterElements writes updates into a copy of data. Updates are applied in
// index order, so with duplicate indices and no reduction the last one wins.
func (r *Backend) ScatterElements(data, indices, updates *tensor.Tensor, axis int, mode tensor.ScatterMode) (*tensor.Tensor, error) {
	arrays, err := loadAll("scatterelements", data, indices, updates)
	if err != nil {
		return nil, err
	}
	a, idx, upd := arrays[0], arrays[1], arrays[2]
	if indices.DType().IsFloat() {
		return nil, errors.Wrap(tensor.ErrUnsupportedDType, "scatterelements: indices must be integers")
	}
	if err := sameType("scatterelements", a, upd); err != nil {
		return nil, err
	}
	if !idx.shape.Equal(upd.shape) {
		return nil, errors.Wrap(tensor.ErrShapeMismatch, "scatterelements: updates must match indices")
	}
	plan, err := tensor.PrepareElements("scatterelements", a.shape, idx.shape, axis)
	if err != nil {
		return nil, err
	}

	out := newArray(a.shape, a.dtype)
	copy(out.data, a.data)
	for i, u := range upd.data {
		c := unravel(i, idx.shape)
		c[plan.Axis] = wrapIndex(int(idx.data[i]), a.shape[plan.Axis])
		at := ravel(c, a.shape)
		switch mode {
		case tensor.ScatterAdd:
			out.data[at] += u
		case tensor.ScatterMul:
			out.data[at] *= u
		default:
			out.data[at] = u
		}
	}
	return out.tensor()
}
