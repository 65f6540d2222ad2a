package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Reshape copies x into a tensor of the given shape.
// One dimension may be -1 (inferred); a 0 copies the input dimension.
func (cpu *CPUBackend) Reshape(x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	const name = "reshape"
	if err := checkOperands(name, x); err != nil {
		return nil, err
	}
	target, err := tensor.InferReshape(x.Shape(), shape)
	if err != nil {
		return nil, err
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	in, err := c.input(x)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(target, in.DType())
	if err != nil {
		return nil, err
	}

	src, dst := in.Bytes(), ob.Bytes()
	size := in.DType().Size()
	err = c.launch(name, bufs(in), bufs(ob), ob.Capacity(), parallel.BatchElementwise*16,
		func(start, end int) {
			copy(dst[start*size:end*size], src[start*size:end*size])
		})
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// Transpose permutes the axes of x. An empty perm reverses them.
//
// Example:
//
//	x: [2, 3, 4], perm [1, 0, 2] -> out: [3, 2, 4]
func (cpu *CPUBackend) Transpose(x *tensor.Tensor, perm []int) (*tensor.Tensor, error) {
	if err := checkOperands("transpose", x); err != nil {
		return nil, err
	}
	view, err := tensor.PrepareTranspose(x.Shape(), perm)
	if err != nil {
		return nil, err
	}
	return cpu.viewCopy("transpose", x, view)
}

// Expand broadcasts x to shape.
func (cpu *CPUBackend) Expand(x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	if err := checkOperands("expand", x); err != nil {
		return nil, err
	}
	view, err := tensor.PrepareExpand(x.Shape(), shape)
	if err != nil {
		return nil, errors.Wrap(err, "expand")
	}
	return cpu.viewCopy("expand", x, view)
}

// Slice extracts a strided sub-tensor with ONNX Slice semantics.
//
// Parameters:
//   - starts, ends: bounds per sliced axis; negative values count from the end
//     and all values are clamped to the axis
//   - axes: sliced axes (nil means 0..len(starts)-1)
//   - steps: step per sliced axis (nil means 1); negative steps walk backwards
func (cpu *CPUBackend) Slice(x *tensor.Tensor, starts, ends, axes, steps []int) (*tensor.Tensor, error) {
	if err := checkOperands("slice", x); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareSlice(x.Shape(), starts, ends, axes, steps)
	if err != nil {
		return nil, err
	}
	return cpu.viewCopy("slice", x, plan.StridedView)
}

// viewCopy materializes a strided view of x.
func (cpu *CPUBackend) viewCopy(name string, x *tensor.Tensor, view *tensor.StridedView) (*tensor.Tensor, error) {
	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	in, err := c.input(x)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(view.Out, in.DType())
	if err != nil {
		return nil, err
	}

	switch in.DType() {
	case tensor.Float32:
		err = stridedCopy[float32](c, name, view, in.Buffer(), in.Bytes(), ob)
	default:
		err = stridedCopy[int32](c, name, view, in.Buffer(), in.Bytes(), ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// stridedCopy schedules out = view(src), one output row per index. Rows
// whose innermost axis is contiguous in the source are block copies.
func stridedCopy[T tensor.Numeric](c *call, name string, view *tensor.StridedView,
	srcBuf *arena.Buffer, srcBytes []byte, out *pin.Binding,
) error {
	count := view.Out.NumElements()
	if count == 0 {
		return nil
	}
	src := tensor.View[T](srcBytes)
	dst := tensor.View[T](out.Bytes())
	inner := view.InnerLength()
	rows := count / inner

	innerStride := 0
	if len(view.Out) > 0 {
		innerStride = view.Strides[len(view.Out)-1]
	}
	contiguous := view.InnerContiguous()

	return c.launch(name, []*arena.Buffer{srcBuf}, bufs(out), rows, rowBatch(inner),
		func(start, end int) {
			for row := start; row < end; row++ {
				off := view.RowOffset(row)
				d := dst[row*inner : (row+1)*inner]
				if contiguous {
					copy(d, src[off:off+inner])
					continue
				}
				for j := range d {
					d[j] = src[off+j*innerStride]
				}
			}
		})
}

// Concat joins xs along axis. Every input must match the first on all other
// axes and share its compute type.
func (cpu *CPUBackend) Concat(xs []*tensor.Tensor, axis int) (*tensor.Tensor, error) {
	const name = "concat"
	if len(xs) == 0 {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "%s: no inputs", name)
	}
	if err := checkOperands(name, xs...); err != nil {
		return nil, err
	}
	if _, err := sameCompute(name, xs...); err != nil {
		return nil, err
	}
	shapes := make([]tensor.Shape, len(xs))
	for i, x := range xs {
		shapes[i] = x.Shape()
	}
	plan, err := tensor.PrepareConcat(shapes, axis)
	if err != nil {
		return nil, err
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	ins := make([]*pin.Binding, len(xs))
	for i, x := range xs {
		if ins[i], err = c.input(x); err != nil {
			return nil, err
		}
	}
	out, ob, err := c.output(plan.Out, ins[0].DType())
	if err != nil {
		return nil, err
	}
	if out.Count() == 0 {
		return out, nil
	}

	size := ins[0].DType().Size()
	srcs := make([][]byte, len(ins))
	offsets := make([]int, len(ins)) // Element offset of each input within an output row
	for i, in := range ins {
		srcs[i] = in.Bytes()
		if i > 0 {
			offsets[i] = offsets[i-1] + plan.Lengths[i-1]*plan.Inner
		}
	}
	dst := ob.Bytes()
	rowLen := out.Count() / plan.Outer

	n := len(ins)
	err = c.launch(name, bufs(ins...), bufs(ob), plan.Outer*n, rowBatch(rowLen/n),
		func(start, end int) {
			for idx := start; idx < end; idx++ {
				o, i := idx/n, idx%n
				block := plan.Lengths[i] * plan.Inner
				from := o * block
				to := o*rowLen + offsets[i]
				copy(dst[to*size:(to+block)*size], srcs[i][from*size:(from+block)*size])
			}
		})
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// Pad pads x with ONNX Pad semantics.
//
// pads holds the begin amounts of every axis followed by the end amounts; all
// must be non-negative. Constant mode fills with value; Reflect, Edge and
// Wrap read mirrored, clamped and wrapped input coordinates.
func (cpu *CPUBackend) Pad(x *tensor.Tensor, pads []int, mode tensor.PadMode, value float32) (*tensor.Tensor, error) {
	const name = "pad"
	if err := checkOperands(name, x); err != nil {
		return nil, err
	}
	plan, err := tensor.PreparePad(x.Shape(), pads, mode)
	if err != nil {
		return nil, err
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	in, err := c.input(x)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(plan.Out, in.DType())
	if err != nil {
		return nil, err
	}
	if out.Count() == 0 {
		return out, nil
	}

	switch in.DType() {
	case tensor.Float32:
		err = pad(c, plan, in, ob, value)
	default:
		err = pad(c, plan, in, ob, int32(value))
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// pad fills one output row per index. Rows mapped to an input row copy the
// interior as one block and resolve only the padded ends per element.
func pad[T tensor.Numeric](c *call, plan *tensor.PadPlan, in, out *pin.Binding, value T) error {
	src := tensor.View[T](in.Bytes())
	dst := tensor.View[T](out.Bytes())
	inner := plan.InnerLength()
	rows := plan.Out.NumElements() / inner
	last := len(plan.Out) - 1

	body := func(start, end int) {
		for row := start; row < end; row++ {
			d := dst[row*inner : (row+1)*inner]
			if last < 0 {
				d[0] = src[0]
				continue
			}
			off, ok := plan.RowSource(row)
			if !ok {
				for j := range d {
					d[j] = value
				}
				continue
			}
			begin, dim := plan.Begin[last], plan.In[last]
			copy(d[begin:begin+dim], src[off:off+dim])
			for j := 0; j < begin; j++ {
				d[j] = padElement(plan, last, j, src, off, value)
			}
			for j := begin + dim; j < inner; j++ {
				d[j] = padElement(plan, last, j, src, off, value)
			}
		}
	}
	return c.launch("pad", bufs(in), bufs(out), rows, rowBatch(inner), body)
}

func padElement[T tensor.Numeric](plan *tensor.PadPlan, axis, coord int, src []T, off int, value T) T {
	i, ok := plan.MapCoord(axis, coord)
	if !ok {
		return value
	}
	return src[off+i]
}
