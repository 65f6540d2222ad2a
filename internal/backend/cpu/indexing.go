package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Gather selects slices of x along axis.
//
// indices may have any shape; the output shape is
// x[:axis] ++ indices ++ x[axis+1:]. Negative indices wrap once; indices
// still out of range are clamped into the axis.
//
// Example:
//
//	x: [3, 4, 5], indices: [2, 2], axis 1 -> out: [3, 2, 2, 5]
func (cpu *CPUBackend) Gather(x, indices *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	const name = "gather"
	if err := checkOperands(name, x, indices); err != nil {
		return nil, err
	}
	if err := requireIndex(name, indices); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareGather(x.Shape(), indices.Shape(), axis)
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
	ib, err := c.input(indices)
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

	src, dst := in.Bytes(), ob.Bytes()
	idx := tensor.View[int32](ib.Bytes())
	size := in.DType().Size()
	block := plan.Inner * size
	err = c.launch(name, bufs(in, ib), bufs(ob), plan.Outer*plan.Indices, rowBatch(plan.Inner),
		func(start, end int) {
			for i := start; i < end; i++ {
				o, k := i/plan.Indices, i%plan.Indices
				row := tensor.WrapIndex(int(idx[k]), plan.AxisDim)
				from := (o*plan.AxisDim + row) * block
				copy(dst[i*block:(i+1)*block], src[from:from+block])
			}
		})
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// GatherElements picks one element of x per index element:
// out[c] = x[c with c[axis] replaced by indices[c]].
// indices has the rank of x and is never larger on any other axis.
func (cpu *CPUBackend) GatherElements(x, indices *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	const name = "gatherelements"
	if err := checkOperands(name, x, indices); err != nil {
		return nil, err
	}
	if err := requireIndex(name, indices); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareElements(name, x.Shape(), indices.Shape(), axis)
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
	ib, err := c.input(indices)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(plan.Index, in.DType())
	if err != nil {
		return nil, err
	}

	switch in.DType() {
	case tensor.Float32:
		err = gatherElements[float32](c, plan, in, ib, ob)
	default:
		err = gatherElements[int32](c, plan, in, ib, ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

func gatherElements[T tensor.Numeric](c *call, plan *tensor.ElementsPlan, in, indices, out *pin.Binding) error {
	src := tensor.View[T](in.Bytes())
	idx := tensor.View[int32](indices.Bytes())
	dst := tensor.View[T](out.Bytes())
	dim := plan.Data[plan.Axis]
	return c.launch(c.op, bufs(in, indices), bufs(out), out.Capacity(), parallel.BatchElementwise,
		func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = src[plan.DataOffset(i, tensor.WrapIndex(int(idx[i]), dim))]
			}
		})
}

// ScatterElements writes updates into a copy of data at the positions
// indices address along axis (the inverse of GatherElements).
//
// With ScatterNone, duplicate indices leave one of the colliding updates,
// unspecified which. ScatterAdd and ScatterMul combine every update with the
// existing value; those tasks run as a single batch, so colliding updates
// never race.
func (cpu *CPUBackend) ScatterElements(data, indices, updates *tensor.Tensor, axis int, mode tensor.ScatterMode) (*tensor.Tensor, error) {
	const name = "scatterelements"
	if err := checkOperands(name, data, indices, updates); err != nil {
		return nil, err
	}
	if err := requireIndex(name, indices); err != nil {
		return nil, err
	}
	if _, err := sameCompute(name, data, updates); err != nil {
		return nil, err
	}
	if !updates.Shape().Equal(indices.Shape()) {
		return nil, &tensor.ShapeError{Op: name, Err: tensor.ErrShapeMismatch,
			Shapes: []tensor.Shape{indices.Shape(), updates.Shape()}, Detail: "updates must match indices"}
	}
	if mode < tensor.ScatterNone || mode > tensor.ScatterMul {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "%s: unknown reduction %d", name, mode)
	}
	plan, err := tensor.PrepareElements(name, data.Shape(), indices.Shape(), axis)
	if err != nil {
		return nil, err
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	db, err := c.input(data)
	if err != nil {
		return nil, err
	}
	ib, err := c.input(indices)
	if err != nil {
		return nil, err
	}
	ub, err := c.input(updates)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(data.Shape(), db.DType())
	if err != nil {
		return nil, err
	}

	switch db.DType() {
	case tensor.Float32:
		err = scatterElements[float32](c, plan, mode, db, ib, ub, ob)
	default:
		err = scatterElements[int32](c, plan, mode, db, ib, ub, ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// scatterElements schedules the copy of data and then the scatter. Both
// tasks write out, so the scatter is ordered after the copy.
func scatterElements[T tensor.Numeric](c *call, plan *tensor.ElementsPlan, mode tensor.ScatterMode,
	data, indices, updates, out *pin.Binding,
) error {
	src := tensor.View[T](data.Bytes())
	idx := tensor.View[int32](indices.Bytes())
	upd := tensor.View[T](updates.Bytes())
	dst := tensor.View[T](out.Bytes())

	err := c.launch(c.op+"/copy", bufs(data), bufs(out), out.Capacity(), parallel.BatchElementwise*16,
		func(start, end int) {
			copy(dst[start:end], src[start:end])
		})
	if err != nil {
		return err
	}

	// Add and Mul run as one batch so duplicate indices combine in order.
	batch := parallel.BatchSerial
	var combine func(old, u T) T
	switch mode {
	case tensor.ScatterAdd:
		combine = func(old, u T) T { return old + u }
	case tensor.ScatterMul:
		combine = func(old, u T) T { return old * u }
	default:
		batch = parallel.BatchElementwise
		combine = func(_, u T) T { return u }
	}

	dim := plan.Data[plan.Axis]
	return c.launch(c.op, bufs(indices, updates), bufs(out), updates.Capacity(), batch,
		func(start, end int) {
			for i := start; i < end; i++ {
				at := plan.DataOffset(i, tensor.WrapIndex(int(idx[i]), dim))
				dst[at] = combine(dst[at], upd[i])
			}
		})
}
