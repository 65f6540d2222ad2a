package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Unary applies op to every element of x.
//
// Neg, Abs and Relu accept float32 and int32 operands; every other operator
// requires floating point.
func (cpu *CPUBackend) Unary(op tensor.UnaryOp, x *tensor.Tensor) (*tensor.Tensor, error) {
	name := op.String()
	if err := checkOperands(name, x); err != nil {
		return nil, err
	}
	if op.FloatOnly() {
		if err := requireFloat(name, x); err != nil {
			return nil, err
		}
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	in, err := c.input(x)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(x.Shape(), in.DType())
	if err != nil {
		return nil, err
	}

	switch in.DType() {
	case tensor.Float32:
		err = unary[float32](c, op, in, ob)
	default:
		err = unary[int32](c, op, in, ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

func unary[T tensor.Numeric](c *call, op tensor.UnaryOp, in, out *pin.Binding) error {
	src := tensor.View[T](in.Bytes())
	dst := tensor.View[T](out.Bytes())
	f := tensor.UnaryFunc[T](op)
	return c.launch(op.String(), bufs(in), bufs(out), out.Capacity(), parallel.BatchElementwise,
		func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = f(src[i])
			}
		})
}

// Binary applies op to a and b with NumPy-style broadcasting.
//
// Both operands must share a compute type. The output has the broadcast
// shape of the operands.
//
// Example:
//
//	a: [2, 1, 3], b: [1, 4, 3] -> out: [2, 4, 3]
func (cpu *CPUBackend) Binary(op tensor.BinaryOp, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	name := op.String()
	if err := checkOperands(name, a, b); err != nil {
		return nil, err
	}
	if _, err := sameCompute(name, a, b); err != nil {
		return nil, err
	}
	full, err := tensor.PrepareBroadcast(a.Shape(), b.Shape())
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	plan := full.Merge()

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	ba, err := c.input(a)
	if err != nil {
		return nil, err
	}
	bb, err := c.input(b)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(full.Out, ba.DType())
	if err != nil {
		return nil, err
	}
	if out.Count() == 0 {
		return out, nil
	}

	switch ba.DType() {
	case tensor.Float32:
		err = binary[float32](c, op, plan, ba, bb, ob)
	default:
		err = binary[int32](c, op, plan, ba, bb, ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

func binary[T tensor.Numeric](c *call, op tensor.BinaryOp, plan *tensor.BroadcastPlan, a, b, out *pin.Binding) error {
	av := tensor.View[T](a.Bytes())
	bv := tensor.View[T](b.Bytes())
	dst := tensor.View[T](out.Bytes())
	f := tensor.BinaryFunc[T](op)

	body := func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = f(av[plan.Offset(0, i)], bv[plan.Offset(1, i)])
		}
	}
	if plan.IsIdentity(0) && plan.IsIdentity(1) {
		body = func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = f(av[i], bv[i])
			}
		}
	}
	return c.launch(op.String(), bufs(a, b), bufs(out), out.Capacity(), parallel.BatchElementwise, body)
}

// Where selects a where cond is non-zero and b elsewhere. All three operands
// broadcast against each other; a and b must share a compute type.
func (cpu *CPUBackend) Where(cond, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	const name = "where"
	if err := checkOperands(name, cond, a, b); err != nil {
		return nil, err
	}
	if _, err := sameCompute(name, a, b); err != nil {
		return nil, err
	}
	full, err := tensor.PrepareBroadcast(cond.Shape(), a.Shape(), b.Shape())
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	plan := full.Merge()

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	bc, err := c.input(cond)
	if err != nil {
		return nil, err
	}
	ba, err := c.input(a)
	if err != nil {
		return nil, err
	}
	bb, err := c.input(b)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(full.Out, ba.DType())
	if err != nil {
		return nil, err
	}
	if out.Count() == 0 {
		return out, nil
	}

	switch ba.DType() {
	case tensor.Float32:
		err = where[float32](c, plan, bc, ba, bb, ob)
	default:
		err = where[int32](c, plan, bc, ba, bb, ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

func where[T tensor.Numeric](c *call, plan *tensor.BroadcastPlan, cond, a, b, out *pin.Binding) error {
	av := tensor.View[T](a.Bytes())
	bv := tensor.View[T](b.Bytes())
	dst := tensor.View[T](out.Bytes())

	var test func(i int) bool
	if cond.DType() == tensor.Float32 {
		cv := tensor.View[float32](cond.Bytes())
		test = func(i int) bool { return cv[i] != 0 }
	} else {
		cv := tensor.View[int32](cond.Bytes())
		test = func(i int) bool { return cv[i] != 0 }
	}

	return c.launch("where", bufs(cond, a, b), bufs(out), out.Capacity(), parallel.BatchElementwise,
		func(start, end int) {
			for i := start; i < end; i++ {
				if test(plan.Offset(0, i)) {
					dst[i] = av[plan.Offset(1, i)]
				} else {
					dst[i] = bv[plan.Offset(2, i)]
				}
			}
		})
}

// Cast converts x to dtype. The result is stored in dtype's compute type:
// floating point types become float32 and everything else int32. Floats
// convert to integers by truncation.
func (cpu *CPUBackend) Cast(x *tensor.Tensor, dtype tensor.DataType) (*tensor.Tensor, error) {
	const name = "cast"
	if err := checkOperands(name, x); err != nil {
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
	dst := dtype.ComputeType()
	out, ob, err := c.output(x.Shape(), dst)
	if err != nil {
		return nil, err
	}

	src, srcType := in.Bytes(), in.DType()
	dstBytes := ob.Bytes()
	srcSize, dstSize := srcType.Size(), dst.Size()
	err = c.launch(name, bufs(in), bufs(ob), ob.Capacity(), parallel.BatchElementwise,
		func(start, end int) {
			_ = tensor.Convert(dstBytes[start*dstSize:end*dstSize], dst,
				src[start*srcSize:end*srcSize], srcType, end-start)
		})
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}
