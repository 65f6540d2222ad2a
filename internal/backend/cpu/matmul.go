package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/gemm"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// MatMul computes the matrix product of a and b with NumPy matmul semantics.
//
// Rank-1 operands are promoted to a row (a) or column (b) vector and the
// added axis is dropped from the result. Leading batch dimensions broadcast.
//
// Example:
//
//	a: [2, 1, 3, 4], b: [5, 4, 6] -> out: [2, 5, 3, 6]
func (cpu *CPUBackend) MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	const name = "matmul"
	if err := checkOperands(name, a, b); err != nil {
		return nil, err
	}
	if _, err := sameCompute(name, a, b); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareMatMul(a.Shape(), b.Shape(), false, false)
	if err != nil {
		return nil, err
	}

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
	out, ob, err := c.output(plan.Out, ba.DType())
	if err != nil {
		return nil, err
	}

	if err := c.product(name, plan, ba, bb, ob, false); err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// Gemm computes op(a)·op(b) + c for rank-2 a and b. c is optional and
// broadcasts to the [M, N] result.
//
// The result is first filled with c, then the product is accumulated on top
// of it, so the bias costs one copy rather than a second elementwise pass.
func (cpu *CPUBackend) Gemm(a, b, bias *tensor.Tensor, transA, transB bool) (*tensor.Tensor, error) {
	const name = "gemm"
	if err := checkOperands(name, a, b); err != nil {
		return nil, err
	}
	if a.Shape().Rank() != 2 || b.Shape().Rank() != 2 {
		return nil, &tensor.ShapeError{Op: name, Err: tensor.ErrShapeMismatch,
			Shapes: []tensor.Shape{a.Shape(), b.Shape()}, Detail: "operands must be rank 2"}
	}
	operands := []*tensor.Tensor{a, b}
	if bias != nil {
		operands = append(operands, bias)
	}
	if _, err := sameCompute(name, operands...); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareMatMul(a.Shape(), b.Shape(), transA, transB)
	if err != nil {
		return nil, err
	}
	var fill *tensor.StridedView
	if bias != nil {
		if fill, err = tensor.PrepareExpand(bias.Shape(), plan.Out); err != nil || !fill.Out.Equal(plan.Out) {
			return nil, &tensor.ShapeError{Op: name, Err: tensor.ErrShapeMismatch,
				Shapes: []tensor.Shape{bias.Shape(), plan.Out}, Detail: "c does not broadcast to the result"}
		}
	}

	return cpu.biasedProduct(name, plan, a, b, bias, fill)
}

// Dense computes x·w + bias, the fully connected layer.
//
// Parameters:
//   - x: [..., K]; the leading dimensions are flattened into the row count
//   - w: [K, N]
//   - bias: [N] or nil
//
// Example:
//
//	x: [2, 3, 4], w: [4, 5], bias: [5] -> out: [2, 3, 5]
func (cpu *CPUBackend) Dense(x, w, bias *tensor.Tensor) (*tensor.Tensor, error) {
	const name = "dense"
	if err := checkOperands(name, x, w); err != nil {
		return nil, err
	}
	xs, ws := x.Shape(), w.Shape()
	if xs.Rank() < 1 || ws.Rank() != 2 || xs[xs.Rank()-1] != ws[0] {
		return nil, &tensor.ShapeError{Op: name, Err: tensor.ErrShapeMismatch,
			Shapes: []tensor.Shape{xs, ws}, Detail: "expected x [..., K] and w [K, N]"}
	}
	operands := []*tensor.Tensor{x, w}
	if bias != nil {
		if bs := bias.Shape(); bs.Rank() != 1 || bs[0] != ws[1] {
			return nil, &tensor.ShapeError{Op: name, Err: tensor.ErrShapeMismatch,
				Shapes: []tensor.Shape{ws, bs}, Detail: "bias must be [N]"}
		}
		operands = append(operands, bias)
	}
	if _, err := sameCompute(name, operands...); err != nil {
		return nil, err
	}

	k := ws[0]
	rows := 1
	for _, d := range xs[:xs.Rank()-1] {
		rows *= d
	}
	plan, err := tensor.PrepareMatMul(tensor.Shape{rows, k}, ws, false, false)
	if err != nil {
		return nil, err
	}
	outShape := append(xs[:xs.Rank()-1].Clone(), ws[1])
	var fill *tensor.StridedView
	if bias != nil {
		if fill, err = tensor.PrepareExpand(bias.Shape(), plan.Out); err != nil {
			return nil, errors.Wrap(err, name)
		}
	}

	out, err := cpu.biasedProduct(name, plan, x, w, bias, fill)
	if err != nil {
		return nil, err
	}
	// The product is laid out row-major as [rows, N], which is outShape.
	if err := out.Reshape(outShape); err != nil {
		out.Release()
		return nil, errors.Wrap(err, name)
	}
	return out, nil
}

// biasedProduct schedules out = fill(bias) followed by out += a·b. Without a
// bias the product overwrites out.
func (cpu *CPUBackend) biasedProduct(name string, plan *tensor.MatMulPlan, a, b, bias *tensor.Tensor, fill *tensor.StridedView) (*tensor.Tensor, error) {
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
	out, ob, err := c.output(plan.Out, ba.DType())
	if err != nil {
		return nil, err
	}

	if bias != nil {
		bc, err := c.input(bias)
		if err != nil {
			return nil, c.fail(err)
		}
		if ba.DType() == tensor.Float32 {
			err = stridedCopy[float32](c, name+"/bias", fill, bc.Buffer(), bc.Bytes(), ob)
		} else {
			err = stridedCopy[int32](c, name+"/bias", fill, bc.Buffer(), bc.Bytes(), ob)
		}
		if err != nil {
			return nil, c.fail(err)
		}
	}

	if err := c.product(name, plan, ba, bb, ob, bias != nil); err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// product schedules the batched product described by plan through the
// engine's gemm plugin.
func (c *call) product(name string, plan *tensor.MatMulPlan, a, b, out *pin.Binding, accumulate bool) error {
	lda, ldb, ldc := plan.LeadingDims()
	job := gemm.Job{
		Name: name,
		A:    a.Buffer(),
		B:    b.Buffer(),
		C:    out.Buffer(),
		Params: gemm.Params{
			M: plan.M, N: plan.N, K: plan.K,
			LDA: lda, LDB: ldb, LDC: ldc,
			TransA: plan.TransA, TransB: plan.TransB,
			Accumulate: accumulate,
		},
		Batch: plan.Batch,
		Offsets: func(i int) (int, int, int) {
			oa, ob, oc := plan.Offsets(i)
			return oa + a.Offset(), ob + b.Offset(), oc + out.Offset()
		},
	}

	var err error
	if a.DType() == tensor.Float32 {
		_, err = gemm.Schedule[float32](c.cpu.e.Sched, c.cpu.e.Gemm, job)
	} else {
		_, err = gemm.Schedule[int32](c.cpu.e.Sched, c.cpu.e.Gemm, job)
	}
	if err != nil {
		return errors.Wrap(err, c.op)
	}
	return nil
}
