package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/gemm"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Conv computes a grouped 2-D convolution of x [N, C, H, W] with weights
// w [M, C/group, KH, KW] and an optional bias [M].
//
// The input is unfolded (im2col) into a pooled scratch buffer holding one
// [C/group*KH*KW, OH*OW] matrix per image and group, and the convolution
// becomes one batched gemm over those matrices. With a bias, the output is
// filled with it first and the gemm accumulates.
//
// Example:
//
//	x: [1, 3, 32, 32], w: [16, 3, 3, 3], pads [1, 1, 1, 1] -> out: [1, 16, 32, 32]
func (cpu *CPUBackend) Conv(x, w, bias *tensor.Tensor, params tensor.ConvParams) (*tensor.Tensor, error) {
	const name = "conv"
	if err := checkOperands(name, x, w); err != nil {
		return nil, err
	}
	operands := []*tensor.Tensor{x, w}
	var biasShape tensor.Shape
	if bias != nil {
		operands = append(operands, bias)
		biasShape = bias.Shape()
	}
	if _, err := sameCompute(name, operands...); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareConv(x.Shape(), w.Shape(), biasShape,
		params.Strides, params.Pads, params.Dilations, params.Group)
	if err != nil {
		return nil, err
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	bx, err := c.input(x)
	if err != nil {
		return nil, err
	}
	bw, err := c.input(w)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(plan.Out, bx.DType())
	if err != nil {
		return nil, err
	}
	if out.Count() == 0 {
		return out, nil
	}

	if bias != nil {
		bb, err := c.input(bias)
		if err != nil {
			return nil, c.fail(err)
		}
		// [M] viewed as [M, 1, 1] broadcasts over N, OH and OW.
		fill, err := tensor.PrepareExpand(tensor.Shape{plan.M, 1, 1}, plan.Out)
		if err != nil {
			return nil, c.fail(errors.Wrap(err, name))
		}
		if bx.DType() == tensor.Float32 {
			err = stridedCopy[float32](c, name+"/bias", fill, bb.Buffer(), bb.Bytes(), ob)
		} else {
			err = stridedCopy[int32](c, name+"/bias", fill, bb.Buffer(), bb.Bytes(), ob)
		}
		if err != nil {
			return nil, c.fail(err)
		}
	}

	scope := cpu.e.Pool.Scope()
	defer scope.Close()
	cols, err := scope.Alloc(plan.N*plan.Group*plan.ColRows()*plan.ColCols(), bx.DType().Size())
	if err != nil {
		return nil, c.fail(errors.Wrap(err, name))
	}

	if bx.DType() == tensor.Float32 {
		err = conv[float32](c, plan, bx, bw, ob, cols, bias != nil)
	} else {
		err = conv[int32](c, plan, bx, bw, ob, cols, bias != nil)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// conv schedules the im2col task and the batched product reading it.
func conv[T tensor.Numeric](c *call, plan *tensor.ConvPlan, x, w, out *pin.Binding, cols *arena.Buffer, accumulate bool) error {
	src := tensor.View[T](x.Bytes())
	dst := tensor.View[T](cols.Bytes())
	rows, width := plan.ColRows(), plan.ColCols()
	cg := plan.C / plan.Group
	kernel := plan.KH * plan.KW

	err := c.launch(c.op+"/im2col", bufs(x), []*arena.Buffer{cols}, plan.N*plan.Group*rows, rowBatch(width),
		func(start, end int) {
			for idx := start; idx < end; idx++ {
				i, r := idx/rows, idx%rows
				n, g := i/plan.Group, i%plan.Group
				ch := g*cg + r/kernel
				kh, kw := (r%kernel)/plan.KW, r%plan.KW
				plane := src[(n*plan.C+ch)*plan.H*plan.W:]
				row := dst[idx*width : (idx+1)*width]

				for oh := 0; oh < plan.OH; oh++ {
					ih := oh*plan.StrideH - plan.PadTop + kh*plan.DilationH
					line := row[oh*plan.OW : (oh+1)*plan.OW]
					if ih < 0 || ih >= plan.H {
						clear(line)
						continue
					}
					for ow := range line {
						iw := ow*plan.StrideW - plan.PadLeft + kw*plan.DilationW
						if iw < 0 || iw >= plan.W {
							line[ow] = 0
						} else {
							line[ow] = plane[ih*plan.W+iw]
						}
					}
				}
			}
		})
	if err != nil {
		return err
	}

	mg := plan.M / plan.Group
	plane := plan.OH * plan.OW
	_, err = gemm.Schedule[T](c.cpu.e.Sched, c.cpu.e.Gemm, gemm.Job{
		Name: c.op,
		A:    w.Buffer(),
		B:    cols,
		C:    out.Buffer(),
		Params: gemm.Params{
			M: mg, N: width, K: rows,
			LDA: rows, LDB: width, LDC: width,
			Accumulate: accumulate,
		},
		Batch: plan.N * plan.Group,
		Offsets: func(i int) (int, int, int) {
			n, g := i/plan.Group, i%plan.Group
			return w.Offset() + g*mg*rows,
				i * rows * width,
				out.Offset() + n*plan.M*plane + g*mg*plane
		},
	})
	if err != nil {
		return errors.Wrap(err, c.op)
	}
	return nil
}
