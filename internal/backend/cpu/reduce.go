package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Reduce folds x over axes with op.
//
// Adjacent reduced axes are fused, so each pass is one contiguous reduction
// over an [outer, reduce, inner] view. Passes before the last write into
// pooled scratch buffers.
//
// Parameters:
//   - axes: reduced axes, negative values count from the end; empty reduces all
//   - keepDims: if true, reduced axes stay in the output with length 1
//
// Example:
//
//	x: [2, 3, 4], axes [0, 1] -> one pass {outer 1, reduce 6, inner 4}, out [4]
//	x: [2, 3, 4], axes [0, 2] -> two passes, out [3]
func (cpu *CPUBackend) Reduce(op tensor.ReduceOp, x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error) {
	name := op.String()
	if err := checkOperands(name, x); err != nil {
		return nil, err
	}
	if op.FloatOnly() {
		if err := requireFloat(name, x); err != nil {
			return nil, err
		}
	}
	plan, err := tensor.PrepareReduce(x.Shape(), axes, keepDims)
	if err != nil {
		return nil, errors.Wrap(err, name)
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

	scope := cpu.e.Pool.Scope()
	defer scope.Close()

	switch in.DType() {
	case tensor.Float32:
		err = reduce[float32](c, scope.Alloc, op, plan, in, ob)
	default:
		err = reduce[int32](c, scope.Alloc, op, plan, in, ob)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

// reduce schedules one task per pass. Each task reads the previous pass's
// buffer, so the fences chain the passes.
func reduce[T tensor.Numeric](c *call, alloc func(count, elemSize int) (*arena.Buffer, error),
	op tensor.ReduceOp, plan *tensor.ReducePlan, in, out *pin.Binding,
) error {
	srcBuf, src := in.Buffer(), tensor.View[T](in.Bytes())
	elemSize := in.DType().Size()
	n := len(plan.Passes)

	for i, pass := range plan.Passes {
		first, last := i == 0, i == n-1
		count := pass.Outer * pass.Inner

		dstBuf := out.Buffer()
		dst := tensor.View[T](out.Bytes())
		if !last {
			tmp, err := alloc(count, elemSize)
			if err != nil {
				return errors.Wrap(err, c.op)
			}
			dstBuf, dst = tmp, tensor.View[T](tmp.Bytes())
		}

		fold := passFold[T](op, pass, first, last, plan.Count)
		s, d := src, dst
		err := c.launch(c.op, []*arena.Buffer{srcBuf}, []*arena.Buffer{dstBuf}, count, rowBatch(pass.Reduce),
			func(start, end int) {
				for idx := start; idx < end; idx++ {
					o, j := idx/pass.Inner, idx%pass.Inner
					d[idx] = fold(s, o*pass.Reduce*pass.Inner+j, pass.Inner)
				}
			})
		if err != nil {
			return err
		}
		srcBuf, src = dstBuf, dst
	}
	return nil
}

// passFold returns the function folding pass.Reduce elements of src that
// start at base and are stride apart. The first pass applies the operator's
// element map (square, abs); the last applies its final map (mean, sqrt,
// log). Partial results are accumulated in float64.
func passFold[T tensor.Numeric](op tensor.ReduceOp, pass tensor.ReducePass, first, last bool, total int) func(src []T, base, stride int) T {
	length := pass.Reduce

	if op == tensor.ReduceLogSumExp {
		// Log-sum-exp of partial log-sum-exps equals the log-sum-exp of all
		// elements, so every pass applies it.
		return func(src []T, base, stride int) T {
			m := math.Inf(-1)
			for r := 0; r < length; r++ {
				m = max(m, float64(src[base+r*stride]))
			}
			if math.IsInf(m, -1) {
				return T(m)
			}
			var s float64
			for r := 0; r < length; r++ {
				s += math.Exp(float64(src[base+r*stride]) - m)
			}
			return T(m + math.Log(s))
		}
	}

	init, combine := foldOf(op)
	pre := func(v float64) float64 { return v }
	if first {
		switch op {
		case tensor.ReduceSumSquare, tensor.ReduceL2:
			pre = func(v float64) float64 { return v * v }
		case tensor.ReduceL1:
			pre = math.Abs
		}
	}
	post := func(v float64) float64 { return v }
	if last {
		switch op {
		case tensor.ReduceMean:
			post = func(v float64) float64 { return v / float64(total) }
		case tensor.ReduceL2:
			post = math.Sqrt
		case tensor.ReduceLogSum:
			post = math.Log
		}
	}

	return func(src []T, base, stride int) T {
		acc := init
		for r := 0; r < length; r++ {
			acc = combine(acc, pre(float64(src[base+r*stride])))
		}
		return T(post(acc))
	}
}

// foldOf returns the identity and combining function of op.
func foldOf(op tensor.ReduceOp) (float64, func(acc, v float64) float64) {
	switch op {
	case tensor.ReduceProd:
		return 1, func(acc, v float64) float64 { return acc * v }
	case tensor.ReduceMin:
		return math.Inf(1), func(acc, v float64) float64 { return min(acc, v) }
	case tensor.ReduceMax:
		return math.Inf(-1), func(acc, v float64) float64 { return max(acc, v) }
	default:
		return 0, func(acc, v float64) float64 { return acc + v }
	}
}

// ArgReduce returns the int32 index of the largest (or smallest) element
// along axis. Ties resolve to the first occurrence.
func (cpu *CPUBackend) ArgReduce(x *tensor.Tensor, axis int, keepDims, largest bool) (*tensor.Tensor, error) {
	name := "argmin"
	if largest {
		name = "argmax"
	}
	if err := checkOperands(name, x); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareReduce(x.Shape(), []int{axis}, keepDims)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	a := plan.Axes[0]
	outer, dim, inner := tensor.AxisLayout(x.Shape(), a)

	c, err := cpu.begin(name)
	if err != nil {
		return nil, err
	}
	in, err := c.input(x)
	if err != nil {
		return nil, err
	}
	out, ob, err := c.output(plan.Out, tensor.Int32)
	if err != nil {
		return nil, err
	}

	switch in.DType() {
	case tensor.Float32:
		err = argReduce[float32](c, in, ob, outer, dim, inner, largest)
	default:
		err = argReduce[int32](c, in, ob, outer, dim, inner, largest)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

func argReduce[T tensor.Numeric](c *call, in, out *pin.Binding, outer, dim, inner int, largest bool) error {
	src := tensor.View[T](in.Bytes())
	dst := tensor.View[int32](out.Bytes())
	return c.launch(c.op, bufs(in), bufs(out), outer*inner, rowBatch(dim),
		func(start, end int) {
			for idx := start; idx < end; idx++ {
				base := (idx/inner)*dim*inner + idx%inner
				best, at := src[base], 0
				for r := 1; r < dim; r++ {
					v := src[base+r*inner]
					if (largest && v > best) || (!largest && v < best) {
						best, at = v, r
					}
				}
				dst[idx] = int32(at)
			}
		})
}

// TopK returns the k largest (or smallest) elements along axis and their
// int32 indices. Results are always sorted, so sorted=false is accepted
// and ignored; with equal values the earlier index comes first.
//
// Example:
//
//	x: [5, 2, 7, 1, 9], k 3, largest -> values [9, 7, 5], indices [4, 2, 0]
func (cpu *CPUBackend) TopK(x *tensor.Tensor, k, axis int, largest, sorted bool) (values, indices *tensor.Tensor, err error) {
	const name = "topk"
	if err := checkOperands(name, x); err != nil {
		return nil, nil, err
	}
	plan, err := tensor.PrepareTopK(x.Shape(), k, axis)
	if err != nil {
		return nil, nil, err
	}

	c, err := cpu.begin(name)
	if err != nil {
		return nil, nil, err
	}
	in, err := c.input(x)
	if err != nil {
		return nil, nil, err
	}
	values, vb, err := c.output(plan.Out, in.DType())
	if err != nil {
		return nil, nil, err
	}
	indices, ib, err := c.output(plan.Out, tensor.Int32)
	if err != nil {
		return nil, nil, c.fail(err)
	}

	switch in.DType() {
	case tensor.Float32:
		err = topK[float32](c, plan, in, vb, ib, largest)
	default:
		err = topK[int32](c, plan, in, vb, ib, largest)
	}
	if err != nil {
		return nil, nil, c.fail(err)
	}
	return values, indices, nil
}

// topK keeps a k-bounded insertion-sorted list per group. An element that
// does not beat the current k-th entry is skipped without a search.
func topK[T tensor.Numeric](c *call, plan *tensor.TopKPlan, in, values, indices *pin.Binding, largest bool) error {
	src := tensor.View[T](in.Bytes())
	vals := tensor.View[T](values.Bytes())
	idxs := tensor.View[int32](indices.Bytes())
	k, dim, inner := plan.K, plan.Dim, plan.Inner
	if k == 0 {
		return nil
	}

	better := func(a, b T) bool { return a > b }
	if !largest {
		better = func(a, b T) bool { return a < b }
	}

	return c.launch(c.op, bufs(in), bufs(values, indices), plan.Outer*inner, rowBatch(dim),
		func(start, end int) {
			listV := make([]T, 0, k)
			listI := make([]int32, 0, k)
			for idx := start; idx < end; idx++ {
				o, j := idx/inner, idx%inner
				base := o*dim*inner + j
				listV, listI = listV[:0], listI[:0]

				for r := 0; r < dim; r++ {
					v := src[base+r*inner]
					n := len(listV)
					if n == k && !better(v, listV[n-1]) {
						continue
					}
					if n < k {
						listV = append(listV, v)
						listI = append(listI, int32(r))
					}
					p := len(listV) - 1
					for p > 0 && better(v, listV[p-1]) {
						listV[p], listI[p] = listV[p-1], listI[p-1]
						p--
					}
					listV[p], listI[p] = v, int32(r)
				}

				outBase := o*k*inner + j
				for r := 0; r < k; r++ {
					vals[outBase+r*inner] = listV[r]
					idxs[outBase+r*inner] = listI[r]
				}
			}
		})
}
