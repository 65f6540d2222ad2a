package tensor

import (
	"fmt"
	"slices"
)

// ReducePass is one contiguous reduction over a row-major view of shape
// [Outer, Reduce, Inner]: out[o, i] = reduce_r in[o, r, i].
type ReducePass struct {
	Outer  int
	Reduce int
	Inner  int
	In     Shape // Input shape of this pass
	Out    Shape // Output shape of this pass, reduced axes kept as 1
}

// ReducePlan is a multi-axis reduction decomposed into the minimum number of
// single-pass contiguous reductions. Every pass after the first reads the
// previous pass's output.
type ReducePlan struct {
	In     Shape
	Axes   []int // Normalized, sorted, unique reduced axes
	Passes []ReducePass
	Out    Shape // Final output shape (reduced axes dropped unless keepDims)
	Count  int   // Number of input elements folded into each output element
}

// PrepareReduce validates a reduction over axes of shape and fuses adjacent
// reduced axes.
//
// Axes are visited in ascending order. While the next axis is adjacent to the
// current block (only size-1 axes in between), it joins the block: the pass's
// reduce length grows and its inner length shrinks by the same factor. When
// adjacency breaks, the block becomes one pass and a new block starts.
// An empty axes list reduces every axis in a single pass with Inner == 1.
//
// Example: [2,3,4] over [0,1] is one pass {Outer:1, Reduce:6, Inner:4};
// over [0,2] it is two passes, {1,2,12} then {3,4,1}.
func PrepareReduce(shape Shape, axes []int, keepDims bool) (*ReducePlan, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	rank := len(shape)

	norm := make([]int, 0, max(len(axes), rank))
	if len(axes) == 0 {
		for a := 0; a < rank; a++ {
			norm = append(norm, a)
		}
	} else {
		for _, axis := range axes {
			a, err := normalizeAxis(axis, rank)
			if err != nil {
				return nil, fmt.Errorf("reduce: %w", err)
			}
			norm = append(norm, a)
		}
		slices.Sort(norm)
		norm = slices.Compact(norm)
	}

	for _, a := range norm {
		if shape[a] == 0 {
			return nil, shapeErr("reduce", ErrDegenerateReduction,
				fmt.Sprintf("axis %d has length 0", a), shape)
		}
	}

	plan := &ReducePlan{In: shape.Clone(), Axes: norm, Count: 1}
	for _, a := range norm {
		plan.Count *= shape[a]
	}

	if len(norm) == 0 {
		// Rank 0: a single element folds into itself.
		plan.Passes = []ReducePass{{Outer: 1, Reduce: 1, Inner: 1, In: Shape{}, Out: Shape{}}}
		plan.Out = Shape{}
		return plan, nil
	}

	cur := shape.Clone()
	flush := func(start, end int) {
		out := cur.Clone()
		for a := start; a <= end; a++ {
			out[a] = 1
		}
		plan.Passes = append(plan.Passes, ReducePass{
			Outer:  cur.Length(0, start),
			Reduce: cur.Length(start, end+1),
			Inner:  cur.Length(end+1, rank),
			In:     cur,
			Out:    out,
		})
		cur = out
	}

	start, end := norm[0], norm[0]
	for _, a := range norm[1:] {
		if cur.Length(end+1, a) == 1 {
			end = a
			continue
		}
		flush(start, end)
		start, end = a, a
	}
	flush(start, end)

	if keepDims {
		plan.Out = cur.Clone()
	} else {
		plan.Out = make(Shape, 0, rank-len(norm))
		for a, d := range shape {
			if !slices.Contains(norm, a) {
				plan.Out = append(plan.Out, d)
			}
		}
	}
	return plan, nil
}

// AxisLayout splits shape around a single axis into [outer, dim, inner].
func AxisLayout(shape Shape, axis int) (outer, dim, inner int) {
	return shape.Length(0, axis), shape[axis], shape.Length(axis+1, len(shape))
}
