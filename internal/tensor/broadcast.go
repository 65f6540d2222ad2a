package tensor

import "fmt"

// BroadcastPlan maps a flat output index onto each operand of a broadcasting
// operation. Operand strides are zero on broadcast axes, so kernels resolve
// every operand with the same loop and no branches:
//
//	offset = Σ ((flat / OutStrides[a]) % Out[a]) * Strides[op][a]
type BroadcastPlan struct {
	Out        Shape   // Broadcast output shape
	OutStrides []int   // Row-major strides of Out
	Strides    [][]int // Per operand strides, aligned with Out; 0 on broadcast axes
	identity   []bool  // Operand strides equal OutStrides (direct indexing)
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcasted shape, a flag indicating if broadcasting is needed, and an error if incompatible.
//
// Examples:
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(1, 5) + (3, 5) → (3, 5), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, Error
func BroadcastShapes(shapes ...Shape) (Shape, bool, error) {
	rank := 0
	for _, s := range shapes {
		rank = max(rank, len(s))
	}
	if rank > MaxRank {
		return nil, false, shapeErr("broadcast", ErrRankTooLarge, "", shapes...)
	}

	result := make(Shape, rank)
	for i := 0; i < rank; i++ {
		dim := 1
		for _, s := range shapes {
			d := 1
			if idx := len(s) - rank + i; idx >= 0 {
				d = s[idx]
			}
			switch {
			case d == dim, d == 1:
			case dim == 1:
				dim = d
			default:
				return nil, false, shapeErr("broadcast", ErrShapeMismatch,
					fmt.Sprintf("dimension %d: %d vs %d", i, dim, d), shapes...)
			}
		}
		result[i] = dim
	}

	needsBroadcast := false
	for _, s := range shapes {
		if !s.Equal(result) {
			needsBroadcast = true
		}
	}
	return result, needsBroadcast, nil
}

// PrepareBroadcast computes the output shape and per-operand strides of a
// broadcasting operation over the given operand shapes.
func PrepareBroadcast(shapes ...Shape) (*BroadcastPlan, error) {
	out, _, err := BroadcastShapes(shapes...)
	if err != nil {
		return nil, err
	}

	plan := &BroadcastPlan{
		Out:        out,
		OutStrides: out.ComputeStrides(),
		Strides:    make([][]int, len(shapes)),
		identity:   make([]bool, len(shapes)),
	}
	for op, s := range shapes {
		plan.Strides[op] = broadcastStrides(s, out)
		plan.identity[op] = s.Equal(out)
	}
	return plan, nil
}

// broadcastStrides computes strides for broadcasting a shape to outShape.
// Returns strides where dimensions of size 1 have stride 0 (for broadcasting).
func broadcastStrides(inShape, outShape Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	// Pad input shape with 1s on the left
	offset := outDim - len(inShape)
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		switch {
		case inIdx < 0:
			strides[i] = 0
		case inShape[inIdx] == 1 && outShape[i] != 1:
			strides[i] = 0
		default:
			strides[i] = origStrides[inIdx]
		}
	}
	return strides
}

// Operands returns the number of operands in the plan.
func (p *BroadcastPlan) Operands() int {
	return len(p.Strides)
}

// IsIdentity reports whether operand op is laid out exactly like the output,
// in which case the flat output index is also its offset.
func (p *BroadcastPlan) IsIdentity(op int) bool {
	return p.identity[op]
}

// Offset returns the element offset of operand op for flat output index flat.
func (p *BroadcastPlan) Offset(op, flat int) int {
	if p.identity[op] {
		return flat
	}
	strides := p.Strides[op]
	offset := 0
	for a := range p.Out {
		if strides[a] == 0 {
			continue
		}
		offset += ((flat / p.OutStrides[a]) % p.Out[a]) * strides[a]
	}
	return offset
}

// Merge returns an equivalent plan with fewer axes. Adjacent axes a, a+1 are
// merged when, for every operand, either both strides are zero or
// stride[a] == stride[a+1]*Out[a+1]. Size-1 output axes are dropped.
// Offsets computed on the merged plan equal those of the original plan.
func (p *BroadcastPlan) Merge() *BroadcastPlan {
	n := len(p.Strides)
	dims := make([]int, 0, len(p.Out))
	strides := make([][]int, n)
	for op := range strides {
		strides[op] = make([]int, 0, len(p.Out))
	}

	for a, d := range p.Out {
		if d == 1 {
			continue
		}
		last := len(dims) - 1
		if last >= 0 && p.canMerge(strides, last, a) {
			for op := range strides {
				strides[op][last] = p.Strides[op][a]
			}
			dims[last] *= d
			continue
		}
		dims = append(dims, d)
		for op := range strides {
			strides[op] = append(strides[op], p.Strides[op][a])
		}
	}

	out := Shape(dims)
	return &BroadcastPlan{
		Out:        out,
		OutStrides: out.ComputeStrides(),
		Strides:    strides,
		identity:   append([]bool(nil), p.identity...),
	}
}

// canMerge reports whether merged axis `last` (already collected into
// strides) can absorb original axis a.
func (p *BroadcastPlan) canMerge(strides [][]int, last, a int) bool {
	for op := range strides {
		prev := strides[op][last]
		cur := p.Strides[op][a]
		if prev == 0 && cur == 0 {
			continue
		}
		if prev != cur*p.Out[a] {
			return false
		}
	}
	return true
}
