package tensor

import (
	"fmt"
	"slices"
)

// StridedView addresses an input buffer through arbitrary per-axis strides,
// iterated in row-major order of Out. Transpose, Expand and Slice are all
// views; their kernels are the same strided copy.
type StridedView struct {
	Out        Shape
	OutStrides []int
	Strides    []int // Input element step per output axis (0 on broadcast axes)
	Base       int   // Input offset of output element 0
}

func newStridedView(out Shape, strides []int, base int) *StridedView {
	return &StridedView{Out: out, OutStrides: out.ComputeStrides(), Strides: strides, Base: base}
}

// Offset returns the input element offset of flat output index flat.
func (v *StridedView) Offset(flat int) int {
	offset := v.Base
	for a := range v.Out {
		offset += ((flat / v.OutStrides[a]) % v.Out[a]) * v.Strides[a]
	}
	return offset
}

// RowOffset returns the input offset of the first element of output row row,
// where a row is a run along the innermost axis.
func (v *StridedView) RowOffset(row int) int {
	rank := len(v.Out)
	offset := v.Base
	for a := rank - 2; a >= 0; a-- {
		offset += (row % v.Out[a]) * v.Strides[a]
		row /= v.Out[a]
	}
	return offset
}

// InnerContiguous reports whether the innermost output axis steps through the
// input one element at a time, so each output row is a single block copy.
func (v *StridedView) InnerContiguous() bool {
	return len(v.Out) > 0 && v.Strides[len(v.Out)-1] == 1
}

// InnerLength returns the length of the innermost output axis (1 for scalars).
func (v *StridedView) InnerLength() int {
	if len(v.Out) == 0 {
		return 1
	}
	return v.Out[len(v.Out)-1]
}

// PrepareTranspose computes the strided view of x permuted by perm.
// An empty perm reverses the axes.
func PrepareTranspose(in Shape, perm []int) (*StridedView, error) {
	rank := len(in)
	if len(perm) == 0 {
		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}
	if len(perm) != rank {
		return nil, argErr("transpose", "perm length %d != rank %d", len(perm), rank)
	}

	seen := make([]bool, rank)
	inStrides := in.ComputeStrides()
	out := make(Shape, rank)
	strides := make([]int, rank)
	for i, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, argErr("transpose", "invalid permutation %v", perm)
		}
		seen[p] = true
		out[i] = in[p]
		strides[i] = inStrides[p]
	}
	return newStridedView(out, strides, 0), nil
}

// PrepareExpand computes the view broadcasting in to target.
func PrepareExpand(in, target Shape) (*StridedView, error) {
	out, _, err := BroadcastShapes(in, target)
	if err != nil {
		return nil, err
	}
	return newStridedView(out, broadcastStrides(in, out), 0), nil
}

// SlicePlan is the precomputed addressing of a strided slice.
// StridedStart and StridedSteps fold the per-axis start and step into input
// element offsets so the kernel never recomputes them per element.
type SlicePlan struct {
	*StridedView
	In     Shape
	Starts []int // Clamped start per axis
	Steps  []int // Step per axis
}

// StridedStart is the input offset of the first output element.
func (p *SlicePlan) StridedStart() int { return p.Base }

// StridedSteps is the input offset delta per output step on each axis.
func (p *SlicePlan) StridedSteps() []int { return p.Strides }

// PrepareSlice implements ONNX Slice semantics: negative starts/ends count
// from the end, values are clamped to the axis, and negative steps walk
// backwards. axes and steps may be nil (all axes, step 1).
func PrepareSlice(in Shape, starts, ends, axes, steps []int) (*SlicePlan, error) {
	rank := len(in)
	if len(starts) != len(ends) {
		return nil, argErr("slice", "starts and ends differ in length: %d vs %d", len(starts), len(ends))
	}
	if axes == nil {
		if len(starts) > rank {
			return nil, argErr("slice", "%d starts for rank %d", len(starts), rank)
		}
		axes = make([]int, len(starts))
		for i := range axes {
			axes[i] = i
		}
	}
	if len(axes) != len(starts) || (steps != nil && len(steps) != len(starts)) {
		return nil, argErr("slice", "axes/steps length must match starts")
	}

	plan := &SlicePlan{
		In:     in.Clone(),
		Starts: make([]int, rank),
		Steps:  make([]int, rank),
	}
	out := in.Clone()
	for a := range plan.Steps {
		plan.Steps[a] = 1
	}

	seen := make([]bool, rank)
	for i, axis := range axes {
		a, err := normalizeAxis(axis, rank)
		if err != nil {
			return nil, fmt.Errorf("slice: %w", err)
		}
		if seen[a] {
			return nil, argErr("slice", "axis %d repeated", a)
		}
		seen[a] = true

		step := 1
		if steps != nil {
			step = steps[i]
		}
		if step == 0 {
			return nil, argErr("slice", "step must not be 0 on axis %d", a)
		}
		start, n := sliceAxis(in[a], starts[i], ends[i], step)
		plan.Starts[a] = start
		plan.Steps[a] = step
		out[a] = n
	}

	inStrides := in.ComputeStrides()
	strides := make([]int, rank)
	base := 0
	for a := range in {
		base += plan.Starts[a] * inStrides[a]
		strides[a] = plan.Steps[a] * inStrides[a]
	}
	plan.StridedView = newStridedView(out, strides, base)
	return plan, nil
}

// sliceAxis clamps start/end on an axis of length dim and returns the
// effective start and output length.
func sliceAxis(dim, start, end, step int) (int, int) {
	if start < 0 {
		start += dim
	}
	if end < 0 {
		end += dim
	}
	if step > 0 {
		start = clamp(start, 0, dim)
		end = clamp(end, 0, dim)
		if end <= start {
			return start, 0
		}
		return start, (end - start + step - 1) / step
	}
	start = clamp(start, 0, dim-1)
	end = clamp(end, -1, dim-1)
	if start <= end {
		return max(start, 0), 0
	}
	return start, (start - end - step - 1) / -step
}

// PadMode selects how Pad fills elements outside the input.
type PadMode int

// Supported pad modes.
const (
	PadConstant PadMode = iota
	PadReflect
	PadEdge
	PadWrap
)

// String returns the ONNX name of the mode.
func (m PadMode) String() string {
	switch m {
	case PadConstant:
		return "constant"
	case PadReflect:
		return "reflect"
	case PadEdge:
		return "edge"
	case PadWrap:
		return "wrap"
	default:
		return "unknown"
	}
}

// PadPlan is the precomputed addressing of a Pad.
type PadPlan struct {
	In         Shape
	Out        Shape
	Begin      []int
	End        []int
	Mode       PadMode
	InStrides  []int
	OutStrides []int
}

// PreparePad validates ONNX-style pads ([begin..., end...], one pair per
// axis) and computes the output shape. Pads must be non-negative.
func PreparePad(in Shape, pads []int, mode PadMode) (*PadPlan, error) {
	rank := len(in)
	if len(pads) != 2*rank {
		return nil, argErr("pad", "expected %d pads for rank %d, got %d", 2*rank, rank, len(pads))
	}
	plan := &PadPlan{
		In:        in.Clone(),
		Out:       in.Clone(),
		Begin:     slices.Clone(pads[:rank]),
		End:       slices.Clone(pads[rank:]),
		Mode:      mode,
		InStrides: in.ComputeStrides(),
	}
	for a := 0; a < rank; a++ {
		b, e := plan.Begin[a], plan.End[a]
		if b < 0 || e < 0 {
			return nil, argErr("pad", "negative pad on axis %d", a)
		}
		if (b > 0 || e > 0) && mode != PadConstant && in[a] == 0 {
			return nil, shapeErr("pad", ErrShapeMismatch, fmt.Sprintf("cannot %s-pad empty axis %d", mode, a), in)
		}
		plan.Out[a] = in[a] + b + e
	}
	plan.OutStrides = plan.Out.ComputeStrides()
	return plan, nil
}

// MapCoord maps an output coordinate on axis a to an input coordinate.
// ok is false when the element takes the constant value.
func (p *PadPlan) MapCoord(a, c int) (int, bool) {
	dim := p.In[a]
	i := c - p.Begin[a]
	if i >= 0 && i < dim {
		return i, true
	}
	switch p.Mode {
	case PadEdge:
		return clamp(i, 0, dim-1), true
	case PadWrap:
		return ((i % dim) + dim) % dim, true
	case PadReflect:
		if dim == 1 {
			return 0, true
		}
		period := 2 * (dim - 1)
		i = ((i % period) + period) % period
		if i >= dim {
			i = period - i
		}
		return i, true
	default:
		return 0, false
	}
}

// InnerLength returns the innermost output axis length (1 for scalars).
func (p *PadPlan) InnerLength() int {
	if len(p.Out) == 0 {
		return 1
	}
	return p.Out[len(p.Out)-1]
}

// RowSource maps output row row (all axes but the innermost) to the input
// offset of the matching input row. ok is false when the row lies entirely in
// constant padding.
func (p *PadPlan) RowSource(row int) (int, bool) {
	rank := len(p.Out)
	offset := 0
	for a := rank - 2; a >= 0; a-- {
		c := row % p.Out[a]
		row /= p.Out[a]
		i, ok := p.MapCoord(a, c)
		if !ok {
			return 0, false
		}
		offset += i * p.InStrides[a]
	}
	return offset, true
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
