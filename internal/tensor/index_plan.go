package tensor

import "fmt"

// GatherPlan describes Gather along one axis: out[o, i, n] = x[o, idx[i], n].
type GatherPlan struct {
	Out     Shape
	Outer   int // Product of x dims before the axis
	AxisDim int // Length of the gathered axis
	Inner   int // Product of x dims after the axis
	Indices int // Number of index elements
}

// PrepareGather computes the output of gathering indices (any shape) from x
// along axis. Output shape is x[:axis] ++ indices ++ x[axis+1:].
func PrepareGather(x, indices Shape, axis int) (*GatherPlan, error) {
	a, err := normalizeAxis(axis, len(x))
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	out := make(Shape, 0, len(x)-1+len(indices))
	out = append(out, x[:a]...)
	out = append(out, indices...)
	out = append(out, x[a+1:]...)
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	outer, dim, inner := AxisLayout(x, a)
	if dim == 0 && indices.NumElements() > 0 {
		return nil, shapeErr("gather", ErrShapeMismatch, "gathering from an empty axis", x, indices)
	}
	return &GatherPlan{Out: out, Outer: outer, AxisDim: dim, Inner: inner, Indices: indices.NumElements()}, nil
}

// ElementsPlan describes GatherElements / ScatterElements, where the index
// tensor has the same rank as the data tensor and picks one coordinate on
// axis per element: data[c0, .., idx[c], .., cn].
type ElementsPlan struct {
	Data         Shape
	Index        Shape // Shape of indices (and of updates / output)
	Axis         int
	DataStrides  []int
	IndexStrides []int
}

// PrepareElements validates an element-wise index tensor against data.
// Every index dimension must be at most the data dimension.
func PrepareElements(op string, data, index Shape, axis int) (*ElementsPlan, error) {
	if len(data) != len(index) {
		return nil, shapeErr(op, ErrShapeMismatch, "indices must have the same rank as data", data, index)
	}
	a, err := normalizeAxis(axis, len(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range data {
		if i != a && index[i] > data[i] {
			return nil, shapeErr(op, ErrShapeMismatch, fmt.Sprintf("index dimension %d exceeds data", i), data, index)
		}
	}
	if data[a] == 0 && index.NumElements() > 0 {
		return nil, shapeErr(op, ErrShapeMismatch, "indexing an empty axis", data, index)
	}
	return &ElementsPlan{
		Data:         data.Clone(),
		Index:        index.Clone(),
		Axis:         a,
		DataStrides:  data.ComputeStrides(),
		IndexStrides: index.ComputeStrides(),
	}, nil
}

// DataOffset returns the data offset addressed by flat index position i,
// given the already wrapped index value along the axis.
func (p *ElementsPlan) DataOffset(i, axisIndex int) int {
	offset := 0
	for a := range p.Index {
		c := (i / p.IndexStrides[a]) % p.Index[a]
		if a == p.Axis {
			c = axisIndex
		}
		offset += c * p.DataStrides[a]
	}
	return offset
}

// WrapIndex applies Python-style wraparound to a negative index and clamps
// the result into [0, dim). Out-of-range indices are undefined by contract;
// clamping keeps them inside the buffer.
func WrapIndex(idx, dim int) int {
	if idx < 0 {
		idx += dim
	}
	return clamp(idx, 0, dim-1)
}

// TopKPlan describes TopK along one axis.
type TopKPlan struct {
	Out   Shape
	Outer int
	Dim   int
	Inner int
	K     int
	Axis  int
}

// PrepareTopK validates k against the axis and computes the output shape.
func PrepareTopK(x Shape, k, axis int) (*TopKPlan, error) {
	a, err := normalizeAxis(axis, len(x))
	if err != nil {
		return nil, fmt.Errorf("topk: %w", err)
	}
	if k < 0 || k > x[a] {
		return nil, argErr("topk", "k=%d out of range for axis of length %d", k, x[a])
	}
	out := x.Clone()
	out[a] = k
	outer, dim, inner := AxisLayout(x, a)
	return &TopKPlan{Out: out, Outer: outer, Dim: dim, Inner: inner, K: k, Axis: a}, nil
}

// ConcatPlan describes concatenation along one axis.
type ConcatPlan struct {
	Out     Shape
	Outer   int
	Inner   int   // Product of dims after the axis
	Lengths []int // Axis length of each input
}

// PrepareConcat validates that all shapes agree except on axis.
func PrepareConcat(shapes []Shape, axis int) (*ConcatPlan, error) {
	if len(shapes) == 0 {
		return nil, argErr("concat", "no inputs")
	}
	first := shapes[0]
	a, err := normalizeAxis(axis, len(first))
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	out := first.Clone()
	out[a] = 0
	plan := &ConcatPlan{Lengths: make([]int, len(shapes))}
	for i, s := range shapes {
		if len(s) != len(first) {
			return nil, shapeErr("concat", ErrShapeMismatch, "rank differs", shapes...)
		}
		for d := range s {
			if d != a && s[d] != first[d] {
				return nil, shapeErr("concat", ErrShapeMismatch, fmt.Sprintf("dimension %d differs", d), shapes...)
			}
		}
		plan.Lengths[i] = s[a]
		out[a] += s[a]
	}
	plan.Out = out
	plan.Outer = out.Length(0, a)
	plan.Inner = out.Length(a+1, len(out))
	return plan, nil
}
