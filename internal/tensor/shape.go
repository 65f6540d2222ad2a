package tensor

import "fmt"

// MaxRank is the largest rank a Shape may have. Iteration plans size their
// per-axis tables with it, so kernels never allocate per element.
const MaxRank = 8

// Shape represents the dimensions of a tensor.
// A dimension may be zero; such a tensor has no elements.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that the shape has at most MaxRank non-negative dimensions.
func (s Shape) Validate() error {
	if len(s) > MaxRank {
		return fmt.Errorf("%w: rank %d > %d", ErrRankTooLarge, len(s), MaxRank)
	}
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("%w: dimension %d is %d (must be >= 0)", ErrInvalidArgument, i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Length returns the product of dimensions in [start, end).
func (s Shape) Length(start, end int) int {
	n := 1
	for i := start; i < end; i++ {
		n *= s[i]
	}
	return n
}

// NormalizeAxis maps a possibly negative axis into [0, rank).
func (s Shape) NormalizeAxis(axis int) (int, error) {
	return normalizeAxis(axis, len(s))
}

// Unsqueezed returns the shape left-padded with ones up to rank.
func (s Shape) Unsqueezed(rank int) Shape {
	if len(s) >= rank {
		return s.Clone()
	}
	out := make(Shape, rank)
	pad := rank - len(s)
	for i := 0; i < pad; i++ {
		out[i] = 1
	}
	copy(out[pad:], s)
	return out
}

// String formats the shape as [d0, d1, ...].
func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}

func normalizeAxis(axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, fmt.Errorf("%w: axis %d out of range for rank %d", ErrInvalidArgument, axis, rank)
	}
	return axis, nil
}
