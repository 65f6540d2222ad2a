package tensor

import (
	"fmt"
)

// Data is the storage behind a logical tensor. Host arrays, arena bindings
// and other backends' representations all implement it; ReadInto is the
// storage-conversion hook used when a tensor is pinned to a new buffer.
type Data interface {
	// Capacity returns the number of elements the storage holds.
	Capacity() int

	// ReadInto waits for pending writes, then copies count elements into
	// dst converted to dtype.
	ReadInto(dst []byte, dtype DataType, count int) error

	// Release frees the storage. Pending work on it completes first.
	Release()
}

// Tensor is a logical tensor: a shape and dtype bound to the storage that
// currently holds its elements. The storage may be replaced when a kernel
// pins the tensor to an arena buffer.
type Tensor struct {
	shape    Shape
	dtype    DataType
	data     Data
	released bool
}

// New creates a tensor over existing storage.
func New(shape Shape, dtype DataType, data Data) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if data != nil && data.Capacity() < shape.NumElements() {
		return nil, fmt.Errorf("%w: storage holds %d elements, shape %v needs %d",
			ErrShapeMismatch, data.Capacity(), shape, shape.NumElements())
	}
	return &Tensor{shape: shape.Clone(), dtype: dtype, data: data}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Count returns the total number of elements.
func (t *Tensor) Count() int {
	return t.shape.NumElements()
}

// Data returns the tensor's current storage (may be nil).
func (t *Tensor) Data() Data {
	return t.data
}

// SetData replaces the tensor's storage without releasing the old one.
func (t *Tensor) SetData(d Data) {
	t.data = d
}

// SetDType changes the element type. Used when storage is converted on pin.
func (t *Tensor) SetDType(dt DataType) {
	t.dtype = dt
}

// Release releases the tensor's storage. The tensor must not be used
// afterwards; releasing twice is a no-op.
func (t *Tensor) Release() {
	if t.released {
		return
	}
	t.released = true
	if t.data != nil {
		t.data.Release()
	}
}

// Released reports whether Release was called.
func (t *Tensor) Released() bool {
	return t.released
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%v, %s)", t.shape, t.dtype)
}

// Reshape changes the shape of t in place. The element count must not
// change; the storage is reinterpreted in row-major order.
func (t *Tensor) Reshape(shape Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != t.shape.NumElements() {
		return fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.shape, shape)
	}
	t.shape = shape.Clone()
	return nil
}
