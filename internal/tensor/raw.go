package tensor

import (
	"fmt"
	"unsafe"
)

// HostData is host-resident tensor storage: a plain byte array holding count
// elements of dtype. It is the representation tensors arrive in from callers
// and the one reference kernels compute on.
type HostData struct {
	data  []byte
	dtype DataType
	count int
}

// NewHostData allocates zeroed host storage.
func NewHostData(dtype DataType, count int) *HostData {
	return &HostData{data: make([]byte, count*dtype.Size()), dtype: dtype, count: count}
}

// Capacity returns the number of elements.
func (h *HostData) Capacity() int {
	return h.count
}

// DType returns the element type.
func (h *HostData) DType() DataType {
	return h.dtype
}

// Bytes returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (h *HostData) Bytes() []byte {
	return h.data
}

// ReadInto copies count elements into dst, converting to dtype.
func (h *HostData) ReadInto(dst []byte, dtype DataType, count int) error {
	if count > h.count {
		return fmt.Errorf("%w: read of %d elements from storage of %d", ErrInvalidArgument, count, h.count)
	}
	return Convert(dst, dtype, h.data, h.dtype, count)
}

// Release drops the host array.
func (h *HostData) Release() {
	h.data = nil
	h.count = 0
}

// AsFloat32 interprets a byte slice as []float32.
func AsFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy views, length derived from len(b)
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// AsInt32 interprets a byte slice as []int32.
func AsInt32(b []byte) []int32 {
	if len(b) < 4 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy views, length derived from len(b)
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// AsUint16 interprets a byte slice as []uint16 (float16 bit patterns).
func AsUint16(b []byte) []uint16 {
	if len(b) < 2 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy views, length derived from len(b)
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// AsFloat64 interprets a byte slice as []float64.
func AsFloat64(b []byte) []float64 {
	if len(b) < 8 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy views, length derived from len(b)
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// AsInt64 interprets a byte slice as []int64.
func AsInt64(b []byte) []int64 {
	if len(b) < 8 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy views, length derived from len(b)
	return unsafe.Slice((*int64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// View interprets a byte slice as []T for a kernel element type.
func View[T Numeric](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy views, length derived from len(b)
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// FromSlice creates a host tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T DType](data []T, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d",
			ErrShapeMismatch, shape, shape.NumElements(), len(data))
	}
	var dummy T
	dtype := inferDataType(dummy)
	host := NewHostData(dtype, len(data))
	if len(data) > 0 {
		//nolint:gosec // byte view of the source slice for a single copy
		src := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*dtype.Size())
		copy(host.data, src)
	}
	return New(shape, dtype, host)
}

// FromFloat32 creates a float32 host tensor. It panics on a shape/data mismatch.
func FromFloat32(shape Shape, data []float32) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromInt32 creates an int32 host tensor. It panics on a shape/data mismatch.
func FromInt32(shape Shape, data []int32) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromFloat16 creates a host tensor stored as IEEE half precision.
// Kernels see it as float32 once it is pinned.
func FromFloat16(shape Shape, data []float32) (*Tensor, error) {
	host := NewHostData(Float16, len(data))
	if err := Convert(host.data, Float16, BytesOf(data), Float32, len(data)); err != nil {
		return nil, err
	}
	return New(shape, Float16, host)
}

// Zeros creates a zero-filled host tensor.
func Zeros(shape Shape, dtype DataType) (*Tensor, error) {
	return New(shape, dtype, NewHostData(dtype, shape.NumElements()))
}

// BytesOf returns the byte view of a kernel element slice.
func BytesOf[T Numeric](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // byte view for conversion
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(zero)))
}
