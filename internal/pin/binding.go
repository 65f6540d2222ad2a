// Package pin binds logical tensors to arena buffers.
//
// A tensor arrives holding some storage (a host array, another backend's
// representation, or nothing). Before a kernel touches it, the tensor is
// pinned: its elements are moved into an arena buffer in the kernel compute
// type and the tensor's storage is replaced by a Binding. Later kernels find
// the Binding and use it as is.
package pin

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Binding is a range of an arena buffer holding a tensor's elements. It
// implements tensor.Data.
type Binding struct {
	buf    *arena.Buffer
	offset int // In elements
	count  int
	dtype  tensor.DataType
}

// Buffer returns the underlying arena buffer.
func (b *Binding) Buffer() *arena.Buffer {
	return b.buf
}

// Offset returns the element offset of the binding in its buffer.
func (b *Binding) Offset() int {
	return b.offset
}

// DType returns the element type stored in the buffer.
func (b *Binding) DType() tensor.DataType {
	return b.dtype
}

// Capacity returns the number of elements in the binding.
func (b *Binding) Capacity() int {
	return b.count
}

// Bytes returns the binding's slice of the buffer.
// WARNING: only valid inside a task scheduled against the buffer, or after
// waiting on its fences.
func (b *Binding) Bytes() []byte {
	size := b.dtype.Size()
	return b.buf.Bytes()[b.offset*size : (b.offset+b.count)*size]
}

// ReadInto waits for the tasks writing the buffer, then copies count
// elements into dst converted to dtype. This is a host readback and blocks.
func (b *Binding) ReadInto(dst []byte, dtype tensor.DataType, count int) error {
	if err := b.buf.Check(); err != nil {
		return err
	}
	if count > b.count {
		return errors.Wrapf(tensor.ErrInvalidArgument, "read of %d elements from binding of %d", count, b.count)
	}
	b.buf.Fences().ReadPrerequisite().Wait()
	return tensor.Convert(dst, dtype, b.Bytes(), b.dtype, count)
}

// Release frees the buffer once every task using it has finished.
func (b *Binding) Release() {
	b.buf.Free()
}

// String describes the binding for logs.
func (b *Binding) String() string {
	return fmt.Sprintf("binding(%v+%d, %d %s)", b.buf, b.offset, b.count, b.dtype)
}
