package arena

import (
	"fmt"

	"github.com/born-ml/tensorexec/internal/fence"
)

// Buffer is a contiguous region of arena memory holding Count elements of
// ElemSize bytes, plus the fences of the tasks that use it.
//
// Free and Reserve wait for every task scheduled against the buffer, so a
// kernel may capture Bytes() when it schedules a task and use the slice from
// the task body.
type Buffer struct {
	id       uint64
	data     []byte
	count    int
	elemSize int
	fences   fence.Pair
	freed    bool
	arena    *Arena
}

// ID returns the buffer's arena-unique id.
func (b *Buffer) ID() uint64 {
	return b.id
}

// Bytes returns the buffer contents, Count()*ElemSize() bytes long.
// WARNING: Direct access to underlying memory. Only touch it from a task
// scheduled against this buffer, or after waiting on its fences.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.count*b.elemSize]
}

// Count returns the number of elements.
func (b *Buffer) Count() int {
	return b.count
}

// ElemSize returns the element size in bytes.
func (b *Buffer) ElemSize() int {
	return b.elemSize
}

// Resize changes the element count within the current slab, keeping the
// contents and the fences. It reports false if count does not fit.
func (b *Buffer) Resize(count int) bool {
	if count < 0 || count > b.Capacity() {
		return false
	}
	b.count = count
	return true
}

// Capacity returns the number of elements the backing slab can hold without
// reallocating.
func (b *Buffer) Capacity() int {
	if b.elemSize == 0 {
		return 0
	}
	return cap(b.data) / b.elemSize
}

// Fences returns the buffer's fence pair. Only the scheduling goroutine may
// update it.
func (b *Buffer) Fences() *fence.Pair {
	return &b.fences
}

// Freed reports whether the buffer has been returned to the arena.
func (b *Buffer) Freed() bool {
	return b.freed
}

// Check returns ErrUseAfterDispose if the buffer was freed.
func (b *Buffer) Check() error {
	if b == nil || b.freed {
		return ErrUseAfterDispose
	}
	return nil
}

// String describes the buffer for logs.
func (b *Buffer) String() string {
	return fmt.Sprintf("buffer(%d, %d x %dB)", b.id, b.count, b.elemSize)
}

// Free returns the buffer to its arena.
func (b *Buffer) Free() {
	b.arena.Free(b)
}
