package tensor

// TensorBackend is the capability set every kernel library implements.
// Callers depend only on this interface, so a batched implementation and a
// trivial scalar reference implementation are interchangeable.
//
// Implementations:
//   - cpu: batched kernels scheduled on fenced arena buffers
//   - reference: synchronous scalar kernels on host storage, used as an oracle
//
// Every method validates its operands synchronously and returns an error
// before any work is started. Returned tensors are owned by the caller.
type TensorBackend interface {
	// Elementwise
	Unary(op UnaryOp, x *Tensor) (*Tensor, error)
	Binary(op BinaryOp, a, b *Tensor) (*Tensor, error)
	Where(cond, a, b *Tensor) (*Tensor, error)
	Cast(x *Tensor, dtype DataType) (*Tensor, error)

	// Reductions
	Reduce(op ReduceOp, x *Tensor, axes []int, keepDims bool) (*Tensor, error)
	ArgReduce(x *Tensor, axis int, keepDims, largest bool) (*Tensor, error)
	TopK(x *Tensor, k, axis int, largest, sorted bool) (values, indices *Tensor, err error)

	// Structural
	Reshape(x *Tensor, shape Shape) (*Tensor, error)
	Transpose(x *Tensor, perm []int) (*Tensor, error)
	Expand(x *Tensor, shape Shape) (*Tensor, error)
	Concat(xs []*Tensor, axis int) (*Tensor, error)
	Slice(x *Tensor, starts, ends, axes, steps []int) (*Tensor, error)
	Pad(x *Tensor, pads []int, mode PadMode, value float32) (*Tensor, error)

	// Indexing
	Gather(x, indices *Tensor, axis int) (*Tensor, error)
	GatherElements(x, indices *Tensor, axis int) (*Tensor, error)
	ScatterElements(data, indices, updates *Tensor, axis int, mode ScatterMode) (*Tensor, error)

	// Linear algebra
	MatMul(a, b *Tensor) (*Tensor, error)
	Gemm(a, b, c *Tensor, transA, transB bool) (*Tensor, error)
	Dense(x, w, bias *Tensor) (*Tensor, error)
	Conv(x, w, bias *Tensor, params ConvParams) (*Tensor, error)

	// Random
	RandomUniform(shape Shape, low, high float32, seed *float32) (*Tensor, error)
	RandomNormal(shape Shape, mean, scale float32, seed *float32) (*Tensor, error)

	// Metadata
	Name() string
}
