// Package cpu implements the batched kernel library.
//
// Every operator validates its operands and computes its iteration plan
// synchronously, pins its inputs to arena buffers, allocates its output and
// schedules one or more tasks. The returned tensor is valid once the tasks
// writing it have finished; reading it back on the host waits for them.
package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/engine"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Verify that CPUBackend implements TensorBackend.
var _ tensor.TensorBackend = (*CPUBackend)(nil)

// CPUBackend schedules kernels on an engine's worker pool.
type CPUBackend struct {
	e *engine.Context
}

// New creates a CPU backend on e.
func New(e *engine.Context) *CPUBackend {
	return &CPUBackend{e: e}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Engine returns the engine the backend schedules on.
func (cpu *CPUBackend) Engine() *engine.Context {
	return cpu.e
}

// call collects the bindings and tasks of one operator call. On failure,
// the outputs it allocated are released again.
type call struct {
	cpu     *CPUBackend
	op      string
	outputs []*tensor.Tensor
}

func (cpu *CPUBackend) begin(op string) (*call, error) {
	if err := cpu.e.Check(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return &call{cpu: cpu, op: op}, nil
}

// input pins x, keeping its contents.
func (c *call) input(x *tensor.Tensor) (*pin.Binding, error) {
	if x == nil {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "%s: nil operand", c.op)
	}
	b, err := c.cpu.e.Pinner.Pin(x, true)
	if err != nil {
		return nil, errors.Wrap(err, c.op)
	}
	return b, nil
}

// output allocates an output tensor the call's tasks fill completely.
func (c *call) output(shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, *pin.Binding, error) {
	t, b, err := c.cpu.e.Pinner.Output(shape, dtype)
	if err != nil {
		return nil, nil, errors.Wrap(err, c.op)
	}
	c.outputs = append(c.outputs, t)
	return t, b, nil
}

// fail releases the call's outputs and returns err.
func (c *call) fail(err error) error {
	for _, t := range c.outputs {
		t.Release()
	}
	c.outputs = nil
	return err
}

// launch schedules a task reading reads and writing writes.
func (c *call) launch(name string, reads, writes []*arena.Buffer, count, batch int, body func(start, end int)) error {
	_, err := c.cpu.e.Sched.Schedule(parallel.Job{
		Name:      name,
		Reads:     reads,
		Writes:    writes,
		Count:     count,
		BatchSize: batch,
		Body:      body,
	})
	if err != nil {
		return errors.Wrap(err, c.op)
	}
	return nil
}

// bufs returns the buffers of bindings.
func bufs(bs ...*pin.Binding) []*arena.Buffer {
	out := make([]*arena.Buffer, len(bs))
	for i, b := range bs {
		out[i] = b.Buffer()
	}
	return out
}

// rowBatch returns a batch size giving each batch about BatchElementwise
// elements when every index covers rowLen elements.
func rowBatch(rowLen int) int {
	return max(1, parallel.BatchElementwise/max(rowLen, 1))
}

// sameCompute checks that operands share a compute type and returns it.
func sameCompute(op string, xs ...*tensor.Tensor) (tensor.DataType, error) {
	dt := xs[0].DType().ComputeType()
	for _, x := range xs[1:] {
		if x.DType().ComputeType() != dt {
			return 0, errors.Wrapf(tensor.ErrUnsupportedDType, "%s: operand types %s and %s differ",
				op, xs[0].DType(), x.DType())
		}
	}
	return dt, nil
}

// requireFloat rejects integer operands for float-only operators.
func requireFloat(op string, x *tensor.Tensor) error {
	if x.DType().ComputeType() != tensor.Float32 {
		return errors.Wrapf(tensor.ErrUnsupportedDType, "%s: requires floating point, got %s", op, x.DType())
	}
	return nil
}

// requireIndex rejects non-integer index tensors.
func requireIndex(op string, idx *tensor.Tensor) error {
	if idx.DType().IsFloat() {
		return errors.Wrapf(tensor.ErrUnsupportedDType, "%s: indices must be integers, got %s", op, idx.DType())
	}
	return nil
}

func checkOperands(op string, xs ...*tensor.Tensor) error {
	for _, x := range xs {
		if x == nil {
			return errors.Wrapf(tensor.ErrInvalidArgument, "%s: nil operand", op)
		}
	}
	return nil
}
