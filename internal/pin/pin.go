package pin

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// Pinner creates bindings in one arena and schedules the copies re-pinning
// needs.
type Pinner struct {
	arena  *arena.Arena
	sched  *parallel.Scheduler
	logger *slog.Logger
}

// NewPinner creates a pinner.
func NewPinner(a *arena.Arena, s *parallel.Scheduler, logger *slog.Logger) *Pinner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pinner{arena: a, sched: s, logger: logger}
}

// Pin returns the binding holding t's elements.
//
// A binding that already holds t in its compute type is returned unchanged.
// Otherwise a buffer of t.Count() elements is allocated. With preserve set,
// the current contents are copied in first (converting storage types); a
// tensor with no storage reads as zeros. Without preserve the new buffer is
// left uninitialized and the caller must overwrite every element.
func (p *Pinner) Pin(t *tensor.Tensor, preserve bool) (*Binding, error) {
	if t.Released() {
		return nil, errors.Wrapf(arena.ErrUseAfterDispose, "pin %v", t)
	}
	compute := t.DType().ComputeType()
	count := t.Count()

	if old, ok := t.Data().(*Binding); ok {
		if err := old.buf.Check(); err != nil {
			return nil, errors.Wrapf(err, "pin %v", t)
		}
		if old.dtype == compute && old.count >= count {
			return old, nil
		}
		return p.repin(t, old, preserve)
	}

	buf, err := p.arena.Allocate(count, compute.Size(), preserve)
	if err != nil {
		return nil, errors.Wrapf(err, "pin %v", t)
	}
	b := &Binding{buf: buf, count: count, dtype: compute}

	if data := t.Data(); data != nil {
		if preserve {
			n := min(count, data.Capacity())
			if err := data.ReadInto(buf.Bytes(), compute, n); err != nil {
				buf.Free()
				return nil, errors.Wrapf(err, "pin %v: convert storage", t)
			}
		}
		data.Release()
	}

	t.SetData(b)
	t.SetDType(compute)
	return b, nil
}

// repin moves t into a fresh buffer with a scheduled copy. The copy is a
// write task on the new buffer, so later kernels order behind it.
func (p *Pinner) repin(t *tensor.Tensor, old *Binding, preserve bool) (*Binding, error) {
	compute := t.DType().ComputeType()
	count := t.Count()

	buf, err := p.arena.Allocate(count, compute.Size(), true)
	if err != nil {
		return nil, errors.Wrapf(err, "repin %v", t)
	}
	b := &Binding{buf: buf, count: count, dtype: compute}

	if preserve {
		n := min(count, old.count)
		src, dst := old.Bytes(), b.Bytes()
		srcType := old.dtype
		size := compute.Size()
		_, err := p.sched.Schedule(parallel.Job{
			Name:      "repin",
			Reads:     []*arena.Buffer{old.buf},
			Writes:    []*arena.Buffer{buf},
			Count:     n,
			BatchSize: parallel.BatchElementwise,
			Body: func(start, end int) {
				_ = tensor.Convert(dst[start*size:end*size], compute,
					src[start*srcType.Size():end*srcType.Size()], srcType, end-start)
			},
		})
		if err != nil {
			buf.Free()
			return nil, err
		}
	}
	p.logger.Debug("repin", "tensor", t, "from", old, "to", b)

	old.Release()
	t.SetData(b)
	t.SetDType(compute)
	return b, nil
}

// Output allocates an uninitialized tensor for a kernel to fill.
func (p *Pinner) Output(shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, *Binding, error) {
	if err := shape.Validate(); err != nil {
		return nil, nil, err
	}
	compute := dtype.ComputeType()
	buf, err := p.arena.Allocate(shape.NumElements(), compute.Size(), false)
	if err != nil {
		return nil, nil, err
	}
	b := &Binding{buf: buf, count: shape.NumElements(), dtype: compute}
	t, err := tensor.New(shape, compute, b)
	if err != nil {
		buf.Free()
		return nil, nil, err
	}
	return t, b, nil
}

// Download waits for t's pending writes and returns its elements as float32.
func Download(t *tensor.Tensor) ([]float32, error) {
	out := make([]float32, t.Count())
	if err := readAll(t, tensor.Float32, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadInt32 waits for t's pending writes and returns its elements as int32.
func DownloadInt32(t *tensor.Tensor) ([]int32, error) {
	out := make([]int32, t.Count())
	if err := readAll(t, tensor.Int32, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readAll[T tensor.Numeric](t *tensor.Tensor, dtype tensor.DataType, out []T) error {
	if t.Released() || t.Data() == nil {
		return errors.Wrapf(arena.ErrUseAfterDispose, "download %v", t)
	}
	if len(out) == 0 {
		return nil
	}
	return t.Data().ReadInto(tensor.BytesOf(out), dtype, len(out))
}
