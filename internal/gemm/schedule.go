package gemm

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/fence"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// rowBlock is the number of C rows one batch computes.
const rowBlock = 32

// Job is a batched product over arena buffers. Matrix i of the batch starts
// at the element offsets returned by Offsets(i); nil Offsets means every
// matrix starts at 0.
type Job struct {
	Name    string
	A, B, C *arena.Buffer
	Params  Params
	Batch   int
	Offsets func(i int) (a, b, c int)
	After   *fence.Fence
}

// Schedule launches the product as one task and returns its fence. The task
// reads A and B and writes C; with Params.Accumulate it builds on whatever
// the previous writer of C left there. Float32 products go through plugin
// when it is non-nil, everything else through BlockedGemm.
func Schedule[T tensor.Numeric](s *parallel.Scheduler, plugin Plugin, job Job) (*fence.Fence, error) {
	p := job.Params
	if p.M < 0 || p.N < 0 || p.K < 0 || job.Batch < 0 {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "%s: negative gemm dimensions", job.Name)
	}

	a := tensor.View[T](job.A.Bytes())
	b := tensor.View[T](job.B.Bytes())
	c := tensor.View[T](job.C.Bytes())
	offsets := job.Offsets
	if offsets == nil {
		offsets = func(int) (int, int, int) { return 0, 0, 0 }
	}

	if fa, ok := any(a).([]float32); ok && plugin != nil {
		fb, fc := any(b).([]float32), any(c).([]float32)
		return schedule(s, job, func(i, r0, r1 int) {
			oa, ob, oc := offsets(i)
			sub, sa, sc := rows(p, r0, r1, oa, oc)
			plugin.Sgemm(sub, fa[sa:], fb[ob:], fc[sc:])
		})
	}

	return schedule(s, job, func(i, r0, r1 int) {
		oa, ob, oc := offsets(i)
		sub, sa, sc := rows(p, r0, r1, oa, oc)
		BlockedGemm(sub, a[sa:], b[ob:], c[sc:])
	})
}

// rows restricts p to C rows [r0, r1) and returns the adjusted parameters and
// the start offsets of the A and C sub-matrices.
func rows(p Params, r0, r1, offA, offC int) (Params, int, int) {
	sub := p
	sub.M = r1 - r0
	if p.TransA {
		offA += r0
	} else {
		offA += r0 * p.LDA
	}
	return sub, offA, offC + r0*p.LDC
}

func schedule(s *parallel.Scheduler, job Job, body func(i, r0, r1 int)) (*fence.Fence, error) {
	m := job.Params.M
	blocks := max((m+rowBlock-1)/rowBlock, 1)
	count := job.Batch * blocks
	if m == 0 || job.Params.N == 0 {
		count = 0
	}

	return s.Schedule(parallel.Job{
		Name:      job.Name,
		Reads:     []*arena.Buffer{job.A, job.B},
		Writes:    []*arena.Buffer{job.C},
		After:     job.After,
		Count:     count,
		BatchSize: parallel.BatchRow,
		Body: func(start, end int) {
			for idx := start; idx < end; idx++ {
				i, blk := idx/blocks, idx%blocks
				r0 := blk * rowBlock
				body(i, r0, min(r0+rowBlock, m))
			}
		},
	})
}
