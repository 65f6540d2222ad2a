package reference

import (
	"github.com/pkg/errors"

	"github.com/born-ml/tensorexec/internal/tensor"
)

// matmul adds op(a)·op(b) into out for row-major 2-D matrices.
func matmul(a, b, out []float64, m, n, k int, transA, transB bool) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			s := 0.0
			for p := 0; p < k; p++ {
				av := a[i*k+p]
				if transA {
					av = a[p*m+i]
				}
				bv := b[p*n+j]
				if transB {
					bv = b[j*k+p]
				}
				s += av * bv
			}
			out[i*n+j] += s
		}
	}
}

// MatMul computes the broadcast batched matrix product.
func (r *Backend) MatMul(x, y *tensor.Tensor) (*tensor.Tensor, error) {
	arrays, err := loadAll("matmul", x, y)
	if err != nil {
		return nil, err
	}
	a, b := arrays[0], arrays[1]
	if err := sameType("matmul", a, b); err != nil {
		return nil, err
	}
	plan, err := tensor.PrepareMatMul(a.shape, b.shape, false, false)
	if err != nil {
		return nil, err
	}

	as, bs := a.shape, b.shape
	if len(as) == 1 {
		as = tensor.Shape{1, as[0]}
	}
	if len(bs) == 1 {
		bs = tensor.Shape{bs[0], 1}
	}
	aBatch, bBatch := as[:len(as)-2], bs[:len(bs)-2]
	batch, _, err := tensor.BroadcastShapes(aBatch, bBatch)
	if err != nil {
		return nil, errors.Wrap(err, "matmul")
	}

	m, n, k := plan.M, plan.N, plan.K
	out := newArray(plan.Out, a.dtype)
	for i := 0; i < batch.NumElements(); i++ {
		c := unravel(i, batch)
		ai, bi := broadcastIndex(c, aBatch), broadcastIndex(c, bBatch)
		matmul(a.data[ai*m*k:], b.data[bi*k*n:], out.data[i*m*n:], m, n, k, false, false)
	}
	return out.tensor()
}

// Gemm computes op(a)·op(b) + c for 2-D a and b.
func (r *Backend) Gemm(x, y, bias *tensor.Tensor, transA, transB bool) (*tensor.Tensor, error) {
	arrays, err := loadAll("gemm", x, y)
	if err != nil {
		return nil, err
	}
	a, b := arrays[0], arrays[1]
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return nil, errors.Wrap(tensor.ErrShapeMismatch, "gemm: operands must be rank 2")
	}
	plan, err := tensor.PrepareMatMul(a.shape, b.shape, transA, transB)
	if err != nil {
		return nil, err
	}
	out := newArray(plan.Out, a.dtype)
	if bias != nil {
		c, err := load("gemm", bias)
		if err != nil {
			return nil, err
		}
		if err := sameType("gemm", a, b, c); err != nil {
			return nil, err
		}
		shape, _, err := tensor.BroadcastShapes(c.shape, plan.Out)
		if err != nil || !shape.Equal(plan.Out) {
			return nil, errors.Wrap(tensor.ErrShapeMismatch, "gemm: c does not broadcast to the result")
		}
		for i := range out.data {
			out.data[i] = c.data[broadcastIndex(unravel(i, plan.Out), c.shape)]
		}
	} else if err := sameType("gemm", a, b); err != nil {
		return nil, err
	}
	matmul(a.data, b.data, out.data, plan.M, plan.N, plan.K, transA, transB)
	return out.tensor()
}

// Dense computes x·w + bias over the last axis of x.
func (r *Backend) Dense(x, w, bias *tensor.Tensor) (*tensor.Tensor, error) {
	arrays, err := loadAll("dense", x, w)
	if err != nil {
		return nil, err
	}
	a, b := arrays[0], arrays[1]
	if len(a.shape) < 1 || len(b.shape) != 2 || a.shape[len(a.shape)-1] != b.shape[0] {
		return nil, errors.Wrap(tensor.ErrShapeMismatch, "dense: expected x [..., K] and w [K, N]")
	}
	k, n := b.shape[0], b.shape[1]
	rows := a.shape[:len(a.shape)-1].NumElements()
	shape := append(a.shape[:len(a.shape)-1].Clone(), n)
	out := newArray(shape, a.dtype)

	if bias != nil {
		c, err := load("dense", bias)
		if err != nil {
			return nil, err
		}
		if len(c.shape) != 1 || c.shape[0] != n {
			return nil, errors.Wrap(tensor.ErrShapeMismatch, "dense: bias must be [N]")
		}
		if err := sameType("dense", a, b, c); err != nil {
			return nil, err
		}
		for i := range out.data {
			out.data[i] = c.data[i%n]
		}
	} else if err := sameType("dense", a, b); err != nil {
		return nil, err
	}
	matmul(a.data, b.data, out.data, rows, n, k, false, false)
	return out.tensor()
}

// Conv computes the direct grouped convolution.
func (r *Backend) Conv(x, w, bias *tensor.Tensor, params tensor.ConvParams) (*tensor.Tensor, error) {
	arrays, err := loadAll("conv", x, w)
	if err != nil {
		return nil, err
	}
	in, kernel := arrays[0], arrays[1]
	var b *array
	var biasShape tensor.Shape
	if bias != nil {
		if b, err = load("conv", bias); err != nil {
			return nil, err
		}
		biasShape = b.shape
		if err := sameType("conv", in, kernel, b); err != nil {
			return nil, err
		}
	} else if err := sameType("conv", in, kernel); err != nil {
		return nil, err
	}
	p, err := tensor.PrepareConv(in.shape, kernel.shape, biasShape,
		params.Strides, params.Pads, params.Dilations, params.Group)
	if err != nil {
		return nil, err
	}

	cg, mg := p.C/p.Group, p.M/p.Group
	out := newArray(p.Out, in.dtype)
	for n := 0; n < p.N; n++ {
		for m := 0; m < p.M; m++ {
			g := m / mg
			for oh := 0; oh < p.OH; oh++ {
				for ow := 0; ow < p.OW; ow++ {
					s := 0.0
					if b != nil {
						s = b.data[m]
					}
					for c := 0; c < cg; c++ {
						for kh := 0; kh < p.KH; kh++ {
							for kw := 0; kw < p.KW; kw++ {
								h := oh*p.StrideH - p.PadTop + kh*p.DilationH
								v := ow*p.StrideW - p.PadLeft + kw*p.DilationW
								if h < 0 || h >= p.H || v < 0 || v >= p.W {
									continue
								}
								xi := ((n*p.C+g*cg+c)*p.H+h)*p.W + v
								wi := ((m*cg+c)*p.KH+kh)*p.KW + kw
								s += in.data[xi] * kernel.data[wi]
							}
						}
					}
					out.data[((n*p.M+m)*p.OH+oh)*p.OW+ow] = s
				}
			}
		}
	}
	return out.tensor()
}
