// Package gemm multiplies matrices for the kernel library.
//
// A Plugin computes single-precision products on host slices. The gonum BLAS
// plugin is used when configured; the built-in blocked kernel covers every
// other case, including int32. Schedule turns a batched product into tasks.
package gemm

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/tensorexec/internal/tensor"
)

// Params describes C = op(A)·op(B) (or C += with Accumulate) for row-major
// matrices. op(A) is M×K and op(B) is K×N. With TransA, A is stored K×M; with
// TransB, B is stored N×K. LDA, LDB and LDC are the stored row strides.
type Params struct {
	M, N, K        int
	LDA, LDB, LDC  int
	TransA, TransB bool
	Accumulate     bool
}

// Plugin is a single-precision matrix multiply routine.
type Plugin interface {
	Name() string
	Sgemm(p Params, a, b, c []float32)
}

// BLAS is the gonum BLAS implementation.
type BLAS struct{}

// Name returns the plugin name.
func (BLAS) Name() string { return "gonum" }

// Sgemm computes the product with blas32.Gemm.
func (BLAS) Sgemm(p Params, a, b, c []float32) {
	if p.M == 0 || p.N == 0 {
		return
	}
	if p.K == 0 {
		if !p.Accumulate {
			zeroRows(c, p.M, p.N, p.LDC)
		}
		return
	}

	ta, tb := blas.NoTrans, blas.NoTrans
	ar, ac := p.M, p.K
	if p.TransA {
		ta, ar, ac = blas.Trans, p.K, p.M
	}
	br, bc := p.K, p.N
	if p.TransB {
		tb, br, bc = blas.Trans, p.N, p.K
	}
	beta := float32(0)
	if p.Accumulate {
		beta = 1
	}

	blas32.Gemm(ta, tb, 1,
		blas32.General{Rows: ar, Cols: ac, Stride: p.LDA, Data: a[:(ar-1)*p.LDA+ac]},
		blas32.General{Rows: br, Cols: bc, Stride: p.LDB, Data: b[:(br-1)*p.LDB+bc]},
		beta,
		blas32.General{Rows: p.M, Cols: p.N, Stride: p.LDC, Data: c[:(p.M-1)*p.LDC+p.N]},
	)
}

// Blocked is the built-in kernel.
type Blocked struct{}

// Name returns the plugin name.
func (Blocked) Name() string { return "blocked" }

// Sgemm computes the product with the blocked kernel.
func (Blocked) Sgemm(p Params, a, b, c []float32) {
	BlockedGemm(p, a, b, c)
}

const blockSize = 64

// BlockedGemm is a cache-blocked i-k-j product. The innermost loop runs along
// a row of C, and along a row of B unless B is transposed.
func BlockedGemm[T tensor.Numeric](p Params, a, b, c []T) {
	if !p.Accumulate {
		zeroRows(c, p.M, p.N, p.LDC)
	}

	for i0 := 0; i0 < p.M; i0 += blockSize {
		i1 := min(i0+blockSize, p.M)
		for k0 := 0; k0 < p.K; k0 += blockSize {
			k1 := min(k0+blockSize, p.K)
			for j0 := 0; j0 < p.N; j0 += blockSize {
				j1 := min(j0+blockSize, p.N)
				for i := i0; i < i1; i++ {
					crow := c[i*p.LDC : i*p.LDC+p.N]
					for k := k0; k < k1; k++ {
						var aik T
						if p.TransA {
							aik = a[k*p.LDA+i]
						} else {
							aik = a[i*p.LDA+k]
						}
						if p.TransB {
							for j := j0; j < j1; j++ {
								crow[j] += aik * b[j*p.LDB+k]
							}
						} else {
							brow := b[k*p.LDB : k*p.LDB+p.N]
							for j := j0; j < j1; j++ {
								crow[j] += aik * brow[j]
							}
						}
					}
				}
			}
		}
	}
}

func zeroRows[T tensor.Numeric](c []T, m, n, ldc int) {
	for i := 0; i < m; i++ {
		clear(c[i*ldc : i*ldc+n])
	}
}

// ByName returns the plugin registered under name, or nil for "" and "none".
func ByName(name string) (Plugin, bool) {
	switch name {
	case "", "none":
		return nil, true
	case "gonum", "blas":
		return BLAS{}, true
	case "blocked":
		return Blocked{}, true
	default:
		return nil, false
	}
}
