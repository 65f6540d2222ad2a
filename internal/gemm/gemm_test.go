package gemm

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensorexec/internal/arena"
	"github.com/born-ml/tensorexec/internal/parallel"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// naive computes op(A)·op(B) (+ C) element by element.
func naive(p Params, a, b, c []float32) []float32 {
	out := make([]float32, p.M*p.N)
	for i := 0; i < p.M; i++ {
		for j := 0; j < p.N; j++ {
			var sum float32
			if p.Accumulate {
				sum = c[i*p.LDC+j]
			}
			for k := 0; k < p.K; k++ {
				ai := i*p.LDA + k
				if p.TransA {
					ai = k*p.LDA + i
				}
				bi := k*p.LDB + j
				if p.TransB {
					bi = j*p.LDB + k
				}
				av, bv := a[ai], b[bi]
				sum += av * bv
			}
			out[i*p.N+j] = sum
		}
	}
	return out
}

func randomSlice(r *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(r.IntN(7) - 3)
	}
	return s
}

func params(m, n, k int, ta, tb, acc bool) Params {
	p := Params{M: m, N: n, K: k, LDA: k, LDB: n, LDC: n, TransA: ta, TransB: tb, Accumulate: acc}
	if ta {
		p.LDA = m
	}
	if tb {
		p.LDB = k
	}
	return p
}

func TestPlugins_MatchNaive(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	plugins := []Plugin{BLAS{}, Blocked{}}

	for _, dims := range [][3]int{{1, 1, 1}, {3, 5, 7}, {70, 65, 130}, {4, 4, 0}} {
		for _, ta := range []bool{false, true} {
			for _, tb := range []bool{false, true} {
				for _, acc := range []bool{false, true} {
					m, n, k := dims[0], dims[1], dims[2]
					p := params(m, n, k, ta, tb, acc)
					a := randomSlice(r, m*k)
					b := randomSlice(r, k*n)
					c0 := randomSlice(r, m*n)
					want := naive(p, a, b, c0)

					for _, plugin := range plugins {
						c := append([]float32(nil), c0...)
						plugin.Sgemm(p, a, b, c)
						require.Equal(t, want, c, "%s m=%d n=%d k=%d ta=%v tb=%v acc=%v",
							plugin.Name(), m, n, k, ta, tb, acc)
					}
				}
			}
		}
	}
}

func TestBlockedGemm_Int32(t *testing.T) {
	p := params(2, 2, 3, false, false, false)
	a := []int32{1, 2, 3, 4, 5, 6}
	b := []int32{7, 8, 9, 10, 11, 12}
	c := make([]int32, 4)
	BlockedGemm(p, a, b, c)
	assert.Equal(t, []int32{58, 64, 139, 154}, c)
}

func TestByName(t *testing.T) {
	p, ok := ByName("gonum")
	assert.True(t, ok)
	assert.Equal(t, "gonum", p.Name())

	p, ok = ByName("")
	assert.True(t, ok)
	assert.Nil(t, p)

	_, ok = ByName("mkl")
	assert.False(t, ok)
}

func TestSchedule_Batched(t *testing.T) {
	for _, plugin := range []Plugin{nil, BLAS{}} {
		a := arena.New(arena.Config{})
		s := parallel.NewScheduler(parallel.Config{Enabled: true, NumWorkers: 4}, nil, nil)
		r := rand.New(rand.NewPCG(3, 4))

		const batch, m, n, k = 3, 40, 5, 6
		av, bv := randomSlice(r, batch*m*k), randomSlice(r, k*n)
		bufA, err := a.Allocate(len(av), 4, false)
		require.NoError(t, err)
		bufB, err := a.Allocate(len(bv), 4, false)
		require.NoError(t, err)
		bufC, err := a.Allocate(batch*m*n, 4, false)
		require.NoError(t, err)
		copy(tensor.AsFloat32(bufA.Bytes()), av)
		copy(tensor.AsFloat32(bufB.Bytes()), bv)

		p := params(m, n, k, false, false, false)
		// B is shared by every matrix of the batch.
		_, err = Schedule[float32](s, plugin, Job{
			Name:   "matmul",
			A:      bufA,
			B:      bufB,
			C:      bufC,
			Params: p,
			Batch:  batch,
			Offsets: func(i int) (int, int, int) {
				return i * m * k, 0, i * m * n
			},
		})
		require.NoError(t, err)
		s.Wait()

		got := tensor.AsFloat32(bufC.Bytes())
		for i := 0; i < batch; i++ {
			want := naive(p, av[i*m*k:], bv, nil)
			assert.Equal(t, want, got[i*m*n:(i+1)*m*n], "plugin %v matrix %d", plugin, i)
		}
	}
}

func TestSchedule_AccumulateOrdersAfterPrefill(t *testing.T) {
	a := arena.New(arena.Config{})
	s := parallel.NewScheduler(parallel.Config{Enabled: true, NumWorkers: 2}, nil, nil)

	bufA, _ := a.Allocate(2, 4, false)
	bufB, _ := a.Allocate(2, 4, false)
	bufC, _ := a.Allocate(1, 4, false)
	copy(tensor.AsFloat32(bufA.Bytes()), []float32{1, 2})
	copy(tensor.AsFloat32(bufB.Bytes()), []float32{3, 4})
	c := tensor.AsFloat32(bufC.Bytes())

	_, err := s.Schedule(parallel.Job{
		Name: "bias", Writes: []*arena.Buffer{bufC}, Count: 1,
		Body: func(int, int) { c[0] = 100 },
	})
	require.NoError(t, err)

	p := params(1, 1, 2, false, false, true)
	_, err = Schedule[float32](s, BLAS{}, Job{Name: "dense", A: bufA, B: bufB, C: bufC, Params: p, Batch: 1})
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, float32(111), c[0])
}
