package tensor

import "fmt"

// MatMulPlan describes a batched matrix multiply C = op(A) @ op(B) with
// NumPy broadcasting over the leading batch dimensions.
type MatMulPlan struct {
	Out    Shape
	M      int
	N      int
	K      int
	Batch  int
	TransA bool
	TransB bool

	batch *BroadcastPlan // Broadcast over batch dims; operand 0 is A, 1 is B
}

// PrepareMatMul validates shapes for ONNX MatMul semantics. A rank-1 A is
// treated as [1, K] and a rank-1 B as [K, 1]; the added axis is removed from
// the output. With transA, A is stored as [..., K, M]; with transB, B as [..., N, K].
func PrepareMatMul(a, b Shape, transA, transB bool) (*MatMulPlan, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, shapeErr("matmul", ErrShapeMismatch, "operands must have rank >= 1", a, b)
	}
	a2, b2 := a, b
	if len(a) == 1 {
		a2 = Shape{1, a[0]}
		if transA {
			a2 = Shape{a[0], 1}
		}
	}
	if len(b) == 1 {
		b2 = Shape{b[0], 1}
		if transB {
			b2 = Shape{1, b[0]}
		}
	}

	ra, rb := len(a2), len(b2)
	m, k := a2[ra-2], a2[ra-1]
	if transA {
		m, k = k, m
	}
	k2, n := b2[rb-2], b2[rb-1]
	if transB {
		k2, n = n, k2
	}
	if k != k2 {
		return nil, shapeErr("matmul", ErrShapeMismatch, fmt.Sprintf("inner dimensions %d vs %d", k, k2), a, b)
	}

	batch, err := PrepareBroadcast(a2[:ra-2], b2[:rb-2])
	if err != nil {
		return nil, shapeErr("matmul", ErrShapeMismatch, "batch dimensions do not broadcast", a, b)
	}

	out := batch.Out.Clone()
	if len(a) > 1 {
		out = append(out, m)
	}
	if len(b) > 1 {
		out = append(out, n)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}

	return &MatMulPlan{
		Out:    out,
		M:      m,
		N:      n,
		K:      k,
		Batch:  batch.Out.NumElements(),
		TransA: transA,
		TransB: transB,
		batch:  batch,
	}, nil
}

// Offsets returns the element offsets of matrix number i in A, B and C.
func (p *MatMulPlan) Offsets(i int) (offA, offB, offC int) {
	return p.batch.Offset(0, i) * p.M * p.K, p.batch.Offset(1, i) * p.K * p.N, i * p.M * p.N
}

// LeadingDims returns the row strides of A, B and C as stored.
func (p *MatMulPlan) LeadingDims() (lda, ldb, ldc int) {
	lda, ldb = p.K, p.N
	if p.TransA {
		lda = p.M
	}
	if p.TransB {
		ldb = p.K
	}
	return lda, ldb, p.N
}

// ConvPlan describes a 2-D convolution over NCHW input with OIHW weights.
type ConvPlan struct {
	Out Shape // [N, M, OH, OW]

	N, C, H, W int
	M, KH, KW  int
	OH, OW     int
	Group      int

	StrideH, StrideW     int
	PadTop, PadLeft      int
	DilationH, DilationW int
}

// ColRows returns the row count of the im2col matrix of one group.
func (p *ConvPlan) ColRows() int {
	return (p.C / p.Group) * p.KH * p.KW
}

// ColCols returns the column count of the im2col matrix.
func (p *ConvPlan) ColCols() int {
	return p.OH * p.OW
}

// PrepareConv validates a Conv. strides, pads ([top, left, bottom, right])
// and dilations may be nil for the defaults (1, 0, 1). group must divide
// both the input and output channel counts.
func PrepareConv(x, w, bias Shape, strides, pads, dilations []int, group int) (*ConvPlan, error) {
	if len(x) != 4 || len(w) != 4 {
		return nil, shapeErr("conv", ErrShapeMismatch, "expected NCHW input and OIHW weights", x, w)
	}
	if strides == nil {
		strides = []int{1, 1}
	}
	if pads == nil {
		pads = []int{0, 0, 0, 0}
	}
	if dilations == nil {
		dilations = []int{1, 1}
	}
	if group <= 0 {
		group = 1
	}
	if len(strides) != 2 || len(pads) != 4 || len(dilations) != 2 {
		return nil, argErr("conv", "strides/pads/dilations must have 2/4/2 entries")
	}
	for _, v := range append(append([]int{}, strides...), dilations...) {
		if v <= 0 {
			return nil, argErr("conv", "strides and dilations must be positive")
		}
	}
	for _, v := range pads {
		if v < 0 {
			return nil, argErr("conv", "pads must be non-negative")
		}
	}

	p := &ConvPlan{
		N: x[0], C: x[1], H: x[2], W: x[3],
		M: w[0], KH: w[2], KW: w[3],
		Group: group,
		StrideH: strides[0], StrideW: strides[1],
		PadTop: pads[0], PadLeft: pads[1],
		DilationH: dilations[0], DilationW: dilations[1],
	}
	if p.C%group != 0 || p.M%group != 0 || w[1] != p.C/group {
		return nil, shapeErr("conv", ErrShapeMismatch,
			fmt.Sprintf("channels %d / group %d do not match weights", p.C, group), x, w)
	}
	if bias != nil && (len(bias) != 1 || bias[0] != p.M) {
		return nil, shapeErr("conv", ErrShapeMismatch, "bias must be [M]", w, bias)
	}

	effH := p.DilationH*(p.KH-1) + 1
	effW := p.DilationW*(p.KW-1) + 1
	padH, padW := p.H+pads[0]+pads[2], p.W+pads[1]+pads[3]
	if padH < effH || padW < effW {
		return nil, shapeErr("conv", ErrShapeMismatch, "kernel larger than padded input", x, w)
	}
	p.OH = (padH-effH)/p.StrideH + 1
	p.OW = (padW-effW)/p.StrideW + 1
	p.Out = Shape{p.N, p.M, p.OH, p.OW}
	return p, nil
}
