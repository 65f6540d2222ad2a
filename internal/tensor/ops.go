package tensor

// UnaryOp selects an elementwise function of one operand.
type UnaryOp int

// Unary operators.
const (
	Neg UnaryOp = iota
	Abs
	Relu
	Sigmoid
	Tanh
	Exp
	Log
	Sqrt
	Erf
	Gelu
	Floor
	Ceil
	Reciprocal
)

var unaryNames = [...]string{"neg", "abs", "relu", "sigmoid", "tanh", "exp", "log", "sqrt", "erf", "gelu", "floor", "ceil", "reciprocal"}

// String returns the operator name.
func (op UnaryOp) String() string {
	if op < 0 || int(op) >= len(unaryNames) {
		return "unknown"
	}
	return unaryNames[op]
}

// FloatOnly reports whether the operator is defined only for floating point.
func (op UnaryOp) FloatOnly() bool {
	return op != Neg && op != Abs && op != Relu
}

// BinaryOp selects an elementwise function of two broadcast operands.
type BinaryOp int

// Binary operators.
const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Pow
	Min
	Max
	Mod
)

var binaryNames = [...]string{"add", "sub", "mul", "div", "pow", "min", "max", "mod"}

// String returns the operator name.
func (op BinaryOp) String() string {
	if op < 0 || int(op) >= len(binaryNames) {
		return "unknown"
	}
	return binaryNames[op]
}

// ReduceOp selects a reduction.
type ReduceOp int

// Reduction operators.
const (
	ReduceSum ReduceOp = iota
	ReduceMean
	ReduceProd
	ReduceMin
	ReduceMax
	ReduceSumSquare
	ReduceL1
	ReduceL2
	ReduceLogSum
	ReduceLogSumExp
)

var reduceNames = [...]string{"reducesum", "reducemean", "reduceprod", "reducemin", "reducemax",
	"reducesumsquare", "reducel1", "reducel2", "reducelogsum", "reducelogsumexp"}

// String returns the operator name.
func (op ReduceOp) String() string {
	if op < 0 || int(op) >= len(reduceNames) {
		return "unknown"
	}
	return reduceNames[op]
}

// FloatOnly reports whether the reduction needs floating point math.
func (op ReduceOp) FloatOnly() bool {
	switch op {
	case ReduceL2, ReduceLogSum, ReduceLogSumExp:
		return true
	default:
		return false
	}
}

// ScatterMode selects how ScatterElements combines an update with the
// existing value.
type ScatterMode int

// Scatter reduction modes.
const (
	ScatterNone ScatterMode = iota
	ScatterAdd
	ScatterMul
)

// String returns the ONNX name of the mode.
func (m ScatterMode) String() string {
	switch m {
	case ScatterNone:
		return "none"
	case ScatterAdd:
		return "add"
	case ScatterMul:
		return "mul"
	default:
		return "unknown"
	}
}

// ConvParams holds the attributes of a 2-D convolution. Nil slices take
// the defaults (stride 1, no padding, dilation 1).
type ConvParams struct {
	Strides   []int
	Pads      []int // [top, left, bottom, right]
	Dilations []int
	Group     int
}

// InferReshape resolves a target shape for Reshape. One dimension may be -1
// and is inferred; a 0 copies the input dimension at the same position.
func InferReshape(in, target Shape) (Shape, error) {
	out := target.Clone()
	infer := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, argErr("reshape", "more than one -1 in %v", target)
			}
			infer = i
			continue
		case d == 0 && i < len(in):
			out[i] = in[i]
		case d < 0:
			return nil, argErr("reshape", "invalid dimension %d", d)
		}
		known *= out[i]
	}
	count := in.NumElements()
	if infer >= 0 {
		if known == 0 || count%known != 0 {
			return nil, shapeErr("reshape", ErrShapeMismatch, "cannot infer -1", in, target)
		}
		out[infer] = count / known
	}
	if out.NumElements() != count {
		return nil, shapeErr("reshape", ErrShapeMismatch, "element counts differ", in, target)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
