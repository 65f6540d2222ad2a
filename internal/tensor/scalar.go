package tensor

import "math"

// Scalar semantics of the elementwise operators. Every kernel library
// computes single elements through these functions, so backends agree on
// edge cases such as integer division by zero.

// UnaryFunc returns the element function of op for T.
// Float-only operators are computed in float64 and rounded to T.
func UnaryFunc[T Numeric](op UnaryOp) func(T) T {
	switch op {
	case Neg:
		return func(x T) T { return -x }
	case Abs:
		return func(x T) T {
			if x < 0 {
				return -x
			}
			return x
		}
	case Relu:
		return func(x T) T { return max(x, 0) }
	}
	f := floatUnary(op)
	return func(x T) T { return T(f(float64(x))) }
}

func floatUnary(op UnaryOp) func(float64) float64 {
	switch op {
	case Sigmoid:
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	case Tanh:
		return math.Tanh
	case Exp:
		return math.Exp
	case Log:
		return math.Log
	case Sqrt:
		return math.Sqrt
	case Erf:
		return math.Erf
	case Gelu:
		return func(x float64) float64 { return 0.5 * x * (1 + math.Erf(x/math.Sqrt2)) }
	case Floor:
		return math.Floor
	case Ceil:
		return math.Ceil
	case Reciprocal:
		return func(x float64) float64 { return 1 / x }
	default:
		return func(float64) float64 { return math.NaN() }
	}
}

// BinaryFunc returns the element function of op for T.
//
// Integer division and modulo by zero yield 0. Mod takes the sign of the
// divisor for both integers and floats.
func BinaryFunc[T Numeric](op BinaryOp) func(a, b T) T {
	integer := isInteger[T]()
	switch op {
	case Add:
		return func(a, b T) T { return a + b }
	case Sub:
		return func(a, b T) T { return a - b }
	case Mul:
		return func(a, b T) T { return a * b }
	case Div:
		if integer {
			return func(a, b T) T {
				if b == 0 {
					return 0
				}
				return a / b
			}
		}
		return func(a, b T) T { return a / b }
	case Pow:
		return func(a, b T) T { return T(math.Pow(float64(a), float64(b))) }
	case Min:
		return func(a, b T) T { return min(a, b) }
	case Max:
		return func(a, b T) T { return max(a, b) }
	case Mod:
		if integer {
			return func(a, b T) T { return T(modInt(int32(a), int32(b))) }
		}
		return func(a, b T) T { return T(modFloat(float64(a), float64(b))) }
	default:
		return func(T, T) T { return 0 }
	}
}

func modInt(a, b int32) int32 {
	if b == 0 {
		return 0
	}
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func modFloat(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func isInteger[T Numeric]() bool {
	var zero T
	_, ok := any(zero).(int32)
	return ok
}

// ComputeTypeOf returns the compute DataType of T.
func ComputeTypeOf[T Numeric]() DataType {
	if isInteger[T]() {
		return Int32
	}
	return Float32
}
