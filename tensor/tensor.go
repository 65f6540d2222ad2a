// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/tensorexec/internal/pin"
	"github.com/born-ml/tensorexec/internal/tensor"
)

// DType is a constraint for element types a tensor can hold on the host.
type DType = tensor.DType

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	Float16 DataType = tensor.Float16
)

// MaxRank is the largest rank a shape may have.
const MaxRank = tensor.MaxRank

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Tensor is a shaped, typed view of host or arena storage.
type Tensor = tensor.Tensor

// Backend is the operator set a kernel library implements.
type Backend = tensor.TensorBackend

// Operator selectors.
type (
	UnaryOp     = tensor.UnaryOp
	BinaryOp    = tensor.BinaryOp
	ReduceOp    = tensor.ReduceOp
	ScatterMode = tensor.ScatterMode
	PadMode     = tensor.PadMode
	ConvParams  = tensor.ConvParams
)

// Unary operators.
const (
	Neg        = tensor.Neg
	Abs        = tensor.Abs
	Relu       = tensor.Relu
	Sigmoid    = tensor.Sigmoid
	Tanh       = tensor.Tanh
	Exp        = tensor.Exp
	Log        = tensor.Log
	Sqrt       = tensor.Sqrt
	Erf        = tensor.Erf
	Gelu       = tensor.Gelu
	Floor      = tensor.Floor
	Ceil       = tensor.Ceil
	Reciprocal = tensor.Reciprocal
)

// Binary operators.
const (
	Add = tensor.Add
	Sub = tensor.Sub
	Mul = tensor.Mul
	Div = tensor.Div
	Pow = tensor.Pow
	Min = tensor.Min
	Max = tensor.Max
	Mod = tensor.Mod
)

// Reduction operators.
const (
	ReduceSum       = tensor.ReduceSum
	ReduceMean      = tensor.ReduceMean
	ReduceProd      = tensor.ReduceProd
	ReduceMin       = tensor.ReduceMin
	ReduceMax       = tensor.ReduceMax
	ReduceSumSquare = tensor.ReduceSumSquare
	ReduceL1        = tensor.ReduceL1
	ReduceL2        = tensor.ReduceL2
	ReduceLogSum    = tensor.ReduceLogSum
	ReduceLogSumExp = tensor.ReduceLogSumExp
)

// Scatter modes.
const (
	ScatterNone = tensor.ScatterNone
	ScatterAdd  = tensor.ScatterAdd
	ScatterMul  = tensor.ScatterMul
)

// Pad modes.
const (
	PadConstant = tensor.PadConstant
	PadReflect  = tensor.PadReflect
	PadEdge     = tensor.PadEdge
	PadWrap     = tensor.PadWrap
)

// Validation errors returned by every backend before work is scheduled.
var (
	ErrShapeMismatch       = tensor.ErrShapeMismatch
	ErrDegenerateReduction = tensor.ErrDegenerateReduction
	ErrInvalidArgument     = tensor.ErrInvalidArgument
	ErrRankTooLarge        = tensor.ErrRankTooLarge
	ErrUnsupportedDType    = tensor.ErrUnsupportedDType
)

// ShapeError reports the shapes of operands that do not fit together.
type ShapeError = tensor.ShapeError

// FromSlice creates a host tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// FromFloat32 creates a float32 host tensor. It panics if len(data) does not
// match shape.
func FromFloat32(shape Shape, data []float32) *Tensor {
	return tensor.FromFloat32(shape, data)
}

// FromInt32 creates an int32 host tensor. It panics if len(data) does not
// match shape.
func FromInt32(shape Shape, data []int32) *Tensor {
	return tensor.FromInt32(shape, data)
}

// FromFloat16 creates a float16 host tensor from float32 values.
func FromFloat16(shape Shape, data []float32) (*Tensor, error) {
	return tensor.FromFloat16(shape, data)
}

// Zeros creates a zero filled host tensor.
func Zeros(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.Zeros(shape, dtype)
}

// Float32Values waits for pending writes to t and returns its elements
// converted to float32.
func Float32Values(t *Tensor) ([]float32, error) {
	return pin.Download(t)
}

// Int32Values waits for pending writes to t and returns its elements
// converted to int32.
func Int32Values(t *Tensor) ([]int32, error) {
	return pin.DownloadInt32(t)
}
