// Package tensor provides the shape, dtype and iteration-planning types shared by every
// kernel of the execution engine.
package tensor

// DType is a constraint for element types a tensor can hold on the host.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~bool
}

// Numeric is the constraint for element types the kernels compute on.
type Numeric interface {
	~float32 | ~int32
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
//
// Kernels compute on Float32 and Int32. The other types exist as storage
// representations that are converted when a tensor is pinned.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
	Float16
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16:
		return 2
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the type holds floating point values.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64 || dt == Float16
}

// ComputeType returns the type kernels use for tensors stored as dt.
// Floating point storage computes as Float32, everything else as Int32.
func (dt DataType) ComputeType() DataType {
	if dt.IsFloat() {
		return Float32
	}
	return Int32
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}
