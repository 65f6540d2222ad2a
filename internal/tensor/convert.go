package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// Convert copies count elements from src (stored as srcType) into dst
// (stored as dstType). Any storage type converts to Float32 and Int32, the
// two types kernels compute on; Float32 additionally converts to Float16.
func Convert(dst []byte, dstType DataType, src []byte, srcType DataType, count int) error {
	if len(dst) < count*dstType.Size() || len(src) < count*srcType.Size() {
		return fmt.Errorf("%w: convert %d elements: buffers too small", ErrInvalidArgument, count)
	}
	if count == 0 {
		return nil
	}
	if dstType == srcType {
		copy(dst[:count*dstType.Size()], src)
		return nil
	}

	switch dstType {
	case Float32:
		out := AsFloat32(dst)[:count]
		return convertTo(out, src, srcType)
	case Int32:
		out := AsInt32(dst)[:count]
		return convertTo(out, src, srcType)
	case Float16:
		if srcType != Float32 {
			break
		}
		in := AsFloat32(src)[:count]
		out := AsUint16(dst)[:count]
		for i, v := range in {
			out[i] = float16.Fromfloat32(v).Bits()
		}
		return nil
	}
	return fmt.Errorf("%w: cannot convert %s to %s", ErrUnsupportedDType, srcType, dstType)
}

func convertTo[T Numeric](out []T, src []byte, srcType DataType) error {
	n := len(out)
	switch srcType {
	case Float32:
		for i, v := range AsFloat32(src)[:n] {
			out[i] = T(v)
		}
	case Int32:
		for i, v := range AsInt32(src)[:n] {
			out[i] = T(v)
		}
	case Float16:
		for i, v := range AsUint16(src)[:n] {
			out[i] = T(float16.Frombits(v).Float32())
		}
	case Float64:
		for i, v := range AsFloat64(src)[:n] {
			out[i] = T(v)
		}
	case Int64:
		for i, v := range AsInt64(src)[:n] {
			out[i] = T(v)
		}
	case Uint8, Bool:
		for i, v := range src[:n] {
			out[i] = T(v)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, srcType)
	}
	return nil
}
