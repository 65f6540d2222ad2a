package tensor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Validation errors. They are always returned synchronously, before any task
// is scheduled.
var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrDegenerateReduction = errors.New("reduction has no identity")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrRankTooLarge        = errors.New("rank exceeds maximum")
	ErrUnsupportedDType    = errors.New("unsupported data type")
)

// ShapeError describes an operand shape that an operator rejected.
type ShapeError struct {
	Op     string  // Operator name (e.g. "add", "matmul")
	Shapes []Shape // Offending operand shapes
	Detail string  // Additional details
	Err    error   // Sentinel error, matched with errors.Is
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: shapes %v: %s", e.Op, e.Err, e.Shapes, e.Detail)
	}
	return fmt.Sprintf("%s: %v: shapes %v", e.Op, e.Err, e.Shapes)
}

// Unwrap returns the sentinel error.
func (e *ShapeError) Unwrap() error {
	return e.Err
}

func shapeErr(op string, err error, detail string, shapes ...Shape) error {
	return &ShapeError{Op: op, Shapes: shapes, Detail: detail, Err: err}
}

func argErr(op, format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, "%s: %s", op, fmt.Sprintf(format, args...))
}
