package arena

import "github.com/pkg/errors"

// Arena errors.
var (
	// ErrOutOfMemory is returned when an allocation would exceed the arena's
	// byte limit. It is fatal: callers do not retry.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrUseAfterDispose is returned when work is requested against a buffer
	// that was already freed.
	ErrUseAfterDispose = errors.New("arena: buffer used after dispose")

	// ErrUnsafeDisposal reports buffers that were still referenced, or still
	// had tasks in flight, when the arena was shut down.
	ErrUnsafeDisposal = errors.New("arena: unsafe disposal")
)
